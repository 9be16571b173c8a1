// Package cam implements the continuous-acquisition engine: it drives an
// opened sensor session through a start/stop/suspend lifecycle, pulls frames
// on a dedicated worker goroutine at a governed rate, converts them into the
// consumer pixel buffer, and keeps geometry, pixel format, exposure and
// frame-rate state mutually consistent under concurrent access.
package cam

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/opencam/cam/driver"
	"github.com/allape/opencam/cam/sink"
	"github.com/allape/opencam/cam/trigger"
)

var l = gogger.New("cam")

const (
	// maxFrameTimeouts bounds consecutive frame-wait retries before a run
	// is treated as fatally timed out.
	maxFrameTimeouts = 100

	// bitDepth of all supported pixel formats.
	bitDepth = 8

	defaultSequenceMaxLength = 100
)

type Options struct {
	Sink    sink.Sink
	Trigger trigger.Driver

	// ReadoutTime emulates a fixed sensor readout delay: ImageBuffer blocks
	// until this much time has elapsed since the previous readout started.
	ReadoutTime time.Duration

	// MultiROISupported enables the multi-rectangle ROI capability.
	MultiROISupported bool
	// MultiROIFillValue masks buffer pixels outside the active rectangles.
	MultiROIFillValue byte

	// ExposureSequenceMaxLength bounds the exposure sequence; 0 means the
	// default of 100.
	ExposureSequenceMaxLength int
}

// Camera is the acquisition engine on top of a single device session.
// Configuration calls run on the caller's goroutine and are rejected while
// the worker owns the device; the session itself is never driven from two
// goroutines at once.
type Camera struct {
	session driver.Session
	sink    sink.Sink
	trigger trigger.Driver

	img   *Buffer
	imgMu sync.Mutex

	// geometry, in sensor units
	sensor     driver.Size
	roiX       int
	roiY       int
	roiMinSize driver.Size
	roiInc     int
	binning    int

	multiROISupported bool
	multiROIFill      byte
	multiROI          []driver.Rect

	// featMu publishes the exposure, frame-rate, gain and white-balance
	// state: the worker rewrites these per frame while a run is active, so
	// the foreground accessors cannot rely on the exclusive-access guard
	// alone.
	featMu sync.Mutex

	// rate state, milliseconds / hertz at this level
	exposureCur    float64
	exposureRange  driver.Range
	framerateCur   float64
	framerateRange driver.Range

	pixelFormat driver.PixelFormat
	components  int

	gains     [4]float64
	gainRange driver.Range
	autoWB    driver.AutoFeatureMode

	seq *exposureSequence

	runMu          sync.Mutex
	thread         *sequenceThread
	stopOnOverflow bool

	readoutTime  time.Duration
	readoutMu    sync.Mutex
	readoutStart time.Time
}

// New initializes the engine against an opened session: it reads the sensor
// geometry and feature ranges, selects the monochrome pixel format, and sizes
// the buffer to the full sensor.
func New(session driver.Session, options Options) (*Camera, error) {
	if session == nil {
		return nil, errors.New("cam: session is required")
	}
	if options.Sink == nil {
		return nil, errors.New("cam: sink is required")
	}

	maxSeq := options.ExposureSequenceMaxLength
	if maxSeq <= 0 {
		maxSeq = defaultSequenceMaxLength
	}

	c := &Camera{
		session: session,
		sink:    options.Sink,
		trigger: options.Trigger,

		binning: 1,

		multiROISupported: options.MultiROISupported,
		multiROIFill:      options.MultiROIFillValue,

		seq: newExposureSequence(maxSeq),

		readoutTime:  options.ReadoutTime,
		readoutStart: time.Now(),
	}

	sensor, err := session.SensorSize()
	if err != nil {
		return nil, fmt.Errorf("sensor size: %w", err)
	}
	c.sensor = sensor

	minSize, inc, err := session.ROISizeRange()
	if err != nil {
		return nil, fmt.Errorf("roi size range: %w", err)
	}
	c.roiMinSize = minSize
	c.roiInc = inc
	if c.roiInc < 1 {
		c.roiInc = 1
	}

	if err = session.SetPixelFormat(driver.FormatMono8); err != nil {
		return nil, fmt.Errorf("set pixel format: %w", err)
	}
	c.pixelFormat = driver.FormatMono8
	c.components = 1

	exposureUs, err := session.Exposure()
	if err != nil {
		return nil, fmt.Errorf("exposure: %w", err)
	}
	c.exposureCur = exposureUs / 1000

	expRange, err := session.ExposureRange()
	if err != nil {
		return nil, fmt.Errorf("exposure range: %w", err)
	}
	c.exposureRange = driver.Range{
		Min: expRange.Min / 1000,
		Max: expRange.Max / 1000,
		Inc: expRange.Inc / 1000,
	}

	c.framerateRange, err = session.FrameRateRange()
	if err != nil {
		return nil, fmt.Errorf("frame rate range: %w", err)
	}
	c.framerateCur = c.framerateRange.Max

	if session.GainAccess().Readable() {
		c.gainRange, err = session.GainRange()
		if err != nil {
			return nil, fmt.Errorf("gain range: %w", err)
		}
		for _, ch := range []driver.GainChannel{driver.GainMaster, driver.GainRed, driver.GainGreen, driver.GainBlue} {
			c.gains[ch], err = session.Gain(ch)
			if err != nil {
				return nil, fmt.Errorf("gain: %w", err)
			}
		}
	}

	if session.AutoWhiteBalanceAccess().Readable() {
		c.autoWB, err = session.AutoWhiteBalance()
		if err != nil {
			return nil, fmt.Errorf("auto white balance: %w", err)
		}
	}

	c.img = NewBuffer(sensor.Width, sensor.Height, c.components*bitDepth/8)
	if err = c.SetROI(0, 0, 0, 0); err != nil {
		return nil, fmt.Errorf("clear roi: %w", err)
	}

	l.Info().Println("initialized", session.Model(), "sensor", sensor.Width, "x", sensor.Height)

	return c, nil
}

// Close stops any running acquisition and closes the device session.
func (c *Camera) Close() error {
	if err := c.StopSequenceAcquisition(); err != nil {
		return err
	}
	if c.session.AcquisitionRunning() {
		_ = c.session.StopAcquisition()
	}
	return c.session.Close()
}

func (c *Camera) Session() driver.Session {
	return c.session
}

// configure funnels every foreground mutation through the exclusive-access
// guard so the device is never reconfigured while the worker owns it.
func (c *Camera) configure(fn func() error) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.capturing() {
		return ErrBusy
	}
	return fn()
}

func (c *Camera) capturing() bool {
	return c.thread != nil && !c.thread.exited()
}

func (c *Camera) IsCapturing() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.capturing()
}

func (c *Camera) State() State {
	c.runMu.Lock()
	t := c.thread
	c.runMu.Unlock()

	if t == nil || t.exited() {
		return StateStopped
	}
	if t.stopRequested() {
		return StateStopping
	}
	return StateRunning
}

// Width of the consumer buffer in pixels.
func (c *Camera) Width() int {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return c.img.Width()
}

func (c *Camera) Height() int {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return c.img.Height()
}

func (c *Camera) BytesPerPixel() int {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return c.img.Depth()
}

func (c *Camera) BitDepth() int {
	return bitDepth
}

func (c *Camera) BufferSize() int {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return c.img.Size()
}

// ImageBuffer returns the consumer pixel buffer, blocking until the
// configured minimum readout time has elapsed since the previous readout
// started. Callers must tolerate this call sleeping for up to that duration.
func (c *Camera) ImageBuffer() []byte {
	c.readoutMu.Lock()
	elapsed := time.Since(c.readoutStart)
	c.readoutMu.Unlock()

	if remaining := c.readoutTime - elapsed; remaining > 0 {
		time.Sleep(remaining)
	}

	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return c.img.Pixels()
}

func (c *Camera) ReadoutTime() time.Duration {
	return c.readoutTime
}

func (c *Camera) SetReadoutTime(d time.Duration) error {
	return c.configure(func() error {
		c.readoutTime = d
		return nil
	})
}

// SnapImage acquires a single frame synchronously on the caller's goroutine.
// It shares the rate governor and the frame wait/retry policy with the
// worker loop but not the worker itself.
func (c *Camera) SnapImage() error {
	c.runMu.Lock()
	if c.capturing() {
		c.runMu.Unlock()
		return ErrBusy
	}
	c.runMu.Unlock()

	if err := c.applyFrameRate(c.sequenceExposure()); err != nil {
		return err
	}

	if err := c.session.StartAcquisition(1); err != nil {
		return fmt.Errorf("start acquisition: %w", err)
	}

	timeout := c.frameWaitTimeout()
	timeouts := 0

	for pending := 1; pending > 0; {
		frame, err := c.session.WaitForFrame(timeout)
		if errors.Is(err, driver.ErrTimeout) {
			timeouts++
			if timeouts >= maxFrameTimeouts {
				return fmt.Errorf("%w after %d attempts", driver.ErrTimeout, timeouts)
			}
			continue
		}
		if errors.Is(err, driver.ErrAborted) {
			break
		}
		if err != nil {
			return fmt.Errorf("wait for frame: %w", err)
		}

		c.imgMu.Lock()
		terr := c.transfer(frame, c.img)
		c.imgMu.Unlock()

		rerr := c.session.ReleaseFrame(frame)
		if terr != nil {
			return terr
		}
		if rerr != nil {
			return fmt.Errorf("release frame: %w", rerr)
		}
		pending--
	}

	if c.AutoWhiteBalance() != driver.AutoOff {
		if err := c.updateAutoWhiteBalance(); err != nil {
			l.Warn().Println("white balance refresh:", err)
		}
	}

	c.readoutMu.Lock()
	c.readoutStart = time.Now()
	c.readoutMu.Unlock()

	return nil
}

func (c *Camera) PixelFormat() driver.PixelFormat {
	return c.pixelFormat
}

func (c *Camera) SetPixelFormat(format driver.PixelFormat) error {
	return c.configure(func() error {
		if !c.session.PixelFormatAccess().Writable() {
			return driver.ErrAccessDenied
		}

		var components int
		switch format {
		case driver.FormatMono8:
			components = 1
		case driver.FormatBayerRG8:
			components = 4
		default:
			return fmt.Errorf("%w: %s", driver.ErrUnsupportedFormat, format)
		}

		if err := c.session.SetPixelFormat(format); err != nil {
			return err
		}

		c.pixelFormat = format
		c.components = components

		c.imgMu.Lock()
		c.img.ResizeDepth(components * bitDepth / 8)
		c.imgMu.Unlock()

		return nil
	})
}

func (c *Camera) Components() int {
	return c.components
}

func (c *Camera) Gain(ch driver.GainChannel) float64 {
	c.featMu.Lock()
	defer c.featMu.Unlock()
	return c.gains[ch]
}

func (c *Camera) GainRange() driver.Range {
	return c.gainRange
}

func (c *Camera) SetGain(ch driver.GainChannel, value float64) error {
	return c.configure(func() error {
		if !c.session.GainAccess().Writable() {
			return driver.ErrAccessDenied
		}

		if value < c.gainRange.Min {
			l.Warn().Println("gain below range, clamped to", c.gainRange.Min)
			value = c.gainRange.Min
		} else if value > c.gainRange.Max {
			l.Warn().Println("gain above range, clamped to", c.gainRange.Max)
			value = c.gainRange.Max
		}

		if err := c.session.SetGain(ch, value); err != nil {
			return err
		}
		c.featMu.Lock()
		c.gains[ch] = value
		c.featMu.Unlock()
		return nil
	})
}

func (c *Camera) AutoWhiteBalance() driver.AutoFeatureMode {
	c.featMu.Lock()
	defer c.featMu.Unlock()
	return c.autoWB
}

func (c *Camera) SetAutoWhiteBalance(mode driver.AutoFeatureMode) error {
	return c.configure(func() error {
		if err := c.session.SetAutoWhiteBalance(mode); err != nil {
			return err
		}
		c.featMu.Lock()
		c.autoWB = mode
		c.featMu.Unlock()
		return nil
	})
}

// updateAutoWhiteBalance refreshes the cached gain values and mode from the
// device; the worker calls it after each frame while auto white balance is
// active.
func (c *Camera) updateAutoWhiteBalance() error {
	if !c.session.AutoWhiteBalanceAccess().Readable() {
		return driver.ErrAccessDenied
	}

	var gains [4]float64
	for _, ch := range []driver.GainChannel{driver.GainMaster, driver.GainRed, driver.GainGreen, driver.GainBlue} {
		gain, err := c.session.Gain(ch)
		if err != nil {
			return err
		}
		gains[ch] = gain
	}

	mode, err := c.session.AutoWhiteBalance()
	if err != nil {
		return err
	}

	c.featMu.Lock()
	c.gains = gains
	c.autoWB = mode
	c.featMu.Unlock()
	return nil
}

func (c *Camera) Temperature() (float64, error) {
	return c.session.Temperature()
}

func (c *Camera) FirmwareVersion() (string, error) {
	return c.session.FirmwareVersion()
}
