// Package sim provides a synthetic sensor session for development and
// testing: it renders a moving test pattern with a seven-segment frame
// counter and honors the full session contract, including region, binning,
// exposure, frame-rate and pixel-format state.
package sim

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/opencam/cam/driver"
	"github.com/golang/freetype/truetype"
)

var l = gogger.New("cam.driver.sim")

type Options struct {
	// Width and Height of the full sensor, 512 x 512 when zero.
	Width  int
	Height int

	// MinROI is the smallest region edge in pixels, 16 when zero.
	MinROI int
	// Increment is the region alignment step, 4 when zero.
	Increment int

	// FrameRateMax at binning 1 in frames per second, 60 when zero.
	FrameRateMax float64

	// ExposureUs is the supported exposure range in microseconds.
	// Zero means {Min: 100, Max: 1_000_000, Inc: 100}.
	ExposureUs driver.Range

	// FontPath optionally names a TrueType font used to overlay the label
	// and timestamp on each frame. Without it the overlay is skipped.
	FontPath string

	// Label drawn on each frame when a font is available.
	Label string

	// Model reported to the engine.
	Model string
}

type frame struct {
	img    *image.NRGBA
	format driver.PixelFormat
}

// Raw returns the frame pixels in the frame's format: one byte per pixel
// for the monochrome and mosaic formats, four bytes per pixel for BGRA.
func (f *frame) Raw() ([]byte, error) {
	bounds := f.img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	switch f.format {
	case driver.FormatMono8:
		raw := make([]byte, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := f.img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				r := int(f.img.Pix[i])
				g := int(f.img.Pix[i+1])
				b := int(f.img.Pix[i+2])
				raw[y*width+x] = byte((299*r + 587*g + 114*b) / 1000)
			}
		}
		return raw, nil
	case driver.FormatBayerRG8:
		// RGGB mosaic sampled from the rendered color image.
		raw := make([]byte, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := f.img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				switch {
				case y%2 == 0 && x%2 == 0:
					raw[y*width+x] = f.img.Pix[i]
				case y%2 == 1 && x%2 == 1:
					raw[y*width+x] = f.img.Pix[i+2]
				default:
					raw[y*width+x] = f.img.Pix[i+1]
				}
			}
		}
		return raw, nil
	case driver.FormatBGRA8:
		raw := make([]byte, width*height*4)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := f.img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				o := (y*width + x) * 4
				raw[o] = f.img.Pix[i+2]
				raw[o+1] = f.img.Pix[i+1]
				raw[o+2] = f.img.Pix[i]
				raw[o+3] = f.img.Pix[i+3]
			}
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedFormat, f.format)
}

// Session is a software implementation of driver.Session.
type Session struct {
	driver.Session

	options Options
	font    *truetype.Font

	mu sync.Mutex

	closed bool

	roi     driver.Rect
	binning int
	format  driver.PixelFormat

	exposureUs   float64
	frameRate    float64
	frameRateMax float64

	gains  [4]float64
	autoWB driver.AutoFeatureMode

	running   bool
	unbounded bool
	pending   uint64
	counter   uint64
	stop      chan struct{}
}

func New(options Options) (*Session, error) {
	if options.Width <= 0 {
		options.Width = 512
	}
	if options.Height <= 0 {
		options.Height = 512
	}
	if options.MinROI <= 0 {
		options.MinROI = 16
	}
	if options.Increment <= 0 {
		options.Increment = 4
	}
	if options.FrameRateMax <= 0 {
		options.FrameRateMax = 60
	}
	if options.ExposureUs == (driver.Range{}) {
		options.ExposureUs = driver.Range{Min: 100, Max: 1_000_000, Inc: 100}
	}
	if options.Model == "" {
		options.Model = "SimCam"
	}

	s := &Session{
		options: options,

		roi:     driver.Rect{X: 0, Y: 0, Width: options.Width, Height: options.Height},
		binning: 1,
		format:  driver.FormatMono8,

		exposureUs:   10_000,
		frameRate:    options.FrameRateMax,
		frameRateMax: options.FrameRateMax,

		gains:  [4]float64{1, 1, 1, 1},
		autoWB: driver.AutoOff,

		stop: make(chan struct{}),
	}

	if options.FontPath != "" {
		data, err := os.ReadFile(options.FontPath)
		if err != nil {
			return nil, fmt.Errorf("font: %w", err)
		}
		s.font, err = truetype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("font: %w", err)
		}
	}

	l.Info().Println("opened", options.Model, options.Width, "x", options.Height)

	return s, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.running {
		s.running = false
		close(s.stop)
	}
	return nil
}

func (s *Session) Model() string {
	return s.options.Model
}

func (s *Session) FirmwareVersion() (string, error) {
	return "sim-1.0.0", nil
}

func (s *Session) Temperature() (float64, error) {
	return 42.5, nil
}

func (s *Session) SensorSize() (driver.Size, error) {
	return driver.Size{Width: s.options.Width, Height: s.options.Height}, nil
}

func (s *Session) ROIAccess() driver.AccessMode {
	return driver.AccessReadWrite
}

func (s *Session) ROISizeRange() (driver.Size, int, error) {
	return driver.Size{Width: s.options.MinROI, Height: s.options.MinROI}, s.options.Increment, nil
}

func (s *Session) SetROI(rect driver.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	extentW := s.options.Width / s.binning
	extentH := s.options.Height / s.binning
	if rect.Width < s.options.MinROI || rect.Height < s.options.MinROI {
		return fmt.Errorf("sim: region %dx%d below minimum %d", rect.Width, rect.Height, s.options.MinROI)
	}
	if rect.X < 0 || rect.Y < 0 || rect.X+rect.Width > extentW || rect.Y+rect.Height > extentH {
		return fmt.Errorf("sim: region %+v outside %dx%d", rect, extentW, extentH)
	}
	if rect.X%s.options.Increment != 0 || rect.Y%s.options.Increment != 0 ||
		rect.Width%s.options.Increment != 0 || rect.Height%s.options.Increment != 0 {
		return fmt.Errorf("sim: region %+v not aligned to %d", rect, s.options.Increment)
	}

	s.roi = rect
	return nil
}

func (s *Session) BinningAccess() driver.AccessMode {
	return driver.AccessReadWrite
}

func (s *Session) BinningFactors() ([]int, error) {
	return []int{1, 2, 4}, nil
}

func (s *Session) SetBinning(factor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch factor {
	case 1, 2, 4:
	default:
		return fmt.Errorf("sim: unsupported binning factor %d", factor)
	}

	s.binning = factor
	// Fewer pixels to read per frame, the ceiling rises accordingly.
	s.frameRateMax = s.options.FrameRateMax * float64(factor)

	// Keep the stored region valid until the caller pushes a rescaled one.
	extentW := s.options.Width / factor
	extentH := s.options.Height / factor
	if s.roi.Width > extentW {
		s.roi.Width = extentW
	}
	if s.roi.Height > extentH {
		s.roi.Height = extentH
	}
	if s.roi.X+s.roi.Width > extentW {
		s.roi.X = extentW - s.roi.Width
	}
	if s.roi.Y+s.roi.Height > extentH {
		s.roi.Y = extentH - s.roi.Height
	}

	return nil
}

func (s *Session) ExposureAccess() driver.AccessMode {
	return driver.AccessReadWrite
}

func (s *Session) Exposure() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposureUs, nil
}

func (s *Session) ExposureRange() (driver.Range, error) {
	return s.options.ExposureUs, nil
}

func (s *Session) SetExposure(us float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.options.ExposureUs
	if us < r.Min || us > r.Max {
		return fmt.Errorf("sim: exposure %f outside [%f, %f]", us, r.Min, r.Max)
	}
	s.exposureUs = us
	return nil
}

func (s *Session) FrameRateRange() (driver.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return driver.Range{Min: 0.1, Max: s.frameRateMax, Inc: 0}, nil
}

func (s *Session) SetFrameRate(fps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fps < 0.1 || fps > s.frameRateMax {
		return fmt.Errorf("sim: frame rate %f outside [0.1, %f]", fps, s.frameRateMax)
	}
	s.frameRate = fps
	return nil
}

func (s *Session) PixelFormatAccess() driver.AccessMode {
	return driver.AccessReadWrite
}

func (s *Session) PixelFormats() ([]driver.PixelFormat, error) {
	return []driver.PixelFormat{driver.FormatMono8, driver.FormatBayerRG8}, nil
}

func (s *Session) SetPixelFormat(format driver.PixelFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch format {
	case driver.FormatMono8, driver.FormatBayerRG8:
		s.format = format
		return nil
	}
	return fmt.Errorf("%w: %s", driver.ErrUnsupportedFormat, format)
}

func (s *Session) GainAccess() driver.AccessMode {
	return driver.AccessReadWrite
}

func (s *Session) GainRange() (driver.Range, error) {
	return driver.Range{Min: 1, Max: 8, Inc: 0}, nil
}

func (s *Session) Gain(ch driver.GainChannel) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gains[ch], nil
}

func (s *Session) SetGain(ch driver.GainChannel, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value < 1 || value > 8 {
		return fmt.Errorf("sim: gain %f outside [1, 8]", value)
	}
	s.gains[ch] = value
	return nil
}

func (s *Session) AutoWhiteBalanceAccess() driver.AccessMode {
	return driver.AccessReadWrite
}

func (s *Session) AutoWhiteBalance() (driver.AutoFeatureMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoWB, nil
}

func (s *Session) SetAutoWhiteBalance(mode driver.AutoFeatureMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoWB = mode
	return nil
}

func (s *Session) StartAcquisition(frames uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return driver.ErrNotFound
	}
	if s.running {
		return fmt.Errorf("sim: acquisition already running")
	}

	s.unbounded = frames == driver.ContinuousAcquisition
	s.pending = frames
	s.running = true
	s.stop = make(chan struct{})
	return nil
}

func (s *Session) StopAcquisition() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.running = false
		close(s.stop)
	}
	return nil
}

func (s *Session) AcquisitionRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// WaitForFrame paces delivery by the configured frame rate: it sleeps one
// frame period and renders the next frame, or returns ErrTimeout if the
// deadline falls before the period elapses. A stopped acquisition aborts
// the wait.
func (s *Session) WaitForFrame(timeout time.Duration) (driver.Frame, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, driver.ErrAborted
	}
	period := time.Duration(float64(time.Second) / s.frameRate)
	stop := s.stop
	s.mu.Unlock()

	if timeout < period {
		select {
		case <-time.After(timeout):
			return nil, driver.ErrTimeout
		case <-stop:
			return nil, driver.ErrAborted
		}
	}

	select {
	case <-time.After(period):
	case <-stop:
		return nil, driver.ErrAborted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, driver.ErrAborted
	}

	s.counter++
	img := s.render()

	if !s.unbounded {
		s.pending--
		if s.pending == 0 {
			s.running = false
			close(s.stop)
		}
	}

	return &frame{img: img, format: s.format}, nil
}

func (s *Session) ReleaseFrame(driver.Frame) error {
	return nil
}

// ConvertFrame re-wraps a frame's pixels in the requested format; only the
// packed BGRA target is supported, matching what color pipelines ask for.
func (s *Session) ConvertFrame(f driver.Frame, format driver.PixelFormat) (driver.Frame, error) {
	if format != driver.FormatBGRA8 {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedFormat, format)
	}
	src, ok := f.(*frame)
	if !ok {
		return nil, fmt.Errorf("sim: foreign frame %T", f)
	}
	return &frame{img: src.img, format: driver.FormatBGRA8}, nil
}
