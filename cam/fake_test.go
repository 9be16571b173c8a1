package cam

import (
	"sync"
	"time"

	"github.com/allape/opencam/cam/driver"
)

type fakeFrame struct {
	data []byte
}

func (f *fakeFrame) Raw() ([]byte, error) {
	return f.data, nil
}

// fakeSession is a scriptable in-memory session. Frames are delivered with a
// short fixed pacing so lifecycle tests finish quickly but still observe the
// worker between frames.
type fakeSession struct {
	mu sync.Mutex

	roi        driver.Rect
	roiHistory []driver.Rect
	binning    int
	format     driver.PixelFormat

	exposureUs   float64
	frameRate    float64
	frameRateMin float64

	gains [4]float64
	awb   driver.AutoFeatureMode

	running   bool
	unbounded bool
	pending   uint64
	counter   byte

	// waitErrs are returned by WaitForFrame, one per call, before any
	// frames flow.
	waitErrs []error

	framePacing time.Duration

	startCalls    int
	stopCalls     int
	releasedCount int
	closed        bool

	// waiters tracks goroutines currently inside WaitForFrame; a stop issued
	// while one is in flight means two goroutines drove the session at once.
	waiters        int
	stopDuringWait bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		roi:          driver.Rect{X: 0, Y: 0, Width: 512, Height: 512},
		binning:      1,
		format:       driver.FormatMono8,
		exposureUs:   10_000,
		frameRate:    60,
		frameRateMin: 0.1,
		gains:        [4]float64{1, 1, 1, 1},
		framePacing:  time.Millisecond,
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) Model() string { return "FakeCam" }

func (s *fakeSession) FirmwareVersion() (string, error) { return "fake-1", nil }

func (s *fakeSession) Temperature() (float64, error) { return 40, nil }

func (s *fakeSession) SensorSize() (driver.Size, error) {
	return driver.Size{Width: 512, Height: 512}, nil
}

func (s *fakeSession) ROIAccess() driver.AccessMode { return driver.AccessReadWrite }

func (s *fakeSession) ROISizeRange() (driver.Size, int, error) {
	return driver.Size{Width: 16, Height: 16}, 4, nil
}

func (s *fakeSession) SetROI(rect driver.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roi = rect
	s.roiHistory = append(s.roiHistory, rect)
	return nil
}

func (s *fakeSession) BinningAccess() driver.AccessMode { return driver.AccessReadWrite }

func (s *fakeSession) BinningFactors() ([]int, error) { return []int{1, 2, 4}, nil }

func (s *fakeSession) SetBinning(factor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binning = factor
	return nil
}

func (s *fakeSession) ExposureAccess() driver.AccessMode { return driver.AccessReadWrite }

func (s *fakeSession) Exposure() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposureUs, nil
}

func (s *fakeSession) ExposureRange() (driver.Range, error) {
	return driver.Range{Min: 100, Max: 1_000_000, Inc: 100}, nil
}

func (s *fakeSession) SetExposure(us float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposureUs = us
	return nil
}

func (s *fakeSession) FrameRateRange() (driver.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return driver.Range{Min: s.frameRateMin, Max: 60 * float64(s.binning)}, nil
}

func (s *fakeSession) SetFrameRate(fps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameRate = fps
	return nil
}

func (s *fakeSession) PixelFormatAccess() driver.AccessMode { return driver.AccessReadWrite }

func (s *fakeSession) PixelFormats() ([]driver.PixelFormat, error) {
	return []driver.PixelFormat{driver.FormatMono8, driver.FormatBayerRG8}, nil
}

func (s *fakeSession) SetPixelFormat(format driver.PixelFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	return nil
}

func (s *fakeSession) GainAccess() driver.AccessMode { return driver.AccessReadWrite }

func (s *fakeSession) GainRange() (driver.Range, error) {
	return driver.Range{Min: 1, Max: 8}, nil
}

func (s *fakeSession) Gain(ch driver.GainChannel) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gains[ch], nil
}

func (s *fakeSession) SetGain(ch driver.GainChannel, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains[ch] = value
	return nil
}

func (s *fakeSession) AutoWhiteBalanceAccess() driver.AccessMode { return driver.AccessReadWrite }

func (s *fakeSession) AutoWhiteBalance() (driver.AutoFeatureMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awb, nil
}

func (s *fakeSession) SetAutoWhiteBalance(mode driver.AutoFeatureMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awb = mode
	return nil
}

func (s *fakeSession) StartAcquisition(frames uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	s.unbounded = frames == driver.ContinuousAcquisition
	s.pending = frames
	s.running = true
	return nil
}

func (s *fakeSession) StopAcquisition() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	if s.waiters > 0 {
		s.stopDuringWait = true
	}
	s.running = false
	return nil
}

func (s *fakeSession) AcquisitionRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeSession) WaitForFrame(time.Duration) (driver.Frame, error) {
	s.mu.Lock()
	s.waiters++
	defer func() {
		s.mu.Lock()
		s.waiters--
		s.mu.Unlock()
	}()
	if len(s.waitErrs) > 0 {
		err := s.waitErrs[0]
		s.waitErrs = s.waitErrs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if !s.running {
		s.mu.Unlock()
		return nil, driver.ErrAborted
	}
	pacing := s.framePacing
	s.mu.Unlock()

	time.Sleep(pacing)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, driver.ErrAborted
	}

	// One byte per pixel from the device; color formats are converted
	// device-side on request.
	s.counter++
	data := make([]byte, s.roi.Width*s.roi.Height)
	for i := range data {
		data[i] = s.counter
	}

	if !s.unbounded {
		s.pending--
		if s.pending == 0 {
			s.running = false
		}
	}

	return &fakeFrame{data: data}, nil
}

func (s *fakeSession) ReleaseFrame(driver.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releasedCount++
	return nil
}

func (s *fakeSession) ConvertFrame(f driver.Frame, format driver.PixelFormat) (driver.Frame, error) {
	if format != driver.FormatBGRA8 {
		return nil, driver.ErrUnsupportedFormat
	}
	src := f.(*fakeFrame)
	data := make([]byte, len(src.data)*4)
	for i, v := range src.data {
		data[i*4] = v
		data[i*4+1] = v
		data[i*4+2] = v
		data[i*4+3] = 0xFF
	}
	return &fakeFrame{data: data}, nil
}

func (s *fakeSession) lastROI() driver.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roi
}

func (s *fakeSession) scriptWaitErrs(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitErrs = errs
}

func (s *fakeSession) deviceStops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

func (s *fakeSession) stopOverlappedWait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopDuringWait
}
