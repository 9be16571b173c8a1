// Package driver defines the boundary to the sensor device itself: an opened
// Session, the per-feature access modes the device reports, and the frame
// handles the acquisition loop pulls from it.
package driver

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("driver: no device found")
	ErrAccessDenied      = errors.New("driver: feature not accessible")
	ErrTimeout           = errors.New("driver: frame wait timed out")
	ErrAborted           = errors.New("driver: acquisition aborted")
	ErrUnsupportedFormat = errors.New("driver: unsupported pixel format")
)

// AccessMode is the tri-state capability a device reports per feature.
// Callers must check it before writing.
type AccessMode int

const (
	AccessNone AccessMode = iota
	AccessReadOnly
	AccessReadWrite
)

func (m AccessMode) Readable() bool {
	return m == AccessReadOnly || m == AccessReadWrite
}

func (m AccessMode) Writable() bool {
	return m == AccessReadWrite
}

type PixelFormat int

const (
	FormatMono8 PixelFormat = iota
	FormatBayerRG8
	FormatBGRA8
)

func (f PixelFormat) String() string {
	switch f {
	case FormatMono8:
		return "8bit"
	case FormatBayerRG8:
		return "32bit RGBA"
	case FormatBGRA8:
		return "BGRA8"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// Components the format delivers to the consumer buffer: 1 for monochrome,
// 4 for formats converted to packed color.
func (f PixelFormat) Components() int {
	switch f {
	case FormatMono8:
		return 1
	case FormatBayerRG8, FormatBGRA8:
		return 4
	}
	return 0
}

func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "8bit":
		return FormatMono8, nil
	case "32bit RGBA":
		return FormatBayerRG8, nil
	case "BGRA8":
		return FormatBGRA8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// AutoFeatureMode is the device's auto-feature switch, used for the
// white-balance control.
type AutoFeatureMode int

const (
	AutoOff AutoFeatureMode = iota
	AutoOnce
	AutoContinuous
)

func (m AutoFeatureMode) String() string {
	switch m {
	case AutoOff:
		return "Off"
	case AutoOnce:
		return "Once"
	case AutoContinuous:
		return "Continuous"
	}
	return fmt.Sprintf("AutoFeatureMode(%d)", int(m))
}

func ParseAutoFeatureMode(s string) (AutoFeatureMode, error) {
	switch s {
	case "Off":
		return AutoOff, nil
	case "Once":
		return AutoOnce, nil
	case "Continuous":
		return AutoContinuous, nil
	}
	return 0, fmt.Errorf("unknown auto feature mode %q", s)
}

type GainChannel int

const (
	GainMaster GainChannel = iota
	GainRed
	GainGreen
	GainBlue
)

// Range of a device feature in its native unit, with the step increment.
type Range struct {
	Min float64
	Max float64
	Inc float64
}

type Size struct {
	Width  int
	Height int
}

type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// ContinuousAcquisition is the device sentinel for an unbounded run.
// The engine's Count variant is mapped to it at exactly one place.
const ContinuousAcquisition uint64 = 0xFFFFFFFF

// Frame is a handle to a single device frame. Raw returns the device-owned
// buffer descriptor; the bytes stay valid until the frame is released.
type Frame interface {
	Raw() ([]byte, error)
}

// Session is an opened sensor device. A Session is not safe for concurrent
// use; the engine guarantees exclusive access while acquiring.
type Session interface {
	Close() error

	Model() string
	FirmwareVersion() (string, error)
	Temperature() (float64, error)

	// SensorSize is the full extent of the sensor at binning 1.
	SensorSize() (Size, error)

	ROIAccess() AccessMode
	// ROISizeRange reports the minimum allowed ROI size and the step
	// increment shared by both axes.
	ROISizeRange() (min Size, inc int, err error)
	SetROI(Rect) error

	BinningAccess() AccessMode
	BinningFactors() ([]int, error)
	SetBinning(factor int) error

	ExposureAccess() AccessMode
	// Exposure values are in microseconds.
	Exposure() (float64, error)
	ExposureRange() (Range, error)
	SetExposure(us float64) error

	// Frame rates are in hertz.
	FrameRateRange() (Range, error)
	SetFrameRate(hz float64) error

	PixelFormatAccess() AccessMode
	PixelFormats() ([]PixelFormat, error)
	SetPixelFormat(PixelFormat) error

	GainAccess() AccessMode
	GainRange() (Range, error)
	Gain(GainChannel) (float64, error)
	SetGain(GainChannel, float64) error

	AutoWhiteBalanceAccess() AccessMode
	AutoWhiteBalance() (AutoFeatureMode, error)
	SetAutoWhiteBalance(AutoFeatureMode) error

	// StartAcquisition arms the device for the given number of frames;
	// pass ContinuousAcquisition for an unbounded run.
	StartAcquisition(frames uint64) error
	StopAcquisition() error
	AcquisitionRunning() bool

	// WaitForFrame blocks until the next frame or the timeout. It returns
	// ErrTimeout on expiry and ErrAborted when the acquisition was stopped
	// device-side while waiting.
	WaitForFrame(timeout time.Duration) (Frame, error)
	ReleaseFrame(Frame) error

	// ConvertFrame performs the device-side conversion of a frame into the
	// given packed format, returning a new frame that must be released.
	ConvertFrame(Frame, PixelFormat) (Frame, error)
}
