package cam

import "errors"

var (
	// ErrBusy is returned by every configuration mutator and by a second
	// start while the acquisition worker owns the device.
	ErrBusy = errors.New("cam: acquisition active")

	// ErrUnsupportedOperation is returned by the exposure-sequencing calls
	// while the sequencing capability is disabled.
	ErrUnsupportedOperation = errors.New("cam: operation not supported")
)
