// Package sink is the boundary to the host image consumer: completed frames
// are inserted into a circular consumer buffer together with their metadata,
// and the consumer is told exactly once when a run has finished.
package sink

import (
	"errors"
	"time"
)

// ErrOverflow is reported by Insert when the consumer buffer is full. The
// engine clears and retries once unless overflow-stop is configured.
var ErrOverflow = errors.New("sink: consumer buffer overflow")

// Metadata accompanies every inserted frame.
type Metadata struct {
	Elapsed time.Duration
	ROIX    int
	ROIY    int
	Binning int
}

// Summary describes a finished acquisition run. Err is nil for a clean or
// device-aborted run.
type Summary struct {
	RunID    string
	Frames   int64
	Duration time.Duration
	Err      error
}

type Sink interface {
	// Prepare is the ready-for-acquisition handshake issued before a run
	// starts.
	Prepare() error

	// Insert hands a completed frame to the consumer. The pixel slice is
	// only valid for the duration of the call.
	Insert(pix []byte, width, height, depth int, md Metadata) error

	// Clear empties the consumer buffer after an overflow.
	Clear()

	// Finished is called exactly once per run, on the worker goroutine.
	Finished(Summary)
}
