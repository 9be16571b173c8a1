package cam

import "fmt"

// State of the acquisition worker. Owned by the worker, observed read-only
// by the foreground.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Count is the length of an acquisition run. An unbounded run is a distinct
// variant, not a sentinel integer; the translation to the device's continuous
// sentinel happens at a single site in the worker.
type Count struct {
	n         int64
	unbounded bool
}

func Finite(n int64) Count {
	return Count{n: n}
}

func Unbounded() Count {
	return Count{unbounded: true}
}

func (c Count) IsUnbounded() bool {
	return c.unbounded
}

// Value returns the finite frame count; ok is false for an unbounded run.
func (c Count) Value() (n int64, ok bool) {
	return c.n, !c.unbounded
}

func (c Count) String() string {
	if c.unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%d", c.n)
}
