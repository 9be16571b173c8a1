package cam

import (
	"fmt"
	"sync"
)

// exposureSequence is an ordered list of exposures, in milliseconds, that
// the worker walks through one value per frame, wrapping at the end.
type exposureSequence struct {
	mu        sync.Mutex
	enabled   bool
	values    []float64
	index     int
	running   bool
	maxLength int
}

func newExposureSequence(maxLength int) *exposureSequence {
	return &exposureSequence{maxLength: maxLength}
}

// ExposureSequenceEnabled reports whether sequencing is switched on.
func (c *Camera) ExposureSequenceEnabled() bool {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()
	return c.seq.enabled
}

// SetExposureSequenceEnabled toggles the sequencing capability. Disabling it
// also stops and clears any loaded sequence.
func (c *Camera) SetExposureSequenceEnabled(enabled bool) error {
	return c.configure(func() error {
		c.seq.mu.Lock()
		defer c.seq.mu.Unlock()
		c.seq.enabled = enabled
		if !enabled {
			c.seq.running = false
			c.seq.values = nil
			c.seq.index = 0
		}
		return nil
	})
}

// ExposureSequenceMaxLength is the most exposures a sequence may hold.
func (c *Camera) ExposureSequenceMaxLength() int {
	return c.seq.maxLength
}

// AddToExposureSequence appends one exposure to the sequence. The sequence
// must be stopped first.
func (c *Camera) AddToExposureSequence(ms float64) error {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()

	if !c.seq.enabled {
		return ErrUnsupportedOperation
	}
	if c.seq.running {
		return ErrBusy
	}
	if len(c.seq.values) >= c.seq.maxLength {
		return fmt.Errorf("cam: exposure sequence limit %d reached", c.seq.maxLength)
	}

	c.seq.values = append(c.seq.values, ms)
	return nil
}

// ClearExposureSequence drops all loaded exposures and rewinds the cursor.
func (c *Camera) ClearExposureSequence() error {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()

	if !c.seq.enabled {
		return ErrUnsupportedOperation
	}
	if c.seq.running {
		return ErrBusy
	}

	c.seq.values = nil
	c.seq.index = 0
	return nil
}

// LoadExposureSequence replaces the sequence contents and rewinds the
// cursor. The sequence must be stopped first.
func (c *Camera) LoadExposureSequence(valuesMs []float64) error {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()

	if !c.seq.enabled {
		return ErrUnsupportedOperation
	}
	if c.seq.running {
		return ErrBusy
	}
	if len(valuesMs) > c.seq.maxLength {
		return fmt.Errorf("cam: exposure sequence of %d exceeds limit %d", len(valuesMs), c.seq.maxLength)
	}

	c.seq.values = make([]float64, len(valuesMs))
	copy(c.seq.values, valuesMs)
	c.seq.index = 0
	return nil
}

// StartExposureSequence arms the sequence so the worker applies one value
// per frame.
func (c *Camera) StartExposureSequence() error {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()

	if !c.seq.enabled {
		return ErrUnsupportedOperation
	}
	c.seq.index = 0
	c.seq.running = true
	return nil
}

// StopExposureSequence disarms the sequence and rewinds the cursor.
// Already-applied exposures stay on the device.
func (c *Camera) StopExposureSequence() error {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()

	if !c.seq.enabled {
		return ErrUnsupportedOperation
	}
	c.seq.running = false
	c.seq.index = 0
	return nil
}

func (c *Camera) exposureSequenceRunning() bool {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()
	return c.seq.running
}

// nextSequencedExposure pops the next exposure and advances the wrapping
// cursor. It reports false when the sequence is not running or empty.
func (c *Camera) nextSequencedExposure() (float64, bool) {
	c.seq.mu.Lock()
	defer c.seq.mu.Unlock()

	if !c.seq.running || len(c.seq.values) == 0 {
		return 0, false
	}

	value := c.seq.values[c.seq.index]
	c.seq.index = (c.seq.index + 1) % len(c.seq.values)
	return value, true
}

// sequenceExposure is the exposure the next frame will integrate with: the
// upcoming sequence value when the sequence is armed, the static exposure
// otherwise. The cursor is not advanced.
func (c *Camera) sequenceExposure() float64 {
	c.seq.mu.Lock()
	if c.seq.running && len(c.seq.values) > 0 {
		ms := c.seq.values[c.seq.index]
		c.seq.mu.Unlock()
		return ms
	}
	c.seq.mu.Unlock()

	return c.Exposure()
}
