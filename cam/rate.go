package cam

import (
	"fmt"
	"math"
	"time"

	"github.com/allape/opencam/cam/driver"
)

// exposureSafetyMarginMs keeps the frame interval strictly above the
// exposure so the sensor always finishes integrating before the next
// trigger.
const exposureSafetyMarginMs = 0.5

// Exposure returns the current exposure in milliseconds.
func (c *Camera) Exposure() float64 {
	c.featMu.Lock()
	defer c.featMu.Unlock()
	return c.exposureCur
}

// ExposureRange returns the supported exposure range in milliseconds.
func (c *Camera) ExposureRange() driver.Range {
	return c.exposureRange
}

// SetExposure applies an exposure in milliseconds. The request is rounded up
// to the device increment and clamped into the supported range; the value
// actually programmed is re-read from the device, so the cached exposure is
// always the authoritative one.
func (c *Camera) SetExposure(ms float64) error {
	return c.configure(func() error {
		return c.setExposure(ms)
	})
}

// setExposure is the body of SetExposure, shared with the worker which
// applies sequenced values while a run is active; the re-read value is
// published under featMu so foreground readers stay coherent.
func (c *Camera) setExposure(ms float64) error {
	if !c.session.ExposureAccess().Writable() {
		return driver.ErrAccessDenied
	}

	if inc := c.exposureRange.Inc; inc > 0 {
		ms = math.Ceil(ms/inc) * inc
	}
	if ms < c.exposureRange.Min {
		l.Warn().Println("exposure below range, clamped to", c.exposureRange.Min, "ms")
		ms = c.exposureRange.Min
	} else if ms > c.exposureRange.Max {
		l.Warn().Println("exposure above range, clamped to", c.exposureRange.Max, "ms")
		ms = c.exposureRange.Max
	}

	if err := c.session.SetExposure(ms * 1000); err != nil {
		return fmt.Errorf("set exposure: %w", err)
	}

	actualUs, err := c.session.Exposure()
	if err != nil {
		return fmt.Errorf("read back exposure: %w", err)
	}
	c.featMu.Lock()
	c.exposureCur = actualUs / 1000
	c.featMu.Unlock()

	return nil
}

// FrameRate returns the current frame rate in frames per second.
func (c *Camera) FrameRate() float64 {
	c.featMu.Lock()
	defer c.featMu.Unlock()
	return c.framerateCur
}

// FrameRateRange returns the supported frame-rate range in frames per second.
func (c *Camera) FrameRateRange() driver.Range {
	c.featMu.Lock()
	defer c.featMu.Unlock()
	return c.framerateRange
}

// refreshFrameRateRange re-reads the device frame-rate limits after a
// geometry change and clamps the current rate into the new range.
func (c *Camera) refreshFrameRateRange() error {
	r, err := c.session.FrameRateRange()
	if err != nil {
		return fmt.Errorf("frame rate range: %w", err)
	}
	c.featMu.Lock()
	defer c.featMu.Unlock()
	c.framerateRange = r
	if c.framerateCur > r.Max {
		c.framerateCur = r.Max
	}
	if c.framerateCur < r.Min {
		c.framerateCur = r.Min
	}
	return nil
}

// applyFrameRate programs the device frame rate so the requested per-frame
// interval is honored: the interval is never shorter than the exposure plus
// a safety margin, and the resulting rate is capped at the device maximum.
// intervalMs of zero means run as fast as the exposure allows.
func (c *Camera) applyFrameRate(exposureMs float64, intervalMs ...float64) error {
	interval := 0.0
	if len(intervalMs) > 0 {
		interval = intervalMs[0]
	}

	if floor := exposureMs + exposureSafetyMarginMs; interval < floor {
		interval = floor
	}

	// The interval floor wins over the device minimum rate: a slower rate
	// than the device advertises is preferable to an interval shorter than
	// the exposure.
	rate := 1000 / interval
	if ceiling := c.FrameRateRange().Max; rate > ceiling {
		rate = ceiling
	}

	if err := c.session.SetFrameRate(rate); err != nil {
		return fmt.Errorf("set frame rate: %w", err)
	}
	c.featMu.Lock()
	c.framerateCur = rate
	c.featMu.Unlock()

	return nil
}

// frameWaitTimeout is the per-frame wait deadline, three frame periods at
// the current rate.
func (c *Camera) frameWaitTimeout() time.Duration {
	rate := c.FrameRate()
	if rate <= 0 {
		rate = 1
	}
	return time.Duration(3 * float64(time.Second) / rate)
}
