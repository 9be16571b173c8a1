package cam

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allape/opencam/cam/driver"
	"github.com/allape/opencam/cam/sink"
	"github.com/google/uuid"
)

// suspendPollInterval paces the worker's idle loop while it is suspended.
const suspendPollInterval = 10 * time.Millisecond

// sequenceThread runs one acquisition sequence on its own goroutine. The
// engine holds a reference to at most one thread at a time; a finished
// thread is never restarted.
type sequenceThread struct {
	cam *Camera

	count      Count
	intervalMs float64

	runID     string
	startTime time.Time
	frames    int64

	stopMu  sync.Mutex
	stop    bool
	suspMu  sync.Mutex
	suspend bool

	done chan struct{}
}

func (t *sequenceThread) requestStop() {
	t.stopMu.Lock()
	t.stop = true
	t.stopMu.Unlock()
}

func (t *sequenceThread) stopRequested() bool {
	t.stopMu.Lock()
	defer t.stopMu.Unlock()
	return t.stop
}

func (t *sequenceThread) setSuspended(suspended bool) {
	t.suspMu.Lock()
	t.suspend = suspended
	t.suspMu.Unlock()
}

func (t *sequenceThread) suspended() bool {
	t.suspMu.Lock()
	defer t.suspMu.Unlock()
	return t.suspend
}

func (t *sequenceThread) exited() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// StartSequenceAcquisition begins a background acquisition run delivering
// frames to the sink. count selects how many frames to capture; an
// unbounded count runs until stopped. intervalMs spaces frames apart, zero
// means as fast as the exposure allows. With stopOnOverflow a full sink
// fails the run instead of being cleared and retried.
func (c *Camera) StartSequenceAcquisition(count Count, intervalMs float64, stopOnOverflow bool) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.capturing() {
		return ErrBusy
	}

	c.stopOnOverflow = stopOnOverflow

	if err := c.sink.Prepare(); err != nil {
		return fmt.Errorf("prepare sink: %w", err)
	}

	if err := c.applyFrameRate(c.sequenceExposure(), intervalMs); err != nil {
		return err
	}

	// The unbounded marker is mapped to the device sentinel here and
	// nowhere else.
	frames := driver.ContinuousAcquisition
	if n, ok := count.Value(); ok {
		frames = uint64(n)
	}
	if err := c.session.StartAcquisition(frames); err != nil {
		return fmt.Errorf("start acquisition: %w", err)
	}

	t := &sequenceThread{
		cam:        c,
		count:      count,
		intervalMs: intervalMs,
		runID:      uuid.NewString(),
		startTime:  time.Now(),
		done:       make(chan struct{}),
	}
	c.thread = t

	l.Info().Println("sequence", t.runID, "started,", count.String(), "frames")
	go t.run()

	return nil
}

// StopSequenceAcquisition asks the worker to stop and waits for it to
// finish. It is a no-op when nothing is running. The session is driven by
// the worker alone while a run is active, so the device-level stop is left
// to the worker's teardown; the worker rechecks the flag between frames
// and across wait timeouts, so the stop takes effect within one frame wait.
func (c *Camera) StopSequenceAcquisition() error {
	c.runMu.Lock()
	t := c.thread
	c.runMu.Unlock()

	if t == nil || t.exited() {
		return nil
	}

	t.requestStop()
	<-t.done
	return nil
}

// Suspend pauses frame delivery without tearing down the run. The worker
// idles between frames until Resume or a stop.
func (c *Camera) Suspend() {
	c.runMu.Lock()
	t := c.thread
	c.runMu.Unlock()
	if t != nil {
		t.setSuspended(true)
	}
}

func (c *Camera) Resume() {
	c.runMu.Lock()
	t := c.thread
	c.runMu.Unlock()
	if t != nil {
		t.setSuspended(false)
	}
}

func (t *sequenceThread) run() {
	var runErr error

	for {
		if t.stopRequested() {
			l.Info().Println("sequence", t.runID, "interrupted by the user")
			break
		}
		if n, ok := t.count.Value(); ok && t.frames >= n {
			break
		}

		if err := t.runOnce(); err != nil {
			if errors.Is(err, driver.ErrAborted) {
				break
			}
			runErr = err
			l.Error().Println("sequence", t.runID, "failed:", err)
			break
		}
	}

	t.finish(runErr)
}

// runOnce acquires and delivers a single frame.
func (t *sequenceThread) runOnce() error {
	c := t.cam

	for t.suspended() {
		if t.stopRequested() {
			return driver.ErrAborted
		}
		time.Sleep(suspendPollInterval)
	}

	if c.trigger != nil {
		if err := c.trigger.Pulse(); err != nil {
			l.Warn().Println("trigger pulse:", err)
		}
	}

	if c.exposureSequenceRunning() && c.session.ExposureAccess().Writable() {
		if ms, ok := c.nextSequencedExposure(); ok {
			if err := c.setExposure(ms); err != nil {
				return fmt.Errorf("sequenced exposure: %w", err)
			}
		}
	}

	frame, err := t.waitForFrame()
	if err != nil {
		return err
	}

	c.imgMu.Lock()
	terr := c.transfer(frame, c.img)
	width, height, depth := c.img.Width(), c.img.Height(), c.img.Depth()
	c.imgMu.Unlock()

	if terr != nil {
		_ = c.session.ReleaseFrame(frame)
		return terr
	}

	md := sink.Metadata{
		Elapsed: time.Since(t.startTime),
		ROIX:    c.roiX,
		ROIY:    c.roiY,
		Binning: c.binning,
	}

	c.imgMu.Lock()
	ierr := t.insertImage(c.img.Pixels(), width, height, depth, md)
	c.imgMu.Unlock()

	rerr := c.session.ReleaseFrame(frame)
	if ierr != nil {
		return ierr
	}
	if rerr != nil {
		return fmt.Errorf("release frame: %w", rerr)
	}

	t.frames++

	if c.AutoWhiteBalance() != driver.AutoOff {
		if err = c.updateAutoWhiteBalance(); err != nil {
			l.Warn().Println("white balance refresh:", err)
		}
	}

	return nil
}

// waitForFrame waits out up to maxFrameTimeouts consecutive timeouts before
// giving up on the run.
func (t *sequenceThread) waitForFrame() (driver.Frame, error) {
	c := t.cam
	timeout := c.frameWaitTimeout()
	timeouts := 0

	for {
		frame, err := c.session.WaitForFrame(timeout)
		if err == nil {
			return frame, nil
		}
		if errors.Is(err, driver.ErrTimeout) {
			timeouts++
			if timeouts >= maxFrameTimeouts {
				return nil, fmt.Errorf("%w after %d attempts", driver.ErrTimeout, timeouts)
			}
			if t.stopRequested() {
				return nil, driver.ErrAborted
			}
			continue
		}
		return nil, err
	}
}

// insertImage pushes a frame into the sink. A full sink is cleared and
// retried once unless the engine is configured to stop on overflow.
func (t *sequenceThread) insertImage(pix []byte, width, height, depth int, md sink.Metadata) error {
	c := t.cam

	err := c.sink.Insert(pix, width, height, depth, md)
	if !errors.Is(err, sink.ErrOverflow) {
		return err
	}
	if c.stopOnOverflow {
		return fmt.Errorf("sink overflow: %w", err)
	}

	l.Warn().Println("sink overflow, clearing and retrying")
	c.sink.Clear()
	return c.sink.Insert(pix, width, height, depth, md)
}

// finish runs exactly once per thread: it stops the device if it is still
// acquiring, reports the run summary to the sink, and unblocks waiters.
func (t *sequenceThread) finish(runErr error) {
	c := t.cam

	if c.session.AcquisitionRunning() {
		if err := c.session.StopAcquisition(); err != nil {
			l.Warn().Println("stop acquisition:", err)
		}
	}

	c.sink.Finished(sink.Summary{
		RunID:    t.runID,
		Frames:   t.frames,
		Duration: time.Since(t.startTime),
		Err:      runErr,
	})

	close(t.done)
}
