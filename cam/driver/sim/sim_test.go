package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/allape/opencam/cam/driver"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Options{FrameRateMax: 1000})
	if err != nil {
		t.Fatalf("Expected a session, got error: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestFrameMatchesRegion(t *testing.T) {
	s := newTestSession(t)

	if err := s.SetROI(driver.Rect{X: 16, Y: 16, Width: 64, Height: 64}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.StartAcquisition(1); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	frame, err := s.WaitForFrame(time.Second)
	if err != nil {
		t.Fatalf("Expected a frame, got %v", err)
	}
	raw, err := frame.Raw()
	if err != nil {
		t.Fatalf("Expected pixels, got %v", err)
	}
	if len(raw) != 64*64 {
		t.Fatalf("Expected %d bytes, got %d", 64*64, len(raw))
	}

	if s.AcquisitionRunning() {
		t.Fatal("Expected the acquisition to stop after the last frame")
	}
}

func TestSetROIRejectsMisaligned(t *testing.T) {
	s := newTestSession(t)

	if err := s.SetROI(driver.Rect{X: 3, Y: 0, Width: 64, Height: 64}); err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if err := s.SetROI(driver.Rect{X: 0, Y: 0, Width: 8, Height: 8}); err == nil {
		t.Fatal("Expected an error for a region below the minimum, got nil")
	}
}

func TestBinningRaisesFrameRateCeiling(t *testing.T) {
	s := newTestSession(t)

	before, err := s.FrameRateRange()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err = s.SetBinning(2); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	after, err := s.FrameRateRange()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if after.Max != before.Max*2 {
		t.Fatalf("Expected %f, got %f", before.Max*2, after.Max)
	}
}

func TestConvertFrameToBGRA(t *testing.T) {
	s := newTestSession(t)

	if err := s.SetPixelFormat(driver.FormatBayerRG8); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.SetROI(driver.Rect{X: 0, Y: 0, Width: 32, Height: 32}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.StartAcquisition(1); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	frame, err := s.WaitForFrame(time.Second)
	if err != nil {
		t.Fatalf("Expected a frame, got %v", err)
	}

	converted, err := s.ConvertFrame(frame, driver.FormatBGRA8)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	raw, err := converted.Raw()
	if err != nil {
		t.Fatalf("Expected pixels, got %v", err)
	}
	if len(raw) != 32*32*4 {
		t.Fatalf("Expected %d bytes, got %d", 32*32*4, len(raw))
	}
	// Alpha is fully opaque in the rendered pattern.
	if raw[3] != 0xFF {
		t.Fatalf("Expected opaque alpha, got 0x%02X", raw[3])
	}

	if _, err = s.ConvertFrame(frame, driver.FormatMono8); !errors.Is(err, driver.ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestWaitForFrameTimesOutBeforePeriod(t *testing.T) {
	s := newTestSession(t)

	if err := s.SetFrameRate(1); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.StartAcquisition(1); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_, err := s.WaitForFrame(10 * time.Millisecond)
	if !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
}

func TestWaitForFrameAbortsWhenStopped(t *testing.T) {
	s := newTestSession(t)

	if _, err := s.WaitForFrame(time.Second); !errors.Is(err, driver.ErrAborted) {
		t.Fatalf("Expected ErrAborted, got %v", err)
	}

	if err := s.StartAcquisition(driver.ContinuousAcquisition); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = s.StopAcquisition()
	}()

	if err := s.SetFrameRate(0.5); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := s.WaitForFrame(time.Hour); !errors.Is(err, driver.ErrAborted) {
		t.Fatalf("Expected ErrAborted, got %v", err)
	}
}

func TestFrameCounterAdvances(t *testing.T) {
	s := newTestSession(t)

	if err := s.StartAcquisition(2); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	first, err := s.WaitForFrame(time.Second)
	if err != nil {
		t.Fatalf("Expected a frame, got %v", err)
	}
	second, err := s.WaitForFrame(time.Second)
	if err != nil {
		t.Fatalf("Expected a frame, got %v", err)
	}

	a, _ := first.Raw()
	b, _ := second.Raw()
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("Expected consecutive frames to differ")
	}
}
