package cam

import (
	"testing"

	"github.com/allape/opencam/cam/driver"
)

func TestTransferCopiesMonoFrames(t *testing.T) {
	camera, _ := newTestCamera(t, Options{})

	if err := camera.SetROI(0, 0, 16, 16); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	data := make([]byte, 16*16)
	for i := range data {
		data[i] = 0x7F
	}

	camera.imgMu.Lock()
	err := camera.transfer(&fakeFrame{data: data}, camera.img)
	camera.imgMu.Unlock()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	pix := camera.ImageBuffer()
	for i, v := range pix {
		if v != 0x7F {
			t.Fatalf("Expected 0x7F at %d, got 0x%02X", i, v)
		}
	}
}

func TestTransferConvertsColorFrames(t *testing.T) {
	camera, _ := newTestCamera(t, Options{})

	if err := camera.SetPixelFormat(driver.FormatBayerRG8); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := camera.SetROI(0, 0, 16, 16); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if camera.BytesPerPixel() != 4 {
		t.Fatalf("Expected 4 bytes per pixel, got %d", camera.BytesPerPixel())
	}

	data := make([]byte, 16*16)
	for i := range data {
		data[i] = 0x42
	}

	camera.imgMu.Lock()
	err := camera.transfer(&fakeFrame{data: data}, camera.img)
	camera.imgMu.Unlock()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	pix := camera.ImageBuffer()
	if len(pix) != 16*16*4 {
		t.Fatalf("Expected %d bytes, got %d", 16*16*4, len(pix))
	}
	if pix[0] != 0x42 || pix[3] != 0xFF {
		t.Fatalf("Expected converted pixel, got % X", pix[:4])
	}
}

func TestTransferPanicsOnSizeMismatch(t *testing.T) {
	camera, _ := newTestCamera(t, Options{})

	defer func() {
		if recover() == nil {
			t.Fatal("Expected a panic on frame size mismatch")
		}
	}()

	camera.imgMu.Lock()
	defer camera.imgMu.Unlock()
	_ = camera.transfer(&fakeFrame{data: make([]byte, 7)}, camera.img)
}

func TestTransferMasksOutsideRects(t *testing.T) {
	camera, _ := newTestCamera(t, Options{
		MultiROISupported: true,
		MultiROIFillValue: 0x00,
	})

	rects := []driver.Rect{
		{X: 0, Y: 0, Width: 16, Height: 16},
		{X: 32, Y: 32, Width: 16, Height: 16},
	}
	if err := camera.SetMultiROI(rects); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Bounding box is 48x48 starting at the origin.
	data := make([]byte, 48*48)
	for i := range data {
		data[i] = 0xAA
	}

	camera.imgMu.Lock()
	err := camera.transfer(&fakeFrame{data: data}, camera.img)
	camera.imgMu.Unlock()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	pix := camera.ImageBuffer()
	if pix[0] != 0xAA {
		t.Fatalf("Expected 0xAA inside the first rectangle, got 0x%02X", pix[0])
	}
	if pix[33*48+33] != 0xAA {
		t.Fatalf("Expected 0xAA inside the second rectangle, got 0x%02X", pix[33*48+33])
	}
	if pix[0*48+20] != 0x00 {
		t.Fatalf("Expected masked pixel between rectangles, got 0x%02X", pix[20])
	}
	if pix[20*48+8] != 0x00 {
		t.Fatalf("Expected masked pixel below the first rectangle, got 0x%02X", pix[20*48+8])
	}
}
