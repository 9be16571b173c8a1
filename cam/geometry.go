package cam

import (
	"fmt"

	"github.com/allape/opencam/cam/driver"
)

// ROI returns the active region of interest in sensor units. When no region
// is set the full binned sensor extent is reported.
func (c *Camera) ROI() driver.Rect {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return driver.Rect{
		X:      c.roiX,
		Y:      c.roiY,
		Width:  c.img.Width(),
		Height: c.img.Height(),
	}
}

// SetROI applies a region of interest. Sizes below the device minimum are
// raised to it, sizes and offsets are snapped down to the device increment,
// and the offset is shifted so the region stays inside the sensor. A zero
// width and height resets to the full sensor. Nothing is changed locally
// until the device accepts the region, so a rejected request leaves the
// previous state in place. Any multi-rectangle configuration is discarded.
func (c *Camera) SetROI(x, y, width, height int) error {
	return c.configure(func() error {
		if width == 0 && height == 0 {
			return c.resetROI()
		}

		if !c.session.ROIAccess().Writable() {
			return driver.ErrAccessDenied
		}

		extent := c.binnedExtent()

		if width < c.roiMinSize.Width {
			width = c.roiMinSize.Width
		}
		if height < c.roiMinSize.Height {
			height = c.roiMinSize.Height
		}
		width -= width % c.roiInc
		height -= height % c.roiInc
		x -= x % c.roiInc
		y -= y % c.roiInc

		if width > extent.Width {
			width = extent.Width
		}
		if height > extent.Height {
			height = extent.Height
		}

		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		if x+width > extent.Width {
			x = extent.Width - width
			x -= x % c.roiInc
		}
		if y+height > extent.Height {
			y = extent.Height - height
			y -= y % c.roiInc
		}

		rect := driver.Rect{X: x, Y: y, Width: width, Height: height}
		if err := c.session.SetROI(rect); err != nil {
			return fmt.Errorf("set roi: %w", err)
		}

		c.roiX = x
		c.roiY = y
		c.multiROI = nil

		c.imgMu.Lock()
		c.img.Resize(width, height)
		c.imgMu.Unlock()

		return c.refreshFrameRateRange()
	})
}

// ClearROI resets the region of interest to the full sensor.
func (c *Camera) ClearROI() error {
	return c.configure(c.resetROI)
}

func (c *Camera) resetROI() error {
	extent := c.binnedExtent()

	rect := driver.Rect{X: 0, Y: 0, Width: extent.Width, Height: extent.Height}
	if err := c.session.SetROI(rect); err != nil {
		return fmt.Errorf("reset roi: %w", err)
	}

	c.roiX = 0
	c.roiY = 0
	c.multiROI = nil

	c.imgMu.Lock()
	c.img.Resize(extent.Width, extent.Height)
	c.imgMu.Unlock()

	return c.refreshFrameRateRange()
}

// binnedExtent is the sensor size divided by the current binning factor.
func (c *Camera) binnedExtent() driver.Size {
	return driver.Size{
		Width:  c.sensor.Width / c.binning,
		Height: c.sensor.Height / c.binning,
	}
}

// MultiROISupported reports whether multi-rectangle regions are available.
func (c *Camera) MultiROISupported() bool {
	return c.multiROISupported
}

// MultiROISet reports whether a multi-rectangle region is active.
func (c *Camera) MultiROISet() bool {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return len(c.multiROI) > 0
}

func (c *Camera) MultiROICount() int {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	return len(c.multiROI)
}

// MultiROI returns the active rectangles, nil when none are set.
func (c *Camera) MultiROI() []driver.Rect {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	rects := make([]driver.Rect, len(c.multiROI))
	copy(rects, c.multiROI)
	return rects
}

// SetMultiROI activates a set of rectangles. The consumer buffer spans the
// union bounding box and pixels outside every rectangle are masked with the
// configured fill value during transfer.
func (c *Camera) SetMultiROI(rects []driver.Rect) error {
	return c.configure(func() error {
		if !c.multiROISupported {
			return ErrUnsupportedOperation
		}
		if len(rects) == 0 {
			return c.resetROI()
		}
		return c.applyMultiROI(rects)
	})
}

// applyMultiROI validates the rectangles, pushes their aligned bounding box
// to the device and records them. Callers hold the exclusive-access guard.
func (c *Camera) applyMultiROI(rects []driver.Rect) error {
	extent := c.binnedExtent()
	for _, r := range rects {
		if r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("cam: empty multi roi rectangle %+v", r)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.Width > extent.Width || r.Y+r.Height > extent.Height {
			return fmt.Errorf("cam: multi roi rectangle %+v outside sensor", r)
		}
	}

	box := rects[0]
	for _, r := range rects[1:] {
		if r.X < box.X {
			box.Width += box.X - r.X
			box.X = r.X
		}
		if r.Y < box.Y {
			box.Height += box.Y - r.Y
			box.Y = r.Y
		}
		if r.X+r.Width > box.X+box.Width {
			box.Width = r.X + r.Width - box.X
		}
		if r.Y+r.Height > box.Y+box.Height {
			box.Height = r.Y + r.Height - box.Y
		}
	}

	// Align the box to the device constraints: offset down, size up, so the
	// box still covers every rectangle.
	right := box.X + box.Width
	bottom := box.Y + box.Height
	box.X -= box.X % c.roiInc
	box.Y -= box.Y % c.roiInc
	box.Width = right - box.X
	box.Height = bottom - box.Y
	if rem := box.Width % c.roiInc; rem != 0 {
		box.Width += c.roiInc - rem
	}
	if rem := box.Height % c.roiInc; rem != 0 {
		box.Height += c.roiInc - rem
	}
	if box.Width < c.roiMinSize.Width {
		box.Width = c.roiMinSize.Width
	}
	if box.Height < c.roiMinSize.Height {
		box.Height = c.roiMinSize.Height
	}
	if box.X+box.Width > extent.Width {
		box.X = extent.Width - box.Width
		box.X -= box.X % c.roiInc
	}
	if box.Y+box.Height > extent.Height {
		box.Y = extent.Height - box.Height
		box.Y -= box.Y % c.roiInc
	}

	if err := c.session.SetROI(box); err != nil {
		return fmt.Errorf("set multi roi: %w", err)
	}

	c.roiX = box.X
	c.roiY = box.Y
	c.multiROI = make([]driver.Rect, len(rects))
	copy(c.multiROI, rects)

	c.imgMu.Lock()
	c.img.Resize(box.Width, box.Height)
	c.imgMu.Unlock()

	return c.refreshFrameRateRange()
}

func (c *Camera) Binning() int {
	return c.binning
}

// BinningFactors lists the factors the device supports.
func (c *Camera) BinningFactors() ([]int, error) {
	return c.session.BinningFactors()
}

// SetBinning changes the binning factor and rescales the active region by
// the old/new ratio, truncating toward zero, so the same physical sensor
// area stays selected. The frame-rate range is re-read afterwards since it
// depends on the pixel clock geometry.
func (c *Camera) SetBinning(factor int) error {
	return c.configure(func() error {
		if !c.session.BinningAccess().Writable() {
			return driver.ErrAccessDenied
		}

		factors, err := c.session.BinningFactors()
		if err != nil {
			return err
		}
		supported := false
		for _, f := range factors {
			if f == factor {
				supported = true
				break
			}
		}
		if !supported {
			return fmt.Errorf("cam: unsupported binning factor %d", factor)
		}

		if factor == c.binning {
			return nil
		}

		old := c.binning

		c.imgMu.Lock()
		width := c.img.Width()
		height := c.img.Height()
		c.imgMu.Unlock()

		x := c.roiX * old / factor
		y := c.roiY * old / factor
		width = width * old / factor
		height = height * old / factor

		if err = c.session.SetBinning(factor); err != nil {
			return fmt.Errorf("set binning: %w", err)
		}
		c.binning = factor

		extent := c.binnedExtent()

		if len(c.multiROI) > 0 {
			rects := make([]driver.Rect, len(c.multiROI))
			for i, r := range c.multiROI {
				r.X = r.X * old / factor
				r.Y = r.Y * old / factor
				r.Width = r.Width * old / factor
				r.Height = r.Height * old / factor
				if r.Width < 1 {
					r.Width = 1
				}
				if r.Height < 1 {
					r.Height = 1
				}
				if r.X+r.Width > extent.Width {
					r.X = extent.Width - r.Width
				}
				if r.Y+r.Height > extent.Height {
					r.Y = extent.Height - r.Height
				}
				rects[i] = r
			}
			return c.applyMultiROI(rects)
		}

		if width < c.roiMinSize.Width {
			width = c.roiMinSize.Width
		}
		if height < c.roiMinSize.Height {
			height = c.roiMinSize.Height
		}
		width -= width % c.roiInc
		height -= height % c.roiInc
		if width > extent.Width {
			width = extent.Width
		}
		if height > extent.Height {
			height = extent.Height
		}

		x -= x % c.roiInc
		y -= y % c.roiInc
		if x+width > extent.Width {
			x = extent.Width - width
			x -= x % c.roiInc
		}
		if y+height > extent.Height {
			y = extent.Height - height
			y -= y % c.roiInc
		}

		rect := driver.Rect{X: x, Y: y, Width: width, Height: height}
		if err = c.session.SetROI(rect); err != nil {
			return fmt.Errorf("rescale roi: %w", err)
		}

		c.roiX = x
		c.roiY = y

		c.imgMu.Lock()
		c.img.Resize(width, height)
		c.imgMu.Unlock()

		return c.refreshFrameRateRange()
	})
}
