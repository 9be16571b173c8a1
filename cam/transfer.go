package cam

import (
	"fmt"

	"github.com/allape/opencam/cam/driver"
	"github.com/allape/opencam/helper"
)

// transfer copies a device frame into the consumer buffer. Single-component
// frames are copied raw; four-component frames are converted on the device
// side to packed BGRA first and the intermediate frame released afterwards.
// The caller holds the buffer lock.
func (c *Camera) transfer(frame driver.Frame, dst *Buffer) error {
	switch c.components {
	case 1:
		raw, err := frame.Raw()
		if err != nil {
			return fmt.Errorf("frame data: %w", err)
		}
		if len(raw) != dst.Size() {
			// The device and the engine disagree about the frame geometry,
			// which means configuration state has diverged. Copying anyway
			// would hand corrupt pixels to the consumer.
			panic(fmt.Sprintf("cam: frame size %d does not match buffer size %d", len(raw), dst.Size()))
		}
		copy(dst.Pixels(), raw)
	case 4:
		converted, err := c.session.ConvertFrame(frame, driver.FormatBGRA8)
		if err != nil {
			return fmt.Errorf("convert frame: %w", err)
		}
		raw, err := converted.Raw()
		if err != nil {
			_ = c.session.ReleaseFrame(converted)
			return fmt.Errorf("converted frame data: %w", err)
		}
		if len(raw) != dst.Size() {
			panic(fmt.Sprintf("cam: converted frame size %d does not match buffer size %d", len(raw), dst.Size()))
		}
		copy(dst.Pixels(), raw)
		if err = c.session.ReleaseFrame(converted); err != nil {
			return fmt.Errorf("release converted frame: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d components", driver.ErrUnsupportedFormat, c.components)
	}

	if len(c.multiROI) > 0 {
		helper.FillOutsideRects(
			dst.Pixels(),
			dst.Width(), dst.Height(), dst.Depth(),
			c.roiX, c.roiY,
			c.multiROI,
			c.multiROIFill,
		)
	}

	return nil
}
