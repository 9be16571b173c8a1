package sim

import (
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
)

// Segment bit layout of the frame counter digits, clockwise from the top
// with the middle bar last.
const (
	segTop = 1 << iota
	segTopRight
	segBottomRight
	segBottom
	segBottomLeft
	segTopLeft
	segMiddle
)

var digitSegments = [10]int{
	segTop | segTopRight | segBottomRight | segBottom | segBottomLeft | segTopLeft,
	segTopRight | segBottomRight,
	segTop | segTopRight | segMiddle | segBottomLeft | segBottom,
	segTop | segTopRight | segMiddle | segBottomRight | segBottom,
	segTopLeft | segMiddle | segTopRight | segBottomRight,
	segTop | segTopLeft | segMiddle | segBottomRight | segBottom,
	segTop | segTopLeft | segBottomLeft | segBottom | segBottomRight | segMiddle,
	segTop | segTopRight | segBottomRight,
	segTop | segTopRight | segBottomRight | segBottom | segBottomLeft | segTopLeft | segMiddle,
	segTop | segTopRight | segBottomRight | segBottom | segTopLeft | segMiddle,
}

// drawDigit draws one seven-segment digit with its top-left corner at
// (x, y). Segments are plain rectangles of the given thickness.
func drawDigit(dc *gg.Context, digit int, x, y, width, height, thickness float64) {
	segs := digitSegments[digit%10]
	half := (height - 3*thickness) / 2

	if segs&segTop != 0 {
		dc.DrawRectangle(x, y, width, thickness)
	}
	if segs&segMiddle != 0 {
		dc.DrawRectangle(x, y+thickness+half, width, thickness)
	}
	if segs&segBottom != 0 {
		dc.DrawRectangle(x, y+height-thickness, width, thickness)
	}
	if segs&segTopLeft != 0 {
		dc.DrawRectangle(x, y, thickness, thickness+half)
	}
	if segs&segTopRight != 0 {
		dc.DrawRectangle(x+width-thickness, y, thickness, thickness+half)
	}
	if segs&segBottomLeft != 0 {
		dc.DrawRectangle(x, y+thickness+half, thickness, height-thickness-half)
	}
	if segs&segBottomRight != 0 {
		dc.DrawRectangle(x+width-thickness, y+thickness+half, thickness, height-thickness-half)
	}
	dc.Fill()
}

// drawCounter draws the frame counter as seven-segment digits in the top
// left corner.
func drawCounter(dc *gg.Context, counter uint64) {
	const (
		digitWidth  = 28.0
		digitHeight = 48.0
		thickness   = 6.0
		spacing     = 8.0
		margin      = 16.0
	)

	digits := []int{}
	if counter == 0 {
		digits = []int{0}
	}
	for n := counter; n > 0; n /= 10 {
		digits = append([]int{int(n % 10)}, digits...)
	}

	dc.SetColor(color.White)
	x := margin
	for _, d := range digits {
		drawDigit(dc, d, x, margin, digitWidth, digitHeight, thickness)
		x += digitWidth + spacing
	}
}

// render produces the next frame at the current binning and region. The
// caller holds the session lock.
func (s *Session) render() *image.NRGBA {
	width := s.options.Width
	height := s.options.Height

	dc := gg.NewContext(width, height)

	// Horizontal gradient scaled by the color gains.
	for x := 0; x < width; x++ {
		v := float64(x) / float64(width)
		r := clamp01(v * s.gains[1] * s.gains[0])
		g := clamp01(v * s.gains[2] * s.gains[0])
		b := clamp01(v * s.gains[3] * s.gains[0])
		dc.SetRGB(r, g, b)
		dc.DrawRectangle(float64(x), 0, 1, float64(height))
		dc.Fill()
	}

	// A bar sweeping across the sensor so motion is visible frame to frame.
	barX := float64(int(s.counter*8) % width)
	dc.SetRGBA(1, 1, 1, 0.6)
	dc.DrawRectangle(barX, 0, 12, float64(height))
	dc.Fill()

	drawCounter(dc, s.counter)

	if s.font != nil {
		dc.SetFontFace(truetype.NewFace(s.font, &truetype.Options{Size: 24}))
		dc.SetColor(color.White)
		if s.options.Label != "" {
			dc.DrawStringAnchored(s.options.Label, float64(width/2), float64(height/2), 0.5, 0.5)
		}
		dc.DrawStringAnchored(time.Now().Format(time.DateTime), float64(width-20), float64(height-20), 1, 0)
	}

	full := imaging.Clone(dc.Image())

	if s.binning > 1 {
		full = imaging.Resize(full, width/s.binning, height/s.binning, imaging.Box)
	}

	return imaging.Crop(full, image.Rect(
		s.roi.X, s.roi.Y,
		s.roi.X+s.roi.Width, s.roi.Y+s.roi.Height,
	))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
