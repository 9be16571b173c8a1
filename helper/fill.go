package helper

import (
	"github.com/allape/opencam/cam/driver"
)

// FillOutsideRects masks every pixel of a bounding-box buffer that falls
// outside all of the given rectangles to the fill value. The buffer's origin
// sits at (offsetX, offsetY) in sensor coordinates; the rectangles are in
// sensor coordinates too.
func FillOutsideRects(pix []byte, width, height, depth, offsetX, offsetY int, rects []driver.Rect, fill byte) {
	if len(rects) == 0 {
		return
	}

	for y := 0; y < height; y++ {
		sy := y + offsetY
		row := pix[y*width*depth : (y+1)*width*depth]
		for x := 0; x < width; x++ {
			sx := x + offsetX
			if insideAny(sx, sy, rects) {
				continue
			}
			px := row[x*depth : (x+1)*depth]
			for i := range px {
				px[i] = fill
			}
		}
	}
}

func insideAny(x, y int, rects []driver.Rect) bool {
	for _, r := range rects {
		if x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height {
			return true
		}
	}
	return false
}
