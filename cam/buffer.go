package cam

// Buffer is the consumer pixel buffer frames are transferred into.
// Invariant: len(Pixels()) == Width()*Height()*Depth(). It is resized only by
// geometry or pixel-format changes; access is serialized by the Camera's
// buffer lock.
type Buffer struct {
	width  int
	height int
	depth  int
	pix    []byte
}

func NewBuffer(width, height, depth int) *Buffer {
	return &Buffer{
		width:  width,
		height: height,
		depth:  depth,
		pix:    make([]byte, width*height*depth),
	}
}

func (b *Buffer) Width() int {
	return b.width
}

func (b *Buffer) Height() int {
	return b.height
}

// Depth is the byte depth of one pixel: component count times bytes per
// component.
func (b *Buffer) Depth() int {
	return b.depth
}

func (b *Buffer) Size() int {
	return b.width * b.height * b.depth
}

func (b *Buffer) Pixels() []byte {
	return b.pix
}

func (b *Buffer) Resize(width, height int) {
	if width == b.width && height == b.height {
		return
	}
	b.width = width
	b.height = height
	b.pix = make([]byte, width*height*b.depth)
}

func (b *Buffer) ResizeDepth(depth int) {
	if depth == b.depth {
		return
	}
	b.depth = depth
	b.pix = make([]byte, b.width*b.height*depth)
}
