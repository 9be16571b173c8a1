package sink

import (
	"sync"

	"github.com/allape/gogger"
)

var l = gogger.New("cam.sink")

// Image is one entry of the ring: a copy of the inserted pixels plus the
// frame metadata.
type Image struct {
	Pixels   []byte
	Width    int
	Height   int
	Depth    int
	Metadata Metadata
}

// Ring is a fixed-capacity in-memory consumer buffer. Insert fails with
// ErrOverflow when full; readers drain it with Pop or sample it with Latest.
type Ring struct {
	// OnFinished, when set, is invoked with the run summary after each run.
	// It runs on the worker goroutine and must not block for long.
	OnFinished func(Summary)

	mu      sync.Mutex
	images  []Image
	head    int
	count   int
	lastRun *Summary
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 32
	}
	return &Ring{
		images: make([]Image, capacity),
	}
}

func (r *Ring) Capacity() int {
	return len(r.images)
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Ring) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
	r.lastRun = nil
	return nil
}

func (r *Ring) Insert(pix []byte, width, height, depth int, md Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.images) {
		return ErrOverflow
	}

	slot := (r.head + r.count) % len(r.images)
	img := &r.images[slot]
	if cap(img.Pixels) < len(pix) {
		img.Pixels = make([]byte, len(pix))
	}
	img.Pixels = img.Pixels[:len(pix)]
	copy(img.Pixels, pix)
	img.Width = width
	img.Height = height
	img.Depth = depth
	img.Metadata = md

	r.count++
	return nil
}

func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}

// Pop removes and returns the oldest image. The slot gives up its pixel
// storage so the returned image stays valid when the slot is reused.
func (r *Ring) Pop() (Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return Image{}, false
	}

	img := r.images[r.head]
	r.images[r.head].Pixels = nil
	r.head = (r.head + 1) % len(r.images)
	r.count--
	return img, true
}

// Latest returns a copy of the newest image without removing it.
func (r *Ring) Latest() (Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return Image{}, false
	}

	img := r.images[(r.head+r.count-1)%len(r.images)]
	pix := make([]byte, len(img.Pixels))
	copy(pix, img.Pixels)
	img.Pixels = pix
	return img, true
}

func (r *Ring) Finished(s Summary) {
	r.mu.Lock()
	r.lastRun = &s
	r.mu.Unlock()

	if s.Err != nil {
		l.Error().Println("run", s.RunID, "finished with error:", s.Err)
	} else {
		l.Info().Println("run", s.RunID, "finished:", s.Frames, "frames in", s.Duration)
	}

	if r.OnFinished != nil {
		r.OnFinished(s)
	}
}

// LastRun returns the summary of the most recently finished run, if any.
func (r *Ring) LastRun() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		return Summary{}, false
	}
	return *r.lastRun, true
}
