package cam

import "testing"

func TestCountVariants(t *testing.T) {
	finite := Finite(25)
	if finite.IsUnbounded() {
		t.Fatal("Expected a bounded count")
	}
	n, ok := finite.Value()
	if !ok || n != 25 {
		t.Fatalf("Expected (25, true), got (%d, %t)", n, ok)
	}
	if finite.String() != "25" {
		t.Fatalf("Expected \"25\", got %q", finite.String())
	}

	unbounded := Unbounded()
	if !unbounded.IsUnbounded() {
		t.Fatal("Expected an unbounded count")
	}
	if _, ok = unbounded.Value(); ok {
		t.Fatal("Expected no finite value")
	}
	if unbounded.String() != "unbounded" {
		t.Fatalf("Expected \"unbounded\", got %q", unbounded.String())
	}
}

func TestBufferResizeKeepsDepth(t *testing.T) {
	b := NewBuffer(4, 4, 1)
	if b.Size() != 16 {
		t.Fatalf("Expected 16, got %d", b.Size())
	}

	b.Resize(8, 2)
	if b.Size() != 16 || b.Depth() != 1 {
		t.Fatalf("Expected 16 bytes at depth 1, got %d at %d", b.Size(), b.Depth())
	}

	b.ResizeDepth(4)
	if b.Size() != 64 {
		t.Fatalf("Expected 64, got %d", b.Size())
	}
	if len(b.Pixels()) != 64 {
		t.Fatalf("Expected 64 pixels, got %d", len(b.Pixels()))
	}
}
