package driver

import (
	"errors"
	"testing"
)

func TestPixelFormatRoundTrip(t *testing.T) {
	for _, format := range []PixelFormat{FormatMono8, FormatBayerRG8, FormatBGRA8} {
		parsed, err := ParsePixelFormat(format.String())
		if err != nil {
			t.Fatalf("Expected no error for %s, got %v", format, err)
		}
		if parsed != format {
			t.Fatalf("Expected %v, got %v", format, parsed)
		}
	}
}

func TestParsePixelFormatUnknown(t *testing.T) {
	_, err := ParsePixelFormat("16bit")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPixelFormatComponents(t *testing.T) {
	if n := FormatMono8.Components(); n != 1 {
		t.Fatalf("Expected 1, got %d", n)
	}
	if n := FormatBayerRG8.Components(); n != 4 {
		t.Fatalf("Expected 4, got %d", n)
	}
	if n := FormatBGRA8.Components(); n != 4 {
		t.Fatalf("Expected 4, got %d", n)
	}
}

func TestAutoFeatureModeRoundTrip(t *testing.T) {
	for _, mode := range []AutoFeatureMode{AutoOff, AutoOnce, AutoContinuous} {
		parsed, err := ParseAutoFeatureMode(mode.String())
		if err != nil {
			t.Fatalf("Expected no error for %s, got %v", mode, err)
		}
		if parsed != mode {
			t.Fatalf("Expected %v, got %v", mode, parsed)
		}
	}

	if _, err := ParseAutoFeatureMode("Sometimes"); err == nil {
		t.Fatal("Expected an error, got nil")
	}
}

func TestAccessModeChecks(t *testing.T) {
	if AccessNone.Readable() || AccessNone.Writable() {
		t.Fatal("Expected AccessNone to deny everything")
	}
	if !AccessReadOnly.Readable() || AccessReadOnly.Writable() {
		t.Fatal("Expected AccessReadOnly to be read-only")
	}
	if !AccessReadWrite.Readable() || !AccessReadWrite.Writable() {
		t.Fatal("Expected AccessReadWrite to allow everything")
	}
}
