package surface

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/hazyhaar/webtex/frame"
)

func TestNew_ZeroedBuffer(t *testing.T) {
	for _, dim := range [][2]int{{1, 1}, {200, 300}, {1024, 768}, {3, 7}} {
		s, err := New(dim[0], dim[1])
		if err != nil {
			t.Fatalf("New(%d, %d): %v", dim[0], dim[1], err)
		}
		raw := s.RawBytes()
		if len(raw) != dim[0]*dim[1]*4 {
			t.Fatalf("New(%d, %d): buffer length %d, want %d", dim[0], dim[1], len(raw), dim[0]*dim[1]*4)
		}
		for i, b := range raw {
			if b != 0 {
				t.Fatalf("New(%d, %d): byte %d = %d, want 0", dim[0], dim[1], i, b)
			}
		}
	}
}

func TestNew_InvalidDimensions(t *testing.T) {
	cases := [][2]int{{0, 10}, {10, 0}, {-1, 10}, {MaxDimension + 1, 1}, {1, MaxDimension + 1}}
	for _, c := range cases {
		_, err := New(c[0], c[1])
		if !errors.Is(err, frame.ErrConfiguration) {
			t.Errorf("New(%d, %d): got %v, want configuration error", c[0], c[1], err)
		}
	}
}

func TestDrawTargetAddressesBackingBuffer(t *testing.T) {
	s, err := New(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	target := s.DrawTarget()
	draw.Draw(target, image.Rect(0, 0, 1, 1), image.NewUniform(color.RGBA{R: 255, A: 255}), image.Point{}, draw.Src)

	raw := s.RawBytes()
	if raw[0] != 255 || raw[3] != 255 {
		t.Fatalf("pixel (0,0) = %v, want red", raw[:4])
	}
	if s.DrawTarget() != target {
		t.Fatal("DrawTarget changed between calls")
	}

	s.Clear()
	if raw[0] != 0 || raw[3] != 0 {
		t.Fatal("Clear did not zero the buffer")
	}
}

func TestStraightAlpha(t *testing.T) {
	s, err := New(2, 2, WithAlpha(frame.AlphaStraight))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.DrawTarget().(*image.NRGBA); !ok {
		t.Fatalf("straight alpha target: got %T, want *image.NRGBA", s.DrawTarget())
	}
	if s.Alpha() != frame.AlphaStraight {
		t.Fatalf("Alpha() = %v", s.Alpha())
	}
	if s.Size() != 16 {
		t.Fatalf("Size() = %d, want 16", s.Size())
	}
}
