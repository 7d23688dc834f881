package encode

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/surface"
)

func paintedSurface(t *testing.T, w, h int) *surface.Surface {
	t.Helper()
	s, err := surface.New(w, h)
	if err != nil {
		t.Fatal(err)
	}
	dst := s.DrawTarget()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 3), B: uint8((x + y) % 256), A: 255})
		}
	}
	return s
}

func TestEncode_Deterministic(t *testing.T) {
	s := paintedSurface(t, 64, 48)
	enc := New()

	for _, f := range []frame.Format{frame.Lossless, frame.Lossy} {
		a, err := enc.Encode(s, f, 80)
		if err != nil {
			t.Fatalf("%v: %v", f, err)
		}
		b, err := enc.Encode(s, f, 80)
		if err != nil {
			t.Fatalf("%v: %v", f, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%v: encoding is not deterministic", f)
		}
	}
}

func TestEncode_ReturnsOwnedSlice(t *testing.T) {
	s := paintedSurface(t, 16, 16)
	enc := New()

	first, err := enc.Encode(s, frame.Lossless, 0)
	if err != nil {
		t.Fatal(err)
	}
	saved := append([]byte(nil), first...)

	s.Clear()
	if _, err := enc.Encode(s, frame.Lossless, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, saved) {
		t.Fatal("second Encode overwrote the slice returned by the first")
	}
}

func TestEncode_LosslessRoundtrip(t *testing.T) {
	s := paintedSurface(t, 200, 300)
	data, err := New().Encode(s, frame.Lossless, 0)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 300 {
		t.Fatalf("decoded size %dx%d, want 200x300", b.Dx(), b.Dy())
	}
	got := color.RGBAModel.Convert(img.At(10, 20)).(color.RGBA)
	want := s.Image().At(10, 20).(color.RGBA)
	if got != want {
		t.Errorf("pixel (10,20): got %v, want %v", got, want)
	}
}

func TestEncode_LossyQuality(t *testing.T) {
	s := paintedSurface(t, 128, 128)
	enc := New()

	low, err := enc.Encode(s, frame.Lossy, 10)
	if err != nil {
		t.Fatal(err)
	}
	high, err := enc.Encode(s, frame.Lossy, 95)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality 10 produced %d bytes, quality 95 produced %d", len(low), len(high))
	}
	if _, err := jpeg.Decode(bytes.NewReader(low)); err != nil {
		t.Fatalf("decode lossy: %v", err)
	}
}

func TestEncode_DoesNotMutateSurface(t *testing.T) {
	s := paintedSurface(t, 32, 32)
	before := append([]byte(nil), s.RawBytes()...)
	if _, err := New().Encode(s, frame.Lossy, 50); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, s.RawBytes()) {
		t.Fatal("Encode mutated the surface")
	}
}

func TestEncode_Errors(t *testing.T) {
	enc := New()
	_, err := enc.Encode(nil, frame.Lossless, 0)
	if !errors.Is(err, frame.ErrTransientCapture) {
		t.Errorf("nil surface: got %v, want transient capture error", err)
	}

	s := paintedSurface(t, 2, 2)
	_, err = enc.Encode(s, frame.Format(42), 0)
	var ce *frame.CaptureError
	if !errors.As(err, &ce) || ce.Stage != frame.StageEncode {
		t.Errorf("unknown format: got %v", err)
	}
}

func TestClampQuality(t *testing.T) {
	cases := map[int]int{-5: 1, 0: 1, 1: 1, 50: 50, 100: 100, 250: 100}
	for in, want := range cases {
		if got := clampQuality(in); got != want {
			t.Errorf("clampQuality(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	if ContentType(frame.Lossless) != "image/png" || ContentType(frame.Lossy) != "image/jpeg" {
		t.Fatal("unexpected content types")
	}
	var _ image.Image = paintedSurface(t, 1, 1).Image()
}
