// Package surface owns the fixed-size off-screen pixel buffer that one
// capture rasterises into.
//
// A Surface is created once per bridge session and overwritten in place on
// every capture. Its dimensions never change and its draw target always
// addresses the same backing buffer.
package surface

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/hazyhaar/webtex/frame"
)

// MaxDimension is the largest accepted width or height. It matches the
// maximum texture size commonly supported by host engines.
const MaxDimension = 16384

// Surface is a W×H buffer with 4 channels of 8 bits.
type Surface struct {
	width  int
	height int
	alpha  frame.Alpha
	target draw.Image
	pix    []byte
}

// Option configures a Surface.
type Option func(*Surface)

// WithAlpha selects premultiplied (default) or straight alpha.
func WithAlpha(a frame.Alpha) Option {
	return func(s *Surface) { s.alpha = a }
}

// New allocates a zeroed width×height surface.
func New(width, height int, opts ...Option) (*Surface, error) {
	if err := checkDimension("width", width); err != nil {
		return nil, err
	}
	if err := checkDimension("height", height); err != nil {
		return nil, err
	}

	s := &Surface{width: width, height: height}
	for _, o := range opts {
		o(s)
	}

	rect := image.Rect(0, 0, width, height)
	switch s.alpha {
	case frame.AlphaStraight:
		img := image.NewNRGBA(rect)
		s.target, s.pix = img, img.Pix
	default:
		img := image.NewRGBA(rect)
		s.target, s.pix = img, img.Pix
	}
	return s, nil
}

func checkDimension(field string, v int) error {
	if v <= 0 {
		return &frame.ConfigError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", v)}
	}
	if v > MaxDimension {
		return &frame.ConfigError{Field: field, Reason: fmt.Sprintf("%d exceeds maximum %d", v, MaxDimension)}
	}
	return nil
}

// DrawTarget returns the rasterisation destination bound to the buffer.
func (s *Surface) DrawTarget() draw.Image { return s.target }

// Image returns the buffer as an image for encoders.
func (s *Surface) Image() image.Image { return s.target }

// RawBytes exposes the backing buffer. Callers must not modify it.
func (s *Surface) RawBytes() []byte { return s.pix }

func (s *Surface) Width() int         { return s.width }
func (s *Surface) Height() int        { return s.height }
func (s *Surface) Alpha() frame.Alpha { return s.alpha }

// Bounds returns the surface rectangle, always anchored at the origin.
func (s *Surface) Bounds() image.Rectangle { return image.Rect(0, 0, s.width, s.height) }

// Clear zeroes the buffer before a new paint.
func (s *Surface) Clear() {
	clear(s.pix)
}

// Size returns the buffer length in bytes (width*height*4).
func (s *Surface) Size() int { return len(s.pix) }
