// Package encode compresses a pixel surface into a self-contained image.
package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"sync"

	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/surface"
)

// DefaultQuality is the lossy quality a bridge uses when its config
// leaves quality unset. Encode itself treats 0 as the lowest quality, 1.
const DefaultQuality = 50

var (
	errNoSurface    = errors.New("encode: surface is nil")
	errEmptySurface = errors.New("encode: surface is empty")
)

// Encoder reuses its output buffer and PNG scratch buffers across captures.
// It is safe for concurrent use, but calls are serialised.
type Encoder struct {
	mu  sync.Mutex
	buf bytes.Buffer
	png png.Encoder
}

// New returns an Encoder ready for use.
func New() *Encoder {
	e := &Encoder{}
	e.png.CompressionLevel = png.DefaultCompression
	e.png.BufferPool = &bufferPool{}
	return e
}

// Encode compresses s. quality (0-100) applies to Lossy only. The returned
// slice is owned by the caller.
func (e *Encoder) Encode(s *surface.Surface, f frame.Format, quality int) ([]byte, error) {
	if s == nil {
		return nil, &frame.CaptureError{Stage: frame.StageEncode, Err: errNoSurface}
	}
	if s.Size() == 0 || s.Width() == 0 || s.Height() == 0 {
		return nil, &frame.CaptureError{Stage: frame.StageEncode, Err: errEmptySurface}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf.Reset()
	e.buf.Grow(s.Size() / 4)

	var err error
	switch f {
	case frame.Lossless:
		err = e.png.Encode(&e.buf, s.Image())
	case frame.Lossy:
		err = jpeg.Encode(&e.buf, s.Image(), &jpeg.Options{Quality: clampQuality(quality)})
	default:
		err = fmt.Errorf("encode: unknown format %v", f)
	}
	if err != nil {
		return nil, &frame.CaptureError{Stage: frame.StageEncode, Err: err}
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return 1
	case q > 100:
		return 100
	}
	return q
}

// ContentType returns the MIME type of images produced for f.
func ContentType(f frame.Format) string {
	if f == frame.Lossy {
		return "image/jpeg"
	}
	return "image/png"
}

// bufferPool keeps one PNG scratch buffer; Encode is serialised by the
// Encoder mutex, so a single slot is enough.
type bufferPool struct {
	b *png.EncoderBuffer
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	b := p.b
	p.b = nil
	return b
}

func (p *bufferPool) Put(b *png.EncoderBuffer) {
	p.b = b
}
