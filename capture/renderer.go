package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/webtex/encode"
	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/idgen"
	"github.com/hazyhaar/webtex/surface"
)

// DefaultPaintTimeout bounds the synchronous draw primitive.
const DefaultPaintTimeout = 10 * time.Second

var errZeroViewport = errors.New("capture: view has no layout")

// RendererConfig configures a Renderer.
type RendererConfig struct {
	Surface      *surface.Surface
	Encoder      *encode.Encoder // nil = encode.New()
	Format       frame.Format
	Quality      int
	PaintTimeout time.Duration
	NewID        idgen.Generator // nil = idgen.FrameID
	Logger       *slog.Logger
}

// Renderer drives one capture: paint the view into the surface, then
// encode the surface. It owns no goroutines; the caller decides where
// Capture runs and serialises calls.
type Renderer struct {
	surface      *surface.Surface
	encoder      *encode.Encoder
	format       frame.Format
	quality      int
	paintTimeout time.Duration
	newID        idgen.Generator
	logger       *slog.Logger
	now          func() time.Time
}

// NewRenderer builds a Renderer. Surface is required.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.Surface == nil {
		return nil, &frame.ConfigError{Field: "surface", Reason: "renderer needs a surface"}
	}
	if cfg.Encoder == nil {
		cfg.Encoder = encode.New()
	}
	if cfg.PaintTimeout <= 0 {
		cfg.PaintTimeout = DefaultPaintTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.FrameID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Renderer{
		surface:      cfg.Surface,
		encoder:      cfg.Encoder,
		format:       cfg.Format,
		quality:      cfg.Quality,
		paintTimeout: cfg.PaintTimeout,
		newID:        cfg.NewID,
		logger:       cfg.Logger,
		now:          time.Now,
	}, nil
}

// Surface returns the destination surface.
func (r *Renderer) Surface() *surface.Surface { return r.surface }

// Format returns the configured output format.
func (r *Renderer) Format() frame.Format { return r.format }

// Capture rasterises view for cycle and returns the encoded frame. Every
// failure, including a panic inside the view, comes back as a
// *frame.CaptureError and leaves the renderer usable.
func (r *Renderer) Capture(ctx context.Context, view View, cycle uint64, url string) (f frame.Frame, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &frame.CaptureError{Cycle: cycle, Stage: frame.StagePaint, Err: fmt.Errorf("panic: %v", p)}
		}
		if err != nil {
			r.logger.Warn("capture: skipped", "cycle", cycle, "url", url, "error", err)
		}
	}()

	if err := r.paint(ctx, view, cycle); err != nil {
		return frame.Frame{}, err
	}

	start := r.now()
	data, err := r.encoder.Encode(r.surface, r.format, r.quality)
	if err != nil {
		var ce *frame.CaptureError
		if errors.As(err, &ce) {
			ce.Cycle = cycle
			return frame.Frame{}, ce
		}
		return frame.Frame{}, &frame.CaptureError{Cycle: cycle, Stage: frame.StageEncode, Err: err}
	}

	f = frame.Frame{
		ID:         r.newID(),
		Cycle:      cycle,
		URL:        url,
		Width:      r.surface.Width(),
		Height:     r.surface.Height(),
		Format:     r.format,
		Data:       data,
		Hash:       frame.HashData(data),
		CapturedAt: r.now(),
	}
	if h, ok := view.(History); ok {
		if back, fwd, herr := h.History(ctx); herr != nil {
			r.logger.Debug("capture: history unavailable", "cycle", cycle, "error", herr)
		} else {
			f.CanGoBack, f.CanGoForward = back, fwd
		}
	}
	r.logger.Debug("capture: encoded",
		"cycle", cycle, "id", f.ID, "bytes", len(data), "encode_ms", time.Since(start).Milliseconds())
	return f, nil
}

// paint is the latency-sensitive section: layout check and the view's
// synchronous draw.
func (r *Renderer) paint(ctx context.Context, view View, cycle uint64) error {
	ctx, cancel := context.WithTimeout(ctx, r.paintTimeout)
	defer cancel()

	w, h, err := view.Viewport(ctx)
	if err != nil {
		return &frame.CaptureError{Cycle: cycle, Stage: frame.StageViewport, Err: err}
	}
	if w <= 0 || h <= 0 {
		return &frame.CaptureError{Cycle: cycle, Stage: frame.StageViewport,
			Err: fmt.Errorf("%w: %dx%d", errZeroViewport, w, h)}
	}

	r.surface.Clear()
	if err := view.PaintInto(ctx, r.surface.DrawTarget()); err != nil {
		return &frame.CaptureError{Cycle: cycle, Stage: frame.StagePaint, Err: err}
	}
	return nil
}
