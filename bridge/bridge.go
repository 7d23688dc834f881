// Package bridge is the boundary between a host and an off-screen view.
//
// The host registers one frame callback, then issues loads. Each load opens
// a cycle with a monotonically increasing id; the bridge watches the view's
// navigation events, captures the page once it has settled on a
// non-redirected document, and hands the encoded frame to the callback.
// A newer load supersedes older cycles, whose results are dropped.
//
// All pipeline state is owned by one loop goroutine. Paint and encode run
// on a second goroutine so the loop stays responsive; the Payload swap is
// the only synchronisation point readers touch.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/webtex/capture"
	"github.com/hazyhaar/webtex/encode"
	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/idgen"
	"github.com/hazyhaar/webtex/lifecycle"
	"github.com/hazyhaar/webtex/payload"
	"github.com/hazyhaar/webtex/surface"
)

// FrameHandler receives each delivered frame. It runs on the pipeline
// goroutine and must return quickly; f is the handler's own copy.
type FrameHandler func(f frame.Frame)

// FailureHandler receives navigation failures.
type FailureHandler func(err *frame.NavigationError)

// Config fixes the output of a bridge for its lifetime.
type Config struct {
	Width        int
	Height       int
	Alpha        frame.Alpha
	Format       frame.Format
	// Quality applies to lossy output, 1 (lowest) to 100. 0 selects
	// encode.DefaultQuality; there is no way to ask for a quality below 1.
	Quality      int
	PaintTimeout time.Duration // 0 = capture.DefaultPaintTimeout
	SearchURL    string        // "" = DefaultSearchURL
	BlockPrivate bool
}

// Option configures optional parts of a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithFailureCallback registers the navigation failure handler at
// construction time.
func WithFailureCallback(h FailureHandler) Option {
	return func(b *Bridge) { b.onFailure = h }
}

// WithFrameLog records every pipeline outcome to r.
func WithFrameLog(r Recorder) Option {
	return func(b *Bridge) { b.recorder = r }
}

// WithSearchURL overrides Config.SearchURL.
func WithSearchURL(tmpl string) Option {
	return func(b *Bridge) { b.norm.SearchURL = tmpl }
}

// DefaultNavigateTimeout bounds each view command (load, reload, history
// step, scroll, stop).
const DefaultNavigateTimeout = 30 * time.Second

// WithNavigateTimeout overrides DefaultNavigateTimeout.
func WithNavigateTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.navTimeout = d
		}
	}
}

// WithIDGenerator overrides the frame ID generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(b *Bridge) { b.newID = g }
}

// Bridge drives one view. Create with New, then Start.
type Bridge struct {
	cfg      Config
	view     capture.View
	norm     Normalizer
	renderer *capture.Renderer
	payload  *payload.Payload
	monitor  *lifecycle.Monitor
	logger   *slog.Logger
	recorder Recorder
	newID    idgen.Generator
	now      func() time.Time

	navTimeout time.Duration

	mu        sync.Mutex
	onFrame   FrameHandler
	onFailure FailureHandler
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc

	issue   sync.Mutex // keeps cycle ids in send order
	cycle   atomic.Uint64
	status  atomic.Pointer[Status]
	cmds    chan command
	events  chan viewEvent
	navs    chan navOp
	jobs    chan job
	results chan result
	wg      sync.WaitGroup
}

// New validates cfg and allocates the surface, encoder and payload.
// Invalid dimensions return a *frame.ConfigError.
func New(cfg Config, view capture.View, opts ...Option) (*Bridge, error) {
	if view == nil {
		return nil, &frame.ConfigError{Field: "view", Reason: "required"}
	}
	if cfg.Quality == 0 {
		cfg.Quality = encode.DefaultQuality
	}

	b := &Bridge{
		cfg:     cfg,
		view:    view,
		norm:    Normalizer{SearchURL: cfg.SearchURL, BlockPrivate: cfg.BlockPrivate},
		payload: payload.New(),
		monitor: lifecycle.New(),
		logger:  slog.Default(),
		now:     time.Now,

		navTimeout: DefaultNavigateTimeout,
		cmds:       make(chan command, 16),
		navs:       make(chan navOp, 16),
		events:     make(chan viewEvent, 64),
		jobs:       make(chan job, 1),
		results:    make(chan result, 1),
	}
	for _, o := range opts {
		o(b)
	}

	surf, err := surface.New(cfg.Width, cfg.Height, surface.WithAlpha(cfg.Alpha))
	if err != nil {
		return nil, err
	}
	b.renderer, err = capture.NewRenderer(capture.RendererConfig{
		Surface:      surf,
		Encoder:      encode.New(),
		Format:       cfg.Format,
		Quality:      cfg.Quality,
		PaintTimeout: cfg.PaintTimeout,
		NewID:        b.newID,
		Logger:       b.logger,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Start subscribes to the view and runs the pipeline until ctx is done or
// Close is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return &frame.ConfigError{Field: "bridge", Reason: "already started"}
	}
	b.started = true
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.view.Subscribe(b.listener())
	p := &pipeline{Bridge: b}
	p.publish()

	b.wg.Add(3)
	go func() {
		defer b.wg.Done()
		p.run(b.ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.worker(b.ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.navigator(b.ctx)
	}()

	b.logger.Info("bridge: started",
		"width", b.cfg.Width, "height", b.cfg.Height, "format", b.cfg.Format.String())
	return nil
}

// Close stops the pipeline and waits for an in-flight capture and view
// command to return.
func (b *Bridge) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	b.wg.Wait()
	return nil
}

// RegisterFrameCallback sets the single frame handler, replacing any
// previous one. A nil handler unregisters.
func (b *Bridge) RegisterFrameCallback(h FrameHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = h
}

// RegisterFailureCallback sets the single navigation failure handler.
func (b *Bridge) RegisterFailureCallback(h FailureHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFailure = h
}

func (b *Bridge) handlers() (FrameHandler, FailureHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onFrame, b.onFailure
}

// Load starts a new cycle for rawURL and returns its id without waiting
// for the page. View commands run in order on their own goroutine; each
// one cancels the command before it. It fails with a *frame.ConfigError, and performs no
// navigation, if the bridge is not started, no frame callback is
// registered or the URL is empty.
func (b *Bridge) Load(ctx context.Context, rawURL string) (uint64, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	target, err := b.norm.Normalize(rawURL)
	if err != nil {
		return 0, err
	}
	return b.issueCycle(ctx, command{kind: cmdLoad, url: target})
}

// Reload reloads the current page in a new cycle.
func (b *Bridge) Reload(ctx context.Context) (uint64, error) { return b.navigate(ctx, cmdReload) }

// Back goes one step back in history in a new cycle.
func (b *Bridge) Back(ctx context.Context) (uint64, error) { return b.navigate(ctx, cmdBack) }

// Forward goes one step forward in history in a new cycle.
func (b *Bridge) Forward(ctx context.Context) (uint64, error) { return b.navigate(ctx, cmdForward) }

// Scroll scrolls the current page vertically by dy pixels, negative for
// up, and captures the result in a new cycle without navigating.
func (b *Bridge) Scroll(ctx context.Context, dy int) (uint64, error) {
	if _, ok := b.view.(capture.Navigator); !ok {
		return 0, &frame.ConfigError{Field: "view", Reason: "navigation commands not supported"}
	}
	if err := b.ready(); err != nil {
		return 0, err
	}
	return b.issueCycle(ctx, command{kind: cmdScroll, dy: dy})
}

// Stop stops the current load. It does not open a cycle.
func (b *Bridge) Stop(ctx context.Context) error {
	if _, ok := b.view.(capture.Navigator); !ok {
		return &frame.ConfigError{Field: "view", Reason: "navigation commands not supported"}
	}
	if err := b.ready(); err != nil {
		return err
	}
	return b.send(ctx, command{kind: cmdStop})
}

func (b *Bridge) navigate(ctx context.Context, kind cmdKind) (uint64, error) {
	if _, ok := b.view.(capture.Navigator); !ok {
		return 0, &frame.ConfigError{Field: "view", Reason: "navigation commands not supported"}
	}
	if err := b.ready(); err != nil {
		return 0, err
	}
	return b.issueCycle(ctx, command{kind: kind})
}

func (b *Bridge) issueCycle(ctx context.Context, c command) (uint64, error) {
	b.issue.Lock()
	defer b.issue.Unlock()
	c.cycle = b.cycle.Load() + 1
	if err := b.send(ctx, c); err != nil {
		return 0, err
	}
	b.cycle.Store(c.cycle)
	return c.cycle, nil
}

func (b *Bridge) ready() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case !b.started:
		return &frame.ConfigError{Field: "bridge", Reason: "not started"}
	case b.ctx.Err() != nil:
		return &frame.ConfigError{Field: "bridge", Reason: "closed"}
	case b.onFrame == nil:
		return &frame.ConfigError{Field: "callback", Reason: "no frame callback registered"}
	}
	return nil
}

func (b *Bridge) send(ctx context.Context, c command) error {
	select {
	case b.cmds <- c:
		return nil
	case <-b.ctx.Done():
		return &frame.ConfigError{Field: "bridge", Reason: "closed"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest returns a copy of the latest encoded frame, nil before the first
// delivery.
func (b *Bridge) Latest() []byte { return b.payload.Get() }

// LatestFrame returns a copy of the latest frame with its metadata.
func (b *Bridge) LatestFrame() (frame.Frame, bool) { return b.payload.Frame() }

// Status returns the latest pipeline snapshot.
func (b *Bridge) Status() Status {
	if s := b.status.Load(); s != nil {
		return *s
	}
	return Status{
		State:  lifecycle.Idle.String(),
		Width:  b.cfg.Width,
		Height: b.cfg.Height,
		Format: b.cfg.Format.String(),
	}
}

// Config returns the bridge configuration.
func (b *Bridge) Config() Config { return b.cfg }
