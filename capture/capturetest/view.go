// Package capturetest provides a deterministic capture.View for tests.
package capturetest

import (
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/hazyhaar/webtex/capture"
)

// Step is one scripted navigation event.
type Step struct {
	Kind string // "started", "finished", "redirect", "failed"
	URL  string
	To   string // redirect target
	Err  error
}

// Script helpers.
func Started(url string) Step           { return Step{Kind: "started", URL: url} }
func Finished(url string) Step          { return Step{Kind: "finished", URL: url} }
func Redirect(from, to string) Step     { return Step{Kind: "redirect", URL: from, To: to} }
func Failed(url string, err error) Step { return Step{Kind: "failed", URL: url, Err: err} }

// View is an in-memory rendering surface. The zero value is not usable;
// call New.
type View struct {
	mu        sync.Mutex
	listener  capture.Listener
	width     int
	height    int
	current   string
	loads     []string
	scripts   map[string][]Step
	loadErr   error
	paintErr  error
	panicMsg  string
	gate      chan struct{}
	paints    int
	paintedCh chan string
	nav       []string
	history   []string
	index     int // position in history, -1 when empty
	scrollY   int
	histErr   error
}

// New returns a View laid out at width×height.
func New(width, height int) *View {
	return &View{
		width:     width,
		height:    height,
		scripts:   make(map[string][]Step),
		paintedCh: make(chan string, 64),
		index:     -1,
	}
}

// Script registers the events emitted asynchronously when url is loaded.
func (v *View) Script(url string, steps ...Step) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scripts[url] = steps
}

// OnePageRedirect scripts url to redirect once to target before settling.
func (v *View) OnePageRedirect(url, target string) {
	v.Script(url,
		Started(url),
		Redirect(url, target),
		Finished(url),
		Started(target),
		Finished(target),
	)
}

// SetViewport changes the reported layout size.
func (v *View) SetViewport(w, h int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width, v.height = w, h
}

// FailLoads makes LoadURL return err.
func (v *View) FailLoads(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loadErr = err
}

// FailPaint makes PaintInto return err.
func (v *View) FailPaint(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paintErr = err
}

// PanicOnPaint makes PaintInto panic with msg.
func (v *View) PanicOnPaint(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panicMsg = msg
}

// HoldPaint makes the next paints block until the returned release is
// called. Painted reports when a held paint has started.
func (v *View) HoldPaint() (release func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	gate := make(chan struct{})
	v.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			if v.gate == gate {
				v.gate = nil
			}
			v.mu.Unlock()
			close(gate)
		})
	}
}

// Painted yields the URL shown each time a paint starts.
func (v *View) Painted() <-chan string { return v.paintedCh }

// Loads returns the URLs passed to LoadURL so far.
func (v *View) Loads() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.loads...)
}

// Paints returns the number of completed paints.
func (v *View) Paints() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paints
}

// NavCommands returns the Navigator calls received ("back", "reload", ...).
func (v *View) NavCommands() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.nav...)
}

// LoadURL implements capture.View.
func (v *View) LoadURL(_ context.Context, url string) error {
	v.mu.Lock()
	if v.loadErr != nil {
		err := v.loadErr
		v.mu.Unlock()
		return err
	}
	v.loads = append(v.loads, url)
	v.current = url
	v.history = append(v.history[:v.index+1], url)
	v.index = len(v.history) - 1
	v.scrollY = 0
	steps := v.scripts[url]
	v.mu.Unlock()

	if len(steps) > 0 {
		go v.Emit(steps...)
	}
	return nil
}

// Subscribe implements capture.View.
func (v *View) Subscribe(l capture.Listener) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listener = l
}

// Emit delivers steps to the listener in order, on the calling goroutine.
func (v *View) Emit(steps ...Step) {
	for _, s := range steps {
		v.mu.Lock()
		l := v.listener
		switch s.Kind {
		case "started":
			v.current = s.URL
		case "redirect":
			v.current = s.To
		}
		v.mu.Unlock()
		if l == nil {
			continue
		}
		switch s.Kind {
		case "started":
			l.OnLoadStarted(s.URL)
		case "finished":
			l.OnLoadFinished(s.URL)
		case "redirect":
			l.OnRedirect(s.URL, s.To)
		case "failed":
			err := s.Err
			if err == nil {
				err = errors.New("capturetest: load failed")
			}
			l.OnLoadFailed(s.URL, err)
		}
	}
}

// Viewport implements capture.View.
func (v *View) Viewport(context.Context) (int, int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height, nil
}

// PaintInto implements capture.View. The pattern depends only on the
// current URL and the destination size.
func (v *View) PaintInto(ctx context.Context, dst draw.Image) error {
	v.mu.Lock()
	gate, err, msg, url := v.gate, v.paintErr, v.panicMsg, v.current
	v.mu.Unlock()

	select {
	case v.paintedCh <- url:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if msg != "" {
		panic(msg)
	}
	if err != nil {
		return err
	}

	Pattern(dst, url)

	v.mu.Lock()
	v.paints++
	v.mu.Unlock()
	return nil
}

// Pattern paints the deterministic test image for url into dst.
func Pattern(dst draw.Image, url string) {
	h := fnv.New32a()
	h.Write([]byte(url))
	seed := h.Sum32()
	base := color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 255}

	b := dst.Bounds()
	draw.Draw(dst, b, image.NewUniform(base), image.Point{}, draw.Src)
	for y := b.Min.Y; y < b.Max.Y; y += 8 {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: base.B, A: 255})
		}
	}
}

// Back implements capture.Navigator. It moves the history position
// without emitting events; script them with Emit.
func (v *View) Back(context.Context) error { return v.step("back", -1) }

// Forward implements capture.Navigator.
func (v *View) Forward(context.Context) error { return v.step("forward", 1) }

// Scroll implements capture.Navigator.
func (v *View) Scroll(_ context.Context, dy int) error {
	v.mu.Lock()
	v.scrollY += dy
	if v.scrollY < 0 {
		v.scrollY = 0
	}
	v.mu.Unlock()
	return v.recordNav("scroll")
}

// ScrollY returns the vertical scroll offset, reset by each LoadURL.
func (v *View) ScrollY() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollY
}

// FailHistory makes History return err.
func (v *View) FailHistory(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.histErr = err
}

// History implements capture.History over the URLs passed to LoadURL.
func (v *View) History(context.Context) (bool, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.histErr != nil {
		return false, false, v.histErr
	}
	return v.index > 0, v.index >= 0 && v.index < len(v.history)-1, nil
}

func (v *View) step(cmd string, delta int) error {
	v.mu.Lock()
	if i := v.index + delta; i >= 0 && i < len(v.history) {
		v.index = i
		v.current = v.history[i]
		v.scrollY = 0
	}
	v.mu.Unlock()
	return v.recordNav(cmd)
}

// Reload implements capture.Navigator.
func (v *View) Reload(context.Context) error { return v.recordNav("reload") }

// Stop implements capture.Navigator.
func (v *View) Stop(context.Context) error { return v.recordNav("stop") }

func (v *View) recordNav(cmd string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nav = append(v.nav, cmd)
	return nil
}

var (
	_ capture.View      = (*View)(nil)
	_ capture.Navigator = (*View)(nil)
	_ capture.History   = (*View)(nil)
)
