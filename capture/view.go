// Package capture rasterises a rendering surface into a pixel surface and
// encodes the result.
//
// The rendering engine is a black box reached through View. Anything that
// can load a URL, report navigation events and paint synchronously into a
// draw.Image can drive the pipeline: headless Chrome in production, a
// deterministic double in tests.
package capture

import (
	"context"
	"image/draw"
)

// View is the rendering surface the bridge owns for its lifetime. It is
// not reentrant: one load/capture cycle at a time.
type View interface {
	// LoadURL starts navigating to url and returns without waiting for
	// the page to finish. Completion is reported to the Listener.
	LoadURL(ctx context.Context, url string) error

	// Subscribe sets the single event listener. A second call replaces
	// the first.
	Subscribe(l Listener)

	// Viewport returns the current laid-out size of the view in pixels.
	Viewport(ctx context.Context) (width, height int, err error)

	// PaintInto draws the current visual state into dst, scaled to
	// dst.Bounds(). It blocks until the pixels are written.
	PaintInto(ctx context.Context, dst draw.Image) error
}

// Listener receives navigation events. Callbacks may arrive on any
// goroutine; implementations hand them off quickly.
type Listener interface {
	OnLoadStarted(url string)
	OnLoadFinished(url string)
	OnRedirect(from, to string)
	OnLoadFailed(url string, err error)
}

// Navigator is implemented by views that support history, reload and
// scrolling. Like LoadURL, the navigation methods return once the command
// is issued; completion is reported to the Listener. Scroll returns once
// the page has moved and fires no events.
type Navigator interface {
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	Stop(ctx context.Context) error
	Scroll(ctx context.Context, dy int) error
}

// History is implemented by views that can report their position in the
// session history.
type History interface {
	History(ctx context.Context) (canBack, canForward bool, err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are no-ops.
type ListenerFuncs struct {
	Started  func(url string)
	Finished func(url string)
	Redirect func(from, to string)
	Failed   func(url string, err error)
}

func (f ListenerFuncs) OnLoadStarted(url string) {
	if f.Started != nil {
		f.Started(url)
	}
}

func (f ListenerFuncs) OnLoadFinished(url string) {
	if f.Finished != nil {
		f.Finished(url)
	}
}

func (f ListenerFuncs) OnRedirect(from, to string) {
	if f.Redirect != nil {
		f.Redirect(from, to)
	}
}

func (f ListenerFuncs) OnLoadFailed(url string, err error) {
	if f.Failed != nil {
		f.Failed(url, err)
	}
}
