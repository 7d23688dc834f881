package browser

import (
	"context"
	"fmt"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/webtex/capture"
)

// DefaultNavigateTimeout bounds Page.navigate, which returns once the
// response has been received, and the history commands.
const DefaultNavigateTimeout = 30 * time.Second

// ViewConfig configures a View.
type ViewConfig struct {
	Width     int
	Height    int
	Stealth   bool   // create the page through go-rod/stealth
	UserAgent string // empty = Chrome default
	Logger    *slog.Logger
}

// View is one Chrome tab sized to the output surface. It implements
// capture.View, capture.Navigator and capture.History.
type View struct {
	mgr    *Manager
	cfg    ViewConfig
	logger *slog.Logger

	mu       sync.Mutex
	page     *rod.Page
	events   *eventMapper
	router   *rod.HijackRouter
	stop     context.CancelFunc
	listener capture.Listener
}

// OpenView opens a blank tab on the manager's browser. The view follows
// the manager across recycles.
func OpenView(ctx context.Context, mgr *Manager, cfg ViewConfig) (*View, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	v := &View{mgr: mgr, cfg: cfg, logger: cfg.Logger}

	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	if err := v.open(ctx, b); err != nil {
		return nil, err
	}

	mgr.OnRecycle(func(ctx context.Context, b *rod.Browser) {
		url := v.events.currentURL()
		if err := v.open(ctx, b); err != nil {
			v.logger.Error("browser: reopen view after recycle", "error", err)
			return
		}
		if url != "" {
			v.logger.Info("browser: restoring page after recycle", "url", url)
			v.LoadURL(ctx, url)
		}
	})
	return v, nil
}

func (v *View) open(ctx context.Context, b *rod.Browser) error {
	var (
		page *rod.Page
		err  error
	)
	if v.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return fmt.Errorf("browser: create tab: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             v.cfg.Width,
		Height:            v.cfg.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return fmt.Errorf("browser: set viewport: %w", err)
	}
	if v.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: v.cfg.UserAgent}); err != nil {
			v.logger.Warn("browser: user agent override failed", "error", err)
		}
	}

	router, err := applyResourceBlocking(page, v.mgr.cfg.ResourceBlocking)
	if err != nil {
		v.logger.Warn("browser: resource blocking failed", "error", err)
	}

	if err := (proto.PageEnable{}).Call(page); err != nil {
		page.Close()
		return fmt.Errorf("browser: enable page events: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		page.Close()
		return fmt.Errorf("browser: enable network events: %w", err)
	}

	events := newEventMapper(page.FrameID, v.logger)
	evCtx, stop := context.WithCancel(context.Background())
	wait := page.Context(evCtx).EachEvent(
		events.frameNavigated,
		events.navigationRequested,
		events.loadEventFired,
		events.requestWillBeSent,
		events.loadingFinished,
		events.loadingFailed,
	)
	go wait()

	v.mu.Lock()
	old, oldRouter, oldStop := v.page, v.router, v.stop
	v.page, v.router, v.stop, v.events = page, router, stop, events
	if v.listener != nil {
		events.subscribe(v.listener)
	}
	v.mu.Unlock()

	if oldStop != nil {
		oldStop()
	}
	if oldRouter != nil {
		oldRouter.Stop()
	}
	if old != nil {
		old.Close()
	}

	v.logger.Info("browser: view opened", "width", v.cfg.Width, "height", v.cfg.Height, "stealth", v.cfg.Stealth)
	return nil
}

func (v *View) current() (*rod.Page, *eventMapper) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page, v.events
}

// Subscribe implements capture.View.
func (v *View) Subscribe(l capture.Listener) {
	v.mu.Lock()
	v.listener = l
	events := v.events
	v.mu.Unlock()
	if events != nil {
		events.subscribe(l)
	}
}

// LoadURL implements capture.View. Page.navigate runs in the background;
// its failure, if any, reaches the listener as OnLoadFailed.
func (v *View) LoadURL(ctx context.Context, url string) error {
	page, events := v.current()
	if page == nil {
		return fmt.Errorf("browser: view closed")
	}
	gen := events.begin(url)

	go func() {
		navCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultNavigateTimeout)
		defer cancel()
		if err := page.Context(navCtx).Navigate(url); err != nil {
			events.navigateFailed(gen, url, err)
		}
	}()
	return nil
}

// Viewport implements capture.View with the CSS layout viewport.
func (v *View) Viewport(ctx context.Context) (int, int, error) {
	page, _ := v.current()
	if page == nil {
		return 0, 0, fmt.Errorf("browser: view closed")
	}
	res, err := proto.PageGetLayoutMetrics{}.Call(page.Context(ctx))
	if err != nil {
		return 0, 0, fmt.Errorf("browser: layout metrics: %w", err)
	}
	vp := res.CSSLayoutViewport
	if vp == nil {
		return 0, 0, nil
	}
	return vp.ClientWidth, vp.ClientHeight, nil
}

// PaintInto implements capture.View: a viewport screenshot, decoded and
// scaled into dst.
func (v *View) PaintInto(ctx context.Context, dst draw.Image) error {
	page, _ := v.current()
	if page == nil {
		return fmt.Errorf("browser: view closed")
	}
	data, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:      proto.PageCaptureScreenshotFormatPng,
		FromSurface: true,
	})
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	return paintPNG(dst, data)
}

// Back implements capture.Navigator.
func (v *View) Back(ctx context.Context) error {
	return v.history(ctx, "back", func(p *rod.Page) error { return p.NavigateBack() })
}

// Forward implements capture.Navigator.
func (v *View) Forward(ctx context.Context) error {
	return v.history(ctx, "forward", func(p *rod.Page) error { return p.NavigateForward() })
}

// Reload implements capture.Navigator.
func (v *View) Reload(ctx context.Context) error {
	return v.history(ctx, "reload", func(p *rod.Page) error { return p.Reload() })
}

// Stop implements capture.Navigator.
func (v *View) Stop(ctx context.Context) error {
	page, _ := v.current()
	if page == nil {
		return fmt.Errorf("browser: view closed")
	}
	return proto.PageStopLoading{}.Call(page.Context(ctx))
}

// Scroll implements capture.Navigator. The page moves synchronously; no
// navigation events follow.
func (v *View) Scroll(ctx context.Context, dy int) error {
	page, _ := v.current()
	if page == nil {
		return fmt.Errorf("browser: view closed")
	}
	_, err := page.Context(ctx).Eval(`(dy) => window.scrollBy({top: dy, behavior: "instant"})`, dy)
	if err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

// History implements capture.History.
func (v *View) History(ctx context.Context) (bool, bool, error) {
	page, _ := v.current()
	if page == nil {
		return false, false, fmt.Errorf("browser: view closed")
	}
	res, err := page.Context(ctx).GetNavigationHistory()
	if err != nil {
		return false, false, fmt.Errorf("browser: history: %w", err)
	}
	return res.CurrentIndex > 0, res.CurrentIndex < len(res.Entries)-1, nil
}

// history runs a history command in the background the way LoadURL runs
// Page.navigate; rod's Reload waits for the frame to navigate.
func (v *View) history(ctx context.Context, op string, fn func(*rod.Page) error) error {
	page, events := v.current()
	if page == nil {
		return fmt.Errorf("browser: view closed")
	}
	gen := events.begin("")

	go func() {
		navCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultNavigateTimeout)
		defer cancel()
		if err := fn(page.Context(navCtx)); err != nil {
			events.navigateFailed(gen, "", fmt.Errorf("browser: %s: %w", op, err))
		}
	}()
	return nil
}

// Close closes the tab. The manager keeps running.
func (v *View) Close() error {
	v.mu.Lock()
	page, router, stop := v.page, v.router, v.stop
	v.page, v.router, v.stop = nil, nil, nil
	v.mu.Unlock()

	if stop != nil {
		stop()
	}
	if router != nil {
		router.Stop()
	}
	if page != nil {
		return page.Close()
	}
	return nil
}

var (
	_ capture.View      = (*View)(nil)
	_ capture.Navigator = (*View)(nil)
	_ capture.History   = (*View)(nil)
)
