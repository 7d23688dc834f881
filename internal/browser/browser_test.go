package browser

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

type call struct {
	kind string
	url  string
	to   string
	err  error
}

type recorder struct{ calls []call }

func (r *recorder) OnLoadStarted(url string)  { r.calls = append(r.calls, call{kind: "started", url: url}) }
func (r *recorder) OnLoadFinished(url string) { r.calls = append(r.calls, call{kind: "finished", url: url}) }
func (r *recorder) OnRedirect(from, to string) {
	r.calls = append(r.calls, call{kind: "redirect", url: from, to: to})
}
func (r *recorder) OnLoadFailed(url string, err error) {
	r.calls = append(r.calls, call{kind: "failed", url: url, err: err})
}

func (r *recorder) kinds() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.kind
	}
	return out
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestMapper() (*eventMapper, *recorder) {
	m := newEventMapper("main", discard())
	rec := &recorder{}
	m.subscribe(rec)
	return m, rec
}

func navigated(id, parent proto.PageFrameID, url string) *proto.PageFrameNavigated {
	return &proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: id, ParentID: parent, URL: url}}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEventMapper_ClientRedirect(t *testing.T) {
	m, rec := newTestMapper()
	m.begin("https://example.com/")

	m.frameNavigated(navigated("main", "", "https://example.com/"))
	m.frameNavigated(navigated("ad", "main", "https://ads.example.net/"))
	m.navigationRequested(&proto.PageFrameRequestedNavigation{FrameID: "main", URL: "https://example.com/final", Reason: "metaTagRefresh"})
	m.navigationRequested(&proto.PageFrameRequestedNavigation{FrameID: "ad", URL: "https://ads.example.net/x"})
	m.loadEventFired(&proto.PageLoadEventFired{})
	m.frameNavigated(navigated("main", "", "https://example.com/final"))
	m.loadEventFired(&proto.PageLoadEventFired{})

	want := []string{"started", "redirect", "finished", "started", "finished"}
	if !equal(rec.kinds(), want) {
		t.Fatalf("calls = %v, want %v", rec.kinds(), want)
	}
	if r := rec.calls[1]; r.url != "https://example.com/" || r.to != "https://example.com/final" {
		t.Errorf("redirect = %+v", r)
	}
	if last := rec.calls[4]; last.url != "https://example.com/final" {
		t.Errorf("final finish url = %q", last.url)
	}
}

func TestEventMapper_DocumentFailure(t *testing.T) {
	m, rec := newTestMapper()
	gen := m.begin("https://nope.invalid/")

	m.requestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: "r1", FrameID: "main", Type: proto.NetworkResourceTypeDocument,
		Request: &proto.NetworkRequest{URL: "https://nope.invalid/"},
	})
	m.requestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: "img", FrameID: "main", Type: proto.NetworkResourceTypeImage,
		Request: &proto.NetworkRequest{URL: "https://nope.invalid/a.png"},
	})
	m.loadingFailed(&proto.NetworkLoadingFailed{RequestID: "img", ErrorText: "net::ERR_FAILED"})
	m.loadingFailed(&proto.NetworkLoadingFailed{RequestID: "r1", ErrorText: "net::ERR_NAME_NOT_RESOLVED"})
	m.navigateFailed(gen, "https://nope.invalid/", errors.New("net::ERR_NAME_NOT_RESOLVED"))

	// Chrome then commits its own error page and fires load.
	m.frameNavigated(navigated("main", "", "chrome-error://chromewebdata/"))
	m.loadEventFired(&proto.PageLoadEventFired{})

	if want := []string{"failed"}; !equal(rec.kinds(), want) {
		t.Fatalf("calls = %v, want %v", rec.kinds(), want)
	}
	if c := rec.calls[0]; c.url != "https://nope.invalid/" || c.err.Error() != "net::ERR_NAME_NOT_RESOLVED" {
		t.Errorf("failure = %+v", c)
	}
}

func TestEventMapper_SupersededNavigationIgnored(t *testing.T) {
	m, rec := newTestMapper()
	old := m.begin("https://a.example.com/")
	m.begin("https://b.example.com/")

	m.navigateFailed(old, "https://a.example.com/", errors.New("net::ERR_CONNECTION_RESET"))
	m.loadingFailed(&proto.NetworkLoadingFailed{RequestID: "unknown", ErrorText: "net::ERR_FAILED"})

	m.requestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: "r2", FrameID: "main", Type: proto.NetworkResourceTypeDocument,
		Request: &proto.NetworkRequest{URL: "https://b.example.com/"},
	})
	m.loadingFailed(&proto.NetworkLoadingFailed{RequestID: "r2", ErrorText: "net::ERR_ABORTED"})
	m.loadingFailed(&proto.NetworkLoadingFailed{RequestID: "r2", Canceled: true})

	if len(rec.calls) != 0 {
		t.Fatalf("calls = %v, want none", rec.kinds())
	}
}

func TestEventMapper_OldDocumentEventsAfterBegin(t *testing.T) {
	m, rec := newTestMapper()
	m.begin("https://a.example.com/")
	m.frameNavigated(navigated("main", "", "https://a.example.com/"))

	// A's load event and a script navigation land after B was requested.
	m.begin("https://b.example.com/")
	m.loadEventFired(&proto.PageLoadEventFired{})
	m.navigationRequested(&proto.PageFrameRequestedNavigation{FrameID: "main", URL: "https://a.example.com/next"})

	m.frameNavigated(navigated("main", "", "https://b.example.com/"))
	m.loadEventFired(&proto.PageLoadEventFired{})

	if want := []string{"started", "started", "finished"}; !equal(rec.kinds(), want) {
		t.Fatalf("calls = %v, want %v", rec.kinds(), want)
	}
	if last := rec.calls[2]; last.url != "https://b.example.com/" {
		t.Errorf("finish url = %q, want b", last.url)
	}
}

func TestEventMapper_HistoryFailureUsesCurrentURL(t *testing.T) {
	m, rec := newTestMapper()
	m.begin("https://a.example.com/")
	m.frameNavigated(navigated("main", "", "https://a.example.com/"))

	gen := m.begin("")
	m.navigateFailed(gen, "", errors.New("browser: reload: context deadline exceeded"))

	if want := []string{"started", "failed"}; !equal(rec.kinds(), want) {
		t.Fatalf("calls = %v, want %v", rec.kinds(), want)
	}
	if c := rec.calls[1]; c.url != "https://a.example.com/" {
		t.Errorf("failure url = %q", c.url)
	}
}

func TestEventMapper_ServerRedirectIsNotARedirectEvent(t *testing.T) {
	m, rec := newTestMapper()
	m.begin("http://example.com/")
	m.requestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: "r1", FrameID: "main", Type: proto.NetworkResourceTypeDocument,
		Request: &proto.NetworkRequest{URL: "http://example.com/"},
	})
	m.requestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: "r1", FrameID: "main", Type: proto.NetworkResourceTypeDocument,
		Request:          &proto.NetworkRequest{URL: "https://example.com/"},
		RedirectResponse: &proto.NetworkResponse{Status: 301},
	})
	m.loadingFinished(&proto.NetworkLoadingFinished{RequestID: "r1"})
	m.frameNavigated(navigated("main", "", "https://example.com/"))
	m.loadEventFired(&proto.PageLoadEventFired{})

	if want := []string{"started", "finished"}; !equal(rec.kinds(), want) {
		t.Fatalf("calls = %v, want %v", rec.kinds(), want)
	}
}

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"images", " Fonts ", "media", "stylesheets", "document", ""})
	tests := []struct {
		typ  proto.NetworkResourceType
		want bool
	}{
		{proto.NetworkResourceTypeImage, true},
		{proto.NetworkResourceTypeFont, true},
		{proto.NetworkResourceTypeMedia, true},
		{proto.NetworkResourceTypeStylesheet, true},
		{proto.NetworkResourceTypeScript, false},
		{proto.NetworkResourceTypeXHR, false},
		{proto.NetworkResourceTypeDocument, false},
	}
	for _, tt := range tests {
		if got := shouldBlock(set, tt.typ); got != tt.want {
			t.Errorf("shouldBlock(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
	if len(blockSet(nil)) != 0 {
		t.Error("empty config should block nothing")
	}
}

func TestPaintPNG_Scales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 400; x++ {
			src.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 200, 300))
	if err := paintPNG(dst, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if got := dst.RGBAAt(100, 150); got.R < 190 || got.A != 255 {
		t.Fatalf("scaled pixel = %+v", got)
	}

	same := image.NewNRGBA(image.Rect(0, 0, 400, 600))
	if err := paintPNG(same, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if got := same.NRGBAAt(399, 599); got != (color.NRGBA{R: 200, G: 10, B: 10, A: 255}) {
		t.Fatalf("copied pixel = %+v", got)
	}

	if err := paintPNG(dst, []byte("not a png")); err == nil {
		t.Fatal("garbage screenshot should fail")
	}
}

func TestJSHeapUsed(t *testing.T) {
	metrics := []*proto.PerformanceMetric{
		{Name: "Nodes", Value: 120},
		nil,
		{Name: "JSHeapUsedSize", Value: 5 << 20},
	}
	if got := jsHeapUsed(metrics); got != 5<<20 {
		t.Fatalf("jsHeapUsed = %d", got)
	}
	if jsHeapUsed(nil) != 0 {
		t.Fatal("no metrics should report 0")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MemoryLimit != 1<<30 || c.XvfbDisplay != ":99" || c.Width != 1280 || c.Logger == nil {
		t.Fatalf("defaults = %+v", c)
	}
}
