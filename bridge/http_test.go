package bridge

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/webtex/capture/capturetest"
	"github.com/hazyhaar/webtex/frame"
)

func httpServer(t *testing.T, b *Bridge) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	b.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHTTP_LoadAndFrame(t *testing.T) {
	view := capturetest.New(50, 40)
	view.Script(pageA, capturetest.Started(pageA), capturetest.Finished(pageA))
	got := newFrames()
	b := startBridge(t, Config{Width: 50, Height: 40}, view)
	b.RegisterFrameCallback(got.handle)
	srv := httpServer(t, b)

	resp, err := http.Get(srv.URL + "/frame")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("GET /frame before capture = %d, want 404", resp.StatusCode)
	}

	resp, out := post(t, srv.URL+"/load", `{"url":"`+pageA+`"}`)
	if resp.StatusCode != 202 {
		t.Fatalf("POST /load = %d %v", resp.StatusCode, out)
	}
	if out["cycle"] != float64(1) {
		t.Fatalf("cycle = %v", out["cycle"])
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("missing X-Trace-ID")
	}
	fr := got.next(t)

	resp, err = http.Get(srv.URL + "/frame")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("GET /frame = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Webtex-Cycle") != "1" {
		t.Errorf("X-Webtex-Cycle = %q", resp.Header.Get("X-Webtex-Cycle"))
	}
	if !bytes.Equal(data, fr.Data) {
		t.Fatal("served frame differs from delivered frame")
	}

	req, _ := http.NewRequest("GET", srv.URL+"/frame", nil)
	req.Header.Set("If-None-Match", resp.Header.Get("ETag"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional GET = %d, want 304", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/frame/meta")
	if err != nil {
		t.Fatal(err)
	}
	var meta frame.Meta
	json.NewDecoder(resp.Body).Decode(&meta)
	resp.Body.Close()
	if meta.ID != fr.ID || meta.Width != 50 || meta.Height != 40 || meta.Size != len(fr.Data) || meta.URL != pageA {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestHTTP_LoadErrors(t *testing.T) {
	view := capturetest.New(10, 10)
	b := startBridge(t, Config{Width: 10, Height: 10}, view)
	srv := httpServer(t, b)

	if resp, _ := post(t, srv.URL+"/load", `{"url":"https://example.com"}`); resp.StatusCode != 503 {
		t.Fatalf("load without callback = %d, want 503", resp.StatusCode)
	}

	b.RegisterFrameCallback(func(frame.Frame) {})
	if resp, _ := post(t, srv.URL+"/load", `{"url":""}`); resp.StatusCode != 400 {
		t.Fatalf("empty url = %d, want 400", resp.StatusCode)
	}
	if resp, _ := post(t, srv.URL+"/load", `not json`); resp.StatusCode != 400 {
		t.Fatalf("bad body = %d, want 400", resp.StatusCode)
	}
	big := `{"url":"` + strings.Repeat("a", 32*1024) + `"}`
	if resp, _ := post(t, srv.URL+"/load", big); resp.StatusCode != 400 {
		t.Fatalf("oversized body = %d, want 400", resp.StatusCode)
	}
	if len(view.Loads()) != 0 {
		t.Fatalf("rejected requests navigated: %v", view.Loads())
	}
}

func TestHTTP_NavigationAndStatus(t *testing.T) {
	view := capturetest.New(10, 10)
	b := startBridge(t, Config{Width: 10, Height: 10}, view)
	b.RegisterFrameCallback(func(frame.Frame) {})
	srv := httpServer(t, b)

	if resp, out := post(t, srv.URL+"/reload", ""); resp.StatusCode != 202 || out["action"] != "reload" {
		t.Fatalf("POST /reload = %d %v", resp.StatusCode, out)
	}
	if resp, _ := post(t, srv.URL+"/teleport", ""); resp.StatusCode != 404 && resp.StatusCode != 405 {
		t.Fatalf("unknown action = %d", resp.StatusCode)
	}
	waitFor(t, "reload", func() bool { return len(view.NavCommands()) == 1 })

	if resp, out := post(t, srv.URL+"/scroll", `{"dy":-120}`); resp.StatusCode != 202 || out["action"] != "scroll" {
		t.Fatalf("POST /scroll = %d %v", resp.StatusCode, out)
	}
	if resp, _ := post(t, srv.URL+"/scroll", `{"dy":`); resp.StatusCode != 400 {
		t.Fatalf("POST /scroll with bad body = %d, want 400", resp.StatusCode)
	}
	waitFor(t, "scroll", func() bool { return len(view.NavCommands()) == 2 })

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if !s.Started || s.Width != 10 || s.Format != "lossless" {
		t.Fatalf("status = %+v", s)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestHTTP_Health(t *testing.T) {
	b, err := New(Config{Width: 1, Height: 1}, capturetest.New(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	srv := httpServer(t, b)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("health = %d", resp.StatusCode)
	}
}
