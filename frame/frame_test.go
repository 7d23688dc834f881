package frame

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestErrorClasses(t *testing.T) {
	cfg := &ConfigError{Field: "width", Reason: "must be positive"}
	if !errors.Is(cfg, ErrConfiguration) {
		t.Error("ConfigError should match ErrConfiguration")
	}
	if errors.Is(cfg, ErrTransientCapture) {
		t.Error("ConfigError should not match ErrTransientCapture")
	}

	capErr := &CaptureError{Cycle: 3, Stage: StageEncode, Err: io.ErrShortWrite}
	if !errors.Is(capErr, ErrTransientCapture) {
		t.Error("CaptureError should match ErrTransientCapture")
	}
	if !errors.Is(capErr, io.ErrShortWrite) {
		t.Error("CaptureError should unwrap to its cause")
	}

	nav := &NavigationError{URL: "https://example.com", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	if !errors.Is(nav, ErrNavigation) {
		t.Error("NavigationError should match ErrNavigation")
	}

	var ce *CaptureError
	wrapped := errors.Join(errors.New("outer"), capErr)
	if !errors.As(wrapped, &ce) || ce.Stage != StageEncode {
		t.Errorf("errors.As: got %+v", ce)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":         Lossless,
		"png":      Lossless,
		"Lossless": Lossless,
		"jpeg":     Lossy,
		"jpg":      Lossy,
		"lossy":    Lossy,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseFormat("gif"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ParseFormat(gif): got %v, want configuration error", err)
	}
}

func TestParseAlpha(t *testing.T) {
	a, err := ParseAlpha("straight")
	if err != nil || a != AlphaStraight {
		t.Fatalf("ParseAlpha(straight) = %v, %v", a, err)
	}
	a, err = ParseAlpha("")
	if err != nil || a != AlphaPremultiplied {
		t.Fatalf("ParseAlpha(\"\") = %v, %v", a, err)
	}
	if _, err := ParseAlpha("linear"); err == nil {
		t.Fatal("ParseAlpha(linear): expected error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	f := Frame{ID: "frm_1", Data: []byte{1, 2, 3}}
	c := f.Clone()
	c.Data[0] = 9
	if f.Data[0] != 1 {
		t.Fatal("Clone shares the data slice")
	}
}

func TestHashData(t *testing.T) {
	h1 := HashData([]byte("frame"))
	h2 := HashData([]byte("frame"))
	if h1 != h2 {
		t.Errorf("HashData not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("HashData length: got %d, want 64", len(h1))
	}
}

func TestMetaRoundtrip(t *testing.T) {
	f := Frame{
		ID: "frm_1", Cycle: 7, URL: "https://example.com",
		Width: 200, Height: 300, Format: Lossy,
		Data: []byte{1, 2, 3, 4}, Hash: HashData([]byte{1, 2, 3, 4}),
		CapturedAt: time.UnixMilli(1708700000000),
	}
	data, err := MarshalMeta(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalMeta(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != 4 || got.Format != "lossy" || got.Cycle != 7 {
		t.Errorf("meta: got %+v", got)
	}
	if !got.Time().Equal(f.CapturedAt) {
		t.Errorf("Time: got %v, want %v", got.Time(), f.CapturedAt)
	}
}
