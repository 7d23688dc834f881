// Package frame defines the types exchanged across the bridge boundary.
// Hosts import this package to receive captured frames and to classify
// the errors returned by the bridge.
package frame

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Format selects how a pixel surface is compressed.
type Format int

const (
	Lossless Format = iota // PNG
	Lossy                  // JPEG, quality-controlled
)

func (f Format) String() string {
	switch f {
	case Lossless:
		return "lossless"
	case Lossy:
		return "lossy"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat accepts "lossless"/"png" and "lossy"/"jpeg"/"jpg".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lossless", "png":
		return Lossless, nil
	case "lossy", "jpeg", "jpg":
		return Lossy, nil
	}
	return 0, &ConfigError{Field: "format", Reason: fmt.Sprintf("unknown format %q", s)}
}

// Alpha is the alpha convention of a pixel surface.
type Alpha int

const (
	AlphaPremultiplied Alpha = iota
	AlphaStraight
)

func (a Alpha) String() string {
	if a == AlphaStraight {
		return "straight"
	}
	return "premultiplied"
}

// ParseAlpha accepts "premultiplied" (default) and "straight".
func ParseAlpha(s string) (Alpha, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "premultiplied", "premul":
		return AlphaPremultiplied, nil
	case "straight", "unpremultiplied":
		return AlphaStraight, nil
	}
	return 0, &ConfigError{Field: "alpha", Reason: fmt.Sprintf("unknown alpha mode %q", s)}
}

// Frame is one encoded capture. Data is a complete image; a Frame handed
// to a host is a private copy and may be retained.
type Frame struct {
	ID         string    `json:"id"`
	Cycle      uint64    `json:"cycle"` // lifecycle cycle that produced the frame
	URL        string    `json:"url"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Format     Format    `json:"format"`
	Data       []byte    `json:"data,omitempty"`
	Hash       string    `json:"hash"` // SHA-256 hex of Data
	CapturedAt time.Time `json:"captured_at"`

	// History position of the view at capture time. Both are false for
	// views that do not report history.
	CanGoBack    bool `json:"can_go_back"`
	CanGoForward bool `json:"can_go_forward"`
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	if f.Data != nil {
		f.Data = append([]byte(nil), f.Data...)
	}
	return f
}

// HashData returns the SHA-256 hex digest of encoded frame bytes.
func HashData(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
