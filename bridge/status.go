package bridge

import (
	"context"
	"time"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Started         bool   `json:"started"`
	State           string `json:"state"`
	Cycle           uint64 `json:"cycle"`
	URL             string `json:"url,omitempty"`
	Redirected      bool   `json:"redirected"`
	CaptureInFlight bool   `json:"capture_in_flight"`
	CapturePending  bool   `json:"capture_pending"` // recapture queued behind the one in flight
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Format          string `json:"format"`

	Frames      uint64 `json:"frames"`
	Suppressed  uint64 `json:"suppressed"` // finishes skipped because of a redirect
	Skipped     uint64 `json:"skipped"`    // transient capture failures
	Stale       uint64 `json:"stale"`      // captures dropped after a newer load
	Failures    uint64 `json:"failures"`   // navigation errors
	LastFrameID string `json:"last_frame_id,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// Event kinds passed to a Recorder.
const (
	EventLoad       = "load"
	EventFrame      = "frame"
	EventSuppressed = "suppressed"
	EventSkipped    = "skipped"
	EventStale      = "stale"
	EventFailed     = "failed"
)

// Event is one pipeline outcome.
type Event struct {
	Kind    string
	Cycle   uint64
	URL     string
	FrameID string
	Bytes   int
	Err     string
	At      time.Time
}

// Recorder receives pipeline events. Record is called on the pipeline
// goroutine and must not block.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event) error

func (f RecorderFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }
