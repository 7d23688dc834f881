// Package sink delivers captured frames to host-side backends: stdout,
// a webhook, a diagnostic dump file or an in-process function.
package sink

import (
	"context"

	"github.com/hazyhaar/webtex/frame"
)

// Sink receives delivered frames. Implementations own nothing in f; the
// frame is already a private copy.
type Sink interface {
	Send(ctx context.Context, f frame.Frame) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
