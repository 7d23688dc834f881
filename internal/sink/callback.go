package sink

import (
	"context"

	"github.com/hazyhaar/webtex/frame"
)

// Func is called for each frame, in process, without serialisation.
type Func func(ctx context.Context, f frame.Frame) error

// Callback adapts a Func to Sink.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn Func) *Callback { return &Callback{fn: fn} }

func (c *Callback) Send(ctx context.Context, f frame.Frame) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, f)
}

func (c *Callback) Close() error { return nil }
