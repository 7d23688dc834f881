package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/webtex/frame"
)

// Router fans out frames to all configured sinks. One sink error does not
// block the others; errors are logged and the first encountered is
// returned.
//
// Started, the router also accepts frames through Handle, which never
// blocks: frames queue for a delivery goroutine and, when the queue is
// full, the oldest queued frame is dropped.
type Router struct {
	sinks  []Sink
	logger *slog.Logger

	mu      sync.Mutex
	queue   chan frame.Frame
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, f frame.Frame) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, f); err != nil {
			r.logger.Warn("sink: send frame failed", "frame", f.ID, "cycle", f.Cycle, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Start runs the delivery goroutine with room for size queued frames.
// Deliveries use ctx. Calling Start twice is a no-op.
func (r *Router) Start(ctx context.Context, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue != nil {
		return
	}
	if size <= 0 {
		size = 1
	}
	r.queue = make(chan frame.Frame, size)
	q := r.queue
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for f := range q {
			r.Send(ctx, f)
		}
	}()
}

// Handle queues f for delivery. It has the bridge frame-callback
// signature. Frames handed to a router that is not started are dropped.
func (r *Router) Handle(f frame.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue == nil {
		r.dropped.Add(1)
		return
	}
	for {
		select {
		case r.queue <- f:
			return
		default:
		}
		select {
		case old := <-r.queue:
			r.dropped.Add(1)
			r.logger.Debug("sink: queue full, dropping frame", "frame", old.ID, "cycle", old.Cycle)
		default:
		}
	}
}

// Dropped returns how many frames Handle discarded.
func (r *Router) Dropped() int64 { return r.dropped.Load() }

// Close drains queued frames, stops the delivery goroutine and closes
// every sink.
func (r *Router) Close() error {
	r.mu.Lock()
	q := r.queue
	r.queue = nil
	r.mu.Unlock()
	if q != nil {
		close(q)
		r.wg.Wait()
	}

	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
