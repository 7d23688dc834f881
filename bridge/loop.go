package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/webtex/capture"
	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/lifecycle"
)

type cmdKind int

const (
	cmdLoad cmdKind = iota
	cmdReload
	cmdBack
	cmdForward
	cmdStop
	cmdScroll
)

func (k cmdKind) String() string {
	switch k {
	case cmdLoad:
		return "load"
	case cmdReload:
		return "reload"
	case cmdBack:
		return "back"
	case cmdForward:
		return "forward"
	case cmdStop:
		return "stop"
	case cmdScroll:
		return "scroll"
	}
	return fmt.Sprintf("cmd(%d)", int(k))
}

type command struct {
	kind  cmdKind
	cycle uint64
	url   string
	dy    int
}

// navOp is a command handed to the navigator goroutine. ctx is cancelled
// when a later command arrives.
type navOp struct {
	command
	doc    string // document of the cycle when issued
	ctx    context.Context
	cancel context.CancelFunc
	run    func(ctx context.Context) error
}

var errNavQueueFull = errors.New("bridge: navigation queue full")

type eventKind int

const (
	evStarted eventKind = iota
	evFinished
	evRedirect
	evFailed
	evScrolled
)

type viewEvent struct {
	kind  eventKind
	cycle uint64 // set by the navigator; 0 for view callbacks
	url   string
	to    string
	err   error
}

type job struct {
	cycle uint64
	url   string
}

type result struct {
	job
	frame frame.Frame
	err   error
}

// listener forwards view callbacks to the loop. Callbacks may come from
// any goroutine; after Close they are discarded.
func (b *Bridge) listener() capture.Listener {
	push := b.push
	return capture.ListenerFuncs{
		Started:  func(url string) { push(viewEvent{kind: evStarted, url: url}) },
		Finished: func(url string) { push(viewEvent{kind: evFinished, url: url}) },
		Redirect: func(from, to string) { push(viewEvent{kind: evRedirect, url: from, to: to}) },
		Failed:   func(url string, err error) { push(viewEvent{kind: evFailed, url: url, err: err}) },
	}
}

func (b *Bridge) push(ev viewEvent) {
	select {
	case b.events <- ev:
	case <-b.ctx.Done():
	}
}

// navigator runs view commands one at a time, off the loop. A command
// superseded before it starts is skipped; one superseded while running
// has its context cancelled and its error discarded.
func (b *Bridge) navigator(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-b.navs:
			b.runNav(ctx, op)
		}
	}
}

func (b *Bridge) runNav(ctx context.Context, op navOp) {
	defer op.cancel()
	if op.ctx.Err() != nil {
		b.logger.Debug("bridge: navigation skipped", "command", op.kind.String(), "cycle", op.cycle)
		return
	}
	err := op.run(op.ctx)
	switch {
	case err == nil:
		if op.kind == cmdScroll {
			b.push(viewEvent{kind: evScrolled, cycle: op.cycle, url: op.doc})
		}
	case ctx.Err() != nil:
	case errors.Is(op.ctx.Err(), context.Canceled):
		b.logger.Debug("bridge: navigation superseded", "command", op.kind.String(), "cycle", op.cycle, "error", err)
	case op.kind == cmdStop:
		b.logger.Warn("bridge: stop failed", "error", err)
	default:
		b.push(viewEvent{kind: evFailed, cycle: op.cycle, url: op.doc, err: err})
	}
}

// worker runs captures one at a time.
func (b *Bridge) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-b.jobs:
			f, err := b.renderer.Capture(ctx, b.view, j.cycle, j.url)
			select {
			case b.results <- result{job: j, frame: f, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// pipeline is the loop goroutine's state. Nothing here is touched from
// another goroutine.
type pipeline struct {
	*Bridge
	url       string // document of the open cycle
	inflight  *job
	pending   *job
	navCancel context.CancelFunc // last command handed to the navigator
	stats     Status
}

func (p *pipeline) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("bridge: stopped", "cycle", p.monitor.Cycle())
			return
		case c := <-p.cmds:
			p.command(c)
		case ev := <-p.events:
			p.event(ev)
		case r := <-p.results:
			p.result(r)
		}
		p.publish()
	}
}

func (p *pipeline) command(c command) {
	nav, _ := p.view.(capture.Navigator)
	if c.kind != cmdStop {
		if p.inflight != nil {
			p.logger.Debug("bridge: superseding capture", "cycle", p.inflight.cycle, "by", c.cycle)
		}
		p.monitor.LoadRequested(c.cycle)
		p.pending = nil
		if c.url != "" {
			p.url = c.url
		}
		p.logger.Info("bridge: "+c.kind.String(), "cycle", c.cycle, "url", p.url)
		p.record(Event{Kind: EventLoad, Cycle: c.cycle, URL: p.url})
	}

	op := navOp{command: c, doc: p.url}
	switch c.kind {
	case cmdLoad:
		op.run = func(ctx context.Context) error { return p.view.LoadURL(ctx, c.url) }
	case cmdReload:
		op.run = nav.Reload
	case cmdBack:
		op.run = nav.Back
	case cmdForward:
		op.run = nav.Forward
	case cmdStop:
		op.run = nav.Stop
	case cmdScroll:
		op.run = func(ctx context.Context) error { return nav.Scroll(ctx, c.dy) }
	}
	p.dispatch(op)
}

// dispatch cancels the previous command and queues op for the navigator.
func (p *pipeline) dispatch(op navOp) {
	if p.navCancel != nil {
		p.navCancel()
	}
	op.ctx, op.cancel = context.WithTimeout(p.ctx, p.navTimeout)
	p.navCancel = op.cancel
	select {
	case p.navs <- op:
	default:
		op.cancel()
		p.logger.Warn("bridge: navigation dropped", "command", op.kind.String(), "cycle", op.cycle)
		if op.kind != cmdStop {
			p.failed(op.doc, errNavQueueFull)
		}
	}
}

func (p *pipeline) event(ev viewEvent) {
	switch ev.kind {
	case evStarted:
		p.monitor.LoadStarted()
		if p.monitor.State() != lifecycle.Idle && ev.url != "" {
			p.url = ev.url
		}
		p.dropWithdrawn()

	case evRedirect:
		p.monitor.RedirectObserved()
		if p.monitor.State() != lifecycle.Idle && ev.to != "" {
			p.url = ev.to
		}
		p.dropWithdrawn()
		p.logger.Debug("bridge: redirect", "cycle", p.monitor.Cycle(), "from", ev.url, "to", ev.to)

	case evFinished:
		p.finished(ev.url)

	case evScrolled:
		if ev.cycle != p.monitor.Cycle() {
			return
		}
		p.finished("")

	case evFailed:
		if ev.cycle != 0 && ev.cycle != p.monitor.Cycle() {
			p.logger.Debug("bridge: stale navigation error", "cycle", ev.cycle, "error", ev.err)
			return
		}
		p.failed(ev.url, ev.err)
	}
}

func (p *pipeline) finished(url string) {
	wasRedirected := p.monitor.Redirected()
	d := p.monitor.LoadFinished()
	switch {
	case d.Action == lifecycle.ActionCapture:
		if url != "" {
			p.url = url
		}
		p.capture(job{cycle: d.Cycle, url: p.url})
	case wasRedirected && !p.monitor.Redirected():
		p.stats.Suppressed++
		p.logger.Debug("bridge: capture deferred after redirect", "cycle", d.Cycle, "url", url)
		p.record(Event{Kind: EventSuppressed, Cycle: d.Cycle, URL: url})
	}
}

func (p *pipeline) capture(j job) {
	if p.inflight != nil {
		if p.pending != nil {
			p.logger.Debug("bridge: coalescing capture", "cycle", j.cycle, "replaces", p.pending.cycle)
		}
		p.pending = &j
		return
	}
	p.inflight = &j
	p.jobs <- j
}

// dropWithdrawn discards a queued recapture the monitor no longer wants:
// the document it was meant for has been left.
func (p *pipeline) dropWithdrawn() {
	if p.pending != nil && !p.monitor.Recapture() {
		p.logger.Debug("bridge: recapture withdrawn", "cycle", p.pending.cycle)
		p.pending = nil
	}
}

func (p *pipeline) result(r result) {
	p.inflight = nil
	current := p.monitor.Cycle()
	p.monitor.CaptureDone(r.cycle)

	switch {
	case r.cycle != current:
		err := &frame.CaptureError{Cycle: r.cycle, Stage: frame.StageSuperseded, Err: r.err}
		p.stats.Stale++
		p.logger.Info("bridge: dropped stale capture", "cycle", r.cycle, "current", current)
		p.record(Event{Kind: EventStale, Cycle: r.cycle, URL: r.url, Err: err.Error()})
	case r.err != nil:
		p.stats.Skipped++
		p.stats.LastError = r.err.Error()
		p.record(Event{Kind: EventSkipped, Cycle: r.cycle, URL: r.url, Err: r.err.Error()})
	default:
		p.deliver(r.frame)
	}

	if p.pending != nil {
		j := *p.pending
		p.pending = nil
		if j.cycle == p.monitor.Cycle() {
			p.capture(j)
		}
	}
}

func (p *pipeline) deliver(f frame.Frame) {
	p.payload.Set(f)
	p.stats.Frames++
	p.stats.LastFrameID = f.ID
	p.stats.LastError = ""
	p.record(Event{Kind: EventFrame, Cycle: f.Cycle, URL: f.URL, FrameID: f.ID, Bytes: len(f.Data)})
	p.logger.Info("bridge: frame delivered", "cycle", f.Cycle, "id", f.ID, "url", f.URL, "bytes", len(f.Data))

	onFrame, _ := p.handlers()
	if onFrame == nil {
		p.logger.Warn("bridge: no frame callback, payload updated only", "cycle", f.Cycle)
		return
	}
	p.call("frame", func() { onFrame(f) })
}

func (p *pipeline) failed(url string, err error) {
	d := p.monitor.LoadFailed()
	if d.Action != lifecycle.ActionFail {
		p.logger.Debug("bridge: load failure outside a cycle", "url", url, "error", err)
		return
	}
	nerr := &frame.NavigationError{URL: url, Err: err}
	p.stats.Failures++
	p.stats.LastError = nerr.Error()
	p.logger.Warn("bridge: load failed", "cycle", d.Cycle, "url", url, "error", err)
	p.record(Event{Kind: EventFailed, Cycle: d.Cycle, URL: url, Err: nerr.Error()})

	if _, onFailure := p.handlers(); onFailure != nil {
		p.call("failure", func() { onFailure(nerr) })
	}
}

// call runs a host callback. A panicking host never takes the pipeline
// down.
func (p *pipeline) call(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("bridge: callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

func (p *pipeline) record(ev Event) {
	if p.recorder == nil {
		return
	}
	ev.At = p.now()
	if err := p.recorder.Record(p.ctx, ev); err != nil {
		p.logger.Debug("bridge: frame log", "error", err)
	}
}

func (p *pipeline) publish() {
	s := p.stats
	s.Started = true
	s.State = p.monitor.State().String()
	s.Cycle = p.monitor.Cycle()
	s.URL = p.url
	s.Redirected = p.monitor.Redirected()
	s.CaptureInFlight = p.inflight != nil
	s.CapturePending = p.pending != nil
	s.Width = p.cfg.Width
	s.Height = p.cfg.Height
	s.Format = p.cfg.Format.String()
	p.status.Store(&s)
}
