// Package lifecycle decides when a navigation has produced a page worth
// capturing.
//
// The Monitor is a per-bridge state machine:
//
//	Idle      --LoadRequested-->  Loading   (redirect flag cleared)
//	Loading   --RedirectObserved-> Loading  (redirect flag set)
//	Loading   --LoadFinished----> Idle      if redirected (capture deferred)
//	                              Capturing otherwise
//	Capturing --CaptureDone-----> Idle      (or Capturing if a recapture is due)
//
// A redirect never blocks navigation; it only defers capture until the next
// clean LoadFinished. A clean LoadFinished that arrives while a capture is
// running asks for one more capture of the same cycle once the current one
// is done. A new LoadRequested in any state restarts the cycle.
package lifecycle

import "fmt"

// State of the monitor.
type State int

const (
	Idle State = iota
	Loading
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Capturing:
		return "capturing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Action is what the caller must do after feeding an event.
type Action int

const (
	ActionNone    Action = iota
	ActionCapture        // rasterise and encode now
	ActionFail           // report a navigation error, no capture
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCapture:
		return "capture"
	case ActionFail:
		return "fail"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decision is the outcome of one event.
type Decision struct {
	Action Action
	Cycle  uint64
}

// Monitor tracks one navigation cycle at a time. It is not safe for
// concurrent use; the bridge feeds it from a single goroutine.
type Monitor struct {
	state      State
	redirected bool
	cycle      uint64 // 0 until the first LoadRequested
	again      bool   // a clean finish arrived while Capturing
}

// New returns an Idle monitor with no open cycle.
func New() *Monitor {
	return &Monitor{}
}

func (m *Monitor) State() State     { return m.state }
func (m *Monitor) Cycle() uint64    { return m.cycle }
func (m *Monitor) Redirected() bool { return m.redirected }
func (m *Monitor) open() bool       { return m.cycle != 0 }
func (m *Monitor) none() Decision   { return Decision{Action: ActionNone, Cycle: m.cycle} }

// LoadRequested starts cycle, aborting whatever was in flight.
func (m *Monitor) LoadRequested(cycle uint64) Decision {
	m.cycle = cycle
	m.state = Loading
	m.redirected = false
	m.again = false
	return m.none()
}

// LoadStarted records that a new main document has committed. The redirect
// that led here, if any, has been followed. While Capturing the running
// capture is left to complete, but a recapture queued for the previous
// document is withdrawn.
func (m *Monitor) LoadStarted() Decision {
	if !m.open() {
		return m.none()
	}
	m.redirected = false
	if m.state == Capturing {
		m.again = false
		return m.none()
	}
	m.state = Loading
	return m.none()
}

// RedirectObserved marks the current load as superseded by a redirect or a
// page-initiated navigation request.
func (m *Monitor) RedirectObserved() Decision {
	if !m.open() {
		return m.none()
	}
	m.redirected = true
	m.again = false
	if m.state == Idle {
		m.state = Loading
	}
	return m.none()
}

// LoadFinished asks for a capture unless the finished load was redirected.
// While Capturing, a clean finish asks for a recapture that the caller runs
// after the current one.
func (m *Monitor) LoadFinished() Decision {
	if !m.open() {
		return m.none()
	}
	if m.redirected {
		if m.state != Capturing {
			m.state = Idle
		}
		m.redirected = false
		return m.none()
	}
	if m.state == Capturing {
		m.again = true
	}
	m.state = Capturing
	return Decision{Action: ActionCapture, Cycle: m.cycle}
}

// LoadFailed abandons the current load.
func (m *Monitor) LoadFailed() Decision {
	if !m.open() {
		return m.none()
	}
	m.state = Idle
	m.redirected = false
	m.again = false
	return Decision{Action: ActionFail, Cycle: m.cycle}
}

// CaptureDone closes the capture for cycle and clears the redirect flag.
// If a recapture is due the monitor stays Capturing for it. Completions of
// older cycles are ignored.
func (m *Monitor) CaptureDone(cycle uint64) {
	if m.state != Capturing || cycle != m.cycle {
		return
	}
	m.redirected = false
	if m.again {
		m.again = false
		return
	}
	m.state = Idle
}

// Recapture reports whether a recapture of the current cycle is due.
func (m *Monitor) Recapture() bool { return m.again }
