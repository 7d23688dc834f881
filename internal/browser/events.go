package browser

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/webtex/capture"
)

// errorPagePrefix is the URL Chrome commits when it shows its own error
// page after a failed navigation.
const errorPagePrefix = "chrome-error://"

// eventMapper turns CDP events of one page into capture.Listener calls:
//
//	Page.frameNavigated (main frame)         → OnLoadStarted
//	Page.frameRequestedNavigation (main)     → OnRedirect
//	Page.loadEventFired                      → OnLoadFinished
//	Network.loadingFailed (main document)    → OnLoadFailed
//
// Server-side 3xx redirects complete before the document commits and are
// only logged. Chrome error pages never produce a finish. Between a host
// navigation and the commit of its document, load events and navigation
// requests still belong to the old document and are dropped.
type eventMapper struct {
	logger *slog.Logger

	mu        sync.Mutex
	listener  capture.Listener
	mainFrame proto.PageFrameID
	url       string
	docs      map[proto.NetworkRequestID]string // main-frame document requests in flight
	errorPage bool
	pending   bool   // host navigation issued, document not committed yet
	gen       uint64 // bumped on each host navigation
	failedGen uint64 // gen that already reported a failure
}

func newEventMapper(mainFrame proto.PageFrameID, logger *slog.Logger) *eventMapper {
	return &eventMapper{
		logger:    logger,
		mainFrame: mainFrame,
		docs:      make(map[proto.NetworkRequestID]string),
		gen:       1,
	}
}

func (m *eventMapper) subscribe(l capture.Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// begin marks the start of a host-issued navigation and returns its
// generation.
func (m *eventMapper) begin(url string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.pending = true
	if url != "" {
		m.url = url
	}
	m.docs = make(map[proto.NetworkRequestID]string)
	return m.gen
}

func (m *eventMapper) currentURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

func (m *eventMapper) frameNavigated(e *proto.PageFrameNavigated) {
	if e.Frame == nil || e.Frame.ParentID != "" {
		return
	}
	m.mu.Lock()
	if m.mainFrame == "" {
		m.mainFrame = e.Frame.ID
	}
	m.pending = false
	m.errorPage = strings.HasPrefix(e.Frame.URL, errorPagePrefix)
	if m.errorPage {
		m.mu.Unlock()
		m.logger.Debug("browser: error page committed", "url", m.currentURL())
		return
	}
	m.url = e.Frame.URL
	l := m.listener
	m.mu.Unlock()

	if l != nil {
		l.OnLoadStarted(e.Frame.URL)
	}
}

func (m *eventMapper) navigationRequested(e *proto.PageFrameRequestedNavigation) {
	m.mu.Lock()
	if e.FrameID != m.mainFrame || m.pending {
		m.mu.Unlock()
		return
	}
	from, l := m.url, m.listener
	m.mu.Unlock()

	m.logger.Debug("browser: page-initiated navigation", "from", from, "to", e.URL, "reason", e.Reason)
	if l != nil {
		l.OnRedirect(from, e.URL)
	}
}

func (m *eventMapper) loadEventFired(*proto.PageLoadEventFired) {
	m.mu.Lock()
	if m.errorPage || m.pending {
		m.mu.Unlock()
		return
	}
	url, l := m.url, m.listener
	m.mu.Unlock()

	if l != nil {
		l.OnLoadFinished(url)
	}
}

func (m *eventMapper) requestWillBeSent(e *proto.NetworkRequestWillBeSent) {
	if e.Type != proto.NetworkResourceTypeDocument || e.Request == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.FrameID != m.mainFrame {
		return
	}
	if e.RedirectResponse != nil {
		m.logger.Debug("browser: server redirect",
			"from", m.docs[e.RequestID], "to", e.Request.URL, "status", e.RedirectResponse.Status)
	}
	m.docs[e.RequestID] = e.Request.URL
}

func (m *eventMapper) loadingFinished(e *proto.NetworkLoadingFinished) {
	m.mu.Lock()
	delete(m.docs, e.RequestID)
	m.mu.Unlock()
}

func (m *eventMapper) loadingFailed(e *proto.NetworkLoadingFailed) {
	m.mu.Lock()
	url, ok := m.docs[e.RequestID]
	delete(m.docs, e.RequestID)
	m.mu.Unlock()
	if !ok || e.Canceled || isAbort(e.ErrorText) {
		return
	}
	m.fail(0, url, errors.New(e.ErrorText))
}

// navigateFailed reports an error returned by Page.navigate for generation
// gen. Failures of superseded navigations are dropped.
func (m *eventMapper) navigateFailed(gen uint64, url string, err error) {
	if isAbort(err.Error()) {
		return
	}
	m.fail(gen, url, err)
}

// fail reports at most one failure per navigation generation. gen 0 means
// the current one.
func (m *eventMapper) fail(gen uint64, url string, err error) {
	m.mu.Lock()
	if gen == 0 {
		gen = m.gen
	}
	if gen != m.gen || m.failedGen == gen {
		m.mu.Unlock()
		return
	}
	m.failedGen = gen
	if url == "" {
		url = m.url
	}
	l := m.listener
	m.mu.Unlock()

	if l != nil {
		l.OnLoadFailed(url, err)
	}
}

func isAbort(text string) bool {
	return strings.Contains(text, "ERR_ABORTED")
}
