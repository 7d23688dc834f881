// Package payload holds the most recently captured frame.
//
// A Payload has one writer (the bridge pipeline) and any number of readers.
// Set swaps the whole frame atomically, so a reader observes either the
// previous frame or the new one, never a mix.
package payload

import (
	"sync/atomic"

	"github.com/hazyhaar/webtex/frame"
)

// Payload is the last-write-wins frame holder.
type Payload struct {
	cur     atomic.Pointer[frame.Frame]
	version atomic.Uint64
}

// New returns an empty Payload.
func New() *Payload {
	return &Payload{}
}

// Set replaces the held frame with a private copy of f.
func (p *Payload) Set(f frame.Frame) {
	c := f.Clone()
	p.cur.Store(&c)
	p.version.Add(1)
}

// Get returns a copy of the current encoded bytes, nil before the first Set.
func (p *Payload) Get() []byte {
	f := p.cur.Load()
	if f == nil {
		return nil
	}
	return append([]byte(nil), f.Data...)
}

// Frame returns a copy of the current frame.
func (p *Payload) Frame() (frame.Frame, bool) {
	f := p.cur.Load()
	if f == nil {
		return frame.Frame{}, false
	}
	return f.Clone(), true
}

// Version counts the Set calls so far.
func (p *Payload) Version() uint64 {
	return p.version.Load()
}
