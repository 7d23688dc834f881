package frame

import (
	"errors"
	"fmt"
)

// Error classes. Match with errors.Is.
var (
	// ErrConfiguration is fatal to setup: bad dimensions, missing callback,
	// bridge not started.
	ErrConfiguration = errors.New("frame: configuration error")

	// ErrTransientCapture means one cycle produced no frame. The pipeline
	// stays usable for the next cycle.
	ErrTransientCapture = errors.New("frame: transient capture failure")

	// ErrNavigation is a load failure reported by the rendering surface.
	ErrNavigation = errors.New("frame: navigation error")
)

// ConfigError reports an invalid setup value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("frame: configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Capture stages reported by CaptureError.
const (
	StageViewport   = "viewport"
	StagePaint      = "paint"
	StageEncode     = "encode"
	StageSuperseded = "superseded"
)

// CaptureError is a skipped capture. It never crosses the host boundary
// except through logs.
type CaptureError struct {
	Cycle uint64
	Stage string
	Err   error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("frame: capture cycle %d: %s", e.Cycle, e.Stage)
	}
	return fmt.Sprintf("frame: capture cycle %d: %s: %v", e.Cycle, e.Stage, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

func (e *CaptureError) Is(target error) bool { return target == ErrTransientCapture }

// NavigationError is a network or load failure for URL.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("frame: navigation %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

func (e *NavigationError) Is(target error) bool { return target == ErrNavigation }
