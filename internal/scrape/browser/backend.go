package browser

import (
	"context"
	"errors"
)

// ErrProcessClosed is returned by a Process whose browser is no longer running.
// Its message matches the process-lost phrase list.
var ErrProcessClosed = errors.New("browser has been closed")

// Launcher starts browser processes
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// Process is one running browser. Tabs opened from it die with it.
type Process interface {
	// NewTab opens a blank page in this process
	NewTab(ctx context.Context) (Tab, error)
	// Version returns the product string reported by the browser, if known
	Version() string
	// Close terminates the process. Safe to call more than once.
	Close() error
}

// Tab is one open page. A Tab is used by a single goroutine at a time;
// Close may be called concurrently with an in-flight operation.
type Tab interface {
	// Navigate loads url and returns once the navigation has committed and the load event fired
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until an element matching selector exists in the DOM
	WaitReady(ctx context.Context, selector string) error
	// Evaluate runs script in the page and returns its result, which must be a string
	Evaluate(ctx context.Context, script string) (string, error)
	// Ping is a cheap liveness probe
	Ping(ctx context.Context) error
	// Close closes the page. Safe to call more than once.
	Close() error
}
