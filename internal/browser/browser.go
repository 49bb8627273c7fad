// Package browser defines the page-session contract the scrape pipeline
// drives. Implementations live in subpackages: headless (chromedp), static
// (resty with a browser-shaped transport), and collysession.
package browser

import (
	"context"
	"errors"
)

// ErrScriptUnsupported is returned by Evaluate on sessions that cannot
// execute JavaScript.
var ErrScriptUnsupported = errors.New("session cannot execute scripts")

// Session is a stateful view of the target site. One session serves one
// jurisdiction run; sessions are never shared between runs.
type Session interface {
	// Navigate loads url and blocks until the document is ready or ctx ends.
	Navigate(ctx context.Context, url string) error
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// HTML returns the current document serialized as HTML.
	HTML(ctx context.Context) (string, error)
	// Evaluate runs js in the page, or returns ErrScriptUnsupported.
	Evaluate(ctx context.Context, js string) error
	Close() error
}

// SessionFactory creates isolated sessions. Factories own shared process
// state (a browser allocator, a host rate limiter) and must be closed.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}
