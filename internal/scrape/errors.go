package scrape

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors classifying pipeline failures. Callers match with
// errors.Is; wrapped messages carry the step and jurisdiction context.
var (
	// ErrInvalidQuery means the query failed validation before any I/O.
	ErrInvalidQuery = errors.New("invalid jurisdiction query")
	// ErrBlockedByDefense means a bot-defense challenge page was served.
	ErrBlockedByDefense = errors.New("blocked by site defense")
	// ErrNavigationTimeout means a navigation step exceeded its deadline.
	ErrNavigationTimeout = errors.New("navigation timed out")
	// ErrSelectorNotFound means the page loaded but its structure was not
	// recognized by any matcher cascade.
	ErrSelectorNotFound = errors.New("page structure not recognized")
	// ErrFatalSession means the browser session or its process failed;
	// a batch stops dispatching when it sees this.
	ErrFatalSession = errors.New("browser session failed")
)

// IsRetryable reports whether a step may be attempted once more.
// Challenges repeat deterministically within a session and are never
// retried; context cancellation always wins.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrBlockedByDefense) || errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, ErrSelectorNotFound) || errors.Is(err, ErrFatalSession) {
		return false
	}
	if errors.Is(err, ErrNavigationTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsFatal reports whether the error must terminate a whole batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalSession)
}
