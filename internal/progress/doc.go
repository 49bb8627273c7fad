// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the scrape runner uses to report per-run milestones. It
// batches events on a background goroutine and fans them out to pluggable
// sinks such as Prometheus collectors, structured logging, or a message
// publisher.
package progress
