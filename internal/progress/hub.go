package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Options controls buffering and batching for the Hub.
type Options struct {
	// Buffer is the internal channel capacity (default 1024).
	Buffer int
	// BatchSize flushes once this many events queue (default 256).
	BatchSize int
	// FlushEvery flushes small batches on a cadence (default 500ms).
	FlushEvery time.Duration
	// SinkTimeout bounds each sink call during a flush (default 5s).
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

const dropWarnEvery = 5 * time.Second

// Hub fans progress events out to registered sinks. Emit never blocks
// the caller: when the buffer is full events are dropped and counted.
type Hub struct {
	opts   Options
	sinks  []Sink
	events chan Event
	stop   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	dropped  atomic.Int64
	lastWarn atomic.Int64
	closed   atomic.Bool

	closeOnce sync.Once
}

// NewHub starts the background batching goroutine over the supplied
// sinks. The hub accepts events immediately.
func NewHub(opts Options, sinks ...Sink) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 500 * time.Millisecond
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		opts:   opts,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, opts.Buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
	go h.loop()
	return h
}

// Emit enqueues an event for batching. Invalid events are discarded;
// a full buffer drops the event and logs a rate-limited warning.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		now := time.Now().UnixNano()
		last := h.lastWarn.Load()
		if now-last >= dropWarnEvery.Nanoseconds() && h.lastWarn.CompareAndSwap(last, now) {
			h.logger.Warn("progress events dropped due to backpressure",
				zap.Int64("dropped", h.dropped.Swap(0)))
		}
	}
}

// Close drains queued events, flushes the sinks, and blocks until the
// background goroutine exits or ctx ends. Safe to call more than once.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	batch := make([]Event, 0, h.opts.BatchSize)
	ticker := time.NewTicker(h.opts.FlushEvery)
	defer ticker.Stop()
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.opts.BatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stop:
			h.drain(batch)
			return
		}
	}
}

// drain empties the buffer after stop, flushes the tail, and closes
// every sink.
func (h *Hub) drain(batch []Event) {
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.opts.BatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			closeCtx, cancel := context.WithTimeout(context.Background(), h.opts.SinkTimeout)
			defer cancel()
			for _, sink := range h.sinks {
				if sink == nil {
					continue
				}
				if err := sink.Close(closeCtx); err != nil {
					h.logger.Warn("progress sink close failed", zap.Error(err))
				}
			}
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	snapshot := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.SinkTimeout)
		if err := sink.Consume(ctx, snapshot); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}
