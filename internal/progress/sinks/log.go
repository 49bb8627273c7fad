package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/progress"
)

// LogSink emits structured logs for run progress streams. Useful during
// development and audits where no durable consumer is attached.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("run progress",
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("state", evt.State),
			zap.String("location", evt.Location),
			zap.String("method", evt.Method),
			zap.Int("page", evt.Page),
			zap.Int("agencies", evt.Agencies),
			zap.String("error", evt.Err),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
