package sinks

import (
	"context"
	"fmt"

	"github.com/agencyatlas/npidb-crawler/internal/progress"
)

// Publisher is the slice of a message publisher this sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublisherSink forwards event batches to a message topic so external
// consumers can follow runs without polling the store.
type PublisherSink struct {
	pub   Publisher
	topic string
}

// NewPublisherSink wires a publisher to the sink interface.
func NewPublisherSink(pub Publisher, topic string) *PublisherSink {
	if topic == "" {
		topic = "npidb.events"
	}
	return &PublisherSink{pub: pub, topic: topic}
}

// Consume publishes the batch as one message.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.pub == nil || len(batch) == 0 {
		return nil
	}
	if _, err := s.pub.Publish(ctx, s.topic, batch); err != nil {
		return fmt.Errorf("publish progress batch: %w", err)
	}
	return nil
}

// Close implements the Sink interface; the publisher is owned elsewhere.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
