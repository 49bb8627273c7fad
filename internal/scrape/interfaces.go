package scrape

import (
	"context"
	"time"
)

// AgencyGateway persists assembled records and run logs. Both methods
// are optional in the runner: a nil gateway disables persistence.
type AgencyGateway interface {
	UpsertAgency(ctx context.Context, agency Agency) error
	RecordRun(ctx context.Context, log ScrapeLog) error
}

// SnapshotStore archives raw page HTML and returns a URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// JurisdictionRunner executes one jurisdiction run. The batch
// orchestrator consumes this so tests can script outcomes.
type JurisdictionRunner interface {
	RunJurisdiction(ctx context.Context, query JurisdictionQuery) JurisdictionResult
}

// ChallengePredicate decides whether a fetched page is a bot-defense
// challenge rather than real content. Pluggable so detection can track
// the site without touching the navigator.
type ChallengePredicate func(title, html string) bool

// Hasher computes digests for snapshot naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
