package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PageArchiver stores raw page HTML content-addressed by digest.
// Archival is best effort: failures are logged, never surfaced, and a
// nil archiver or store turns the whole thing off.
type PageArchiver struct {
	store  SnapshotStore
	hasher Hasher
	clock  Clock
	logger *zap.Logger
}

func NewPageArchiver(store SnapshotStore, hasher Hasher, clock Clock, logger *zap.Logger) *PageArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageArchiver{store: store, hasher: hasher, clock: clock, logger: logger}
}

func (a *PageArchiver) save(ctx context.Context, kind, html string) {
	if a == nil || a.store == nil || a.hasher == nil || html == "" {
		return
	}
	digest, err := a.hasher.Hash([]byte(html))
	if err != nil {
		a.logger.Warn("snapshot digest failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("pages/%s/%s/%s.html",
		a.clock.Now().UTC().Format("2006-01-02"), kind, digest)
	if _, err := a.store.PutObject(ctx, path, "text/html", []byte(html)); err != nil {
		a.logger.Warn("snapshot write failed", zap.String("path", path), zap.Error(err))
	}
}
