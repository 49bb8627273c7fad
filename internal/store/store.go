// Package store defines persistence for scraped agencies, run history,
// and curated lists. Implementations live in subpackages; the scrape
// runner only sees the gateway subset it needs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agencyatlas/npidb-crawler/internal/scrape"
)

// ErrNotFound reports a missing list or agency.
var ErrNotFound = errors.New("not found")

// AgencyFilter narrows GetAgencies. Zero values match everything.
type AgencyFilter struct {
	State    string
	Location string
	NPI      string
	Partial  *bool
	Limit    int
	Offset   int
}

// RunFilter narrows GetRuns. Zero values match everything.
type RunFilter struct {
	State string
	Limit int
}

// List is a named collection of agencies.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes,omitempty"`
	Agencies  int       `json:"agencies"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists agencies, run logs, and lists. UpsertAgency keys on
// detail URL; a partial record never overwrites a full one, and missing
// sections never erase previously captured ones.
type Store interface {
	UpsertAgency(ctx context.Context, a scrape.Agency) error
	RecordRun(ctx context.Context, entry scrape.ScrapeLog) error
	GetAgencies(ctx context.Context, f AgencyFilter) ([]scrape.Agency, error)
	GetRuns(ctx context.Context, f RunFilter) ([]scrape.ScrapeLog, error)
	CreateList(ctx context.Context, name, notes string) (List, error)
	GetLists(ctx context.Context) ([]List, error)
	AddToList(ctx context.Context, listID string, npis []string) (int, error)
	GetListAgencies(ctx context.Context, listID string) ([]scrape.Agency, error)
	Close()
}
