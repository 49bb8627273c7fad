// Package memory provides an in-memory Store for development/testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agencyatlas/npidb-crawler/internal/scrape"
	"github.com/agencyatlas/npidb-crawler/internal/store"
)

// Store keeps agencies keyed by detail URL in insertion order.
type Store struct {
	mu       sync.RWMutex
	agencies map[string]scrape.Agency
	order    []string
	runs     []scrape.ScrapeLog
	lists    map[string]store.List
	members  map[string]map[string]struct{}
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		agencies: make(map[string]scrape.Agency),
		lists:    make(map[string]store.List),
		members:  make(map[string]map[string]struct{}),
	}
}

// UpsertAgency inserts or replaces by detail URL. A partial record never
// overwrites a full one, and a record without an address or official
// keeps whatever was captured before.
func (s *Store) UpsertAgency(_ context.Context, a scrape.Agency) error {
	if a.DetailURL == "" {
		return fmt.Errorf("agency detail url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.agencies[a.DetailURL]
	if !ok {
		s.agencies[a.DetailURL] = cloneAgency(a)
		s.order = append(s.order, a.DetailURL)
		return nil
	}
	if a.Partial && !existing.Partial {
		return nil
	}
	merged := cloneAgency(a)
	if merged.Address == nil {
		merged.Address = existing.Address
	}
	if merged.Official == nil {
		merged.Official = existing.Official
	}
	if merged.NPI == "" {
		merged.NPI = existing.NPI
	}
	s.agencies[a.DetailURL] = merged
	return nil
}

// RecordRun appends a run log entry.
func (s *Store) RecordRun(_ context.Context, entry scrape.ScrapeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, entry)
	return nil
}

// GetAgencies returns agencies matching the filter in insertion order.
func (s *Store) GetAgencies(_ context.Context, f store.AgencyFilter) ([]scrape.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Agency, 0, len(s.order))
	skipped := 0
	for _, key := range s.order {
		a := s.agencies[key]
		if !matchAgency(a, f) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, cloneAgency(a))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// GetRuns returns run logs, most recent first.
func (s *Store) GetRuns(_ context.Context, f store.RunFilter) ([]scrape.ScrapeLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.ScrapeLog, 0, len(s.runs))
	for _, entry := range s.runs {
		if f.State != "" && !strings.EqualFold(entry.State, f.State) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CreateList registers a new named list.
func (s *Store) CreateList(_ context.Context, name, notes string) (store.List, error) {
	if name == "" {
		return store.List{}, fmt.Errorf("list name is required")
	}
	list := store.List{
		ID:        uuid.NewString(),
		Name:      name,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[list.ID] = list
	s.members[list.ID] = make(map[string]struct{})
	return list, nil
}

// GetLists returns all lists sorted by creation time.
func (s *Store) GetLists(_ context.Context) ([]store.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.List, 0, len(s.lists))
	for id, list := range s.lists {
		list.Agencies = len(s.members[id])
		out = append(out, list)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AddToList attaches known agencies by NPI and reports how many were added.
func (s *Store) AddToList(_ context.Context, listID string, npis []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[listID]; !ok {
		return 0, store.ErrNotFound
	}
	byNPI := make(map[string]string, len(s.order))
	for _, key := range s.order {
		if npi := s.agencies[key].NPI; npi != "" {
			byNPI[npi] = key
		}
	}
	added := 0
	for _, npi := range npis {
		key, ok := byNPI[npi]
		if !ok {
			continue
		}
		if _, dup := s.members[listID][key]; dup {
			continue
		}
		s.members[listID][key] = struct{}{}
		added++
	}
	return added, nil
}

// GetListAgencies returns the agencies attached to a list.
func (s *Store) GetListAgencies(_ context.Context, listID string) ([]scrape.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	membership, ok := s.members[listID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]scrape.Agency, 0, len(membership))
	for _, key := range s.order {
		if _, member := membership[key]; member {
			out = append(out, cloneAgency(s.agencies[key]))
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

func matchAgency(a scrape.Agency, f store.AgencyFilter) bool {
	if f.State != "" && !strings.EqualFold(a.SourceState, f.State) {
		return false
	}
	if f.Location != "" && !strings.EqualFold(a.SourceLocation, f.Location) {
		return false
	}
	if f.NPI != "" && a.NPI != f.NPI {
		return false
	}
	if f.Partial != nil && a.Partial != *f.Partial {
		return false
	}
	return true
}

func cloneAgency(a scrape.Agency) scrape.Agency {
	out := a
	if a.Address != nil {
		addr := *a.Address
		out.Address = &addr
	}
	if a.Official != nil {
		off := *a.Official
		out.Official = &off
	}
	return out
}
