// Package postgres provides the pgx-backed Store implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencyatlas/npidb-crawler/internal/scrape"
	"github.com/agencyatlas/npidb-crawler/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists agencies, run logs, and lists in Postgres.
type Store struct {
	pool dbPool
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertAgencySQL = `
INSERT INTO agencies (
	npi, detail_url, provider_name, agency_name, phone,
	enumeration_date, source_state, source_location, partial, scraped_at
) VALUES (
	NULLIF($1,''), $2, $3, $4, $5, $6, $7, $8, $9, NOW()
)
ON CONFLICT (detail_url) DO UPDATE SET
	npi = COALESCE(EXCLUDED.npi, agencies.npi),
	provider_name = EXCLUDED.provider_name,
	agency_name = EXCLUDED.agency_name,
	phone = EXCLUDED.phone,
	enumeration_date = EXCLUDED.enumeration_date,
	source_state = EXCLUDED.source_state,
	source_location = EXCLUDED.source_location,
	partial = EXCLUDED.partial,
	scraped_at = NOW()
WHERE NOT (EXCLUDED.partial AND NOT agencies.partial)
RETURNING id`

const upsertAddressSQL = `
INSERT INTO agency_addresses (agency_id, street, city, state, zip)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (agency_id) DO UPDATE SET
	street = EXCLUDED.street,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	zip = EXCLUDED.zip`

const upsertOfficialSQL = `
INSERT INTO agency_officials (agency_id, name, title)
VALUES ($1, $2, $3)
ON CONFLICT (agency_id) DO UPDATE SET
	name = EXCLUDED.name,
	title = EXCLUDED.title`

// UpsertAgency inserts or updates by detail URL. The conflict guard
// makes a partial record a no-op against an existing full one.
func (s *Store) UpsertAgency(ctx context.Context, a scrape.Agency) error {
	if a.DetailURL == "" {
		return fmt.Errorf("agency detail url is required")
	}
	var id int64
	err := s.pool.QueryRow(ctx, upsertAgencySQL,
		a.NPI,
		a.DetailURL,
		a.ProviderName,
		a.AgencyName,
		a.Phone,
		a.EnumerationDate,
		a.SourceState,
		a.SourceLocation,
		a.Partial,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Partial record skipped against a full row.
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert agency: %w", err)
	}
	if a.Address != nil {
		_, err = s.pool.Exec(ctx, upsertAddressSQL,
			id, a.Address.Street, a.Address.City, a.Address.State, a.Address.Zip)
		if err != nil {
			return fmt.Errorf("upsert address: %w", err)
		}
	}
	if a.Official != nil {
		_, err = s.pool.Exec(ctx, upsertOfficialSQL, id, a.Official.Name, a.Official.Title)
		if err != nil {
			return fmt.Errorf("upsert official: %w", err)
		}
	}
	return nil
}

const insertRunSQL = `
INSERT INTO scrape_logs (
	run_id, state, location, method, agencies_found,
	pages_visited, started_at, completed_at, error_text
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id) DO NOTHING`

// RecordRun inserts a run log entry.
func (s *Store) RecordRun(ctx context.Context, entry scrape.ScrapeLog) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.pool.Exec(ctx, insertRunSQL,
		entry.RunID,
		entry.State,
		entry.Location,
		entry.Method,
		entry.AgenciesFound,
		entry.PagesVisited,
		entry.StartedAt,
		entry.CompletedAt,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectAgenciesSQL = `
SELECT
	COALESCE(a.npi, ''), a.provider_name, a.agency_name, a.phone,
	a.enumeration_date, a.detail_url, a.source_state, a.source_location, a.partial,
	ad.agency_id IS NOT NULL, COALESCE(ad.street,''), COALESCE(ad.city,''),
	COALESCE(ad.state,''), COALESCE(ad.zip,''),
	o.agency_id IS NOT NULL, COALESCE(o.name,''), COALESCE(o.title,'')
FROM agencies a
LEFT JOIN agency_addresses ad ON ad.agency_id = a.id
LEFT JOIN agency_officials o ON o.agency_id = a.id
WHERE ($1 = '' OR a.source_state = upper($1))
  AND ($2 = '' OR lower(a.source_location) = lower($2))
  AND ($3 = '' OR a.npi = $3)
  AND ($4::boolean IS NULL OR a.partial = $4)
ORDER BY a.id
LIMIT NULLIF($5, 0) OFFSET $6`

// GetAgencies returns agencies matching the filter.
func (s *Store) GetAgencies(ctx context.Context, f store.AgencyFilter) ([]scrape.Agency, error) {
	rows, err := s.pool.Query(ctx, selectAgenciesSQL,
		f.State, f.Location, f.NPI, f.Partial, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("select agencies: %w", err)
	}
	defer rows.Close()
	return scanAgencies(rows)
}

const selectRunsSQL = `
SELECT run_id, state, location, method, agencies_found,
	pages_visited, started_at, completed_at, error_text
FROM scrape_logs
WHERE ($1 = '' OR state = upper($1))
ORDER BY started_at DESC
LIMIT NULLIF($2, 0)`

// GetRuns returns run logs, most recent first.
func (s *Store) GetRuns(ctx context.Context, f store.RunFilter) ([]scrape.ScrapeLog, error) {
	rows, err := s.pool.Query(ctx, selectRunsSQL, f.State, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var out []scrape.ScrapeLog
	for rows.Next() {
		var entry scrape.ScrapeLog
		err := rows.Scan(
			&entry.RunID, &entry.State, &entry.Location, &entry.Method,
			&entry.AgenciesFound, &entry.PagesVisited,
			&entry.StartedAt, &entry.CompletedAt, &entry.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// CreateList registers a new named list.
func (s *Store) CreateList(ctx context.Context, name, notes string) (store.List, error) {
	if name == "" {
		return store.List{}, fmt.Errorf("list name is required")
	}
	list := store.List{
		ID:        uuid.NewString(),
		Name:      name,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lists (id, name, notes, created_at) VALUES ($1, $2, $3, $4)`,
		list.ID, list.Name, list.Notes, list.CreatedAt)
	if err != nil {
		return store.List{}, fmt.Errorf("insert list: %w", err)
	}
	return list, nil
}

const selectListsSQL = `
SELECT l.id, l.name, l.notes, l.created_at, COUNT(la.agency_id)
FROM lists l
LEFT JOIN list_agencies la ON la.list_id = l.id
GROUP BY l.id, l.name, l.notes, l.created_at
ORDER BY l.created_at`

// GetLists returns all lists with their member counts.
func (s *Store) GetLists(ctx context.Context) ([]store.List, error) {
	rows, err := s.pool.Query(ctx, selectListsSQL)
	if err != nil {
		return nil, fmt.Errorf("select lists: %w", err)
	}
	defer rows.Close()

	var out []store.List
	for rows.Next() {
		var list store.List
		if err := rows.Scan(&list.ID, &list.Name, &list.Notes, &list.CreatedAt, &list.Agencies); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return out, nil
}

const attachListSQL = `
INSERT INTO list_agencies (list_id, agency_id, added_at)
SELECT $1, a.id, NOW() FROM agencies a WHERE a.npi = ANY($2)
ON CONFLICT DO NOTHING`

// AddToList attaches known agencies by NPI and reports how many were added.
func (s *Store) AddToList(ctx context.Context, listID string, npis []string) (int, error) {
	if err := s.listExists(ctx, listID); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, attachListSQL, listID, npis)
	if err != nil {
		return 0, fmt.Errorf("attach agencies: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const selectListAgenciesSQL = `
SELECT
	COALESCE(a.npi, ''), a.provider_name, a.agency_name, a.phone,
	a.enumeration_date, a.detail_url, a.source_state, a.source_location, a.partial,
	ad.agency_id IS NOT NULL, COALESCE(ad.street,''), COALESCE(ad.city,''),
	COALESCE(ad.state,''), COALESCE(ad.zip,''),
	o.agency_id IS NOT NULL, COALESCE(o.name,''), COALESCE(o.title,'')
FROM list_agencies la
JOIN agencies a ON a.id = la.agency_id
LEFT JOIN agency_addresses ad ON ad.agency_id = a.id
LEFT JOIN agency_officials o ON o.agency_id = a.id
WHERE la.list_id = $1
ORDER BY a.id`

// GetListAgencies returns the agencies attached to a list.
func (s *Store) GetListAgencies(ctx context.Context, listID string) ([]scrape.Agency, error) {
	if err := s.listExists(ctx, listID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, selectListAgenciesSQL, listID)
	if err != nil {
		return nil, fmt.Errorf("select list agencies: %w", err)
	}
	defer rows.Close()
	return scanAgencies(rows)
}

func (s *Store) listExists(ctx context.Context, listID string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM lists WHERE id = $1`, listID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check list: %w", err)
	}
	return nil
}

func scanAgencies(rows pgx.Rows) ([]scrape.Agency, error) {
	var out []scrape.Agency
	for rows.Next() {
		var (
			a           scrape.Agency
			hasAddr     bool
			addr        scrape.Address
			hasOfficial bool
			official    scrape.Official
		)
		err := rows.Scan(
			&a.NPI, &a.ProviderName, &a.AgencyName, &a.Phone,
			&a.EnumerationDate, &a.DetailURL, &a.SourceState, &a.SourceLocation, &a.Partial,
			&hasAddr, &addr.Street, &addr.City, &addr.State, &addr.Zip,
			&hasOfficial, &official.Name, &official.Title,
		)
		if err != nil {
			return nil, fmt.Errorf("scan agency: %w", err)
		}
		if hasAddr {
			a.Address = &addr
		}
		if hasOfficial {
			a.Official = &official
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agencies: %w", err)
	}
	return out, nil
}
