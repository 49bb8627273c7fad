package postgres

// Schema creates the tables and indexes the store expects. Statements
// are idempotent so EnsureSchema can run on every boot.
const Schema = `
CREATE TABLE IF NOT EXISTS agencies (
	id BIGSERIAL PRIMARY KEY,
	npi TEXT,
	detail_url TEXT NOT NULL UNIQUE,
	provider_name TEXT NOT NULL DEFAULT '',
	agency_name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	enumeration_date TEXT NOT NULL DEFAULT '',
	source_state TEXT NOT NULL DEFAULT '',
	source_location TEXT NOT NULL DEFAULT '',
	partial BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_agencies_npi ON agencies (npi);
CREATE INDEX IF NOT EXISTS idx_agencies_jurisdiction ON agencies (source_state, source_location);

CREATE TABLE IF NOT EXISTS agency_addresses (
	agency_id BIGINT PRIMARY KEY REFERENCES agencies(id) ON DELETE CASCADE,
	street TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	zip TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS agency_officials (
	agency_id BIGINT PRIMARY KEY REFERENCES agencies(id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scrape_logs (
	run_id TEXT PRIMARY KEY,
	state TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT '',
	agencies_found INT NOT NULL DEFAULT 0,
	pages_visited INT NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	error_text TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_scrape_logs_started ON scrape_logs (started_at DESC);

CREATE TABLE IF NOT EXISTS lists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS list_agencies (
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	agency_id BIGINT NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
	added_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (list_id, agency_id)
);
`
