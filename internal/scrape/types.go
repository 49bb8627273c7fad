// Package scrape turns NPIDB home-health listings into structured Agency
// records: resolve a {state, location} query to a listing URL, walk the
// paginated listing, visit each detail page, and assemble normalized
// records. Every stage runs under per-step timeouts with bounded retry.
package scrape

import (
	"time"
)

// Fetch methods a query may request. Headless drives a real browser;
// static uses plain HTTP with a browser-shaped transport; colly uses the
// collector engine. Empty means the configured default.
const (
	MethodHeadless = "headless"
	MethodStatic   = "static"
	MethodColly    = "colly"
)

// JurisdictionQuery identifies one scrape target.
type JurisdictionQuery struct {
	State    string `json:"state"`
	Location string `json:"location"`
	Method   string `json:"method,omitempty"`
}

// ResolvedQuery is a validated query bound to its listing URL.
type ResolvedQuery struct {
	Query      JurisdictionQuery `json:"query"`
	ListingURL string            `json:"listing_url"`
}

// ResultStub is one listing row before the detail visit. DetailURL is
// always absolute and never empty for an emitted stub.
type ResultStub struct {
	DetailURL    string `json:"detail_url"`
	ProviderName string `json:"provider_name,omitempty"`
	NPI          string `json:"npi,omitempty"`
	RawText      string `json:"-"`
}

// Address is a postal address split out of the detail page.
type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// Official is the authorized official or contact person on record.
type Official struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// DetailFields holds the raw strings matched on a detail page. Empty
// fields simply did not match; normalization happens at assembly.
type DetailFields struct {
	NPI             string
	ProviderName    string
	AgencyName      string
	Phone           string
	EnumerationDate string
	Address         *Address
	Official        *Official
}

// Agency is the assembled record for one provider.
type Agency struct {
	NPI             string    `json:"npi,omitempty"`
	ProviderName    string    `json:"provider_name,omitempty"`
	AgencyName      string    `json:"agency_name,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	EnumerationDate string    `json:"enumeration_date,omitempty"`
	DetailURL       string    `json:"detail_url"`
	Address         *Address  `json:"address,omitempty"`
	Official        *Official `json:"authorized_official,omitempty"`
	SourceState     string    `json:"source_state"`
	SourceLocation  string    `json:"source_location"`
	Partial         bool      `json:"partial,omitempty"`
}

// RunState is the lifecycle state of a jurisdiction run.
type RunState string

// Run states logged as the runner moves through a jurisdiction.
const (
	StateIdle       RunState = "idle"
	StateNavigating RunState = "navigating"
	StateExtracting RunState = "extracting"
	StateCompleted  RunState = "completed"
	StateAborted    RunState = "aborted"
)

// JurisdictionResult is the outcome of one jurisdiction run. A non-nil
// Err alongside a non-empty Agencies slice means the run was truncated
// but still produced usable records.
type JurisdictionResult struct {
	RunID        string            `json:"run_id"`
	Query        JurisdictionQuery `json:"query"`
	ListingURL   string            `json:"listing_url,omitempty"`
	Agencies     []Agency          `json:"agencies"`
	PagesVisited int               `json:"pages_visited"`
	Err          error             `json:"-"`
	ErrorText    string            `json:"error,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at"`
}

// ScrapeLog is the persisted record of one run.
type ScrapeLog struct {
	RunID         string    `json:"run_id"`
	State         string    `json:"state"`
	Location      string    `json:"location"`
	Method        string    `json:"method"`
	AgenciesFound int       `json:"agencies_found"`
	PagesVisited  int       `json:"pages_visited"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	Error         string    `json:"error,omitempty"`
}
