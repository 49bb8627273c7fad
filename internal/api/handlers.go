package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/export"
	"github.com/agencyatlas/npidb-crawler/internal/metrics"
	"github.com/agencyatlas/npidb-crawler/internal/scrape"
	"github.com/agencyatlas/npidb-crawler/internal/store"
)

const (
	defaultAgencyLimit = 100
	maxAgencyLimit     = 1000
	defaultRunLimit    = 50
	maxRunLimit        = 500
	maxBatchSize       = 250
	storeTimeout       = 3 * time.Second
)

type scrapeRequest struct {
	State    string `json:"state"`
	Location string `json:"location"`
	Method   string `json:"method,omitempty"`
}

type batchRequest struct {
	Queries       []scrapeRequest `json:"queries"`
	Workers       int             `json:"workers,omitempty"`
	PacePerMinute int             `json:"pace_per_minute,omitempty"`
}

type createListRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

type addListRequest struct {
	NPIs []string `json:"npis"`
}

// runScrape handles POST /v1/scrape. It runs one jurisdiction to
// completion and returns the result: 400 for an invalid query, 200 when
// any records were produced (truncated runs carry an error field), and
// 502 when the run failed with nothing to show.
func (s *Server) runScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	query := scrape.JurisdictionQuery{State: req.State, Location: req.Location, Method: req.Method}
	if _, err := scrape.ResolveQuery(query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.runner.RunJurisdiction(r.Context(), query)
	switch {
	case res.Err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(res.Err, scrape.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, res.ErrorText)
	case len(res.Agencies) > 0:
		writeJSON(w, http.StatusOK, res)
	default:
		writeJSON(w, http.StatusBadGateway, res)
	}
}

// runBatch handles POST /v1/scrape/batch. The response always carries
// one result per query in input order; a fatal batch error is reported
// alongside whatever completed before the stop.
func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "at least one query required")
		return
	}
	if len(req.Queries) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "too many queries in one batch")
		return
	}
	queries := make([]scrape.JurisdictionQuery, 0, len(req.Queries))
	for _, q := range req.Queries {
		query := scrape.JurisdictionQuery{State: q.State, Location: q.Location, Method: q.Method}
		if _, err := scrape.ResolveQuery(query); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		queries = append(queries, query)
	}

	workers := req.Workers
	if workers <= 0 {
		workers = s.cfg.Batch.Workers
	}
	pace := req.PacePerMinute
	if pace <= 0 {
		pace = s.cfg.Batch.PacePerMinute
	}
	orch := scrape.NewOrchestrator(s.runner, scrape.BatchConfig{
		Workers:       workers,
		PacePerMinute: pace,
	}, s.logger)

	results, err := orch.Run(r.Context(), queries)
	metrics.ObserveBatch(len(queries), err)
	payload := map[string]any{"results": results}
	if err != nil {
		payload["error"] = err.Error()
		writeJSON(w, http.StatusBadGateway, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// listAgencies handles GET /v1/agencies?state=&location=&npi=&partial=&limit=&offset=.
func (s *Server) listAgencies(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAgencyFilter(r, defaultAgencyLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	agencies, err := s.store.GetAgencies(ctx, filter)
	if err != nil {
		s.logger.Error("list agencies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list agencies")
		return
	}
	if agencies == nil {
		agencies = []scrape.Agency{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agencies": agencies})
}

// listRuns handles GET /v1/runs?state=&limit=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	runs, err := s.store.GetRuns(ctx, store.RunFilter{
		State: strings.TrimSpace(r.URL.Query().Get("state")),
		Limit: limit,
	})
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []scrape.ScrapeLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// exportAgencies handles GET /v1/export?format=csv|json|xlsx plus the
// agency filters. The response is an attachment in the requested format.
func (s *Server) exportAgencies(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatCSV
	}
	// Exports default to everything that matches the filter.
	filter, err := parseAgencyFilter(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	agencies, err := s.store.GetAgencies(ctx, filter)
	if err != nil {
		s.logger.Error("export query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load agencies")
		return
	}

	out, err := s.exporter.Render(format, agencies)
	metrics.ObserveExport(format, err)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("export render failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition",
		"attachment; filename="+strconv.Quote(export.Filename(format, s.clock.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) createList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "list name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	list, err := s.store.CreateList(ctx, strings.TrimSpace(req.Name), req.Notes)
	if err != nil {
		s.logger.Error("create list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create list")
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (s *Server) getLists(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	lists, err := s.store.GetLists(ctx)
	if err != nil {
		s.logger.Error("get lists failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load lists")
		return
	}
	if lists == nil {
		lists = []store.List{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

// addToList handles POST /v1/lists/{list_id}/agencies. It returns 404
// when the list does not exist and reports how many agencies were
// actually attached (unknown NPIs and duplicates are skipped).
func (s *Server) addToList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "list_id")
	var req addListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.NPIs) == 0 {
		writeError(w, http.StatusBadRequest, "npis required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	added, err := s.store.AddToList(ctx, listID, req.NPIs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "list not found")
			return
		}
		s.logger.Error("add to list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (s *Server) getListAgencies(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "list_id")
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	agencies, err := s.store.GetListAgencies(ctx, listID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "list not found")
			return
		}
		s.logger.Error("get list agencies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load list agencies")
		return
	}
	if agencies == nil {
		agencies = []scrape.Agency{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agencies": agencies})
}

func parseAgencyFilter(r *http.Request, defaultLimit int) (store.AgencyFilter, error) {
	limit, offset, err := parseLimitOffset(r, defaultLimit, maxAgencyLimit)
	if err != nil {
		return store.AgencyFilter{}, err
	}
	q := r.URL.Query()
	filter := store.AgencyFilter{
		State:    strings.TrimSpace(q.Get("state")),
		Location: strings.TrimSpace(q.Get("location")),
		NPI:      strings.TrimSpace(q.Get("npi")),
		Limit:    limit,
		Offset:   offset,
	}
	if partialStr := q.Get("partial"); partialStr != "" {
		partial, err := strconv.ParseBool(partialStr)
		if err != nil {
			return store.AgencyFilter{}, errors.New("invalid partial")
		}
		filter.Partial = &partial
	}
	return filter, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
