// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape and /v1/scrape/batch for jurisdiction runs.
//   - GET /v1/agencies, /v1/runs, and /v1/export for scraped data.
//   - POST /v1/lists and /v1/lists/{id}/agencies for curated lists.
package api
