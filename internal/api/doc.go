// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/urls and /v1/urls/{url_id}/... for URL lifecycle operations.
//   - POST /v1/batch for bounded batch processing.
//   - GET /v1/integrity/scan for linkage invariant reporting.
package api
