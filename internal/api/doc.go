// Package api hosts the operator HTTP interface:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sources and /v1/sources/{id} for configured sources.
//   - POST /v1/sources/{id}/runs to queue a run (202 with the run id).
//   - GET /v1/runs/{id} for a run summary.
//   - GET /v1/health/urls/{url} for the health record of one URL.
package api
