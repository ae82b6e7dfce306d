// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/search to proxy a JobSpy search verbatim.
//   - POST /v1/jobs to upsert a batch of listings.
//   - GET /v1/jobs and /v1/jobs/{id} to read stored listings back.
package api
