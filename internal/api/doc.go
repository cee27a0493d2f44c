// Package api hosts the HTTP server, middleware, and REST handlers for the
// ingestion and Q&A service. Notable routes:
//   - GET /health for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /ingest to register a crawl job and enqueue it for background work.
//   - GET /status/{job_id} for job lifecycle and progress reporting.
//   - POST /ask for grounded answers served from a finished job's index.
package api
