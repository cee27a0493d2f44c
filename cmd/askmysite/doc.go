// Package main hosts the askmysite service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, ingest, status, and ask endpoints. Ingest requests are
//     validated, registered as queued jobs in the JobStore, and enqueued for background work; ask requests are served
//     synchronously from the per-job vector index.
//   - Dispatcher & queue: ingest jobs flow through a bounded in-memory queue sized by config.Crawler.QueueDepth and
//     are fanned out to a fixed worker pool sized by config.Crawler.Concurrency. Context cancellation stops workers
//     cleanly on shutdown, and each job runs under the configured retrieval.job_timeout_seconds bound.
//   - Crawl pipeline: each worker drives a per-job breadth-first crawler over the Colly-based fetcher, scoped by the
//     request's domain allow-list and page/depth budgets. Pages are cleaned with goquery, quality-filtered, and
//     optionally archived as raw HTML to the configured blob store (memory/GCS).
//   - Index & answer: accepted pages are chunked, embedded through an OpenAI-compatible endpoint, and stored in the
//     configured VectorIndex (in-memory linear scan or pgvector-backed Postgres). Questions retrieve top-K chunks,
//     generate a grounded answer via the Anthropic messages API, and attach citations, a confidence tier, and a
//     grounding note.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     counters/histograms are exported on /metrics; a compact Pub/Sub completion event is published when a topic is
//     configured.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool; job state is shared only through the JobStore, and each
//     crawler instance is owned by exactly one job. Shutdown is coordinated via context cancellation propagated from
//     main through the dispatcher to workers.
//   - Job lifecycle: queued -> running -> done/failed, enforced on the Job type itself. Zero fetched pages is a valid
//     done outcome; fetch failures accumulate as job errors without aborting the crawl.
//   - Run locally: go run ./cmd/askmysite -config config.yaml (or rely solely on ASKMYSITE_* env overrides).
package main
