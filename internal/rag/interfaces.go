package rag

import (
	"context"
	"time"
)

// JobStore is the single source of truth for job progress and errors.
// Implementations must be safe for concurrent use by workers and status
// pollers. Mutations on unknown IDs return ErrJobNotFound, never panic.
type JobStore interface {
	Create(ctx context.Context) (Job, error)
	Get(ctx context.Context, jobID string) (Job, error)
	SetRunning(ctx context.Context, jobID string) error
	UpdateProgress(ctx context.Context, jobID string, fetched, indexed int) error
	AddError(ctx context.Context, jobID string, msg string) error
	SetDone(ctx context.Context, jobID string, result map[string]any) error
	SetFailed(ctx context.Context, jobID string, msg string) error
}

// Indexer chunks, embeds, and stores page content for a job. It returns the
// number of chunks indexed plus per-chunk error strings; only a failure that
// prevents indexing entirely is returned as an error.
type Indexer interface {
	Index(ctx context.Context, jobID string, pages []PageRecord) (int, []string, error)
}

// Retriever pulls the chunks most relevant to a query from a job's index.
// An empty result is not an error; it means the index is empty or missing.
type Retriever interface {
	Retrieve(ctx context.Context, jobID string, query string, topK int) ([]RetrievedChunk, error)
}

// Generator produces answer text grounded in the supplied chunks.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []RetrievedChunk) (string, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for ingest jobs.
type Queue interface {
	Enqueue(ctx context.Context, req IngestRequest) error
	Dequeue(ctx context.Context) (IngestRequest, error)
}

// Hasher computes digests used for deterministic page IDs.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
