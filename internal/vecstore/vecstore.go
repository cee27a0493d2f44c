// Package vecstore defines the vector index abstraction and its
// implementations. Which implementation backs the service is a construction
// time decision driven by configuration; there is no runtime fallback between
// backends.
package vecstore

import (
	"context"

	"github.com/askmysite/askmysite/internal/rag"
)

// StoredChunk is the unit written to a vector index.
type StoredChunk struct {
	ChunkID   string
	Text      string
	URL       string
	Title     string
	Embedding []float32
}

// VectorIndex stores embedded chunks per job and answers nearest-neighbor
// queries. Add must be idempotent per chunk ID so that re-indexing a page
// never duplicates storage. Query returns results ordered by descending
// relevance; an unknown or empty job yields an empty slice, not an error.
type VectorIndex interface {
	Add(ctx context.Context, jobID string, chunks []StoredChunk) error
	Query(ctx context.Context, jobID string, embedding []float32, topK int) ([]rag.RetrievedChunk, error)
}
