package index

import (
	"context"
	"fmt"

	"github.com/askmysite/askmysite/internal/rag"
	"github.com/askmysite/askmysite/internal/vecstore"
)

// Retriever embeds a query and pulls the nearest chunks for a job.
type Retriever struct {
	embedder rag.Embedder
	store    vecstore.VectorIndex
}

// NewRetriever constructs a Retriever over the given embedder and index.
func NewRetriever(embedder rag.Embedder, store vecstore.VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns up to topK chunks for the job ordered by descending
// relevance. An empty or unknown job yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, jobID, query string, topK int) ([]rag.RetrievedChunk, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := r.store.Query(ctx, jobID, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}
	return chunks, nil
}
