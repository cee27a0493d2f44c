// Package index chunks page content, embeds it, and stores the vectors.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/askmysite/askmysite/internal/metrics"
	"github.com/askmysite/askmysite/internal/rag"
	"github.com/askmysite/askmysite/internal/vecstore"
)

const (
	// DefaultChunkSize bounds each chunk's character length.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the character overlap between adjacent chunks.
	DefaultChunkOverlap = 200
)

// Indexer splits pages into overlapping chunks, embeds each chunk, and
// writes the result into a VectorIndex.
type Indexer struct {
	embedder rag.Embedder
	store    vecstore.VectorIndex
	logger   *zap.Logger

	chunkSize    int
	chunkOverlap int
}

// New constructs an Indexer with the default chunking parameters.
func New(embedder rag.Embedder, store vecstore.VectorIndex, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		embedder:     embedder,
		store:        store,
		logger:       logger,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

// Index embeds and stores every chunk of every page. Per-chunk failures are
// collected and reported alongside the count of chunks stored; only a broken
// store write for a whole batch is returned as a hard error string, never as
// an error return, so a partially indexed job can still complete.
func (ix *Indexer) Index(ctx context.Context, jobID string, pages []rag.PageRecord) (int, []string, error) {
	indexed := 0
	var errs []string

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("indexing stopped: %v", err))
			return indexed, errs, nil
		}
		if page.Content == "" {
			continue
		}

		chunks := chunkText(page.Content, ix.chunkSize, ix.chunkOverlap)
		ix.logger.Debug("chunked page",
			zap.String("job_id", jobID),
			zap.String("url", page.URL),
			zap.Int("chunks", len(chunks)),
		)

		batch := make([]vecstore.StoredChunk, 0, len(chunks))
		for i, text := range chunks {
			embedding, err := ix.embedder.Embed(ctx, text)
			if err != nil {
				errs = append(errs, fmt.Sprintf("failed to embed chunk %d from %s: %v", i+1, page.URL, err))
				continue
			}
			batch = append(batch, vecstore.StoredChunk{
				ChunkID:   fmt.Sprintf("%s_chunk_%d", page.ID, i),
				Text:      text,
				URL:       page.URL,
				Title:     page.Title,
				Embedding: embedding,
			})
		}
		if len(batch) == 0 {
			continue
		}
		if err := ix.store.Add(ctx, jobID, batch); err != nil {
			errs = append(errs, fmt.Sprintf("failed to store chunks from %s: %v", page.URL, err))
			continue
		}
		indexed += len(batch)
		metrics.AddChunksIndexed(len(batch))
	}

	ix.logger.Info("indexing complete",
		zap.String("job_id", jobID),
		zap.Int("chunks_indexed", indexed),
		zap.Int("errors", len(errs)),
	)
	return indexed, errs, nil
}

// chunkText splits content into chunks of at most size characters with the
// given overlap between consecutive chunks. Boundaries are counted in runes
// so a multi-byte character is never split across chunks.
func chunkText(content string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(content)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}
