package vecstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/askmysite/askmysite/internal/rag"
)

// MemoryIndex is a process-lifetime linear-scan index. Each job gets its own
// collection; nothing is shared between jobs beyond the outer map.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string][]StoredChunk
}

// NewMemoryIndex constructs an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		collections: make(map[string][]StoredChunk),
	}
}

// Add stores chunks in the job's collection. A chunk with an already-present
// ID replaces the stored one.
func (m *MemoryIndex) Add(_ context.Context, jobID string, chunks []StoredChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.collections[jobID]
	for _, chunk := range chunks {
		replaced := false
		for i := range existing {
			if existing[i].ChunkID == chunk.ChunkID {
				existing[i] = chunk
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, chunk)
		}
	}
	m.collections[jobID] = existing
	return nil
}

// Query scans the job's collection and returns the topK chunks by cosine
// similarity. Scores are reported as cosine distances (1 - similarity), the
// same convention external vector backends use.
func (m *MemoryIndex) Query(_ context.Context, jobID string, embedding []float32, topK int) ([]rag.RetrievedChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := m.collections[jobID]
	if len(chunks) == 0 || topK <= 0 {
		return nil, nil
	}

	type scored struct {
		chunk StoredChunk
		sim   float64
	}
	results := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, scored{
			chunk: chunk,
			sim:   CosineSimilarity(embedding, chunk.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].sim > results[j].sim
	})
	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]rag.RetrievedChunk, 0, len(results))
	for _, r := range results {
		out = append(out, rag.RetrievedChunk{
			ChunkID:    r.chunk.ChunkID,
			Text:       r.chunk.Text,
			Score:      1 - r.sim,
			IsDistance: true,
			Metadata: rag.ChunkMetadata{
				URL:   r.chunk.URL,
				Title: r.chunk.Title,
			},
		})
	}
	return out, nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Returns 0.0 for zero-norm vectors or mismatched lengths.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	na := math.Sqrt(normA)
	nb := math.Sqrt(normB)
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (na * nb)
}
