// Package memory contains in-memory stores used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Blob captures one stored object.
type Blob struct {
	ContentType string
	Data        []byte
}

// BlobStore keeps objects in a map. Safe for concurrent use.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewBlobStore returns an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]Blob)}
}

// PutObject stores a copy of data under path and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = Blob{ContentType: contentType, Data: buf}
	return fmt.Sprintf("mem://%s", path), nil
}

// Get returns the stored blob and whether it exists.
func (s *BlobStore) Get(path string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[path]
	return blob, ok
}

// Len reports the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
