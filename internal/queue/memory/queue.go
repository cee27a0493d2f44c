// Package memory provides a channel-backed ingest job queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/askmysite/askmysite/internal/rag"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan rag.IngestRequest
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan rag.IngestRequest, capacity),
	}
}

// Enqueue pushes an ingest request into the queue or returns if the context
// ends. After Close it returns ErrClosed. The read lock is held across the
// send so Close cannot close the channel under an in-flight Enqueue.
func (q *Queue) Enqueue(ctx context.Context, req rag.IngestRequest) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (rag.IngestRequest, error) {
	select {
	case <-ctx.Done():
		return rag.IngestRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return rag.IngestRequest{}, ErrClosed
		}
		return req, nil
	}
}

// Close closes the underlying channel for shutdown. Safe to call more than
// once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
