// Package memory records completion events in memory, standing in for
// Pub/Sub in tests and local runs without a configured topic.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher accumulates every event handed to Publish so tests can assert on
// what a finished ingest job announced.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage is one recorded completion event.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns an empty in-memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("local-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded events in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
