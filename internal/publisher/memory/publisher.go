// Package memory records discovery events in process so pipeline tests
// can assert on what would have reached Pub/Sub, and so the binary can
// run without a configured topic.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher retains every published event for later inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage is one retained event, typically a product discovery
// notification destined for the product-discovered topic.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish retains the event and returns a synthetic message ID in the
// shape the Pub/Sub publisher would.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the retained events in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
