package chathub

import (
	"context"
	"sync"

	"rando/backend/internal/models"
)

// Handler receives events for a topic. It runs on the publisher's goroutine
// and must not block.
type Handler func(models.Event)

// Notifier is the pub/sub capability injected into every service that needs
// to wake clients up. Delivery is best effort; the store stays authoritative.
type Notifier interface {
	Publish(ctx context.Context, topic string, ev models.Event) error
	Subscribe(topic string, h Handler) (unsubscribe func())
}

// Broker is the in-process Notifier.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string]map[uint64]Handler
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[uint64]Handler)}
}

// Publish delivers ev to the current subscribers of topic. Handlers run
// outside the lock, so they may subscribe or unsubscribe.
func (b *Broker) Publish(_ context.Context, topic string, ev models.Event) error {
	ev.Topic = topic

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.topics[topic]))
	for _, h := range b.topics[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *Broker) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]Handler)
	}
	b.topics[topic][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.topics[topic], id)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
		})
	}
}

// Subscribers returns the number of handlers on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
