package bus

import (
	"context"
	"sync"
)

// InProcessBus implements Bus for multiple components in the same process.
// Publishes are delivered synchronously to every matching subscription, which
// keeps tests deterministic.
type InProcessBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	// Published records every publish for inspection in tests.
	Published []Message
	// PublishErr injects a publish failure.
	PublishErr error
}

// Message is one published payload.
type Message struct {
	Channel string
	Payload []byte
}

// NewInProcessBus creates an empty in-process bus.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{handlers: make(map[string][]Handler)}
}

// Publish delivers the payload synchronously to local subscribers.
func (b *InProcessBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.PublishErr != nil {
		return b.PublishErr
	}

	b.mu.Lock()
	b.Published = append(b.Published, Message{Channel: channel, Payload: payload})
	handlers := append([]Handler(nil), b.handlers[channel]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(channel, payload)
	}

	return nil
}

// Subscribe registers the handler for each channel.
func (b *InProcessBus) Subscribe(_ context.Context, channels []string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range channels {
		b.handlers[ch] = append(b.handlers[ch], handler)
	}

	return nil
}

// Close is a no-op.
func (b *InProcessBus) Close() error { return nil }

// Deliver injects an inbound message as if it arrived from a peer instance.
func (b *InProcessBus) Deliver(channel string, payload []byte) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[channel]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(channel, payload)
	}
}

// PublishedOn returns the payloads published on one channel (testing helper).
func (b *InProcessBus) PublishedOn(channel string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out [][]byte

	for _, m := range b.Published {
		if m.Channel == channel {
			out = append(out, m.Payload)
		}
	}

	return out
}
