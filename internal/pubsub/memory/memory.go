// Package memory implements the broadcast channel in process memory, for
// tests and single-process deployments.
package memory

import (
	"context"
	"sync"
)

// Broadcaster delivers payloads synchronously to subscribers in the same
// process. Handlers run on the publisher's goroutine, so tests observe
// effects without sleeping.
type Broadcaster struct {
	mu       sync.RWMutex
	handlers map[string][]func(payload []byte)
	closed   bool
}

func New() *Broadcaster {
	return &Broadcaster{
		handlers: make(map[string][]func(payload []byte)),
	}
}

func (b *Broadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	handlers := append([]func([]byte){}, b.handlers[channel]...)
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil
	}
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
	return nil
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]func(payload []byte))
	return nil
}
