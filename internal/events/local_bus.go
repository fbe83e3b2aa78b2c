package events

import (
	"context"
	"sync"
)

// LocalBus delivers events in-process. It backs the API when redis is not
// configured and is used in tests.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]*localSub
	nextID   int
}

type localSub struct {
	id      int
	handler func(Event)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]*localSub)}
}

// Publish calls every handler of stream synchronously.
func (b *LocalBus) Publish(ctx context.Context, stream string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	subs := append([]*localSub(nil), b.handlers[stream]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
	return nil
}

// Subscribe registers handler until ctx is cancelled.
func (b *LocalBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	b.nextID++
	sub := &localSub{id: b.nextID, handler: handler}
	b.handlers[stream] = append(b.handlers[stream], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[stream]
		for i, s := range subs {
			if s.id == sub.id {
				b.handlers[stream] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}()
	return nil
}
