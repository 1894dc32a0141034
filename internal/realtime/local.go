package realtime

import (
	"context"
	"sync"
)

// LocalBus fans signals out to subscribers inside one process.
type LocalBus struct {
	mu   sync.Mutex
	subs map[Topic]map[chan struct{}]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: map[Topic]map[chan struct{}]struct{}{}}
}

func (b *LocalBus) Publish(_ context.Context, t Topic) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[t] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, t Topic) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	set, ok := b.subs[t]
	if !ok {
		set = map[chan struct{}]struct{}{}
		b.subs[t] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], ch)
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
		close(ch)
	}()
	return ch, nil
}

// Subscribers reports how many live subscriptions watch t.
func (b *LocalBus) Subscribers(t Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[t])
}
