package memstore

import (
	"context"
	"sync"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// Bus is an in-process notification fan-out used when no Redis is configured.
// Slow subscribers lose messages rather than block publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Notification]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: map[string]map[chan domain.Notification]struct{}{}}
}

func (b *Bus) Publish(_ context.Context, n *domain.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[n.UserID] {
		select {
		case ch <- *n:
		default:
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, func() error, error) {
	ch := make(chan domain.Notification, 16)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = map[chan domain.Notification]struct{}{}
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() error {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
		})
		return nil
	}
	go func() {
		<-ctx.Done()
		_ = unsubscribe()
	}()
	return ch, unsubscribe, nil
}
