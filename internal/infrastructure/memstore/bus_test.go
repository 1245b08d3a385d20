package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wencestudios/freelancehub/internal/domain"
)

func TestBus_DeliversToRecipientOnly(t *testing.T) {
	ctx := context.Background()
	b := NewBus()

	mine, closeMine, err := b.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer closeMine()
	other, closeOther, err := b.Subscribe(ctx, "u2")
	require.NoError(t, err)
	defer closeOther()

	require.NoError(t, b.Publish(ctx, &domain.Notification{ID: "n1", UserID: "u1", Type: domain.NotificationBidReceived}))

	select {
	case n := <-mine:
		assert.Equal(t, "n1", n.ID)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	select {
	case n := <-other:
		t.Fatalf("unexpected delivery: %+v", n)
	default:
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus()

	ch, _, err := b.Subscribe(ctx, "u1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	require.NoError(t, b.Publish(context.Background(), &domain.Notification{ID: "n1", UserID: "u1"}))
}

func TestBus_SlowSubscriberDropsOverflow(t *testing.T) {
	ctx := context.Background()
	b := NewBus()
	ch, closeFn, err := b.Subscribe(ctx, "u1")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(ctx, &domain.Notification{UserID: "u1"}))
	}
	require.NoError(t, closeFn())
	require.NoError(t, closeFn())

	received := 0
	for range ch {
		received++
	}
	assert.Equal(t, 16, received)
}
