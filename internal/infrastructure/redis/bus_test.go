package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wencestudios/freelancehub/internal/domain"
)

func TestNotificationBus_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, mr := newTestClient(t)
	bus := NewNotificationBus(client, "test:", nil)

	ch, closeFn, err := bus.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, bus.Publish(ctx, &domain.Notification{ID: "n1", UserID: "u2"}))
	require.NoError(t, bus.Publish(ctx, &domain.Notification{
		ID:     "n2",
		UserID: "u1",
		Type:   domain.NotificationBidAccepted,
		JobID:  "j1",
	}))

	select {
	case n := <-ch:
		assert.Equal(t, "n2", n.ID)
		assert.Equal(t, domain.NotificationBidAccepted, n.Type)
		assert.Equal(t, "j1", n.JobID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}

	mr.Publish("test:notifications:u1", "{not json")
	require.NoError(t, bus.Publish(ctx, &domain.Notification{ID: "n3", UserID: "u1"}))
	select {
	case n := <-ch:
		assert.Equal(t, "n3", n.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("bus stalled after malformed payload")
	}
}

func TestNotificationBus_CancelClosesChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, _ := newTestClient(t)
	bus := NewNotificationBus(client, "test:", nil)

	ch, closeFn, err := bus.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer closeFn()
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}
