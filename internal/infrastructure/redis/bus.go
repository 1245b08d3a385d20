package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// NotificationBus fans notifications out to live subscribers over Redis
// pub/sub, one channel per recipient.
type NotificationBus struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

func NewNotificationBus(client *Client, prefix string, logger *slog.Logger) *NotificationBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationBus{rdb: client.Redis(), prefix: prefix, logger: logger}
}

func (b *NotificationBus) channel(userID string) string {
	return b.prefix + "notifications:" + userID
}

// Publish sends n to the recipient's channel. Nobody listening is not an error.
func (b *NotificationBus) Publish(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe streams notifications for userID until ctx is done or the
// returned close function is called. The channel is closed on exit.
func (b *NotificationBus) Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, func() error, error) {
	ps := b.rdb.Subscribe(ctx, b.channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan domain.Notification, 16)
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n domain.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.logger.Warn("dropping malformed notification",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, ps.Close, nil
}
