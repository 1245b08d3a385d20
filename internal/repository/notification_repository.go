package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// ownerFields are the fields a notification's recipient is recorded under.
var ownerFields = []string{"writerId", "employerId"}

// NotificationRepository persists notifications. Bulk operations are scoped
// to documents where writerId or employerId equals the user.
type NotificationRepository struct {
	store  domain.DocumentStore
	logger *slog.Logger
}

func NewNotificationRepository(store domain.DocumentStore, logger *slog.Logger) *NotificationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationRepository{store: store, logger: logger}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if err := r.store.InsertOne(ctx, Notifications, n.ID, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := r.store.FindOne(ctx, Notifications, domain.Where(domain.Eq("id", id)), &n); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// ListOwned returns the user's notifications, newest first.
func (r *NotificationRepository) ListOwned(ctx context.Context, userID string) ([]domain.Notification, error) {
	seen := map[string]bool{}
	var out []domain.Notification
	for _, field := range ownerFields {
		var batch []domain.Notification
		if err := r.store.Find(ctx, Notifications, domain.Where(domain.Eq(field, userID)), &batch); err != nil {
			return nil, fmt.Errorf("failed to list notifications: %w", err)
		}
		for _, n := range batch {
			if !seen[n.ID] {
				seen[n.ID] = true
				out = append(out, n)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkRead flips one notification to read. It reports whether it changed.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.store.UpdateOne(ctx, Notifications,
		domain.Where(domain.Eq("id", id), domain.Eq("isRead", false)),
		domain.Patch{"isRead": true, "readAt": now},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return res.Modified > 0, nil
}

// MarkAllRead flips every unread notification of the user.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, now time.Time) (int64, error) {
	var total int64
	for _, field := range ownerFields {
		res, err := r.store.UpdateMany(ctx, Notifications,
			domain.Where(domain.Eq(field, userID), domain.Eq("isRead", false)),
			domain.Patch{"isRead": true, "readAt": now},
		)
		if err != nil {
			return total, fmt.Errorf("failed to mark notifications read: %w", err)
		}
		total += res.Modified
	}
	return total, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.store.DeleteOne(ctx, Notifications, domain.Where(domain.Eq("id", id)))
	if err != nil {
		return false, fmt.Errorf("failed to delete notification: %w", err)
	}
	return n > 0, nil
}

// DeleteAllOwned removes every notification of the user.
func (r *NotificationRepository) DeleteAllOwned(ctx context.Context, userID string) (int64, error) {
	var total int64
	for _, field := range ownerFields {
		n, err := r.store.DeleteMany(ctx, Notifications, domain.Where(domain.Eq(field, userID)))
		if err != nil {
			return total, fmt.Errorf("failed to clear notifications: %w", err)
		}
		total += n
	}
	return total, nil
}
