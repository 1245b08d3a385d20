package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/observability/metrics"
	"github.com/wencestudios/freelancehub/internal/repository"
)

// Publisher pushes a stored notification to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, n *domain.Notification) error
}

// NotificationStore creates notifications and applies read and delete
// changes on behalf of their owner.
type NotificationStore struct {
	repo      *repository.NotificationRepository
	publisher Publisher
	clock     domain.Clock
	logger    *slog.Logger
}

// NewNotificationStore creates the store. publisher may be nil.
func NewNotificationStore(repo *repository.NotificationRepository, publisher Publisher, clock domain.Clock, logger *slog.Logger) *NotificationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationStore{repo: repo, publisher: publisher, clock: clock, logger: logger}
}

// Create stores a new unread notification built from in.
func (s *NotificationStore) Create(ctx context.Context, in domain.NotificationInput) (*domain.Notification, error) {
	n, err := domain.NewNotification(in, uuid.NewString(), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		metrics.ObserveNotification(string(in.Type), "error")
		return nil, err
	}
	metrics.ObserveNotification(string(in.Type), "created")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, n); err != nil {
			s.logger.Warn("failed to publish notification",
				slog.String("notification_id", n.ID),
				slog.String("user_id", n.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
	return n, nil
}

// List returns the user's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	out, err := s.repo.ListOwned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Notification{}
	}
	return out, nil
}

// UnreadCount counts the user's unread notifications.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	all, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range all {
		if !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *NotificationStore) owned(ctx context.Context, userID, id string) (*domain.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.OwnedBy(userID) {
		s.logger.Warn("notification access denied",
			slog.String("user_id", userID),
			slog.String("notification_id", id),
		)
		return nil, domain.ErrForbidden
	}
	return n, nil
}

// MarkRead flips one notification to read. Marking an already read
// notification succeeds without change.
func (s *NotificationStore) MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	n, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}
	now := s.clock.Now()
	if _, err := s.repo.MarkRead(ctx, id, now); err != nil {
		return nil, err
	}
	n.IsRead = true
	n.ReadAt = &now
	return n, nil
}

// MarkAllRead flips every unread notification of the user and returns how many changed.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrUnauthenticated
	}
	return s.repo.MarkAllRead(ctx, userID, s.clock.Now())
}

// Delete removes one of the user's notifications.
func (s *NotificationStore) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

// ClearAll removes every notification of the user.
func (s *NotificationStore) ClearAll(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrUnauthenticated
	}
	return s.repo.DeleteAllOwned(ctx, userID)
}

// notify creates a notification and logs instead of failing when it cannot.
func (s *NotificationStore) notify(ctx context.Context, in domain.NotificationInput) bool {
	if _, err := s.Create(ctx, in); err != nil {
		level := slog.LevelError
		if errors.Is(err, domain.ErrInvalidInput) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "failed to create notification",
			slog.String("type", string(in.Type)),
			slog.String("user_id", in.UserID),
			slog.String("job_id", in.JobID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
