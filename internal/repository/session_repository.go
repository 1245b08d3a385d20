package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// SessionRepository persists sessions. Every lookup by credential only
// considers active sessions.
type SessionRepository struct {
	store  domain.DocumentStore
	logger *slog.Logger
}

func NewSessionRepository(store domain.DocumentStore, logger *slog.Logger) *SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRepository{store: store, logger: logger}
}

// Create inserts s. ErrDuplicate means another active session already holds
// the user's platform slot.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if err := r.store.InsertOne(ctx, Sessions, s.SessionID, s); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) findActive(ctx context.Context, field, value string) (*domain.Session, error) {
	var s domain.Session
	err := r.store.FindOne(ctx, Sessions, domain.Where(domain.Eq(field, value), domain.Eq("isActive", true)), &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByAccessHash finds the active session holding an access token digest.
func (r *SessionRepository) GetByAccessHash(ctx context.Context, hash string) (*domain.Session, error) {
	return r.findActive(ctx, "accessTokenHash", hash)
}

// GetByRefreshHash finds the active session holding a refresh token digest.
func (r *SessionRepository) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	return r.findActive(ctx, "refreshTokenHash", hash)
}

// GetActiveSlot finds the active session of a user on a platform.
func (r *SessionRepository) GetActiveSlot(ctx context.Context, userID string, p domain.Platform) (*domain.Session, error) {
	return r.findActive(ctx, "activeSlot", domain.SlotFor(userID, p))
}

// UpdateActive patches the session if it is still active and satisfies
// every extra condition. It reports whether the patch applied.
func (r *SessionRepository) UpdateActive(ctx context.Context, sessionID string, patch domain.Patch, extra ...domain.Cond) (bool, error) {
	filter := append(domain.Where(domain.Eq("sessionId", sessionID), domain.Eq("isActive", true)), extra...)
	res, err := r.store.UpdateOne(ctx, Sessions, filter, patch)
	if err != nil {
		return false, fmt.Errorf("failed to update session: %w", err)
	}
	return res.Matched > 0, nil
}

func deactivation(now time.Time) domain.Patch {
	return domain.Patch{"isActive": false, "activeSlot": "", "invalidatedAt": now}
}

// DeactivateByAccessHash ends the session holding an access token digest.
func (r *SessionRepository) DeactivateByAccessHash(ctx context.Context, hash string, now time.Time) (bool, error) {
	res, err := r.store.UpdateOne(ctx, Sessions,
		domain.Where(domain.Eq("accessTokenHash", hash), domain.Eq("isActive", true)),
		deactivation(now),
	)
	if err != nil {
		return false, fmt.Errorf("failed to invalidate session: %w", err)
	}
	return res.Modified > 0, nil
}

// DeactivateAllForUser ends every active session of a user.
func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.store.UpdateMany(ctx, Sessions,
		domain.Where(domain.Eq("userId", userID), domain.Eq("isActive", true)),
		deactivation(now),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	return res.Modified, nil
}

// ListByUser returns every session record of a user, active or not.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var out []domain.Session
	if err := r.store.Find(ctx, Sessions, domain.Where(domain.Eq("userId", userID)), &out); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// ListAll returns every session record.
func (r *SessionRepository) ListAll(ctx context.Context) ([]domain.Session, error) {
	var out []domain.Session
	if err := r.store.Find(ctx, Sessions, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// DeleteUnchanged removes each snapshotted session only while its activity
// fields still hold the snapshot values. A slot reused after the snapshot was
// taken is left in place.
func (r *SessionRepository) DeleteUnchanged(ctx context.Context, snapshot []domain.Session) (int64, error) {
	var removed int64
	for i := range snapshot {
		s := &snapshot[i]
		n, err := r.store.DeleteOne(ctx, Sessions, domain.Where(
			domain.Eq("sessionId", s.SessionID),
			domain.Eq("isActive", s.IsActive),
			domain.Eq("refreshExpiresAt", s.RefreshExpiresAt),
			domain.Eq("lastActive", s.LastActive),
		))
		removed += n
		if err != nil {
			return removed, fmt.Errorf("failed to delete sessions: %w", err)
		}
	}
	return removed, nil
}
