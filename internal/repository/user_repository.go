package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/pkg/cache"
)

// UserRepository reads and writes user accounts. Lookups by id are served
// from a short-lived cache; password changes evict the entry.
type UserRepository struct {
	store  domain.DocumentStore
	cache  *cache.Cache[domain.User]
	ttl    time.Duration
	logger *slog.Logger
}

// NewUserRepository creates a new user repository. A zero ttl disables caching.
func NewUserRepository(store domain.DocumentStore, ttl time.Duration, logger *slog.Logger) *UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepository{
		store:  store,
		cache:  cache.New[domain.User](),
		ttl:    ttl,
		logger: logger,
	}
}

// WithClock makes cache expiry follow the given time source.
func (r *UserRepository) WithClock(now func() time.Time) *UserRepository {
	r.cache.WithClock(now)
	return r
}

// PurgeCache drops expired cache entries and returns how many were removed.
func (r *UserRepository) PurgeCache() int {
	return r.cache.Purge()
}

// Create stores a new user. A taken email yields ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = domain.NormalizeEmail(user.Email)
	if err := r.store.InsertOne(ctx, Users, user.UserID, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ErrEmailTaken
		}
		r.logger.Error("failed to create user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if r.ttl > 0 {
		if u, ok := r.cache.Get(id); ok {
			return &u, nil
		}
	}
	var user domain.User
	if err := r.store.FindOne(ctx, Users, domain.Where(domain.Eq("userId", id)), &user); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if r.ttl > 0 {
		r.cache.Set(id, user, r.ttl)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.store.FindOne(ctx, Users, domain.Where(domain.Eq("email", domain.NormalizeEmail(email))), &user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string, now time.Time) error {
	res, err := r.store.UpdateOne(ctx, Users, domain.Where(domain.Eq("userId", userID)), domain.Patch{
		"hashedPassword":     hash,
		"lastPasswordChange": now,
		"updatedAt":          now,
	})
	r.cache.Delete(userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if res.Matched == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
