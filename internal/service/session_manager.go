package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/observability/metrics"
	"github.com/wencestudios/freelancehub/internal/repository"
	"github.com/wencestudios/freelancehub/internal/security/audit"
)

// tokenBytes is the entropy of every access and refresh token.
const tokenBytes = 32

// slotAttempts bounds how often CreateSession re-reads a contended slot.
const slotAttempts = 3

// SessionConfig controls token lifetimes and refresh behaviour.
type SessionConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// KeepRefreshToken rotates only the access token on refresh.
	KeepRefreshToken bool
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{AccessTTL: 12 * time.Hour, RefreshTTL: 7 * 24 * time.Hour}
}

// DeviceInfo describes the client presenting credentials.
type DeviceInfo struct {
	DeviceID   string
	DeviceType string
	UserAgent  string
	IP         string
	Language   string
}

// Fingerprint returns DeviceID, or a digest of the client's user agent,
// address and language when the client did not name itself.
func (d DeviceInfo) Fingerprint() string {
	if d.DeviceID != "" {
		return d.DeviceID
	}
	sum := sha256.Sum256([]byte(orUnknown(d.UserAgent) + "|" + orUnknown(d.IP) + "|" + orUnknown(d.Language)))
	return hex.EncodeToString(sum[:])
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// IssuedSession is a session together with the plaintext credentials that
// were just minted for it. Plaintext tokens are never stored.
type IssuedSession struct {
	Session          *domain.Session `json:"-"`
	SessionID        string          `json:"sessionId"`
	UserID           string          `json:"userId"`
	UserType         domain.UserType `json:"userType"`
	AccessToken      string          `json:"accessToken"`
	RefreshToken     string          `json:"refreshToken"`
	ExpiresAt        time.Time       `json:"expiresAt"`
	RefreshExpiresAt time.Time       `json:"refreshExpiresAt"`
}

// SessionManager issues, validates, rotates and revokes sessions.
type SessionManager struct {
	sessions *repository.SessionRepository
	clock    domain.Clock
	random   domain.RandomSource
	cfg      SessionConfig
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewSessionManager(
	sessions *repository.SessionRepository,
	clock domain.Clock,
	random domain.RandomSource,
	cfg SessionConfig,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	def := DefaultSessionConfig()
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	return &SessionManager{
		sessions: sessions,
		clock:    clock,
		random:   random,
		cfg:      cfg,
		audit:    auditLog,
		logger:   logger,
	}
}

// HashToken is the digest under which a token is stored and looked up.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (m *SessionManager) newToken() (string, error) {
	tok, err := domain.RandomHex(m.random, tokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tok, nil
}

// CreateSession issues fresh credentials for a user on a platform. An
// active session already holding the (user, platform) slot is updated in
// place and the device is appended to, or touched in, its device list.
func (m *SessionManager) CreateSession(ctx context.Context, userID string, userType domain.UserType, platform domain.Platform, device DeviceInfo) (*IssuedSession, error) {
	if platform == "" {
		platform = domain.PlatformWeb
	}
	if userID == "" || !userType.Valid() || !platform.Valid() {
		return nil, domain.Invalid("user, user type and platform are required")
	}

	access, err := m.newToken()
	if err != nil {
		return nil, err
	}
	refresh, err := m.newToken()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	dev := domain.Device{
		DeviceID:   device.Fingerprint(),
		DeviceType: device.DeviceType,
		UserAgent:  device.UserAgent,
		IP:         device.IP,
		Language:   device.Language,
		LastActive: now,
	}
	if dev.DeviceType == "" {
		dev.DeviceType = string(platform)
	}
	expiresAt := now.Add(m.cfg.AccessTTL)
	refreshExpiresAt := now.Add(m.cfg.RefreshTTL)

	for attempt := 0; attempt < slotAttempts; attempt++ {
		existing, err := m.sessions.GetActiveSlot(ctx, userID, platform)
		switch {
		case err == nil:
			existing.Devices = existing.WithDevice(dev)
			existing.UserType = userType
			existing.AccessTokenHash = HashToken(access)
			existing.RefreshTokenHash = HashToken(refresh)
			existing.ExpiresAt = expiresAt
			existing.RefreshExpiresAt = refreshExpiresAt
			existing.LastActive = now
			ok, err := m.sessions.UpdateActive(ctx, existing.SessionID, domain.Patch{
				"userType":         userType,
				"accessTokenHash":  existing.AccessTokenHash,
				"refreshTokenHash": existing.RefreshTokenHash,
				"expiresAt":        expiresAt,
				"refreshExpiresAt": refreshExpiresAt,
				"lastActive":       now,
				"devices":          existing.Devices,
			})
			if err != nil {
				metrics.ObserveSession("create", "error")
				return nil, err
			}
			if !ok {
				continue
			}
			metrics.ObserveSession("create", "reused")
			m.audit.LogSession(ctx, userID, "login", existing.SessionID, audit.StatusSuccess, "session reused")
			return issued(existing, access, refresh), nil

		case errors.Is(err, domain.ErrNotFound):
			s := &domain.Session{
				SessionID:        uuid.NewString(),
				UserID:           userID,
				UserType:         userType,
				Platform:         platform,
				AccessTokenHash:  HashToken(access),
				RefreshTokenHash: HashToken(refresh),
				IsActive:         true,
				ActiveSlot:       domain.SlotFor(userID, platform),
				ExpiresAt:        expiresAt,
				RefreshExpiresAt: refreshExpiresAt,
				Devices:          []domain.Device{dev},
				CreatedAt:        now,
				LastActive:       now,
			}
			err := m.sessions.Create(ctx, s)
			if errors.Is(err, domain.ErrDuplicate) {
				continue
			}
			if err != nil {
				metrics.ObserveSession("create", "error")
				return nil, err
			}
			metrics.ObserveSession("create", "created")
			m.audit.LogSession(ctx, userID, "login", s.SessionID, audit.StatusSuccess, "session created")
			return issued(s, access, refresh), nil

		default:
			metrics.ObserveSession("create", "error")
			return nil, fmt.Errorf("failed to look up session: %w", err)
		}
	}
	metrics.ObserveSession("create", "conflict")
	return nil, fmt.Errorf("session for %s on %s kept changing: %w", userID, platform, domain.ErrDuplicate)
}

func issued(s *domain.Session, access, refresh string) *IssuedSession {
	return &IssuedSession{
		Session:          s,
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		UserType:         s.UserType,
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresAt:        s.ExpiresAt,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}

// ValidateSession resolves an access token to its active session. When no
// access token is presented but a live refresh token is, the caller is told
// the session expired so that it uses the refresh flow.
func (m *SessionManager) ValidateSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	now := m.clock.Now()

	if accessToken == "" {
		if refreshToken == "" {
			return nil, domain.ErrUnauthenticated
		}
		s, err := m.sessions.GetByRefreshHash(ctx, HashToken(refreshToken))
		if err != nil {
			return nil, lookupError(err, domain.ErrInvalidSession)
		}
		if s.RefreshExpired(now) {
			return nil, domain.ErrInvalidSession
		}
		return nil, domain.ErrSessionExpired
	}

	s, err := m.sessions.GetByAccessHash(ctx, HashToken(accessToken))
	if err != nil {
		return nil, lookupError(err, domain.ErrInvalidSession)
	}
	if s.Expired(now) {
		return nil, domain.ErrSessionExpired
	}
	return s, nil
}

// lookupError maps a missing session to notFound and wraps anything else.
func lookupError(err, notFound error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("failed to look up session: %w", err)
}

// RefreshSession exchanges a refresh token for a new access token and, unless
// configured otherwise, a new refresh token. The exchange is a conditional
// update on the presented refresh token, so concurrent refreshes with the
// same token have exactly one winner.
func (m *SessionManager) RefreshSession(ctx context.Context, refreshToken string) (*IssuedSession, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		metrics.ObserveSession("refresh", "rejected")
		return nil, domain.ErrInvalidOrExpiredRefreshToken
	}
	oldHash := HashToken(refreshToken)
	now := m.clock.Now()

	s, err := m.sessions.GetByRefreshHash(ctx, oldHash)
	if err != nil {
		metrics.ObserveSession("refresh", "rejected")
		return nil, lookupError(err, domain.ErrInvalidOrExpiredRefreshToken)
	}
	if s.RefreshExpired(now) {
		metrics.ObserveSession("refresh", "rejected")
		return nil, domain.ErrInvalidOrExpiredRefreshToken
	}

	access, err := m.newToken()
	if err != nil {
		return nil, err
	}
	s.AccessTokenHash = HashToken(access)
	s.ExpiresAt = now.Add(m.cfg.AccessTTL)
	s.LastActive = now
	patch := domain.Patch{
		"accessTokenHash": s.AccessTokenHash,
		"expiresAt":       s.ExpiresAt,
		"lastActive":      now,
	}

	newRefresh := refreshToken
	if !m.cfg.KeepRefreshToken {
		if newRefresh, err = m.newToken(); err != nil {
			return nil, err
		}
		s.RefreshTokenHash = HashToken(newRefresh)
		s.RefreshExpiresAt = now.Add(m.cfg.RefreshTTL)
		patch["refreshTokenHash"] = s.RefreshTokenHash
		patch["refreshExpiresAt"] = s.RefreshExpiresAt
	}

	ok, err := m.sessions.UpdateActive(ctx, s.SessionID, patch, domain.Eq("refreshTokenHash", oldHash))
	if err != nil {
		metrics.ObserveSession("refresh", "error")
		return nil, err
	}
	if !ok {
		metrics.ObserveSession("refresh", "rejected")
		m.audit.LogSession(ctx, s.UserID, "refresh", s.SessionID, audit.StatusFailure, "refresh token already used")
		return nil, domain.ErrInvalidOrExpiredRefreshToken
	}

	metrics.ObserveSession("refresh", "success")
	m.audit.LogSession(ctx, s.UserID, "refresh", s.SessionID, audit.StatusSuccess, "")
	return issued(s, access, newRefresh), nil
}

// InvalidateSession deactivates the session holding accessToken.
func (m *SessionManager) InvalidateSession(ctx context.Context, accessToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return domain.ErrUnauthenticated
	}
	ok, err := m.sessions.DeactivateByAccessHash(ctx, HashToken(accessToken), m.clock.Now())
	if err != nil {
		metrics.ObserveSession("invalidate", "error")
		return err
	}
	if !ok {
		metrics.ObserveSession("invalidate", "rejected")
		return domain.ErrInvalidSession
	}
	metrics.ObserveSession("invalidate", "success")
	return nil
}

// InvalidateAllSessionsForUser deactivates every active session of userID
// and returns how many were ended.
func (m *SessionManager) InvalidateAllSessionsForUser(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.Invalid("user id is required")
	}
	n, err := m.sessions.DeactivateAllForUser(ctx, userID, m.clock.Now())
	if err != nil {
		metrics.ObserveSession("invalidate_all", "error")
		return 0, err
	}
	metrics.ObserveSession("invalidate_all", "success")
	m.audit.LogSession(ctx, userID, "invalidate_all", "", audit.StatusSuccess, fmt.Sprintf("%d sessions ended", n))
	return n, nil
}
