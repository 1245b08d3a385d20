package service

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/repository"
	"github.com/wencestudios/freelancehub/internal/security/audit"
	"github.com/wencestudios/freelancehub/internal/security/auth"
)

const minPasswordLength = 8

// userIDEncoding renders random user id suffixes.
var userIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Mailer delivers password reset links. Delivery itself happens outside the core.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset requests to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, _ string) error {
	log := m.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("password reset requested", slog.String("email", email))
	return nil
}

// AuthService handles account registration, login and password flows.
type AuthService struct {
	users    *repository.UserRepository
	sessions *SessionManager
	tokens   *auth.TokenManager
	mailer   Mailer
	clock    domain.Clock
	random   domain.RandomSource
	resetTTL time.Duration
	audit    *audit.Logger
	logger   *slog.Logger
	cost     int
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users *repository.UserRepository,
	sessions *SessionManager,
	tokens *auth.TokenManager,
	mailer Mailer,
	clock domain.Clock,
	random domain.RandomSource,
	resetTTL time.Duration,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	if resetTTL <= 0 {
		resetTTL = 30 * time.Minute
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		mailer:   mailer,
		clock:    clock,
		random:   random,
		resetTTL: resetTTL,
		audit:    auditLog,
		logger:   logger,
		cost:     bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// RegisterInput is the signup request.
type RegisterInput struct {
	Email    string
	Password string
	UserType domain.UserType
	Name     string
	Phone    string
	Country  string
	Platform domain.Platform
	Device   DeviceInfo
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User    *domain.User   `json:"user"`
	Session *IssuedSession `json:"session"`
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (s *AuthService) newUserID() (string, error) {
	buf, err := s.random.RandomBytes(7)
	if err != nil {
		return "", err
	}
	return "usr_" + strings.ToLower(userIDEncoding.EncodeToString(buf))[:10], nil
}

// Register creates a new account and signs it in on the requesting platform.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := domain.NormalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, domain.Invalid("a valid email is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, domain.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if !in.UserType.Valid() {
		return nil, domain.Invalid("user type must be writer or employer")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	id, err := s.newUserID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	now := s.clock.Now()
	user := &domain.User{
		UserID:             id,
		Email:              email,
		PasswordHash:       string(hash),
		UserType:           in.UserType,
		Name:               strings.TrimSpace(in.Name),
		Phone:              in.Phone,
		Country:            in.Country,
		Status:             "active",
		LastPasswordChange: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	issued, err := s.sessions.CreateSession(ctx, user.UserID, user.UserType, in.Platform, in.Device)
	if err != nil {
		return nil, err
	}
	s.audit.LogAction(ctx, user.UserID, "register", "user", user.UserID, audit.StatusSuccess, string(user.UserType))
	s.logger.Info("user registered",
		slog.String("user_id", user.UserID),
		slog.String("user_type", string(user.UserType)),
	)
	return &AuthResult{User: user, Session: issued}, nil
}

// Login verifies credentials and issues a session. Unknown emails, wrong
// passwords and a mismatched user type are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string, userType domain.UserType, platform domain.Platform, device DeviceInfo) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" || !userType.Valid() {
		return nil, domain.Invalid("email, password and user type are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Info("login attempt with unknown email")
			s.audit.LogSession(ctx, "", "login", "", audit.StatusFailure, "unknown email")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.UserType != userType {
		s.audit.LogSession(ctx, user.UserID, "login", "", audit.StatusFailure, "user type mismatch")
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit.LogSession(ctx, user.UserID, "login", "", audit.StatusFailure, "wrong password")
		return nil, domain.ErrInvalidCredentials
	}

	issued, err := s.sessions.CreateSession(ctx, user.UserID, user.UserType, platform, device)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", slog.String("user_id", user.UserID))
	return &AuthResult{User: user, Session: issued}, nil
}

// Logout ends the session holding accessToken.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	sess, err := s.sessions.ValidateSession(ctx, accessToken, "")
	if err != nil && !errors.Is(err, domain.ErrSessionExpired) {
		return err
	}
	if err := s.sessions.InvalidateSession(ctx, accessToken); err != nil {
		return err
	}
	userID := ""
	if sess != nil {
		userID = sess.UserID
	}
	s.audit.LogSession(ctx, userID, "logout", "", audit.StatusSuccess, "")
	return nil
}

// AuthStatus describes the caller's current session.
type AuthStatus struct {
	Authenticated bool            `json:"authenticated"`
	UserID        string          `json:"userId"`
	UserType      domain.UserType `json:"userType"`
	Name          string          `json:"name,omitempty"`
	Platform      domain.Platform `json:"platform"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

// Status validates the access token and reports who it belongs to.
func (s *AuthService) Status(ctx context.Context, accessToken, refreshToken string) (*AuthStatus, error) {
	sess, err := s.sessions.ValidateSession(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	st := &AuthStatus{
		Authenticated: true,
		UserID:        sess.UserID,
		UserType:      sess.UserType,
		Platform:      sess.Platform,
		ExpiresAt:     sess.ExpiresAt,
	}
	if user, err := s.users.GetByID(ctx, sess.UserID); err == nil {
		st.Name = user.Name
	}
	return st, nil
}

// RequestPasswordReset mails a reset token. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}
	token, err := s.tokens.GenerateResetToken(user.UserID, user.Email, user.LastPasswordChange, s.resetTTL)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to send reset email",
			slog.String("user_id", user.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	s.audit.LogAction(ctx, user.UserID, "password_reset_requested", "user", user.UserID, audit.StatusSuccess, "")
	return nil
}

// ResetPassword applies a new password and ends every session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return domain.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	claims, err := s.tokens.ValidateResetToken(token)
	if err != nil {
		s.logger.Info("rejected reset token", slog.String("error", err.Error()))
		return domain.ErrInvalidResetToken
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrInvalidResetToken
		}
		return err
	}
	if user.LastPasswordChange.UnixNano() != claims.Stamp {
		return domain.ErrInvalidResetToken
	}
	if err := s.setPassword(ctx, user.UserID, newPassword); err != nil {
		return err
	}
	if _, err := s.sessions.InvalidateAllSessionsForUser(ctx, user.UserID); err != nil {
		return err
	}
	s.audit.LogAction(ctx, user.UserID, "password_reset", "user", user.UserID, audit.StatusSuccess, "")
	return nil
}

// ChangePassword changes a user's password
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return domain.Invalid(fmt.Sprintf("new password must be at least %d characters", minPasswordLength))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return domain.ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	s.logger.Info("user changed password", slog.String("user_id", userID))
	s.audit.LogAction(ctx, userID, "password_change", "user", userID, audit.StatusSuccess, "")
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, userID, string(hash), s.clock.Now())
}
