package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/handler/respond"
	"github.com/wencestudios/freelancehub/internal/security/auth"
	"github.com/wencestudios/freelancehub/internal/security/middleware"
	"github.com/wencestudios/freelancehub/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	sessions    *service.SessionManager
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, sessions *service.SessionManager, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
		validate:    newValidator(),
		logger:      logger,
	}
}

// RegisterRequest represents registration request
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	UserType string `json:"userType" validate:"required,oneof=writer employer"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone"`
	Country  string `json:"country"`
	Platform string `json:"platform" validate:"omitempty,oneof=web mobile"`
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	UserType string `json:"userType" validate:"required,oneof=writer employer"`
	Platform string `json:"platform" validate:"omitempty,oneof=web mobile"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		UserType: domain.UserType(req.UserType),
		Name:     req.Name,
		Phone:    req.Phone,
		Country:  req.Country,
		Platform: domain.Platform(req.Platform),
		Device:   deviceInfo(r),
	})
	if err != nil {
		h.logger.Info("registration failed", slog.String("code", domain.CodeOf(err)))
		respond.Error(w, h.logger, err)
		return
	}

	user := userView(result.User)
	respond.JSON(w, http.StatusCreated, AuthResponse{User: &user, Session: result.Session})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password,
		domain.UserType(req.UserType), domain.Platform(req.Platform), deviceInfo(r))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	user := userView(result.User)
	respond.JSON(w, http.StatusOK, AuthResponse{User: &user, Session: result.Session})
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	issued, err := h.sessions.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, AuthResponse{Session: issued})
}

func bearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrUnauthenticated
	}
	tok, err := auth.ExtractToken(header)
	if err != nil {
		return "", domain.ErrUnauthenticated
	}
	return tok, nil
}

// Logout handles POST /api/auth/logout. An expired access token can still log out.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tok, err := bearer(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.authService.Logout(r.Context(), tok); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Status handles GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	tok := ""
	if r.Header.Get("Authorization") != "" {
		var err error
		if tok, err = bearer(r); err != nil {
			respond.Error(w, h.logger, err)
			return
		}
	}
	st, err := h.authService.Status(r.Context(), tok, r.Header.Get(middleware.RefreshTokenHeader))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, st)
}

// ForgotPassword handles POST /api/auth/password/forgot. The response is
// the same whether or not the email belongs to an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]string{
		"message": "if the account exists, a reset link has been sent",
	})
}

// ResetPassword handles POST /api/auth/password/reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// ChangePassword handles POST /api/auth/password/change
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	var req ChangePasswordRequest
	if err := decode(r, h.validate, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.authService.ChangePassword(r.Context(), a.UserID, req.OldPassword, req.NewPassword); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// RevokeAll handles POST /api/auth/sessions/revoke-all
func (h *AuthHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	n, err := h.sessions.InvalidateAllSessionsForUser(r.Context(), a.UserID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"revoked": n})
}
