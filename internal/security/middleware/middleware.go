package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/handler/respond"
	"github.com/wencestudios/freelancehub/internal/security/audit"
	"github.com/wencestudios/freelancehub/internal/security/auth"
	"github.com/wencestudios/freelancehub/internal/security/ratelimit"
)

// RefreshTokenHeader optionally carries the refresh token next to the bearer
// access token so that an expired access token can be reported as such.
const RefreshTokenHeader = "X-Refresh-Token"

type sessionContextKey struct{}

// SessionValidator resolves bearer credentials to a session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error)
}

// Authenticate requires a valid bearer access token and stores the session
// in the request context.
func Authenticate(v SessionValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access := ""
			if header := r.Header.Get("Authorization"); header != "" {
				tok, err := auth.ExtractToken(header)
				if err != nil {
					respond.Message(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Code, "invalid authorization header")
					return
				}
				access = tok
			}
			if access == "" && websocketUpgrade(r) {
				access = r.URL.Query().Get("token")
			}

			sess, err := v.ValidateSession(r.Context(), access, r.Header.Get(RefreshTokenHeader))
			if err != nil {
				log.Debug("request not authenticated",
					slog.String("path", r.URL.Path),
					slog.String("code", domain.CodeOf(err)),
				)
				respond.Error(w, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *domain.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// GetSession returns the authenticated session, nil outside Authenticate.
func GetSession(ctx context.Context) *domain.Session {
	if s, ok := ctx.Value(sessionContextKey{}).(*domain.Session); ok {
		return s
	}
	return nil
}

// ClientIP is the request's remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitByIP throttles requests per client address.
func RateLimitByIP(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return rateLimit(limiter, log, func(r *http.Request) string { return "ip:" + ClientIP(r) })
}

// RateLimitByUser throttles authenticated requests per user, falling back to
// the client address.
func RateLimitByUser(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return rateLimit(limiter, log, func(r *http.Request) string {
		if s := GetSession(r.Context()); s != nil {
			return "user:" + s.UserID
		}
		return "ip:" + ClientIP(r)
	})
}

func rateLimit(limiter *ratelimit.Limiter, log *slog.Logger, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			ok, retryAfter := limiter.Allow(k)
			if !ok {
				log.Warn("rate limit exceeded",
					slog.String("key", k),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)+1))
				respond.Message(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records every mutating request made with a session.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				if s := GetSession(r.Context()); s != nil {
					auditLog.LogAction(r.Context(), s.UserID, strings.ToLower(r.Method), "api", r.URL.Path, "initiated", "")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
