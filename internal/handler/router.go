package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wencestudios/freelancehub/internal/observability/metrics"
	"github.com/wencestudios/freelancehub/internal/security/audit"
	"github.com/wencestudios/freelancehub/internal/security/middleware"
	"github.com/wencestudios/freelancehub/internal/security/ratelimit"
	"github.com/wencestudios/freelancehub/internal/service"
)

// RouterDeps is everything NewRouter wires into the HTTP surface.
type RouterDeps struct {
	Auth          *service.AuthService
	Sessions      *service.SessionManager
	Jobs          *service.JobService
	Bids          *service.BidEngine
	Notifications *service.NotificationStore
	Stream        Subscriber // nil disables /ws/notifications
	Health        map[string]Pinger
	Audit         *audit.Logger
	LoginLimiter  *ratelimit.Limiter
	APILimiter    *ratelimit.Limiter
	Origins       []string
	Logger        *slog.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	authH := NewAuthHandler(d.Auth, d.Sessions, log)
	jobH := NewJobHandler(d.Jobs, log)
	bidH := NewBidHandler(d.Bids, log)
	noteH := NewNotificationHandler(d.Notifications, log)
	healthH := NewHealthHandler(d.Health, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors(d.Origins))
	r.Use(metrics.HTTPMetricsMiddleware)

	r.Get("/healthz", healthH.Health)
	r.Get("/readyz", healthH.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SanitizeInputs(log))
		r.Use(middleware.LimitBody(middleware.DefaultMaxBodyBytes))
		r.Use(middleware.ValidateJSONContentType(log))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(d.LoginLimiter, log))
			r.Post("/auth/register", authH.Register)
			r.Post("/auth/login", authH.Login)
			r.Post("/auth/refresh", authH.Refresh)
			r.Post("/auth/logout", authH.Logout)
			r.Get("/auth/status", authH.Status)
			r.Post("/auth/password/forgot", authH.ForgotPassword)
			r.Post("/auth/password/reset", authH.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Sessions, log))
			r.Use(middleware.RateLimitByUser(d.APILimiter, log))
			r.Use(middleware.AuditMiddleware(d.Audit))

			r.Post("/auth/password/change", authH.ChangePassword)
			r.Post("/auth/sessions/revoke-all", authH.RevokeAll)

			r.Get("/jobs", jobH.ListOpen)
			r.Post("/jobs", jobH.Create)
			r.Get("/jobs/mine", jobH.ListMine)
			r.Get("/jobs/{jobID}", jobH.Get)
			r.Patch("/jobs/{jobID}/status", jobH.UpdateStatus)
			r.Post("/jobs/{jobID}/bids", bidH.Submit)
			r.Get("/jobs/{jobID}/bids", bidH.ListForJob)
			r.Get("/jobs/{jobID}/bids/mine", bidH.CheckMine)

			r.Get("/bids/mine", bidH.ListMine)
			r.Get("/bids/accepted", bidH.ListAccepted)
			r.Post("/bids/{bidID}/accept", bidH.Accept)
			r.Post("/bids/{bidID}/decline", bidH.Decline)
			r.Post("/bids/{bidID}/cancel", bidH.Cancel)
			r.Get("/employer/bids", bidH.ListForEmployer)

			r.Get("/notifications", noteH.List)
			r.Delete("/notifications", noteH.Clear)
			r.Get("/notifications/unread-count", noteH.UnreadCount)
			r.Post("/notifications/read-all", noteH.MarkAllRead)
			r.Post("/notifications/{id}/read", noteH.MarkRead)
			r.Delete("/notifications/{id}", noteH.Delete)
		})
	})

	if d.Stream != nil {
		r.With(middleware.Authenticate(d.Sessions, log)).
			Method(http.MethodGet, "/ws/notifications", NewStreamHandler(d.Stream, d.Origins, log))
	}

	return otelhttp.NewHandler(r, "freelancehub",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			reqID := chimw.GetReqID(r.Context())
			ww.Header().Set("X-Request-ID", reqID)

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func cors(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Accept, Authorization, "+middleware.RefreshTokenHeader+", X-Device-Id, X-Device-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
