package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/featureflags"
	"github.com/wencestudios/freelancehub/internal/handler"
	"github.com/wencestudios/freelancehub/internal/infrastructure/logger"
	"github.com/wencestudios/freelancehub/internal/infrastructure/memstore"
	"github.com/wencestudios/freelancehub/internal/infrastructure/postgres"
	"github.com/wencestudios/freelancehub/internal/infrastructure/redis"
	"github.com/wencestudios/freelancehub/internal/observability/tracing"
	"github.com/wencestudios/freelancehub/internal/reliability/retry"
	"github.com/wencestudios/freelancehub/internal/reliability/storehandle"
	"github.com/wencestudios/freelancehub/internal/repository"
	"github.com/wencestudios/freelancehub/internal/security"
	"github.com/wencestudios/freelancehub/internal/security/audit"
	"github.com/wencestudios/freelancehub/internal/security/auth"
	"github.com/wencestudios/freelancehub/internal/security/ratelimit"
	"github.com/wencestudios/freelancehub/internal/service"
	"github.com/wencestudios/freelancehub/internal/worker"
	"github.com/wencestudios/freelancehub/pkg/config"
	"github.com/wencestudios/freelancehub/pkg/database"
)

// bus is what the notification store publishes to and the stream reads from.
type bus interface {
	service.Publisher
	handler.Subscriber
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting freelancehub server",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.StoreDriver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "freelancehub", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Document store and notification bus
	connectRetry := &retry.Config{
		MaxAttempts:       cfg.StoreMaxAttempts,
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
	backend, notifyBus, closeStore, err := openStore(ctx, cfg, connectRetry, log)
	if err != nil {
		log.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	store := storehandle.New(backend, storehandle.Options{
		Retry: &retry.Config{
			MaxAttempts:       cfg.StoreMaxAttempts,
			InitialBackoff:    cfg.StoreInitialBackoff,
			MaxBackoff:        cfg.StoreMaxBackoff,
			BackoffMultiplier: 2.0,
		},
		FailureThreshold: cfg.BreakerFailures,
		Cooldown:         cfg.BreakerCooldown,
	}, log)

	// 5. Repositories
	clock := domain.SystemClock{}
	users := repository.NewUserRepository(store, cfg.UserCacheTTL, log).WithClock(clock.Now)
	sessionRepo := repository.NewSessionRepository(store, log)
	jobRepo := repository.NewJobRepository(store, log)
	bidRepo := repository.NewBidRepository(store, log)
	notificationRepo := repository.NewNotificationRepository(store, log)

	// 6. Security components
	secret := cfg.ResetTokenSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn("RESET_TOKEN_SECRET not set, using an ephemeral secret")
	}
	tokenManager := auth.NewTokenManager(secret, "freelancehub")
	auditLog := audit.NewLogger(log)
	authz := security.NewAuthorizationService(log)
	loginLimiter := ratelimit.NewLimiter(cfg.LoginRateLimit, time.Minute)
	apiLimiter := ratelimit.NewLimiter(cfg.APIRateLimit, time.Minute)

	// 7. Services
	random := domain.CryptoRandom{}
	sessions := service.NewSessionManager(sessionRepo, clock, random, service.SessionConfig{
		AccessTTL:        cfg.AccessTokenTTL,
		RefreshTTL:       cfg.RefreshTokenTTL,
		KeepRefreshToken: featureflags.Enabled(featureflags.KeepRefreshToken),
	}, auditLog, log)
	authService := service.NewAuthService(users, sessions, tokenManager, service.LogMailer{Logger: log},
		clock, random, cfg.ResetTokenTTL, auditLog, log)
	notifications := service.NewNotificationStore(notificationRepo, notifyBus, clock, log)
	jobs := service.NewJobService(jobRepo, authz, clock, random, log).WithNotifications(bidRepo, notifications)
	bids := service.NewBidEngine(bidRepo, jobRepo, users, notifications, authz, auditLog, clock, random, log)

	// 8. HTTP routes
	deps := handler.RouterDeps{
		Auth:          authService,
		Sessions:      sessions,
		Jobs:          jobs,
		Bids:          bids,
		Notifications: notifications,
		Health:        map[string]handler.Pinger{"store": store},
		Audit:         auditLog,
		LoginLimiter:  loginLimiter,
		APILimiter:    apiLimiter,
		Origins:       cfg.CORSAllowedOrigins,
		Logger:        log,
	}
	if featureflags.Enabled(featureflags.NotificationStream) {
		deps.Stream = notifyBus
	}

	// 9. Session sweeper
	sweeper := worker.NewSessionSweeper(sessionRepo, clock, log, cfg.SweepInterval, cfg.SessionRetention).
		WithCaches(users)
	go sweeper.Start(ctx)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	if deps.Stream != nil {
		// Websocket streams outlive any fixed write timeout.
		server.WriteTimeout = 0
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("login_rate_limit", cfg.LoginRateLimit),
		slog.Int("api_rate_limit", cfg.APIRateLimit),
		slog.Bool("notification_stream", deps.Stream != nil),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop the sweeper and live subscriptions
	loginLimiter.Stop()
	apiLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// openStore connects the configured backend. The returned close function
// releases its connections.
func openStore(ctx context.Context, cfg *config.Config, connect *retry.Config, log *slog.Logger) (domain.DocumentStore, bus, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL, connect, log)
		if err != nil {
			return nil, nil, nil, err
		}
		store := redis.NewDocStore(client, cfg.RedisKeyPrefix, log, repository.Collections()...)
		b := redis.NewNotificationBus(client, cfg.RedisKeyPrefix, log)
		return store, b, func() { _ = client.Close() }, nil

	case config.DriverPostgres:
		pool, err := database.Open(ctx, database.Config{
			DSN:          cfg.DatabaseURL,
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		}, log)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool.DB().DB); err != nil {
			_ = pool.Close()
			return nil, nil, nil, err
		}
		return postgres.NewDocStore(pool.DB(), log), memstore.NewBus(), func() { _ = pool.Close() }, nil

	default:
		log.Warn("using the in-memory store; data is lost on restart")
		return memstore.New(repository.Collections()...), memstore.NewBus(), func() {}, nil
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate secret: %v", err))
	}
	return hex.EncodeToString(buf)
}
