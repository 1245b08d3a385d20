package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/infrastructure/memstore"
	"github.com/wencestudios/freelancehub/internal/repository"
	"github.com/wencestudios/freelancehub/internal/security"
	"github.com/wencestudios/freelancehub/internal/security/audit"
	"github.com/wencestudios/freelancehub/internal/security/auth"
	"github.com/wencestudios/freelancehub/internal/testutil"
)

type harness struct {
	store         domain.DocumentStore
	clock         *testutil.ManualClock
	random        *testutil.SeqRandom
	users         *repository.UserRepository
	sessionRepo   *repository.SessionRepository
	jobRepo       *repository.JobRepository
	bidRepo       *repository.BidRepository
	notifRepo     *repository.NotificationRepository
	sessions      *SessionManager
	auth          *AuthService
	jobs          *JobService
	bids          *BidEngine
	notifications *NotificationStore
	mailer        *mockMailer
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	session   SessionConfig
	store     func(domain.DocumentStore) domain.DocumentStore
	publisher Publisher
}

func withSessionConfig(cfg SessionConfig) harnessOption {
	return func(c *harnessConfig) { c.session = cfg }
}

// withStore wraps the in-memory store, e.g. to inject failures.
func withStore(wrap func(domain.DocumentStore) domain.DocumentStore) harnessOption {
	return func(c *harnessConfig) { c.store = wrap }
}

func withPublisher(p Publisher) harnessOption {
	return func(c *harnessConfig) { c.publisher = p }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{session: DefaultSessionConfig()}
	for _, o := range opts {
		o(&cfg)
	}

	var store domain.DocumentStore = memstore.New(repository.Collections()...)
	if cfg.store != nil {
		store = cfg.store(store)
	}
	if cfg.publisher == nil {
		cfg.publisher = memstore.NewBus()
	}

	logger := testutil.DiscardLogger()
	clock := testutil.NewClock()
	random := &testutil.SeqRandom{}
	auditLog := audit.NewLogger(logger)
	authz := security.NewAuthorizationService(logger)

	h := &harness{
		store:       store,
		clock:       clock,
		random:      random,
		users:       repository.NewUserRepository(store, time.Minute, logger),
		sessionRepo: repository.NewSessionRepository(store, logger),
		jobRepo:     repository.NewJobRepository(store, logger),
		bidRepo:     repository.NewBidRepository(store, logger),
		notifRepo:   repository.NewNotificationRepository(store, logger),
		mailer:      &mockMailer{},
	}
	h.sessions = NewSessionManager(h.sessionRepo, clock, random, cfg.session, auditLog, logger)
	tokens := auth.NewTokenManager("test-secret", "freelancehub-test").WithClock(clock.Now)
	h.auth = NewAuthService(h.users, h.sessions, tokens, h.mailer, clock, random, 30*time.Minute, auditLog, logger).
		WithHashCost(bcrypt.MinCost)
	h.notifications = NewNotificationStore(h.notifRepo, cfg.publisher, clock, logger)
	h.jobs = NewJobService(h.jobRepo, authz, clock, random, logger).WithNotifications(h.bidRepo, h.notifications)
	h.bids = NewBidEngine(h.bidRepo, h.jobRepo, h.users, h.notifications, authz, auditLog, clock, random, logger)
	return h
}

func (h *harness) seedUser(t *testing.T, id string, userType domain.UserType, name string) Actor {
	t.Helper()
	require.NoError(t, h.users.Create(context.Background(), &domain.User{
		UserID:   id,
		Email:    id + "@example.com",
		UserType: userType,
		Name:     name,
		Rating:   4.5,
		Status:   "active",
	}))
	return Actor{UserID: id, UserType: userType}
}

func (h *harness) seedJob(t *testing.T, employer Actor, title string) *domain.Job {
	t.Helper()
	job, err := h.jobs.CreateJob(context.Background(), employer, JobInput{
		Title:       title,
		Description: title + " description",
		Budget:      decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	return job
}

func (h *harness) notificationsOf(t *testing.T, userID string, kind domain.NotificationType) []domain.Notification {
	t.Helper()
	all, err := h.notifications.List(context.Background(), userID)
	require.NoError(t, err)
	var out []domain.Notification
	for _, n := range all {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
