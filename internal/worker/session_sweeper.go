package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/observability/metrics"
)

// SessionStore is the slice of the session repository the sweeper needs.
type SessionStore interface {
	ListAll(ctx context.Context) ([]domain.Session, error)
	DeleteUnchanged(ctx context.Context, snapshot []domain.Session) (int64, error)
}

// CachePurger is a read cache whose expired entries the sweeper drops on
// every pass.
type CachePurger interface {
	PurgeCache() int
}

// SessionSweeper periodically removes session records that can no longer be
// used: deactivated sessions and sessions whose refresh token expired, once
// they are older than the retention window.
type SessionSweeper struct {
	sessions  SessionStore
	clock     domain.Clock
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	batchSize int
	caches    []CachePurger
}

// NewSessionSweeper creates a new sweeper
func NewSessionSweeper(
	sessions SessionStore,
	clock domain.Clock,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *SessionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweeper{
		sessions:  sessions,
		clock:     clock,
		logger:    logger,
		interval:  interval,
		retention: retention,
		batchSize: 500,
	}
}

// WithCaches registers caches to purge alongside each sweep.
func (w *SessionSweeper) WithCaches(caches ...CachePurger) *SessionSweeper {
	w.caches = append(w.caches, caches...)
	return w
}

// Start runs the sweep loop until ctx is cancelled.
func (w *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("session sweeper started",
		slog.Duration("interval", w.interval),
		slog.Duration("retention", w.retention),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("session sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep deletes every stale session and returns how many were removed.
func (w *SessionSweeper) Sweep(ctx context.Context) (int64, error) {
	w.purgeCaches()

	all, err := w.sessions.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := w.clock.Now().Add(-w.retention)
	var stale []domain.Session
	for i := range all {
		if w.stale(&all[i], cutoff) {
			stale = append(stale, all[i])
		}
	}

	var removed int64
	for start := 0; start < len(stale); start += w.batchSize {
		end := min(start+w.batchSize, len(stale))
		n, err := w.sessions.DeleteUnchanged(ctx, stale[start:end])
		removed += n
		if err != nil {
			metrics.AddSessionsSwept(int(removed))
			return removed, err
		}
	}
	metrics.AddSessionsSwept(int(removed))

	if removed > 0 {
		w.logger.Info("swept stale sessions",
			slog.Int64("removed", removed),
			slog.Int("scanned", len(all)),
		)
	}
	return removed, nil
}

func (w *SessionSweeper) purgeCaches() {
	purged := 0
	for _, c := range w.caches {
		purged += c.PurgeCache()
	}
	if purged > 0 {
		w.logger.Debug("purged expired cache entries", slog.Int("purged", purged))
	}
}

func (w *SessionSweeper) stale(s *domain.Session, cutoff time.Time) bool {
	if s.RefreshExpiresAt.Before(cutoff) {
		return true
	}
	if s.IsActive {
		return false
	}
	ended := s.LastActive
	if s.InvalidatedAt != nil {
		ended = *s.InvalidatedAt
	}
	return ended.Before(cutoff)
}
