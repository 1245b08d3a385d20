// Package storehandle wraps a DocumentStore with the retry, circuit breaker,
// tracing and metrics policy every service goes through.
package storehandle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/observability/metrics"
	"github.com/wencestudios/freelancehub/internal/observability/tracing"
	"github.com/wencestudios/freelancehub/internal/reliability/circuitbreaker"
	"github.com/wencestudios/freelancehub/internal/reliability/retry"
)

// Options configures a Handle.
type Options struct {
	Retry            *retry.Config
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultOptions retries three times and opens the breaker after five
// consecutive failed calls for thirty seconds.
func DefaultOptions() Options {
	return Options{
		Retry: &retry.Config{
			MaxAttempts:       3,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
		},
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Handle is a domain.DocumentStore. Transient failures of idempotent
// operations are retried; inserts and increments run once because a lost
// reply cannot be told apart from a lost write. Failures that survive the
// policy surface as domain.ErrStoreUnavailable.
type Handle struct {
	next    domain.DocumentStore
	retry   *retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
	tracer  trace.Tracer
}

var _ domain.DocumentStore = (*Handle)(nil)

// New wraps next.
func New(next domain.DocumentStore, opts Options, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retry == nil {
		opts.Retry = DefaultOptions().Retry
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultOptions().Cooldown
	}
	breaker := circuitbreaker.NewCircuitBreaker(opts.FailureThreshold, 1, opts.Cooldown)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		metrics.SetBreakerState(int(to))
		logger.Warn("store circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &Handle{
		next:    next,
		retry:   opts.Retry,
		breaker: breaker,
		logger:  logger,
		tracer:  tracing.Tracer(),
	}
}

// Breaker exposes the breaker state for readiness reporting.
func (h *Handle) Breaker() *circuitbreaker.CircuitBreaker { return h.breaker }

// isDomainError reports errors that describe the data rather than the store.
func isDomainError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	kind := domain.KindOf(err)
	return kind != domain.KindInternal && kind != domain.KindStoreUnavailable
}

func run[T any](ctx context.Context, h *Handle, op, collection string, idempotent bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, span := h.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("db.collection", collection),
		attribute.String("db.operation", op),
	))
	defer span.End()
	start := time.Now()

	if !h.breaker.AllowRequest() {
		metrics.ObserveStoreOp(op, collection, "rejected", time.Since(start))
		span.SetStatus(codes.Error, "circuit open")
		return zero, fmt.Errorf("%s %s: %w", op, collection, domain.ErrStoreUnavailable)
	}

	attempt := func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err != nil && isDomainError(err) {
			return v, retry.Permanent(err)
		}
		return v, err
	}

	var (
		result T
		err    error
	)
	if idempotent {
		result, err = retry.Do(ctx, h.retry, h.logger, op+" "+collection, attempt)
	} else {
		result, err = fn(ctx)
	}

	switch {
	case err == nil:
		h.breaker.RecordSuccess()
		metrics.ObserveStoreOp(op, collection, "ok", time.Since(start))
		return result, nil
	case isDomainError(err):
		h.breaker.RecordSuccess()
		metrics.ObserveStoreOp(op, collection, "miss", time.Since(start))
		return zero, err
	default:
		h.breaker.RecordFailure()
		metrics.ObserveStoreOp(op, collection, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Error("store operation failed",
			slog.String("operation", op),
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		return zero, fmt.Errorf("%s %s: %w: %w", op, collection, domain.ErrStoreUnavailable, err)
	}
}

func (h *Handle) FindOne(ctx context.Context, collection string, f domain.Filter, out any) error {
	_, err := run(ctx, h, "find_one", collection, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.next.FindOne(ctx, collection, f, out)
	})
	return err
}

func (h *Handle) Find(ctx context.Context, collection string, f domain.Filter, out any) error {
	_, err := run(ctx, h, "find", collection, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.next.Find(ctx, collection, f, out)
	})
	return err
}

func (h *Handle) InsertOne(ctx context.Context, collection, id string, doc any) error {
	_, err := run(ctx, h, "insert_one", collection, false, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.next.InsertOne(ctx, collection, id, doc)
	})
	return err
}

func (h *Handle) UpdateOne(ctx context.Context, collection string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return run(ctx, h, "update_one", collection, true, func(ctx context.Context) (domain.UpdateResult, error) {
		return h.next.UpdateOne(ctx, collection, f, p)
	})
}

func (h *Handle) UpdateMany(ctx context.Context, collection string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return run(ctx, h, "update_many", collection, true, func(ctx context.Context) (domain.UpdateResult, error) {
		return h.next.UpdateMany(ctx, collection, f, p)
	})
}

func (h *Handle) DeleteOne(ctx context.Context, collection string, f domain.Filter) (int64, error) {
	return run(ctx, h, "delete_one", collection, true, func(ctx context.Context) (int64, error) {
		return h.next.DeleteOne(ctx, collection, f)
	})
}

func (h *Handle) DeleteMany(ctx context.Context, collection string, f domain.Filter) (int64, error) {
	return run(ctx, h, "delete_many", collection, true, func(ctx context.Context) (int64, error) {
		return h.next.DeleteMany(ctx, collection, f)
	})
}

func (h *Handle) Increment(ctx context.Context, collection string, f domain.Filter, field string, delta int64) (domain.UpdateResult, error) {
	return run(ctx, h, "increment", collection, false, func(ctx context.Context) (domain.UpdateResult, error) {
		return h.next.Increment(ctx, collection, f, field, delta)
	})
}

func (h *Handle) Ping(ctx context.Context) error {
	_, err := run(ctx, h, "ping", "", true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.next.Ping(ctx)
	})
	return err
}
