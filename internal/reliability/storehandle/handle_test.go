package storehandle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/infrastructure/memstore"
	"github.com/wencestudios/freelancehub/internal/reliability/circuitbreaker"
	"github.com/wencestudios/freelancehub/internal/reliability/retry"
	"github.com/wencestudios/freelancehub/internal/testutil"
)

var errConnReset = errors.New("connection reset by peer")

// flakyStore fails the first `failures` reads and every insert while broken is set.
type flakyStore struct {
	domain.DocumentStore
	failures atomic.Int32
	broken   atomic.Bool
	finds    atomic.Int32
	inserts  atomic.Int32
}

func (s *flakyStore) FindOne(ctx context.Context, coll string, f domain.Filter, out any) error {
	s.finds.Add(1)
	if s.broken.Load() || s.failures.Add(-1) >= 0 {
		return errConnReset
	}
	return s.DocumentStore.FindOne(ctx, coll, f, out)
}

func (s *flakyStore) InsertOne(ctx context.Context, coll, id string, doc any) error {
	s.inserts.Add(1)
	if s.broken.Load() {
		return errConnReset
	}
	return s.DocumentStore.InsertOne(ctx, coll, id, doc)
}

type item struct {
	ID string `json:"id"`
}

func newHandle(t *testing.T, threshold int) (*Handle, *flakyStore) {
	t.Helper()
	inner := memstore.New(domain.CollectionSpec{Name: "items", Indexes: []string{"id"}})
	flaky := &flakyStore{DocumentStore: inner}
	h := New(flaky, Options{
		Retry: &retry.Config{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        2 * time.Millisecond,
			BackoffMultiplier: 2,
		},
		FailureThreshold: threshold,
		Cooldown:         time.Hour,
	}, testutil.DiscardLogger())
	require.NoError(t, inner.InsertOne(context.Background(), "items", "a", item{ID: "a"}))
	return h, flaky
}

func TestHandle_RetriesTransientReads(t *testing.T) {
	h, flaky := newHandle(t, 5)
	flaky.failures.Store(2)

	var got item
	require.NoError(t, h.FindOne(context.Background(), "items", domain.Where(domain.Eq("id", "a")), &got))
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, int32(3), flaky.finds.Load())
}

func TestHandle_DomainErrorsAreNotRetried(t *testing.T) {
	h, flaky := newHandle(t, 5)

	var got item
	err := h.FindOne(context.Background(), "items", domain.Where(domain.Eq("id", "missing")), &got)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, int32(1), flaky.finds.Load())
	assert.Equal(t, circuitbreaker.StateClosed, h.Breaker().GetState())
}

func TestHandle_InsertsRunOnce(t *testing.T) {
	h, flaky := newHandle(t, 5)
	flaky.broken.Store(true)

	err := h.InsertOne(context.Background(), "items", "b", item{ID: "b"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errConnReset)
	assert.Equal(t, domain.KindStoreUnavailable, domain.KindOf(err))
	assert.Equal(t, int32(1), flaky.inserts.Load())
}

func TestHandle_BreakerRejectsWhenOpen(t *testing.T) {
	h, flaky := newHandle(t, 2)
	flaky.broken.Store(true)

	for i := 0; i < 2; i++ {
		err := h.InsertOne(context.Background(), "items", "b", item{ID: "b"})
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	}
	assert.Equal(t, circuitbreaker.StateOpen, h.Breaker().GetState())

	var got item
	err := h.FindOne(context.Background(), "items", domain.Where(domain.Eq("id", "a")), &got)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Zero(t, flaky.finds.Load())
}
