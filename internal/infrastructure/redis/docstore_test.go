package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wencestudios/freelancehub/internal/domain"
)

type item struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Slot   string `json:"slot"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, nil), mr
}

func newTestStore(t *testing.T) *DocStore {
	t.Helper()
	client, _ := newTestClient(t)
	return NewDocStore(client, "test:", nil, domain.CollectionSpec{
		Name:    "items",
		Indexes: []string{"owner", "status"},
		Unique:  [][]string{{"owner", "slot"}},
	})
}

func TestDocStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertOne(ctx, "items", "a", item{ID: "a", Owner: "u1", Slot: "x", Status: "open"}))
	require.NoError(t, s.InsertOne(ctx, "items", "b", item{ID: "b", Owner: "u1", Slot: "y", Status: "done"}))
	require.NoError(t, s.InsertOne(ctx, "items", "c", item{ID: "c", Owner: "u2", Slot: "x", Status: "open"}))

	var got item
	require.NoError(t, s.FindOne(ctx, "items", domain.Where(domain.Eq("id", "b")), &got))
	assert.Equal(t, "done", got.Status)

	var owned []item
	require.NoError(t, s.Find(ctx, "items", domain.Where(domain.Eq("owner", "u1")), &owned))
	assert.Len(t, owned, 2)

	var open []item
	require.NoError(t, s.Find(ctx, "items", domain.Where(domain.In("status", []string{"open"}), domain.Ne("owner", "u1")), &open))
	require.Len(t, open, 1)
	assert.Equal(t, "c", open[0].ID)

	err := s.FindOne(ctx, "items", domain.Where(domain.Eq("id", "zzz")), &got)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocStore_UniqueConstraint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertOne(ctx, "items", "a", item{ID: "a", Owner: "u1", Slot: "x"}))
	assert.ErrorIs(t, s.InsertOne(ctx, "items", "a", item{ID: "a", Owner: "u9", Slot: "q"}), domain.ErrDuplicate)
	assert.ErrorIs(t, s.InsertOne(ctx, "items", "b", item{ID: "b", Owner: "u1", Slot: "x"}), domain.ErrDuplicate)

	require.NoError(t, s.InsertOne(ctx, "items", "b", item{ID: "b", Owner: "u1", Slot: "y"}))
	_, err := s.UpdateOne(ctx, "items", domain.Where(domain.Eq("id", "b")), domain.Patch{"slot": "x"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	// Releasing the key by deletion frees it for others.
	n, err := s.DeleteOne(ctx, "items", domain.Where(domain.Eq("id", "a")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	res, err := s.UpdateOne(ctx, "items", domain.Where(domain.Eq("id", "b")), domain.Patch{"slot": "x"})
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{Matched: 1, Modified: 1}, res)
}

func TestDocStore_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertOne(ctx, "items", "a", item{ID: "a", Owner: "u1", Status: "open"}))

	filter := domain.Where(domain.Eq("id", "a"), domain.Eq("status", "open"))
	res, err := s.UpdateOne(ctx, "items", filter, domain.Patch{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Modified)

	res, err = s.UpdateOne(ctx, "items", filter, domain.Patch{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Matched)

	// The status index follows the update.
	var open, done []item
	require.NoError(t, s.Find(ctx, "items", domain.Where(domain.Eq("status", "open")), &open))
	require.NoError(t, s.Find(ctx, "items", domain.Where(domain.Eq("status", "done")), &done))
	assert.Empty(t, open)
	assert.Len(t, done, 1)
}

func TestDocStore_UpdateManyAndDeleteMany(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertOne(ctx, "items", id, item{ID: id, Owner: "u1", Status: "open"}))
	}

	res, err := s.UpdateMany(ctx, "items", domain.Where(domain.Eq("owner", "u1")), domain.Patch{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{Matched: 3, Modified: 3}, res)

	res, err = s.UpdateMany(ctx, "items", domain.Where(domain.Eq("owner", "u1")), domain.Patch{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{Matched: 3, Modified: 0}, res)

	n, err := s.DeleteMany(ctx, "items", domain.Where(domain.Eq("status", "done")))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var rest []item
	require.NoError(t, s.Find(ctx, "items", nil, &rest))
	assert.Empty(t, rest)
}

func TestDocStore_Increment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertOne(ctx, "items", "a", item{ID: "a", Count: 2}))
	require.NoError(t, s.InsertOne(ctx, "items", "b", map[string]any{"id": "b", "count": "many"}))

	res, err := s.Increment(ctx, "items", domain.Where(domain.Eq("id", "a")), "count", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{Matched: 1, Modified: 1}, res)

	var got item
	require.NoError(t, s.FindOne(ctx, "items", domain.Where(domain.Eq("id", "a")), &got))
	assert.Equal(t, int64(3), got.Count)

	res, err = s.Increment(ctx, "items", domain.Where(domain.Eq("id", "b")), "count", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{Matched: 1, Modified: 0}, res)
}
