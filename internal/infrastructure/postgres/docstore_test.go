package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wencestudios/freelancehub/internal/domain"
)

type bidDoc struct {
	BidID  string `json:"bidId"`
	Status string `json:"status"`
}

func newMockStore(t *testing.T) (*DocStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDocStore(sqlx.NewDb(db, "postgres"), nil), mock
}

const selectByID = "SELECT id, data FROM documents WHERE collection = $1 AND COALESCE(data -> $2, 'null'::jsonb) = $3::jsonb ORDER BY created_at, id"

func TestWhere(t *testing.T) {
	cond, args, err := where("bids", domain.Where(
		domain.Eq("jobId", "J1"),
		domain.Ne("status", "declined"),
		domain.In("writerId", []string{"W1", "W2"}),
	))
	require.NoError(t, err)
	assert.Equal(t,
		"collection = $1"+
			" AND COALESCE(data -> $2, 'null'::jsonb) = $3::jsonb"+
			" AND COALESCE(data -> $4, 'null'::jsonb) <> $5::jsonb"+
			" AND COALESCE(data -> $6, 'null'::jsonb) = ANY($7::jsonb[])",
		cond)
	require.Len(t, args, 7)
	assert.Equal(t, "bids", args[0])
	assert.Equal(t, `"J1"`, args[2])
	assert.Equal(t, `"declined"`, args[4])

	cond, args, err = where("bids", domain.Where(domain.In("writerId", []string{}), domain.Eq("jobId", "J1")))
	require.NoError(t, err)
	assert.Equal(t, "collection = $1 AND FALSE AND COALESCE(data -> $2, 'null'::jsonb) = $3::jsonb", cond)
	assert.Len(t, args, 3)
}

func TestDocStore_FindOne(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(selectByID+" LIMIT 1")).
		WithArgs("bids", "bidId", `"B1"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("B1", `{"bidId":"B1","status":"pending"}`))

	var got bidDoc
	require.NoError(t, s.FindOne(ctx, "bids", domain.Where(domain.Eq("bidId", "B1")), &got))
	assert.Equal(t, bidDoc{BidID: "B1", Status: "pending"}, got)

	mock.ExpectQuery(regexp.QuoteMeta(selectByID + " LIMIT 1")).
		WithArgs("bids", "bidId", `"B9"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}))

	err := s.FindOne(ctx, "bids", domain.Where(domain.Eq("bidId", "B9")), &got)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocStore_InsertDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)")).
		WithArgs("bids", "B1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("bids", "B1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	doc := bidDoc{BidID: "B1", Status: "pending"}
	require.NoError(t, s.InsertOne(context.Background(), "bids", "B1", doc))
	assert.ErrorIs(t, s.InsertOne(context.Background(), "bids", "B1", doc), domain.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocStore_UpdateOne(t *testing.T) {
	s, mock := newMockStore(t)
	filter := domain.Where(domain.Eq("bidId", "B1"))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectByID+" LIMIT 1 FOR UPDATE")).
		WithArgs("bids", "bidId", `"B1"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("B1", `{"bidId":"B1","status":"pending"}`))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET data = $3::jsonb WHERE collection = $1 AND id = $2")).
		WithArgs("bids", "B1", `{"bidId":"B1","status":"accepted"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := s.UpdateOne(context.Background(), "bids", filter, domain.Patch{"status": "accepted"})
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{Matched: 1, Modified: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocStore_UpdateOneNoMatch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectByID+" LIMIT 1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}))
	mock.ExpectCommit()

	res, err := s.UpdateOne(context.Background(), "bids", domain.Where(domain.Eq("bidId", "B1")), domain.Patch{"status": "accepted"})
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocStore_UpdateRollsBackOnConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectByID+" LIMIT 1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow("B1", `{"bidId":"B1"}`))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := s.UpdateOne(context.Background(), "bids", domain.Where(domain.Eq("bidId", "B1")), domain.Patch{"jobId": "J2"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocStore_IncrementNonInteger(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectByID+" LIMIT 1 FOR UPDATE")).
		WithArgs("jobs", "id", `"J1"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow("J1", `{"id":"J1","bids":"seven"}`))
	mock.ExpectCommit()

	res, err := s.Increment(context.Background(), "jobs", domain.Where(domain.Eq("id", "J1")), "bids", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateResult{Matched: 1, Modified: 0}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE collection = $1 AND id IN (SELECT id FROM documents WHERE collection = $1 AND COALESCE(data -> $2, 'null'::jsonb) = $3::jsonb ORDER BY created_at, id LIMIT 1)")).
		WithArgs("notifications", "id", `"N1"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE collection = $1 AND COALESCE(data -> $2, 'null'::jsonb) = $3::jsonb")).
		WithArgs("notifications", "userId", `"W1"`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.DeleteOne(ctx, "notifications", domain.Where(domain.Eq("id", "N1")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteMany(ctx, "notifications", domain.Where(domain.Eq("userId", "W1")))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var gotDir string
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	defer func() { gooseUpContext = orig }()

	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
