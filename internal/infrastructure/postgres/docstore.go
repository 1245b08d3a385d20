// Package postgres stores documents as JSONB rows in a single table keyed by
// (collection, id).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/infrastructure/document"
)

const uniqueViolation = "23505"

// DocStore implements domain.DocumentStore on PostgreSQL. Uniqueness is
// enforced by the partial indexes created in the migrations.
type DocStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ domain.DocumentStore = (*DocStore)(nil)

func NewDocStore(db *sqlx.DB, logger *slog.Logger) *DocStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocStore{db: db, logger: logger}
}

type row struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

// where renders f as a predicate over the data column. Argument $1 is
// always the collection.
func where(coll string, f domain.Filter) (string, []any, error) {
	args := []any{coll}
	var b strings.Builder
	b.WriteString("collection = $1")
	for _, c := range f {
		args = append(args, c.Field)
		field := len(args)
		switch c.Op {
		case domain.OpEq, domain.OpNe:
			v, err := document.Canonical(c.Value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, string(v))
			op := "="
			if c.Op == domain.OpNe {
				op = "<>"
			}
			fmt.Fprintf(&b, " AND COALESCE(data -> $%d, 'null'::jsonb) %s $%d::jsonb", field, op, field+1)
		case domain.OpIn:
			values, ok := c.Value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("in condition on %q needs a list", c.Field)
			}
			if len(values) == 0 {
				args = args[:len(args)-1]
				b.WriteString(" AND FALSE")
				continue
			}
			encoded := make([]string, 0, len(values))
			for _, value := range values {
				v, err := document.Canonical(value)
				if err != nil {
					return "", nil, err
				}
				encoded = append(encoded, string(v))
			}
			args = append(args, pq.Array(encoded))
			fmt.Fprintf(&b, " AND COALESCE(data -> $%d, 'null'::jsonb) = ANY($%d::jsonb[])", field, field+1)
		default:
			return "", nil, fmt.Errorf("unsupported operator %d", c.Op)
		}
	}
	return b.String(), args, nil
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

func (s *DocStore) FindOne(ctx context.Context, coll string, f domain.Filter, out any) error {
	docs, err := s.find(ctx, coll, f, 1)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return domain.ErrNotFound
	}
	return docs[0].Decode(out)
}

func (s *DocStore) Find(ctx context.Context, coll string, f domain.Filter, out any) error {
	docs, err := s.find(ctx, coll, f, 0)
	if err != nil {
		return err
	}
	return document.DecodeAll(docs, out)
}

func (s *DocStore) find(ctx context.Context, coll string, f domain.Filter, limit int) ([]document.Doc, error) {
	cond, args, err := where(coll, f)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, data FROM documents WHERE " + cond + " ORDER BY created_at, id" + limitClause(limit)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll, err)
	}
	docs := make([]document.Doc, 0, len(rows))
	for _, r := range rows {
		d, err := document.Parse([]byte(r.Data))
		if err != nil {
			return nil, fmt.Errorf("document %s/%s: %w", coll, r.ID, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *DocStore) InsertOne(ctx context.Context, coll, id string, v any) error {
	d, err := document.Encode(v)
	if err != nil {
		return err
	}
	payload, err := d.Bytes()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)",
		coll, id, string(payload),
	)
	return translate(err, "insert into "+coll)
}

func (s *DocStore) UpdateOne(ctx context.Context, coll string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return s.update(ctx, coll, f, 1, func(d document.Doc) (bool, error) { return d.Apply(p) })
}

func (s *DocStore) UpdateMany(ctx context.Context, coll string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return s.update(ctx, coll, f, 0, func(d document.Doc) (bool, error) { return d.Apply(p) })
}

func (s *DocStore) Increment(ctx context.Context, coll string, f domain.Filter, field string, delta int64) (domain.UpdateResult, error) {
	return s.update(ctx, coll, f, 1, func(d document.Doc) (bool, error) { return d.Increment(field, delta) })
}

// update locks the matching rows, mutates them in Go and writes back the
// changed ones in the same transaction. Rows locked FOR UPDATE are
// re-checked against the predicate after a concurrent writer commits.
func (s *DocStore) update(ctx context.Context, coll string, f domain.Filter, limit int, mutate func(document.Doc) (bool, error)) (res domain.UpdateResult, err error) {
	cond, args, err := where(coll, f)
	if err != nil {
		return res, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var rows []row
	query := "SELECT id, data FROM documents WHERE " + cond + " ORDER BY created_at, id" + limitClause(limit) + " FOR UPDATE"
	if err = tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return res, fmt.Errorf("failed to lock %s: %w", coll, err)
	}

	for _, r := range rows {
		res.Matched++
		var d document.Doc
		if d, err = document.Parse([]byte(r.Data)); err != nil {
			return res, err
		}
		var changed bool
		if changed, err = mutate(d); err != nil {
			return res, err
		}
		if !changed {
			continue
		}
		var payload []byte
		if payload, err = d.Bytes(); err != nil {
			return res, err
		}
		if _, err = tx.ExecContext(ctx,
			"UPDATE documents SET data = $3::jsonb WHERE collection = $1 AND id = $2",
			coll, r.ID, string(payload),
		); err != nil {
			err = translate(err, "update "+coll)
			return domain.UpdateResult{}, err
		}
		res.Modified++
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit: %w", err)
		return domain.UpdateResult{}, err
	}
	return res, nil
}

func (s *DocStore) DeleteOne(ctx context.Context, coll string, f domain.Filter) (int64, error) {
	return s.delete(ctx, coll, f, 1)
}

func (s *DocStore) DeleteMany(ctx context.Context, coll string, f domain.Filter) (int64, error) {
	return s.delete(ctx, coll, f, 0)
}

func (s *DocStore) delete(ctx context.Context, coll string, f domain.Filter, limit int) (int64, error) {
	cond, args, err := where(coll, f)
	if err != nil {
		return 0, err
	}
	query := "DELETE FROM documents WHERE " + cond
	if limit > 0 {
		query = "DELETE FROM documents WHERE collection = $1 AND id IN (SELECT id FROM documents WHERE " +
			cond + " ORDER BY created_at, id" + limitClause(limit) + ")"
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", coll, err)
	}
	return result.RowsAffected()
}

func (s *DocStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrDuplicate
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
