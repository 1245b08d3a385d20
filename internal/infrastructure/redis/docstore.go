package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/infrastructure/document"
)

// maxTxAttempts bounds optimistic transaction retries on a contended key.
const maxTxAttempts = 16

// mgetBatch limits the number of documents loaded per MGET.
const mgetBatch = 200

// DocStore implements domain.DocumentStore on Redis.
//
// Layout, under the configured prefix:
//
//	doc:{collection}:{id}              JSON document
//	ids:{collection}                   set of document ids
//	idx:{collection}:{field}:{value}   set of ids per indexed field value
//	uniq:{collection}:{n}:{values}     id owning the n-th unique key
//
// Each write runs in a WATCH/MULTI transaction on the document key, so a
// single document is never updated from a stale read.
type DocStore struct {
	rdb    *redis.Client
	prefix string
	specs  map[string]domain.CollectionSpec
	logger *slog.Logger
}

var _ domain.DocumentStore = (*DocStore)(nil)

// NewDocStore creates a store over client for the given collections.
func NewDocStore(client *Client, prefix string, logger *slog.Logger, specs ...domain.CollectionSpec) *DocStore {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]domain.CollectionSpec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return &DocStore{rdb: client.Redis(), prefix: prefix, specs: m, logger: logger}
}

func (s *DocStore) docKey(coll, id string) string {
	return fmt.Sprintf("%sdoc:%s:%s", s.prefix, coll, id)
}

func (s *DocStore) idsKey(coll string) string {
	return fmt.Sprintf("%sids:%s", s.prefix, coll)
}

func (s *DocStore) idxKey(coll, field, value string) string {
	return fmt.Sprintf("%sidx:%s:%s:%s", s.prefix, coll, field, value)
}

func (s *DocStore) uniqueKeys(coll string, d document.Doc) []string {
	var keys []string
	for i, fields := range s.specs[coll].Unique {
		if k, ok := d.UniqueKey(fields); ok {
			keys = append(keys, fmt.Sprintf("%suniq:%s:%s:%s", s.prefix, coll, strconv.Itoa(i), k))
		}
	}
	return keys
}

// candidates returns the ids that may match f, narrowed by an index when
// the filter constrains an indexed field.
func (s *DocStore) candidates(ctx context.Context, coll string, f domain.Filter) ([]string, error) {
	var (
		ids []string
		err error
	)
	cond, ok := document.IndexedEq(f, s.specs[coll].Indexes)
	switch {
	case ok && cond.Op == domain.OpEq:
		v, cerr := document.Canonical(cond.Value)
		if cerr != nil {
			return nil, cerr
		}
		ids, err = s.rdb.SMembers(ctx, s.idxKey(coll, cond.Field, string(v))).Result()
	case ok && cond.Op == domain.OpIn:
		values, _ := cond.Value.([]any)
		if len(values) == 0 {
			return nil, nil
		}
		keys := make([]string, 0, len(values))
		for _, value := range values {
			v, cerr := document.Canonical(value)
			if cerr != nil {
				return nil, cerr
			}
			keys = append(keys, s.idxKey(coll, cond.Field, string(v)))
		}
		ids, err = s.rdb.SUnion(ctx, keys...).Result()
	default:
		ids, err = s.rdb.SMembers(ctx, s.idsKey(coll)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s candidates: %w", coll, err)
	}
	slices.Sort(ids)
	return ids, nil
}

// load fetches and filters candidate documents, stopping after limit
// matches when limit is positive.
func (s *DocStore) load(ctx context.Context, coll string, f domain.Filter, limit int) ([]string, []document.Doc, error) {
	ids, err := s.candidates(ctx, coll, f)
	if err != nil {
		return nil, nil, err
	}
	var (
		matchedIDs []string
		docs       []document.Doc
	)
	for start := 0; start < len(ids); start += mgetBatch {
		batch := ids[start:min(start+mgetBatch, len(ids))]
		keys := make([]string, len(batch))
		for i, id := range batch {
			keys[i] = s.docKey(coll, id)
		}
		vals, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load %s documents: %w", coll, err)
		}
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			d, err := document.Parse([]byte(raw))
			if err != nil {
				s.logger.Warn("skipping unreadable document",
					slog.String("collection", coll),
					slog.String("id", batch[i]),
					slog.String("error", err.Error()),
				)
				continue
			}
			match, err := d.Matches(f)
			if err != nil {
				return nil, nil, err
			}
			if !match {
				continue
			}
			matchedIDs = append(matchedIDs, batch[i])
			docs = append(docs, d)
			if limit > 0 && len(docs) == limit {
				return matchedIDs, docs, nil
			}
		}
	}
	return matchedIDs, docs, nil
}

func (s *DocStore) FindOne(ctx context.Context, coll string, f domain.Filter, out any) error {
	_, docs, err := s.load(ctx, coll, f, 1)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return domain.ErrNotFound
	}
	return docs[0].Decode(out)
}

func (s *DocStore) Find(ctx context.Context, coll string, f domain.Filter, out any) error {
	_, docs, err := s.load(ctx, coll, f, 0)
	if err != nil {
		return err
	}
	return document.DecodeAll(docs, out)
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
	key := s.docKey(coll, id)
	uniq := s.uniqueKeys(coll, d)
	watched := append([]string{key}, uniq...)

	return s.withTx(ctx, key, func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, watched...).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return domain.ErrDuplicate
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				pipe.SAdd(ctx, s.idsKey(coll), id)
				for _, field := range s.specs[coll].Indexes {
					pipe.SAdd(ctx, s.idxKey(coll, field, d.IndexValue(field)), id)
				}
				for _, u := range uniq {
					pipe.Set(ctx, u, id, 0)
				}
				return nil
			})
			return err
		}, watched...)
	})
}

func (s *DocStore) UpdateOne(ctx context.Context, coll string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return s.updateEach(ctx, coll, f, 1, func(d document.Doc) (bool, error) { return d.Apply(p) })
}

func (s *DocStore) UpdateMany(ctx context.Context, coll string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return s.updateEach(ctx, coll, f, 0, func(d document.Doc) (bool, error) { return d.Apply(p) })
}

func (s *DocStore) Increment(ctx context.Context, coll string, f domain.Filter, field string, delta int64) (domain.UpdateResult, error) {
	return s.updateEach(ctx, coll, f, 1, func(d document.Doc) (bool, error) { return d.Increment(field, delta) })
}

func (s *DocStore) updateEach(ctx context.Context, coll string, f domain.Filter, limit int, mutate func(document.Doc) (bool, error)) (domain.UpdateResult, error) {
	var res domain.UpdateResult
	ids, _, err := s.load(ctx, coll, f, 0)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		matched, modified, err := s.mutate(ctx, coll, id, f, mutate)
		if err != nil {
			return res, err
		}
		if matched {
			res.Matched++
		}
		if modified {
			res.Modified++
		}
		if limit > 0 && res.Matched == int64(limit) {
			break
		}
	}
	return res, nil
}

// mutate re-reads one document under WATCH, re-checks the filter and
// writes the mutated copy together with its index and unique key moves.
func (s *DocStore) mutate(ctx context.Context, coll, id string, f domain.Filter, fn func(document.Doc) (bool, error)) (matched, modified bool, err error) {
	key := s.docKey(coll, id)
	err = s.withTx(ctx, key, func() error {
		matched, modified = false, false
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			before, err := document.Parse(raw)
			if err != nil {
				return err
			}
			ok, err := before.Matches(f)
			if err != nil || !ok {
				return err
			}
			matched = true

			next := before.Clone()
			changed, err := fn(next)
			if err != nil || !changed {
				return err
			}
			payload, err := next.Bytes()
			if err != nil {
				return err
			}

			oldUniq, newUniq := s.uniqueKeys(coll, before), s.uniqueKeys(coll, next)
			added := without(newUniq, oldUniq)
			removed := without(oldUniq, newUniq)
			if len(added) > 0 {
				if err := tx.Watch(ctx, added...).Err(); err != nil {
					return err
				}
				n, err := tx.Exists(ctx, added...).Result()
				if err != nil {
					return err
				}
				if n > 0 {
					return domain.ErrDuplicate
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				for _, field := range s.specs[coll].Indexes {
					oldV, newV := before.IndexValue(field), next.IndexValue(field)
					if oldV == newV {
						continue
					}
					pipe.SRem(ctx, s.idxKey(coll, field, oldV), id)
					pipe.SAdd(ctx, s.idxKey(coll, field, newV), id)
				}
				for _, u := range removed {
					pipe.Del(ctx, u)
				}
				for _, u := range added {
					pipe.Set(ctx, u, id, 0)
				}
				return nil
			})
			if err == nil {
				modified = true
			}
			return err
		}, key)
	})
	return matched, modified, err
}

func (s *DocStore) DeleteOne(ctx context.Context, coll string, f domain.Filter) (int64, error) {
	return s.deleteEach(ctx, coll, f, 1)
}

func (s *DocStore) DeleteMany(ctx context.Context, coll string, f domain.Filter) (int64, error) {
	return s.deleteEach(ctx, coll, f, 0)
}

func (s *DocStore) deleteEach(ctx context.Context, coll string, f domain.Filter, limit int) (int64, error) {
	ids, _, err := s.load(ctx, coll, f, 0)
	if err != nil {
		return 0, err
	}
	var deleted int64
	for _, id := range ids {
		key := s.docKey(coll, id)
		gone := false
		err := s.withTx(ctx, key, func() error {
			gone = false
			return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
				raw, err := tx.Get(ctx, key).Bytes()
				if errors.Is(err, redis.Nil) {
					return nil
				}
				if err != nil {
					return err
				}
				d, err := document.Parse(raw)
				if err != nil {
					return err
				}
				if ok, err := d.Matches(f); err != nil || !ok {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, s.idsKey(coll), id)
					for _, field := range s.specs[coll].Indexes {
						pipe.SRem(ctx, s.idxKey(coll, field, d.IndexValue(field)), id)
					}
					for _, u := range s.uniqueKeys(coll, d) {
						pipe.Del(ctx, u)
					}
					return nil
				})
				gone = err == nil
				return err
			}, key)
		})
		if err != nil {
			return deleted, err
		}
		if gone {
			deleted++
			if limit > 0 && deleted == int64(limit) {
				break
			}
		}
	}
	return deleted, nil
}

func (s *DocStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// withTx reruns fn while its optimistic transaction loses a race.
func (s *DocStore) withTx(ctx context.Context, key string, fn func() error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := fn()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("transaction on %s kept conflicting after %d attempts", key, maxTxAttempts)
}

func without(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
