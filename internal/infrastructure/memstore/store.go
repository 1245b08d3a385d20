// Package memstore is an in-process DocumentStore for tests and local runs.
package memstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/infrastructure/document"
)

type collection struct {
	spec   domain.CollectionSpec
	order  []string
	docs   map[string]document.Doc
	unique map[string]string
}

// Store keeps documents in insertion order behind a single mutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	specs       map[string]domain.CollectionSpec
}

// New creates an empty store enforcing the unique keys of specs.
func New(specs ...domain.CollectionSpec) *Store {
	s := &Store{
		collections: map[string]*collection{},
		specs:       map[string]domain.CollectionSpec{},
	}
	for _, spec := range specs {
		s.specs[spec.Name] = spec
	}
	return s
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{
			spec:   s.specs[name],
			docs:   map[string]document.Doc{},
			unique: map[string]string{},
		}
		c.spec.Name = name
		s.collections[name] = c
	}
	return c
}

func (c *collection) match(f domain.Filter, limit int) ([]string, error) {
	var ids []string
	for _, id := range c.order {
		ok, err := c.docs[id].Matches(f)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
			if limit > 0 && len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func uniqueKeys(spec domain.CollectionSpec, d document.Doc) []string {
	var keys []string
	for i, fields := range spec.Unique {
		if k, ok := d.UniqueKey(fields); ok {
			keys = append(keys, strconv.Itoa(i)+":"+k)
		}
	}
	return keys
}

func (s *Store) FindOne(_ context.Context, name string, f domain.Filter, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.ErrNotFound
	}
	ids, err := c.match(f, 1)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return domain.ErrNotFound
	}
	return c.docs[ids[0]].Decode(out)
}

func (s *Store) Find(_ context.Context, name string, f domain.Filter, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	c, ok := s.collections[name]
	if ok {
		var err error
		if ids, err = c.match(f, 0); err != nil {
			return err
		}
	}
	docs := make([]document.Doc, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, c.docs[id])
	}
	return document.DecodeAll(docs, out)
}

func (s *Store) InsertOne(_ context.Context, name, id string, v any) error {
	d, err := document.Encode(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	if _, exists := c.docs[id]; exists {
		return domain.ErrDuplicate
	}
	keys := uniqueKeys(c.spec, d)
	for _, k := range keys {
		if _, taken := c.unique[k]; taken {
			return domain.ErrDuplicate
		}
	}
	for _, k := range keys {
		c.unique[k] = id
	}
	c.docs[id] = d
	c.order = append(c.order, id)
	return nil
}

func (s *Store) UpdateOne(_ context.Context, name string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return s.update(name, f, 1, func(d document.Doc) (bool, error) { return d.Apply(p) })
}

func (s *Store) UpdateMany(_ context.Context, name string, f domain.Filter, p domain.Patch) (domain.UpdateResult, error) {
	return s.update(name, f, 0, func(d document.Doc) (bool, error) { return d.Apply(p) })
}

func (s *Store) Increment(_ context.Context, name string, f domain.Filter, field string, delta int64) (domain.UpdateResult, error) {
	return s.update(name, f, 1, func(d document.Doc) (bool, error) { return d.Increment(field, delta) })
}

func (s *Store) update(name string, f domain.Filter, limit int, mutate func(document.Doc) (bool, error)) (domain.UpdateResult, error) {
	var res domain.UpdateResult
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	ids, err := c.match(f, limit)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		res.Matched++
		before := c.docs[id]
		next := before.Clone()
		changed, err := mutate(next)
		if err != nil {
			return res, err
		}
		if !changed {
			continue
		}
		if err := c.swapUnique(id, before, next); err != nil {
			return res, err
		}
		c.docs[id] = next
		res.Modified++
	}
	return res, nil
}

func (c *collection) swapUnique(id string, before, next document.Doc) error {
	oldKeys := uniqueKeys(c.spec, before)
	newKeys := uniqueKeys(c.spec, next)
	for _, k := range newKeys {
		if owner, taken := c.unique[k]; taken && owner != id {
			return domain.ErrDuplicate
		}
	}
	for _, k := range oldKeys {
		delete(c.unique, k)
	}
	for _, k := range newKeys {
		c.unique[k] = id
	}
	return nil
}

func (s *Store) DeleteOne(_ context.Context, name string, f domain.Filter) (int64, error) {
	return s.delete(name, f, 1)
}

func (s *Store) DeleteMany(_ context.Context, name string, f domain.Filter) (int64, error) {
	return s.delete(name, f, 0)
}

func (s *Store) delete(name string, f domain.Filter, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	ids, err := c.match(f, limit)
	if err != nil {
		return 0, err
	}
	gone := map[string]bool{}
	for _, id := range ids {
		for _, k := range uniqueKeys(c.spec, c.docs[id]) {
			delete(c.unique, k)
		}
		delete(c.docs, id)
		gone[id] = true
	}
	if len(gone) > 0 {
		kept := c.order[:0]
		for _, id := range c.order {
			if !gone[id] {
				kept = append(kept, id)
			}
		}
		c.order = kept
	}
	return int64(len(ids)), nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len reports the number of documents in a collection.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.docs)
	}
	return 0
}
