package domain

import "context"

// Op is the comparison applied by a Cond.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpIn
)

// Cond compares one top-level document field against a value.
// Values are compared by their JSON encoding.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. An empty filter matches every document.
type Filter []Cond

func Eq(field string, value any) Cond { return Cond{Field: field, Op: OpEq, Value: value} }

func Ne(field string, value any) Cond { return Cond{Field: field, Op: OpNe, Value: value} }

// In matches when the field equals any of values.
func In[T any](field string, values []T) Cond {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Cond{Field: field, Op: OpIn, Value: vs}
}

func Where(conds ...Cond) Filter { return Filter(conds) }

// Patch sets top-level fields in place.
type Patch map[string]any

// UpdateResult mirrors the matched/modified counters of a document database.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// CollectionSpec declares the secondary lookup keys and uniqueness
// constraints of a collection. Stores may use Indexes to narrow scans.
type CollectionSpec struct {
	Name    string
	Indexes []string
	Unique  [][]string
}

// DocumentStore is the persistence collaborator. Every operation touches
// documents of a single collection and is atomic per document.
//
// FindOne returns ErrNotFound when nothing matches. InsertOne returns
// ErrDuplicate when the id or a unique key is already taken. Increment
// adds delta to an integer field; a document whose field is not an integer
// counts as matched but not modified.
type DocumentStore interface {
	FindOne(ctx context.Context, collection string, filter Filter, out any) error
	Find(ctx context.Context, collection string, filter Filter, out any) error
	InsertOne(ctx context.Context, collection, id string, doc any) error
	UpdateOne(ctx context.Context, collection string, filter Filter, patch Patch) (UpdateResult, error)
	UpdateMany(ctx context.Context, collection string, filter Filter, patch Patch) (UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
	Increment(ctx context.Context, collection string, filter Filter, field string, delta int64) (UpdateResult, error)
	Ping(ctx context.Context) error
}
