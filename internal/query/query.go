package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// State is a snapshot of a Query's cached result.
type State[T any] struct {
	Rows    []T
	Count   *int64
	Err     *RequestError
	Loading bool
}

// Query owns the cached result of one Spec and exposes typed CRUD on its
// collection. Each Query is independent; it is safe for concurrent use.
type Query[T any] struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	spec    Spec
	seq     uint64
	rows    []T
	count   *int64
	err     *RequestError
	loading bool
}

// New constructs a Query for spec. It starts in the loading state until the
// first Fetch resolves.
func New[T any](store Store, spec Spec, logger *slog.Logger) *Query[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Query[T]{store: store, logger: logger, spec: spec, loading: true}
}

// Spec returns the current specification.
func (q *Query[T]) Spec() Spec {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.spec
}

// SetSpec replaces the specification and re-runs Fetch.
func (q *Query[T]) SetSpec(ctx context.Context, spec Spec) error {
	q.mu.Lock()
	q.spec = spec
	q.mu.Unlock()
	return q.Fetch(ctx)
}

// State returns a copy of the cached result.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := State[T]{Err: q.err, Loading: q.loading}
	if q.rows != nil {
		st.Rows = append([]T(nil), q.rows...)
	}
	if q.count != nil {
		c := *q.count
		st.Count = &c
	}
	return st
}

// Fetch executes the current specification and refreshes the cached rows.
// When a newer Fetch starts before this one resolves, this result is
// discarded and the cache reflects the newer request only.
func (q *Query[T]) Fetch(ctx context.Context) error {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	spec := q.spec
	q.loading = true
	q.err = nil
	q.mu.Unlock()

	rows, count, reqErr := q.run(ctx, spec)

	q.mu.Lock()
	defer q.mu.Unlock()
	if seq != q.seq {
		q.logger.Debug("discard superseded fetch", slog.String("table", spec.Table), slog.Uint64("seq", seq))
		if reqErr != nil {
			return reqErr
		}
		return nil
	}
	q.loading = false
	if reqErr != nil {
		q.err = reqErr
		q.rows = nil
		return reqErr
	}
	q.rows = rows
	q.count = &count
	return nil
}

func (q *Query[T]) run(ctx context.Context, spec Spec) ([]T, int64, *RequestError) {
	plan, err := Build(spec)
	if err != nil {
		return nil, 0, Normalize("select", spec.Table, err)
	}
	res, err := q.store.Select(ctx, plan)
	if err != nil {
		return nil, 0, Normalize("select", spec.Table, err)
	}
	rows := make([]T, 0, len(res.Rows))
	for _, raw := range res.Rows {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, 0, &RequestError{Op: "select", Table: spec.Table, Code: CodeDecode, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, res.Count, nil
}

// Insert creates a row and returns it. The cached rows are not changed.
func (q *Query[T]) Insert(ctx context.Context, values any) (*T, error) {
	table := q.Spec().Table
	fields, err := toValues(values)
	if err != nil {
		return nil, &RequestError{Op: "insert", Table: table, Code: CodeInvalidSpec, Err: err}
	}
	raw, err := q.store.Insert(ctx, table, fields)
	return q.single("insert", table, raw, err)
}

// Update changes the row with id and returns it.
func (q *Query[T]) Update(ctx context.Context, id string, values any) (*T, error) {
	table := q.Spec().Table
	if id == "" {
		return nil, &RequestError{Op: "update", Table: table, Code: CodeInvalidSpec, Err: fmt.Errorf("%w: update needs an id", ErrInvalidSpec)}
	}
	fields, err := toValues(values)
	if err != nil {
		return nil, &RequestError{Op: "update", Table: table, Code: CodeInvalidSpec, Err: err}
	}
	raw, err := q.store.Update(ctx, table, id, fields)
	return q.single("update", table, raw, err)
}

// Remove deletes the row with id and returns it.
func (q *Query[T]) Remove(ctx context.Context, id string) (*T, error) {
	table := q.Spec().Table
	if id == "" {
		return nil, &RequestError{Op: "delete", Table: table, Code: CodeInvalidSpec, Err: fmt.Errorf("%w: delete needs an id", ErrInvalidSpec)}
	}
	raw, err := q.store.Delete(ctx, table, id)
	return q.single("delete", table, raw, err)
}

// GetByID reads one row using the configured projection, ignoring filters,
// order and paging.
func (q *Query[T]) GetByID(ctx context.Context, id string) (*T, error) {
	spec := q.Spec()
	columns, err := projection(spec.Columns)
	if err != nil {
		return nil, Normalize("get", spec.Table, err)
	}
	raw, err := q.store.Get(ctx, spec.Table, columns, id)
	return q.single("get", spec.Table, raw, err)
}

func (q *Query[T]) single(op, table string, raw json.RawMessage, err error) (*T, error) {
	if err != nil {
		reqErr := Normalize(op, table, err)
		q.logger.Warn("remote request failed", slog.String("op", op), slog.String("table", table), slog.Any("error", reqErr))
		return nil, reqErr
	}
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, &RequestError{Op: op, Table: table, Code: CodeDecode, Err: err}
	}
	return &row, nil
}

// toValues converts a map or a JSON-encodable struct into column values.
func toValues(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: no values", ErrInvalidSpec)
	case map[string]any:
		return m, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: values must encode to an object", ErrInvalidSpec)
	}
	return out, nil
}
