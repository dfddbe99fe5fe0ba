// Package memstore is an in-memory query.Store used as the mock data layer
// during development and in tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cascadeprojects/crm221/internal/query"
)

// Row is one stored record.
type Row = map[string]any

// Store keeps tables of JSON-shaped rows.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]Row
	now    func() time.Time
}

// New constructs a Store with the given tables. Row values are normalized to
// their JSON representation.
func New(tables map[string][]Row) (*Store, error) {
	s := &Store{tables: make(map[string][]Row), now: func() time.Time { return time.Now().UTC() }}
	for name, rows := range tables {
		if err := s.CreateTable(name, rows...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateTable registers table, replacing any rows it held.
func (s *Store) CreateTable(name string, rows ...Row) error {
	if !query.ValidIdentifier(name) {
		return fmt.Errorf("memstore: invalid table name %q", name)
	}
	normalized := make([]Row, 0, len(rows))
	for _, r := range rows {
		n, err := normalize(r)
		if err != nil {
			return fmt.Errorf("memstore: table %s: %w", name, err)
		}
		normalized = append(normalized, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = normalized
	return nil
}

func normalize(row Row) (Row, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var out Row
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func undefinedTable(op, table string) error {
	return &query.RequestError{Op: op, Table: table, Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", table)}
}

func notFound(op, table, id string) error {
	return &query.RequestError{Op: op, Table: table, Code: query.CodeNotFound, Err: fmt.Errorf("%w: id %s", query.ErrNotFound, id)}
}

func project(row Row, columns []string) (json.RawMessage, error) {
	if len(columns) == 0 {
		return json.Marshal(row)
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return json.Marshal(out)
}

func rowID(row Row) string {
	v, ok := row[query.IDColumn]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Select evaluates plan over the table.
func (s *Store) Select(ctx context.Context, plan query.Plan) (query.Result, error) {
	if err := ctx.Err(); err != nil {
		return query.Result{}, query.Normalize("select", plan.Table, err)
	}
	s.mu.RLock()
	rows, ok := s.tables[plan.Table]
	if !ok {
		s.mu.RUnlock()
		return query.Result{}, undefinedTable("select", plan.Table)
	}
	matched := make([]Row, 0, len(rows))
	for _, row := range rows {
		keep := true
		for _, f := range plan.Filters {
			ok, err := matches(row, f)
			if err != nil {
				s.mu.RUnlock()
				return query.Result{}, query.Normalize("select", plan.Table, err)
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, row)
		}
	}
	s.mu.RUnlock()

	if plan.Order != nil {
		sortRows(matched, *plan.Order)
	}
	res := query.Result{Count: int64(len(matched))}
	if offset, limit, ok := plan.Window(); ok {
		if offset < 0 || limit <= 0 || offset >= len(matched) {
			matched = nil
		} else {
			end := offset + limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[offset:end]
		}
	}
	res.Rows = make([]json.RawMessage, 0, len(matched))
	for _, row := range matched {
		raw, err := project(row, plan.Columns)
		if err != nil {
			return query.Result{}, query.Normalize("select", plan.Table, err)
		}
		res.Rows = append(res.Rows, raw)
	}
	return res, nil
}

// sortRows orders rows like PostgreSQL: nulls last when ascending, first
// when descending.
func sortRows(rows []Row, order query.Order) {
	asc := order.Ascending()
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][order.Column], rows[j][order.Column]
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return !asc
		case b == nil:
			return asc
		}
		c, ok := compare(a, b)
		if !ok {
			c = compareText(a, b)
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareText(a, b any) int {
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// Get returns the row with id.
func (s *Store) Get(ctx context.Context, table string, columns []string, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, undefinedTable("get", table)
	}
	for _, row := range rows {
		if rowID(row) == id {
			return project(row, columns)
		}
	}
	return nil, notFound("get", table, id)
}

// Insert appends a row, assigning an id and timestamps when absent.
func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (json.RawMessage, error) {
	row, err := normalize(values)
	if err != nil {
		return nil, query.Normalize("insert", table, err)
	}
	if row == nil {
		row = Row{}
	}
	now := s.now().Format(time.RFC3339Nano)
	if rowID(row) == "" {
		row[query.IDColumn] = uuid.NewString()
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, undefinedTable("insert", table)
	}
	id := rowID(row)
	for _, existing := range rows {
		if rowID(existing) == id {
			return nil, &query.RequestError{Op: "insert", Table: table, Code: "23505", Message: fmt.Sprintf("duplicate key id=%s", id)}
		}
	}
	s.tables[table] = append(rows, row)
	return json.Marshal(row)
}

// Update merges values into the row with id.
func (s *Store) Update(ctx context.Context, table, id string, values map[string]any) (json.RawMessage, error) {
	patch, err := normalize(values)
	if err != nil {
		return nil, query.Normalize("update", table, err)
	}
	if len(patch) == 0 {
		return nil, query.Normalize("update", table, fmt.Errorf("%w: update needs at least one column", query.ErrInvalidSpec))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, undefinedTable("update", table)
	}
	for i, row := range rows {
		if rowID(row) != id {
			continue
		}
		updated := make(Row, len(row)+len(patch))
		for k, v := range row {
			updated[k] = v
		}
		for k, v := range patch {
			updated[k] = v
		}
		if _, ok := patch["updated_at"]; !ok {
			updated["updated_at"] = s.now().Format(time.RFC3339Nano)
		}
		rows[i] = updated
		return json.Marshal(updated)
	}
	return nil, notFound("update", table, id)
}

// Delete removes the row with id and returns it.
func (s *Store) Delete(ctx context.Context, table, id string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, undefinedTable("delete", table)
	}
	for i, row := range rows {
		if rowID(row) != id {
			continue
		}
		s.tables[table] = append(rows[:i:i], rows[i+1:]...)
		return json.Marshal(row)
	}
	return nil, notFound("delete", table, id)
}

var _ query.Store = (*Store)(nil)
