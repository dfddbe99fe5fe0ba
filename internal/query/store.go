package query

import (
	"context"
	"encoding/json"
)

// IDColumn is the primary key column used by single-row operations.
const IDColumn = "id"

// Result is the outcome of a Select.
type Result struct {
	Rows  []json.RawMessage
	Count int64
}

// Store executes plans and single-row mutations against a tabular backend.
// Single-row operations return ErrNotFound (possibly wrapped) when no row
// matches the id.
type Store interface {
	Select(ctx context.Context, plan Plan) (Result, error)
	Get(ctx context.Context, table string, columns []string, id string) (json.RawMessage, error)
	Insert(ctx context.Context, table string, values map[string]any) (json.RawMessage, error)
	Update(ctx context.Context, table, id string, values map[string]any) (json.RawMessage, error)
	Delete(ctx context.Context, table, id string) (json.RawMessage, error)
}
