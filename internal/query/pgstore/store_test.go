package pgstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeprojects/crm221/internal/platform/db"
	"github.com/cascadeprojects/crm221/internal/query"
	"github.com/cascadeprojects/crm221/internal/query/pgstore"
)

// openTestPool connects to CRM221_TEST_PG_DSN and creates a scratch table.
func openTestPool(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	dsn := os.Getenv("CRM221_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CRM221_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	table := "units_" + uuid.NewString()[:8]
	_, err = pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE %q (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		unit_number TEXT NOT NULL,
		status TEXT NOT NULL,
		monthly_rent NUMERIC(12,2),
		viewer TEXT DEFAULT current_setting('request.jwt.claims', true)
	)`, table))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table))
	})
	return pool, table
}

type unit struct {
	ID          string  `json:"id"`
	UnitNumber  string  `json:"unit_number"`
	Status      string  `json:"status"`
	MonthlyRent float64 `json:"monthly_rent"`
	Viewer      *string `json:"viewer"`
}

func TestStoreAgainstPostgres(t *testing.T) {
	pool, table := openTestPool(t)
	ctx := context.Background()
	claims := func(ctx context.Context) (string, bool) { return `{"sub":"jgolden"}`, true }
	store := pgstore.New(pool, claims, nil)

	for i, status := range []string{"available", "occupied", "available"} {
		_, err := store.Insert(ctx, table, map[string]any{
			"id":           fmt.Sprintf("u%d", i+1),
			"unit_number":  fmt.Sprintf("%dA", i+1),
			"status":       status,
			"monthly_rent": 2000 + i*500,
		})
		require.NoError(t, err)
	}

	q := query.New[unit](store, query.Spec{
		Table:      table,
		Predicates: []query.Predicate{query.Eq("status", "available")},
		Order:      &query.Order{Column: "monthly_rent", Direction: query.Desc},
		PageSize:   1,
		Page:       1,
	}, nil)
	require.NoError(t, q.Fetch(ctx))
	st := q.State()
	require.NotNil(t, st.Count)
	assert.EqualValues(t, 2, *st.Count)
	require.Len(t, st.Rows, 1)
	assert.Equal(t, "u3", st.Rows[0].ID)
	require.NotNil(t, st.Rows[0].Viewer)
	assert.JSONEq(t, `{"sub":"jgolden"}`, *st.Rows[0].Viewer)

	updated, err := q.Update(ctx, "u1", map[string]any{"status": "occupied"})
	require.NoError(t, err)
	assert.Equal(t, "occupied", updated.Status)

	removed, err := q.Remove(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "2A", removed.UnitNumber)

	_, err = q.GetByID(ctx, "u2")
	assert.True(t, errors.Is(err, query.ErrNotFound))

	_, err = store.Insert(ctx, table, map[string]any{"id": "u1", "unit_number": "dup", "status": "x"})
	var reqErr *query.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "23505", reqErr.Code)

	raw, err := store.Get(ctx, table, []string{"unit_number"}, "u3")
	require.NoError(t, err)
	var projected map[string]any
	require.NoError(t, json.Unmarshal(raw, &projected))
	assert.Equal(t, map[string]any{"unit_number": "3A"}, projected)
}
