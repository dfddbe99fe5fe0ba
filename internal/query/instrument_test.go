package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentCountsOutcomes(t *testing.T) {
	fake := newFakeStore()
	fake.results["units"] = Result{Rows: []json.RawMessage{json.RawMessage(`{"id":"u1"}`)}, Count: 1}
	metrics := NewStoreMetrics(prometheus.NewRegistry())
	store := Instrument(fake, metrics)
	ctx := context.Background()

	plan, err := Build(Spec{Table: "units"})
	require.NoError(t, err)
	res, err := store.Select(ctx, plan)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Count)

	_, err = store.Get(ctx, "units", nil, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Insert(ctx, "units", map[string]any{"status": "available"})
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.requests.WithLabelValues("units", "select", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.requests.WithLabelValues("units", "get", "not_found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.requests.WithLabelValues("units", "insert", "ok")), 0)
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.duration))
}

func TestInstrumentWithoutMetrics(t *testing.T) {
	store := Instrument(newFakeStore(), nil)
	_, err := store.Delete(context.Background(), "units", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}
