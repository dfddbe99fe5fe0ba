package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unit struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Rent   float64 `json:"rent"`
}

// fakeStore answers selects by table name and can hold a select until its
// gate is closed.
type fakeStore struct {
	mu      sync.Mutex
	results map[string]Result
	gates   map[string]chan struct{}
	started chan string
	err     error
	rows    map[string]json.RawMessage
	plans   []Plan
	inserts []map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results: make(map[string]Result),
		gates:   make(map[string]chan struct{}),
		rows:    make(map[string]json.RawMessage),
	}
}

func (f *fakeStore) Select(ctx context.Context, plan Plan) (Result, error) {
	f.mu.Lock()
	f.plans = append(f.plans, plan)
	gate := f.gates[plan.Table]
	res := f.results[plan.Table]
	err := f.err
	started := f.started
	f.mu.Unlock()
	if started != nil {
		started <- plan.Table
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (f *fakeStore) Get(ctx context.Context, table string, columns []string, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", ErrNotFound)
	}
	return row, nil
}

func (f *fakeStore) Insert(ctx context.Context, table string, values map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, values)
	return json.Marshal(values)
}

func (f *fakeStore) Update(ctx context.Context, table, id string, values map[string]any) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	values["id"] = id
	return json.Marshal(values)
}

func (f *fakeStore) Delete(ctx context.Context, table, id string) (json.RawMessage, error) {
	return f.Get(ctx, table, nil, id)
}

func rawRows(t *testing.T, rows ...unit) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(r)
		require.NoError(t, err)
		out = append(out, data)
	}
	return out
}

func TestFetchStoresRowsAndCount(t *testing.T) {
	store := newFakeStore()
	store.results["units"] = Result{Rows: rawRows(t, unit{ID: "u1", Status: "available", Rent: 1800}), Count: 7}

	q := New[unit](store, Spec{Table: "units", PageSize: 1}, nil)
	assert.True(t, q.State().Loading)

	require.NoError(t, q.Fetch(context.Background()))
	st := q.State()
	assert.False(t, st.Loading)
	assert.Nil(t, st.Err)
	require.NotNil(t, st.Count)
	assert.EqualValues(t, 7, *st.Count)
	assert.Equal(t, []unit{{ID: "u1", Status: "available", Rent: 1800}}, st.Rows)
}

func TestFetchFailureIsTypedAndClearsRows(t *testing.T) {
	store := newFakeStore()
	store.results["units"] = Result{Rows: rawRows(t, unit{ID: "u1"}), Count: 1}
	q := New[unit](store, Spec{Table: "units"}, nil)
	require.NoError(t, q.Fetch(context.Background()))

	store.err = errors.New("connection reset by peer")
	err := q.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteRequestFailed))

	st := q.State()
	assert.False(t, st.Loading)
	assert.Nil(t, st.Rows)
	require.NotNil(t, st.Err)
	assert.Equal(t, CodeTransport, st.Err.Code)
	assert.Equal(t, "select", st.Err.Op)
	assert.Equal(t, "units", st.Err.Table)
}

func TestFetchInvalidSpecNeverReachesStore(t *testing.T) {
	store := newFakeStore()
	q := New[unit](store, Spec{Table: "units", Predicates: []Predicate{Eq("bad column", 1)}}, nil)

	err := q.Fetch(context.Background())
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, CodeInvalidSpec, reqErr.Code)
	assert.Empty(t, store.plans)
}

func TestFetchDecodeFailure(t *testing.T) {
	store := newFakeStore()
	store.results["units"] = Result{Rows: []json.RawMessage{json.RawMessage(`{"rent":"lots"}`)}, Count: 1}
	q := New[unit](store, Spec{Table: "units"}, nil)

	err := q.Fetch(context.Background())
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, CodeDecode, reqErr.Code)
}

func TestSetSpecRefetches(t *testing.T) {
	store := newFakeStore()
	store.results["units"] = Result{Rows: rawRows(t, unit{ID: "u1"}), Count: 1}
	store.results["tenants"] = Result{Rows: rawRows(t, unit{ID: "t1"}, unit{ID: "t2"}), Count: 2}
	q := New[unit](store, Spec{Table: "units"}, nil)
	require.NoError(t, q.Fetch(context.Background()))

	require.NoError(t, q.SetSpec(context.Background(), Spec{Table: "tenants"}))
	assert.Len(t, q.State().Rows, 2)
	assert.Equal(t, "tenants", q.Spec().Table)
	assert.Len(t, store.plans, 2)
}

func TestFetchDiscardsSupersededResult(t *testing.T) {
	store := newFakeStore()
	store.results["units"] = Result{Rows: rawRows(t, unit{ID: "stale"}), Count: 1}
	store.results["tenants"] = Result{Rows: rawRows(t, unit{ID: "fresh"}), Count: 1}
	gate := make(chan struct{})
	store.gates["units"] = gate
	store.started = make(chan string, 2)

	q := New[unit](store, Spec{Table: "units"}, nil)

	done := make(chan error, 1)
	go func() { done <- q.Fetch(context.Background()) }()
	assert.Equal(t, "units", <-store.started)

	require.NoError(t, q.SetSpec(context.Background(), Spec{Table: "tenants"}))
	assert.Equal(t, "tenants", <-store.started)
	assert.Equal(t, []unit{{ID: "fresh"}}, q.State().Rows)

	close(gate)
	require.NoError(t, <-done)

	st := q.State()
	assert.False(t, st.Loading)
	assert.Equal(t, []unit{{ID: "fresh"}}, st.Rows)
}

func TestLoadingStaysSetUntilNewestFetchResolves(t *testing.T) {
	store := newFakeStore()
	store.results["units"] = Result{Rows: rawRows(t, unit{ID: "a"}), Count: 1}
	store.results["tenants"] = Result{Rows: rawRows(t, unit{ID: "b"}), Count: 1}
	tenantsGate := make(chan struct{})
	store.gates["tenants"] = tenantsGate
	unitsGate := make(chan struct{})
	store.gates["units"] = unitsGate
	store.started = make(chan string, 2)

	q := New[unit](store, Spec{Table: "units"}, nil)
	first := make(chan error, 1)
	go func() { first <- q.Fetch(context.Background()) }()
	<-store.started

	second := make(chan error, 1)
	go func() { second <- q.SetSpec(context.Background(), Spec{Table: "tenants"}) }()
	<-store.started

	close(unitsGate)
	require.NoError(t, <-first)
	assert.True(t, q.State().Loading)
	assert.Nil(t, q.State().Rows)

	close(tenantsGate)
	require.NoError(t, <-second)
	assert.False(t, q.State().Loading)
	assert.Equal(t, []unit{{ID: "b"}}, q.State().Rows)
}

func TestInsertDoesNotTouchCache(t *testing.T) {
	store := newFakeStore()
	store.results["units"] = Result{Rows: rawRows(t, unit{ID: "u1"}), Count: 1}
	q := New[unit](store, Spec{Table: "units"}, nil)
	require.NoError(t, q.Fetch(context.Background()))

	created, err := q.Insert(context.Background(), unit{ID: "u2", Status: "available", Rent: 2100})
	require.NoError(t, err)
	assert.Equal(t, &unit{ID: "u2", Status: "available", Rent: 2100}, created)
	assert.Equal(t, []unit{{ID: "u1"}}, q.State().Rows)
	require.Len(t, store.inserts, 1)
	assert.Equal(t, "available", store.inserts[0]["status"])
}

func TestMutationsRequireID(t *testing.T) {
	q := New[unit](newFakeStore(), Spec{Table: "units"}, nil)

	row, err := q.Update(context.Background(), "", map[string]any{"status": "occupied"})
	assert.Nil(t, row)
	assert.True(t, errors.Is(err, ErrRemoteRequestFailed))
	assert.True(t, errors.Is(err, ErrInvalidSpec))

	row, err = q.Remove(context.Background(), "")
	assert.Nil(t, row)
	assert.True(t, errors.Is(err, ErrInvalidSpec))
}

func TestUpdateNormalizesStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = &RequestError{Code: "42501", Message: "permission denied for table units"}
	q := New[unit](store, Spec{Table: "units"}, nil)

	row, err := q.Update(context.Background(), "u1", map[string]any{"status": "occupied"})
	assert.Nil(t, row)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "42501", reqErr.Code)
	assert.Equal(t, "update", reqErr.Op)
	assert.Equal(t, "units", reqErr.Table)
}

func TestGetByIDIsRepeatable(t *testing.T) {
	store := newFakeStore()
	store.rows["u1"] = json.RawMessage(`{"id":"u1","status":"occupied","rent":2400}`)
	q := New[unit](store, Spec{Table: "units", PageSize: 5, Page: 2}, nil)

	first, err := q.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	second, err := q.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = q.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, CodeNotFound, reqErr.Code)
}
