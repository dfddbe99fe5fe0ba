package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cascadeprojects/crm221/internal/query"

// StoreMetrics holds the collectors shared by instrumented stores.
type StoreMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewStoreMetrics registers store collectors. A nil registerer uses the
// default Prometheus registerer.
func NewStoreMetrics(registerer prometheus.Registerer) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &StoreMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm221_store_requests_total",
			Help: "Remote store requests by table, operation and outcome.",
		}, []string{"table", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm221_store_request_duration_seconds",
			Help:    "Remote store request latency by table and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table", "op"}),
	}
	registerer.MustRegister(m.requests, m.duration)
	return m
}

type instrumentedStore struct {
	next    Store
	metrics *StoreMetrics
	tracer  trace.Tracer
}

// Instrument wraps store with metrics and tracing. metrics may be nil.
func Instrument(store Store, metrics *StoreMetrics) Store {
	return &instrumentedStore{next: store, metrics: metrics, tracer: otel.Tracer(tracerName)}
}

func (s *instrumentedStore) observe(ctx context.Context, op, table string, fn func(context.Context) error) {
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("db.collection.name", table),
		attribute.String("db.operation.name", op),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.metrics != nil {
		s.metrics.requests.WithLabelValues(table, op, outcome).Inc()
		s.metrics.duration.WithLabelValues(table, op).Observe(time.Since(start).Seconds())
	}
}

func (s *instrumentedStore) Select(ctx context.Context, plan Plan) (res Result, err error) {
	s.observe(ctx, "select", plan.Table, func(ctx context.Context) error {
		res, err = s.next.Select(ctx, plan)
		return err
	})
	return res, err
}

func (s *instrumentedStore) Get(ctx context.Context, table string, columns []string, id string) (row json.RawMessage, err error) {
	s.observe(ctx, "get", table, func(ctx context.Context) error {
		row, err = s.next.Get(ctx, table, columns, id)
		return err
	})
	return row, err
}

func (s *instrumentedStore) Insert(ctx context.Context, table string, values map[string]any) (row json.RawMessage, err error) {
	s.observe(ctx, "insert", table, func(ctx context.Context) error {
		row, err = s.next.Insert(ctx, table, values)
		return err
	})
	return row, err
}

func (s *instrumentedStore) Update(ctx context.Context, table, id string, values map[string]any) (row json.RawMessage, err error) {
	s.observe(ctx, "update", table, func(ctx context.Context) error {
		row, err = s.next.Update(ctx, table, id, values)
		return err
	})
	return row, err
}

func (s *instrumentedStore) Delete(ctx context.Context, table, id string) (row json.RawMessage, err error) {
	s.observe(ctx, "delete", table, func(ctx context.Context) error {
		row, err = s.next.Delete(ctx, table, id)
		return err
	})
	return row, err
}
