// Package portfolio computes the dashboard views over the property
// collections.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cascadeprojects/crm221/internal/query"
)

const dateLayout = "2006-01-02"

// PendingMaintenanceStatuses are the work order states counted as open.
var PendingMaintenanceStatuses = []string{"new", "assigned", "in_progress"}

// Service reads portfolio collections through query.Query.
type Service struct {
	store     query.Store
	logger    *slog.Logger
	leaseDays int
	now       func() time.Time
}

// NewService constructs a Service. leaseDays is the window used for upcoming
// lease endings in the summary.
func NewService(store query.Store, leaseDays int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if leaseDays <= 0 {
		leaseDays = 90
	}
	return &Service{store: store, logger: logger, leaseDays: leaseDays, now: time.Now}
}

func fetch[T any](ctx context.Context, s *Service, spec query.Spec) (query.State[T], error) {
	q := query.New[T](s.store, spec, s.logger)
	if err := q.Fetch(ctx); err != nil {
		return query.State[T]{}, err
	}
	return q.State(), nil
}

func (s *Service) count(ctx context.Context, spec query.Spec) (int64, error) {
	spec.Columns = []string{query.IDColumn}
	spec.PageSize = 1
	st, err := fetch[struct{}](ctx, s, spec)
	if err != nil {
		return 0, err
	}
	if st.Count == nil {
		return 0, nil
	}
	return *st.Count, nil
}

func (s *Service) leaseEndingsSpec(days int) query.Spec {
	today := s.now().UTC()
	return query.Spec{
		Table: TableTenants,
		Predicates: []query.Predicate{
			query.Eq("status", "active"),
			query.Gte("lease_end_date", today.Format(dateLayout)),
			query.Lte("lease_end_date", today.AddDate(0, 0, days).Format(dateLayout)),
		},
		Order: &query.Order{Column: "lease_end_date", Direction: query.Asc},
	}
}

// UpcomingLeaseEndings lists active tenants whose lease ends within days.
func (s *Service) UpcomingLeaseEndings(ctx context.Context, days int) ([]Tenant, error) {
	if days <= 0 {
		days = s.leaseDays
	}
	st, err := fetch[Tenant](ctx, s, s.leaseEndingsSpec(days))
	if err != nil {
		return nil, err
	}
	return st.Rows, nil
}

// ParsePeriod validates a period name. Empty selects a month.
func ParsePeriod(v string) (Period, error) {
	switch Period(v) {
	case "", PeriodMonth:
		return PeriodMonth, nil
	case PeriodQuarter, PeriodYear:
		return Period(v), nil
	}
	return "", fmt.Errorf("portfolio: unknown period %q", v)
}

func (s *Service) periodStart(period Period) time.Time {
	now := s.now().UTC()
	switch period {
	case PeriodQuarter:
		return now.AddDate(0, -3, 0)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	}
	return now.AddDate(0, -1, 0)
}

// FinancialSummary totals income and expenses since the start of period,
// optionally for one property.
func (s *Service) FinancialSummary(ctx context.Context, propertyID string, period Period) (FinancialSummary, error) {
	if period == "" {
		period = PeriodMonth
	}
	start := s.periodStart(period)
	spec := query.Spec{
		Table:      TableTransactions,
		Columns:    []string{"type", "amount"},
		Predicates: []query.Predicate{query.Gte("date", start.Format(dateLayout))},
	}
	if propertyID != "" {
		spec = spec.Where(query.Eq("property_id", propertyID))
	}
	st, err := fetch[Transaction](ctx, s, spec)
	if err != nil {
		return FinancialSummary{}, err
	}
	out := FinancialSummary{Period: period, StartDate: start.Format(dateLayout), EndDate: s.now().UTC().Format(dateLayout)}
	for _, t := range st.Rows {
		switch t.Type {
		case "income":
			out.Income += t.Amount
		case "expense":
			out.Expenses += t.Amount
		}
	}
	out.NetIncome = out.Income - out.Expenses
	return out, nil
}

// Summary assembles the dashboard overview. The underlying reads run
// concurrently and the first failure is returned.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var (
		out        Summary
		properties []Property
		financial  FinancialSummary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := fetch[Property](ctx, s, query.Spec{Table: TableProperties, Columns: []string{"id", "total_units", "occupied_units"}})
		properties = st.Rows
		return err
	})
	g.Go(func() error {
		n, err := s.count(ctx, query.Spec{Table: TableTenants, Predicates: []query.Predicate{query.Eq("status", "active")}})
		out.TotalTenants = n
		return err
	})
	g.Go(func() error {
		n, err := s.count(ctx, query.Spec{Table: TableMaintenance, Predicates: []query.Predicate{query.In("status", PendingMaintenanceStatuses)}})
		out.PendingMaintenance = n
		return err
	})
	g.Go(func() error {
		var err error
		financial, err = s.FinancialSummary(ctx, "", PeriodMonth)
		return err
	})
	g.Go(func() error {
		n, err := s.count(ctx, s.leaseEndingsSpec(s.leaseDays))
		out.UpcomingLeasesEnding = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	out.TotalProperties = len(properties)
	for _, p := range properties {
		out.TotalUnits += p.TotalUnits
		out.OccupiedUnits += p.OccupiedUnits
	}
	out.VacantUnits = out.TotalUnits - out.OccupiedUnits
	if out.TotalUnits > 0 {
		out.OccupancyRate = float64(out.OccupiedUnits) / float64(out.TotalUnits) * 100
	}
	out.MonthlyRevenue = financial.Income
	out.MonthlyExpenses = financial.Expenses
	out.NetIncome = financial.NetIncome
	return out, nil
}
