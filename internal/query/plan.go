package query

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
)

// CountMode controls whether a select also reports a total row count.
type CountMode string

const CountExact CountMode = "exact"

// Field is a column/value pair.
type Field struct {
	Column string
	Value  any
}

// Filter is a validated predicate. In values are normalized to []any, Match
// values to Fields sorted by column.
type Filter struct {
	Op     Op
	Column string
	Value  any
	Fields []Field
}

// Range is an inclusive, zero-based row window.
type Range struct {
	From int
	To   int
}

// Plan is the store-independent request built from a Spec.
type Plan struct {
	Table   string
	Columns []string
	Count   CountMode
	Filters []Filter
	Order   *Order
	Limit   int
	Range   *Range
}

// Window returns the offset and row limit a store should apply. ok is false
// when the plan is unbounded.
func (p Plan) Window() (offset, limit int, ok bool) {
	if p.Range != nil {
		return p.Range.From, p.Range.To - p.Range.From + 1, true
	}
	if p.Limit > 0 {
		return 0, p.Limit, true
	}
	return 0, 0, false
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is usable as a table or column name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// Build turns a Spec into a Plan. Predicates are applied in Op order and, for
// the same Op, in the order they were declared.
func Build(spec Spec) (Plan, error) {
	if !ValidIdentifier(spec.Table) {
		return Plan{}, fmt.Errorf("%w: table %q", ErrInvalidSpec, spec.Table)
	}
	plan := Plan{Table: spec.Table, Count: CountExact}

	columns, err := projection(spec.Columns)
	if err != nil {
		return Plan{}, err
	}
	plan.Columns = columns

	preds := append([]Predicate(nil), spec.Predicates...)
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Op < preds[j].Op })
	for _, p := range preds {
		f, err := buildFilter(p)
		if err != nil {
			return Plan{}, err
		}
		plan.Filters = append(plan.Filters, f)
	}

	if spec.Order != nil && spec.Order.Column != "" {
		if !ValidIdentifier(spec.Order.Column) {
			return Plan{}, fmt.Errorf("%w: order column %q", ErrInvalidSpec, spec.Order.Column)
		}
		if d := spec.Order.Direction; d != "" && d != Asc && d != Desc {
			return Plan{}, fmt.Errorf("%w: order direction %q", ErrInvalidSpec, d)
		}
		order := *spec.Order
		plan.Order = &order
	}

	if spec.PageSize < 0 || spec.Page < 0 {
		return Plan{}, fmt.Errorf("%w: negative paging", ErrInvalidSpec)
	}
	if spec.PageSize > 0 {
		plan.Limit = spec.PageSize
		if spec.Page > 0 {
			if spec.Page-1 > (math.MaxInt-spec.PageSize)/spec.PageSize {
				return Plan{}, fmt.Errorf("%w: page %d out of range", ErrInvalidSpec, spec.Page)
			}
			offset := (spec.Page - 1) * spec.PageSize
			plan.Range = &Range{From: offset, To: offset + spec.PageSize - 1}
		}
	}
	return plan, nil
}

func projection(columns []string) ([]string, error) {
	var out []string
	for _, c := range columns {
		if c == "*" {
			return nil, nil
		}
		if !ValidIdentifier(c) {
			return nil, fmt.Errorf("%w: column %q", ErrInvalidSpec, c)
		}
		out = append(out, c)
	}
	return out, nil
}

func buildFilter(p Predicate) (Filter, error) {
	f := Filter{Op: p.Op, Column: p.Column, Value: p.Value}
	if p.Op != OpMatch && !ValidIdentifier(p.Column) {
		return Filter{}, fmt.Errorf("%w: column %q", ErrInvalidSpec, p.Column)
	}
	switch p.Op {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte:
		if p.Value == nil {
			return Filter{}, fmt.Errorf("%w: %s on %s needs a value, use Is for null", ErrInvalidSpec, p.Op, p.Column)
		}
	case OpLike, OpILike, OpTextSearch, OpRangeGt, OpRangeLt, OpRangeGte, OpRangeLte:
		if _, ok := p.Value.(string); !ok {
			return Filter{}, fmt.Errorf("%w: %s on %s needs a string", ErrInvalidSpec, p.Op, p.Column)
		}
	case OpIn:
		values, ok := toSlice(p.Value)
		if !ok {
			return Filter{}, fmt.Errorf("%w: in on %s needs a list", ErrInvalidSpec, p.Column)
		}
		f.Value = values
	case OpIs:
		switch p.Value.(type) {
		case nil, bool:
		default:
			return Filter{}, fmt.Errorf("%w: is on %s accepts null, true or false", ErrInvalidSpec, p.Column)
		}
	case OpMatch:
		values, ok := p.Value.(map[string]any)
		if !ok || len(values) == 0 {
			return Filter{}, fmt.Errorf("%w: match needs column values", ErrInvalidSpec)
		}
		for column, v := range values {
			if !ValidIdentifier(column) {
				return Filter{}, fmt.Errorf("%w: column %q", ErrInvalidSpec, column)
			}
			f.Fields = append(f.Fields, Field{Column: column, Value: v})
		}
		sort.Slice(f.Fields, func(i, j int) bool { return f.Fields[i].Column < f.Fields[j].Column })
		f.Value = nil
	default:
		return Filter{}, fmt.Errorf("%w: unknown operator %s", ErrInvalidSpec, p.Op)
	}
	return f, nil
}

func toSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if values, ok := v.([]any); ok {
		return values, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
