package query

import "fmt"

// Op identifies a predicate kind. The declaration order is the order in which
// predicates are applied to a request.
type Op int

const (
	OpEq Op = iota
	OpNeq
	OpGt
	OpLt
	OpGte
	OpLte
	OpLike
	OpILike
	OpIn
	OpIs
	OpRangeGt
	OpRangeLt
	OpRangeGte
	OpRangeLte
	OpTextSearch
	OpMatch
)

var opNames = [...]string{
	OpEq:         "eq",
	OpNeq:        "neq",
	OpGt:         "gt",
	OpLt:         "lt",
	OpGte:        "gte",
	OpLte:        "lte",
	OpLike:       "like",
	OpILike:      "ilike",
	OpIn:         "in",
	OpIs:         "is",
	OpRangeGt:    "sr",
	OpRangeLt:    "sl",
	OpRangeGte:   "nxl",
	OpRangeLte:   "nxr",
	OpTextSearch: "fts",
	OpMatch:      "match",
}

// String returns the PostgREST-style operator name.
func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

// ParseOp resolves an operator name produced by Op.String.
func ParseOp(name string) (Op, bool) {
	for i, n := range opNames {
		if n == name {
			return Op(i), true
		}
	}
	return 0, false
}

// Predicate is a single filter condition on one column. Match predicates
// carry their column/value pairs in Value and leave Column empty.
type Predicate struct {
	Op     Op
	Column string
	Value  any
}

func (p Predicate) String() string {
	if p.Op == OpMatch {
		return fmt.Sprintf("match(%v)", p.Value)
	}
	return fmt.Sprintf("%s.%s(%v)", p.Column, p.Op, p.Value)
}

func Eq(column string, value any) Predicate  { return Predicate{Op: OpEq, Column: column, Value: value} }
func Neq(column string, value any) Predicate { return Predicate{Op: OpNeq, Column: column, Value: value} }
func Gt(column string, value any) Predicate  { return Predicate{Op: OpGt, Column: column, Value: value} }
func Lt(column string, value any) Predicate  { return Predicate{Op: OpLt, Column: column, Value: value} }
func Gte(column string, value any) Predicate { return Predicate{Op: OpGte, Column: column, Value: value} }
func Lte(column string, value any) Predicate { return Predicate{Op: OpLte, Column: column, Value: value} }

// Like matches a SQL LIKE pattern.
func Like(column, pattern string) Predicate {
	return Predicate{Op: OpLike, Column: column, Value: pattern}
}

// ILike matches a case-insensitive SQL LIKE pattern.
func ILike(column, pattern string) Predicate {
	return Predicate{Op: OpILike, Column: column, Value: pattern}
}

// In requires column membership in values. values must be a slice.
func In(column string, values any) Predicate {
	return Predicate{Op: OpIn, Column: column, Value: values}
}

// Is compares against null (nil), true or false.
func Is(column string, value any) Predicate {
	return Predicate{Op: OpIs, Column: column, Value: value}
}

func RangeGt(column, rng string) Predicate  { return Predicate{Op: OpRangeGt, Column: column, Value: rng} }
func RangeLt(column, rng string) Predicate  { return Predicate{Op: OpRangeLt, Column: column, Value: rng} }
func RangeGte(column, rng string) Predicate { return Predicate{Op: OpRangeGte, Column: column, Value: rng} }
func RangeLte(column, rng string) Predicate { return Predicate{Op: OpRangeLte, Column: column, Value: rng} }

// TextSearch runs a full-text query against a tsvector column.
func TextSearch(column, text string) Predicate {
	return Predicate{Op: OpTextSearch, Column: column, Value: text}
}

// Match requires every column in values to equal its value.
func Match(values map[string]any) Predicate {
	return Predicate{Op: OpMatch, Value: values}
}
