package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Reserved query-string keys understood by ParseValues.
const (
	ParamSelect   = "select"
	ParamOrder    = "order"
	ParamPageSize = "limit"
	ParamPage     = "page"
	ParamMatch    = "match"
)

// ParseValues reads a PostgREST-style query string into a Spec for table:
//
//	status=eq.active&rent=gt.1000&select=id,name&order=name.asc&limit=10&page=2
//
// Filter values stay strings except for in lists, is and match payloads.
// Columns are visited in sorted order so the result is deterministic.
func ParseValues(table string, values url.Values) (Spec, error) {
	spec := Spec{Table: table}

	if sel := strings.TrimSpace(values.Get(ParamSelect)); sel != "" {
		for _, c := range strings.Split(sel, ",") {
			if c = strings.TrimSpace(c); c != "" {
				spec.Columns = append(spec.Columns, c)
			}
		}
	}

	if order := strings.TrimSpace(values.Get(ParamOrder)); order != "" {
		column, dir, _ := strings.Cut(order, ".")
		o := &Order{Column: column, Direction: Direction(strings.ToLower(dir))}
		spec.Order = o
	}

	var err error
	if spec.PageSize, err = intParam(values, ParamPageSize); err != nil {
		return Spec{}, err
	}
	if spec.Page, err = intParam(values, ParamPage); err != nil {
		return Spec{}, err
	}

	if raw := values.Get(ParamMatch); raw != "" {
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return Spec{}, fmt.Errorf("%w: match must be a JSON object", ErrInvalidSpec)
		}
		spec.Predicates = append(spec.Predicates, Match(fields))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		switch k {
		case ParamSelect, ParamOrder, ParamPageSize, ParamPage, ParamMatch:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, column := range keys {
		for _, expr := range values[column] {
			p, err := parseFilter(column, expr)
			if err != nil {
				return Spec{}, err
			}
			spec.Predicates = append(spec.Predicates, p)
		}
	}
	return spec, nil
}

func parseFilter(column, expr string) (Predicate, error) {
	name, value, ok := strings.Cut(expr, ".")
	if !ok {
		return Predicate{}, fmt.Errorf("%w: filter %s=%q has no operator", ErrInvalidSpec, column, expr)
	}
	op, known := ParseOp(name)
	if !known || op == OpMatch {
		return Predicate{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidSpec, name)
	}
	switch op {
	case OpIn:
		list := strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
		items := []any{}
		if list != "" {
			for _, item := range strings.Split(list, ",") {
				items = append(items, strings.TrimSpace(item))
			}
		}
		return In(column, items), nil
	case OpIs:
		switch strings.ToLower(value) {
		case "null":
			return Is(column, nil), nil
		case "true":
			return Is(column, true), nil
		case "false":
			return Is(column, false), nil
		}
		return Predicate{}, fmt.Errorf("%w: is.%s", ErrInvalidSpec, value)
	}
	return Predicate{Op: op, Column: column, Value: value}, nil
}

func intParam(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidSpec, key)
	}
	return n, nil
}
