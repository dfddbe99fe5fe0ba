package memstore

import (
	"cmp"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/cascadeprojects/crm221/internal/query"
)

// Casers carry state and must not be shared across goroutines.
var folders = sync.Pool{New: func() any { return cases.Fold() }}

func fold(s string) string {
	c := folders.Get().(cases.Caser)
	defer folders.Put(c)
	return c.String(s)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// compare orders two scalar values. Strings are read as numbers or booleans
// when the other side is one, which lets query-string filters match typed
// columns.
func compare(a, b any) (int, bool) {
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			return cmp.Compare(af, bf), true
		}
		if bs, ok := b.(string); ok {
			if bf, err := strconv.ParseFloat(bs, 64); err == nil {
				return cmp.Compare(af, bf), true
			}
		}
		return 0, false
	}
	if _, ok := number(b); ok {
		c, ok := compare(b, a)
		return -c, ok
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			bs, isStr := b.(string)
			if !isStr {
				return 0, false
			}
			parsed, err := strconv.ParseBool(bs)
			if err != nil {
				return 0, false
			}
			bb = parsed
		}
		return cmp.Compare(boolRank(ab), boolRank(bb)), true
	}
	if _, ok := b.(bool); ok {
		c, ok := compare(b, a)
		return -c, ok
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func likeRegexp(pattern string, insensitive bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	if insensitive {
		sb.WriteString("(?i)")
	}
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func like(value any, pattern string, insensitive bool) (bool, error) {
	s, ok := value.(string)
	if !ok {
		return false, nil
	}
	if insensitive {
		s, pattern = fold(s), fold(pattern)
	}
	re, err := likeRegexp(pattern, insensitive)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

// textMatch requires every lexeme of q to appear as a word of value.
func textMatch(value any, q string) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	split := func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(fold(s), split) {
		words[w] = struct{}{}
	}
	terms := strings.FieldsFunc(fold(q), split)
	if len(terms) == 0 {
		return false
	}
	for _, t := range terms {
		if _, ok := words[t]; !ok {
			return false
		}
	}
	return true
}

func matches(row map[string]any, f query.Filter) (bool, error) {
	v := row[f.Column]
	switch f.Op {
	case query.OpEq:
		return equal(v, f.Value), nil
	case query.OpNeq:
		return v != nil && !equal(v, f.Value), nil
	case query.OpGt, query.OpLt, query.OpGte, query.OpLte:
		if v == nil {
			return false, nil
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false, nil
		}
		switch f.Op {
		case query.OpGt:
			return c > 0, nil
		case query.OpLt:
			return c < 0, nil
		case query.OpGte:
			return c >= 0, nil
		default:
			return c <= 0, nil
		}
	case query.OpLike:
		return like(v, f.Value.(string), false)
	case query.OpILike:
		return like(v, f.Value.(string), true)
	case query.OpIn:
		values, _ := f.Value.([]any)
		for _, candidate := range values {
			if equal(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case query.OpIs:
		if f.Value == nil {
			return v == nil, nil
		}
		b, ok := v.(bool)
		return ok && b == f.Value.(bool), nil
	case query.OpTextSearch:
		return textMatch(v, f.Value.(string)), nil
	case query.OpMatch:
		for _, field := range f.Fields {
			cell := row[field.Column]
			if field.Value == nil {
				if cell != nil {
					return false, nil
				}
				continue
			}
			if !equal(cell, field.Value) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, &query.RequestError{Code: query.CodeUnsupported, Message: fmt.Sprintf("operator %s is not supported by the mock store", f.Op)}
}
