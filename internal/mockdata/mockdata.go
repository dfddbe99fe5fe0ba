// Package mockdata seeds the in-memory store with a sample portfolio.
package mockdata

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cascadeprojects/crm221/internal/query/memstore"
)

//go:embed seed.yaml
var seed []byte

var relativeDate = regexp.MustCompile(`^today([+-]\d+)d$`)

// Tables decodes the seed, resolving relative dates against now.
func Tables(now time.Time) (map[string][]memstore.Row, error) {
	return Decode(seed, now)
}

// Decode parses a YAML document of table name to row list.
func Decode(data []byte, now time.Time) (map[string][]memstore.Row, error) {
	var raw map[string][]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("mockdata: parse seed: %w", err)
	}
	today := now.UTC()
	out := make(map[string][]memstore.Row, len(raw))
	for table, rows := range raw {
		resolved := make([]memstore.Row, 0, len(rows))
		for _, row := range rows {
			r := make(memstore.Row, len(row))
			for k, v := range row {
				r[k] = resolve(v, today)
			}
			resolved = append(resolved, r)
		}
		out[table] = resolved
	}
	return out, nil
}

func resolve(v any, today time.Time) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	m := relativeDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	days, err := strconv.Atoi(m[1])
	if err != nil {
		return s
	}
	return today.AddDate(0, 0, days).Format("2006-01-02")
}

// NewStore returns a memstore loaded with the seed.
func NewStore(now time.Time) (*memstore.Store, error) {
	tables, err := Tables(now)
	if err != nil {
		return nil, err
	}
	return memstore.New(tables)
}
