package pgstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cascadeprojects/crm221/internal/query"
)

// Statement is a parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

const rowAlias = "t"

var comparison = map[query.Op]string{
	query.OpEq:       "=",
	query.OpNeq:      "<>",
	query.OpGt:       ">",
	query.OpLt:       "<",
	query.OpGte:      ">=",
	query.OpLte:      "<=",
	query.OpLike:     "LIKE",
	query.OpILike:    "ILIKE",
	query.OpRangeGt:  ">>",
	query.OpRangeLt:  "<<",
	query.OpRangeGte: "&>",
	query.OpRangeLte: "&<",
}

type sqlBuilder struct {
	sb   strings.Builder
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *sqlBuilder) statement() Statement {
	return Statement{SQL: b.sb.String(), Args: b.args}
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func column(name string) string {
	return rowAlias + "." + ident(name)
}

// projection renders the row as a single jsonb value.
func projection(columns []string) string {
	if len(columns) == 0 {
		return "to_jsonb(" + rowAlias + ")"
	}
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, "'"+c+"', "+column(c))
	}
	return "jsonb_build_object(" + strings.Join(parts, ", ") + ")"
}

func (b *sqlBuilder) where(filters []query.Filter) error {
	if len(filters) == 0 {
		return nil
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		cond, err := b.condition(f)
		if err != nil {
			return err
		}
		conds = append(conds, cond)
	}
	b.write(" WHERE ", strings.Join(conds, " AND "))
	return nil
}

func (b *sqlBuilder) condition(f query.Filter) (string, error) {
	if op, ok := comparison[f.Op]; ok {
		return column(f.Column) + " " + op + " " + b.arg(f.Value), nil
	}
	switch f.Op {
	case query.OpIn:
		values, _ := f.Value.([]any)
		if len(values) == 0 {
			return "FALSE", nil
		}
		params := make([]string, 0, len(values))
		for _, v := range values {
			params = append(params, b.arg(v))
		}
		return column(f.Column) + " IN (" + strings.Join(params, ", ") + ")", nil
	case query.OpIs:
		switch f.Value {
		case nil:
			return column(f.Column) + " IS NULL", nil
		case true:
			return column(f.Column) + " IS TRUE", nil
		default:
			return column(f.Column) + " IS FALSE", nil
		}
	case query.OpTextSearch:
		return column(f.Column) + " @@ to_tsquery(" + b.arg(f.Value) + ")", nil
	case query.OpMatch:
		conds := make([]string, 0, len(f.Fields))
		for _, field := range f.Fields {
			if field.Value == nil {
				conds = append(conds, column(field.Column)+" IS NULL")
				continue
			}
			conds = append(conds, column(field.Column)+" = "+b.arg(field.Value))
		}
		return "(" + strings.Join(conds, " AND ") + ")", nil
	}
	return "", fmt.Errorf("%w: unsupported operator %s", query.ErrInvalidSpec, f.Op)
}

func from(table string) string {
	return " FROM " + ident(table) + " AS " + rowAlias
}

// CompileSelect renders the row and exact-count statements for plan.
func CompileSelect(plan query.Plan) (rows Statement, count Statement, err error) {
	var cb sqlBuilder
	cb.write("SELECT count(*)", from(plan.Table))
	if err := cb.where(plan.Filters); err != nil {
		return Statement{}, Statement{}, err
	}

	var rb sqlBuilder
	rb.write("SELECT ", projection(plan.Columns), from(plan.Table))
	if err := rb.where(plan.Filters); err != nil {
		return Statement{}, Statement{}, err
	}
	if plan.Order != nil {
		dir := "DESC"
		if plan.Order.Ascending() {
			dir = "ASC"
		}
		rb.write(" ORDER BY ", column(plan.Order.Column), " ", dir)
	}
	if offset, limit, ok := plan.Window(); ok {
		rb.write(" LIMIT ", rb.arg(limit))
		if offset > 0 {
			rb.write(" OFFSET ", rb.arg(offset))
		}
	}
	return rb.statement(), cb.statement(), nil
}

// CompileGet renders a read of one row by id.
func CompileGet(table string, columns []string, id string) Statement {
	var b sqlBuilder
	b.write("SELECT ", projection(columns), from(table), " WHERE ", column(query.IDColumn), " = ", b.arg(id))
	return b.statement()
}

func sortedColumns(values map[string]any) ([]string, error) {
	columns := make([]string, 0, len(values))
	for c := range values {
		if !query.ValidIdentifier(c) {
			return nil, fmt.Errorf("%w: column %q", query.ErrInvalidSpec, c)
		}
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns, nil
}

// CompileInsert renders an insert returning the created row.
func CompileInsert(table string, values map[string]any) (Statement, error) {
	columns, err := sortedColumns(values)
	if err != nil {
		return Statement{}, err
	}
	var b sqlBuilder
	b.write("INSERT INTO ", ident(table), " AS ", rowAlias)
	if len(columns) == 0 {
		b.write(" DEFAULT VALUES")
	} else {
		names := make([]string, 0, len(columns))
		params := make([]string, 0, len(columns))
		for _, c := range columns {
			names = append(names, ident(c))
			params = append(params, b.arg(values[c]))
		}
		b.write(" (", strings.Join(names, ", "), ") VALUES (", strings.Join(params, ", "), ")")
	}
	b.write(" RETURNING to_jsonb(", rowAlias, ")")
	return b.statement(), nil
}

// CompileUpdate renders an update of one row by id returning the new row.
func CompileUpdate(table, id string, values map[string]any) (Statement, error) {
	columns, err := sortedColumns(values)
	if err != nil {
		return Statement{}, err
	}
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("%w: update needs at least one column", query.ErrInvalidSpec)
	}
	var b sqlBuilder
	b.write("UPDATE ", ident(table), " AS ", rowAlias, " SET ")
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		sets = append(sets, ident(c)+" = "+b.arg(values[c]))
	}
	b.write(strings.Join(sets, ", "), " WHERE ", column(query.IDColumn), " = ", b.arg(id))
	b.write(" RETURNING to_jsonb(", rowAlias, ")")
	return b.statement(), nil
}

// CompileDelete renders a delete of one row by id returning the removed row.
func CompileDelete(table, id string) Statement {
	var b sqlBuilder
	b.write("DELETE FROM ", ident(table), " AS ", rowAlias, " WHERE ", column(query.IDColumn), " = ", b.arg(id))
	b.write(" RETURNING to_jsonb(", rowAlias, ")")
	return b.statement()
}
