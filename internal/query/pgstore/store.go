// Package pgstore executes query plans against PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cascadeprojects/crm221/internal/platform/db"
	"github.com/cascadeprojects/crm221/internal/query"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open transactions, such as *pgxpool.Pool.
type DB interface {
	Querier
	db.Beginner
}

// ClaimsFunc returns the JSON claims of the caller bound to ctx. When ok is
// true every statement runs in a transaction with request.jwt.claims set so
// row-level security policies can see the caller.
type ClaimsFunc func(ctx context.Context) (claims string, ok bool)

// Store implements query.Store on PostgreSQL.
type Store struct {
	db     DB
	claims ClaimsFunc
	logger *slog.Logger
}

// New constructs a Store. claims may be nil.
func New(conn DB, claims ClaimsFunc, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: conn, claims: claims, logger: logger}
}

func (s *Store) run(ctx context.Context, fn func(Querier) error) error {
	if s.claims != nil {
		if claims, ok := s.claims(ctx); ok {
			return db.WithTx(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, true)", claims); err != nil {
					return err
				}
				return fn(tx)
			})
		}
	}
	return fn(s.db)
}

// Select runs the exact count and the row statement for plan.
func (s *Store) Select(ctx context.Context, plan query.Plan) (query.Result, error) {
	rowsStmt, countStmt, err := CompileSelect(plan)
	if err != nil {
		return query.Result{}, normalize("select", plan.Table, err)
	}
	var res query.Result
	err = s.run(ctx, func(q Querier) error {
		if err := q.QueryRow(ctx, countStmt.SQL, countStmt.Args...).Scan(&res.Count); err != nil {
			return err
		}
		rows, err := q.Query(ctx, rowsStmt.SQL, rowsStmt.Args...)
		if err != nil {
			return err
		}
		raw, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
		if err != nil {
			return err
		}
		res.Rows = make([]json.RawMessage, len(raw))
		for i, r := range raw {
			res.Rows[i] = json.RawMessage(r)
		}
		return nil
	})
	if err != nil {
		return query.Result{}, normalize("select", plan.Table, err)
	}
	return res, nil
}

// Get reads one row by id.
func (s *Store) Get(ctx context.Context, table string, columns []string, id string) (json.RawMessage, error) {
	if err := checkTable(table); err != nil {
		return nil, normalize("get", table, err)
	}
	return s.one(ctx, "get", table, CompileGet(table, columns, id))
}

// Insert creates one row.
func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (json.RawMessage, error) {
	if err := checkTable(table); err != nil {
		return nil, normalize("insert", table, err)
	}
	stmt, err := CompileInsert(table, values)
	if err != nil {
		return nil, normalize("insert", table, err)
	}
	return s.one(ctx, "insert", table, stmt)
}

// Update changes one row by id.
func (s *Store) Update(ctx context.Context, table, id string, values map[string]any) (json.RawMessage, error) {
	if err := checkTable(table); err != nil {
		return nil, normalize("update", table, err)
	}
	stmt, err := CompileUpdate(table, id, values)
	if err != nil {
		return nil, normalize("update", table, err)
	}
	return s.one(ctx, "update", table, stmt)
}

// Delete removes one row by id.
func (s *Store) Delete(ctx context.Context, table, id string) (json.RawMessage, error) {
	if err := checkTable(table); err != nil {
		return nil, normalize("delete", table, err)
	}
	return s.one(ctx, "delete", table, CompileDelete(table, id))
}

func (s *Store) one(ctx context.Context, op, table string, stmt Statement) (json.RawMessage, error) {
	var raw []byte
	err := s.run(ctx, func(q Querier) error {
		return q.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&raw)
	})
	if err != nil {
		return nil, normalize(op, table, err)
	}
	return json.RawMessage(raw), nil
}

func checkTable(table string) error {
	if !query.ValidIdentifier(table) {
		return fmt.Errorf("%w: table %q", query.ErrInvalidSpec, table)
	}
	return nil
}

// normalize maps pgx failures onto query.RequestError, keeping the SQLSTATE.
func normalize(op, table string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &query.RequestError{Op: op, Table: table, Code: query.CodeNotFound, Err: fmt.Errorf("%w: %v", query.ErrNotFound, err)}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &query.RequestError{Op: op, Table: table, Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return query.Normalize(op, table, err)
}

var _ query.Store = (*Store)(nil)
