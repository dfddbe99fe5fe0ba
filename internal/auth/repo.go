package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Event kinds recorded in the audit trail.
const (
	EventSignIn       = "sign_in"
	EventSignInFailed = "sign_in_failed"
	EventSignOut      = "sign_out"
)

// Event is one entry of the sign-in audit trail.
type Event struct {
	Kind       string
	Email      string
	IdentityID string
	Method     Method
	Provider   string
	SessionKey string
	At         time.Time
}

// Repository records authentication events.
type Repository interface {
	RecordEvent(ctx context.Context, ev Event) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRepository writes events to the auth_events table.
type PGRepository struct {
	db execer
}

// NewRepository constructs a PostgreSQL repository. pool is usually a
// *pgxpool.Pool.
func NewRepository(pool execer) *PGRepository {
	return &PGRepository{db: pool}
}

const insertEvent = `INSERT INTO auth_events (kind, email, identity_id, method, provider, session_key, occurred_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7)`

// RecordEvent inserts ev.
func (r *PGRepository) RecordEvent(ctx context.Context, ev Event) error {
	if _, err := r.db.Exec(ctx, insertEvent, ev.Kind, ev.Email, ev.IdentityID, string(ev.Method), ev.Provider, ev.SessionKey, ev.At.UTC()); err != nil {
		return fmt.Errorf("auth: record %s: %w", ev.Kind, err)
	}
	return nil
}

// NopRepository discards events. It backs the mock data mode.
type NopRepository struct{}

func (NopRepository) RecordEvent(context.Context, Event) error { return nil }

var (
	_ Repository = (*PGRepository)(nil)
	_ Repository = NopRepository{}
)
