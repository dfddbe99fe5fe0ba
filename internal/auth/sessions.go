package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cascadeprojects/crm221/internal/platform/httpx"
)

type contextKey struct{}

// ContextWithManager stores m in ctx.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// ManagerFromContext returns the Manager stored in ctx.
func ManagerFromContext(ctx context.Context) *Manager {
	m, _ := ctx.Value(contextKey{}).(*Manager)
	return m
}

// IdentityFromContext returns the signed-in identity for ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	m := ManagerFromContext(ctx)
	if m == nil {
		return nil
	}
	return m.Identity()
}

// PostgresClaims renders the caller's identity as request.jwt.claims for
// row-level security. ok is false for anonymous callers.
func PostgresClaims(ctx context.Context) (string, bool) {
	id := IdentityFromContext(ctx)
	if id == nil {
		return "", false
	}
	data, err := json.Marshal(map[string]any{
		"sub":      id.ID,
		"email":    id.Email,
		"role":     "authenticated",
		"app_role": id.Role,
		"amr":      id.Method,
	})
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Sessions hands out one Manager per browser, keyed by a cookie.
type Sessions struct {
	opts       Options
	cookieName string
	secure     bool
	ttl        time.Duration
}

// NewSessions constructs a Sessions registry. opts must carry a Verifier,
// Tokens and Storage.
func NewSessions(opts Options, cookieName string, secure bool) (*Sessions, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if cookieName == "" {
		cookieName = "crm221_session"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sessions{opts: opts, cookieName: cookieName, secure: secure, ttl: opts.Tokens.TTL()}, nil
}

// CookieName returns the session cookie name.
func (s *Sessions) CookieName() string { return s.cookieName }

// Load returns an initialized Manager for the request's cookie key. isNew is
// true when the request carried no usable key.
func (s *Sessions) Load(ctx context.Context, r *http.Request) (m *Manager, isNew bool, err error) {
	key := ""
	if cookie, cerr := r.Cookie(s.cookieName); cerr == nil {
		if _, perr := uuid.Parse(cookie.Value); perr == nil {
			key = cookie.Value
		}
	}
	if key == "" {
		key = uuid.NewString()
		isNew = true
	}
	m, err = NewManager(key, s.opts)
	if err != nil {
		return nil, isNew, err
	}
	if err := m.Init(ctx); err != nil {
		return m, isNew, err
	}
	return m, isNew, nil
}

// WriteCookie sets the session cookie for key.
func (s *Sessions) WriteCookie(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(s.ttl),
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Middleware attaches the caller's Manager to the request context. Storage
// failures leave the caller Anonymous.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, isNew, err := s.Load(r.Context(), r)
		if err != nil {
			s.opts.Logger.Warn("session storage unavailable", slog.Any("error", err))
		}
		if isNew {
			s.WriteCookie(w, m.Key())
		}
		next.ServeHTTP(w, r.WithContext(ContextWithManager(r.Context(), m)))
	})
}

// RequireIdentity rejects requests without a signed-in identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
