package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Options are the collaborators shared by every Manager.
type Options struct {
	Verifier Verifier
	Tokens   *TokenIssuer
	Storage  Storage
	Audit    Repository
	Logger   *slog.Logger
	Now      func() time.Time
}

// ErrMissingOption reports an Options value without a required collaborator.
var ErrMissingOption = errors.New("auth: missing option")

func (o Options) validate() error {
	switch {
	case o.Verifier == nil:
		return fmt.Errorf("%w: verifier", ErrMissingOption)
	case o.Tokens == nil:
		return fmt.Errorf("%w: token issuer", ErrMissingOption)
	case o.Storage == nil:
		return fmt.Errorf("%w: storage", ErrMissingOption)
	}
	return nil
}

// Manager owns the session lifecycle of one durable key. It starts in
// StatusInitializing and moves to Anonymous or Authenticated once Init has
// read the stored session.
type Manager struct {
	key  string
	opts Options

	mu      sync.Mutex
	status  Status
	session *Session
}

// NewManager constructs a Manager bound to key.
func NewManager(key string, opts Options) (*Manager, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Audit == nil {
		opts.Audit = NopRepository{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{key: key, opts: opts, status: StatusInitializing}, nil
}

// Key returns the durable storage key.
func (m *Manager) Key() string { return m.key }

// Init rehydrates the stored session. A missing, expired or undecodable
// session leaves the manager Anonymous; only storage transport failures are
// returned, and the manager is Anonymous in that case too.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusInitializing {
		return nil
	}
	m.status = StatusAnonymous

	payload, err := m.opts.Storage.Load(ctx, m.key)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		m.opts.Logger.Error("load session", slog.String("key", m.key), slog.Any("error", err))
		return err
	}
	sess, err := m.decode(payload)
	if err != nil {
		m.opts.Logger.Warn("discard stored session", slog.String("key", m.key), slog.Any("error", err))
		if delErr := m.opts.Storage.Delete(ctx, m.key); delErr != nil {
			m.opts.Logger.Error("delete stored session", slog.String("key", m.key), slog.Any("error", delErr))
		}
		return nil
	}
	m.session = sess
	m.status = StatusAuthenticated
	return nil
}

func (m *Manager) decode(payload []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	if !sess.Valid() {
		return nil, fmt.Errorf("%w: missing identity", ErrStorageCorrupt)
	}
	if sess.Expired(m.opts.Now()) {
		return nil, fmt.Errorf("%w: expired at %s", ErrStorageCorrupt, sess.ExpiresAt.Format(time.RFC3339))
	}
	claims, err := m.opts.Tokens.Parse(sess.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	if claims.Subject != sess.User.ID {
		return nil, fmt.Errorf("%w: token subject mismatch", ErrStorageCorrupt)
	}
	return &sess, nil
}

// SignIn authenticates email against the allow-list. On failure the manager
// stays Anonymous and ErrUnauthorized is returned.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	normalized := NormalizeEmail(email)
	entry, err := m.opts.Verifier.Verify(ctx, normalized, password)
	if err != nil {
		m.reject(ctx, normalized, MethodPassword, "", err)
		return nil, ErrUnauthorized
	}
	return m.establish(ctx, normalized, entry, MethodPassword, "")
}

// SignInWithProvider signs in the operator registered for provider.
func (m *Manager) SignInWithProvider(ctx context.Context, provider string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	email, ok := ProviderEmail(provider)
	if !ok {
		m.reject(ctx, "", MethodProvider, provider, fmt.Errorf("unknown provider %q", provider))
		return nil, ErrUnauthorized
	}
	entry, ok := m.opts.Verifier.Lookup(email)
	if !ok {
		m.reject(ctx, email, MethodProvider, provider, errors.New("provider email not allowed"))
		return nil, ErrUnauthorized
	}
	return m.establish(ctx, email, entry, MethodProvider, provider)
}

func (m *Manager) ready() error {
	switch m.status {
	case StatusInitializing:
		return ErrInitializing
	case StatusAuthenticated:
		return ErrSessionActive
	}
	return nil
}

func (m *Manager) reject(ctx context.Context, email string, method Method, provider string, cause error) {
	m.opts.Logger.Info("sign-in rejected",
		slog.String("email", email),
		slog.String("method", string(method)),
		slog.String("provider", provider),
		slog.Any("error", cause),
	)
	m.record(ctx, Event{Kind: EventSignInFailed, Email: email, Method: method, Provider: provider})
}

func (m *Manager) establish(ctx context.Context, email string, entry Entry, method Method, provider string) (*Session, error) {
	id := &Identity{
		ID:        entry.ID,
		Email:     email,
		Name:      entry.Name,
		Role:      entry.Role,
		RoleLabel: entry.RoleLabel,
		Method:    method,
		Provider:  provider,
		IssuedAt:  m.opts.Now().UTC(),
	}
	sess, err := m.opts.Tokens.Issue(id)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("auth: encode session: %w", err)
	}
	if err := m.opts.Storage.Save(ctx, m.key, payload, m.opts.Tokens.TTL()); err != nil {
		return nil, err
	}
	m.session = sess
	m.status = StatusAuthenticated
	m.opts.Logger.Info("signed in", slog.String("email", email), slog.String("method", string(method)))
	m.record(ctx, Event{Kind: EventSignIn, Email: email, IdentityID: id.ID, Method: method, Provider: provider})
	return copySession(sess), nil
}

// SignOut clears the held session and its durable copy. It is safe to call in
// any state.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.session
	m.session = nil
	m.status = StatusAnonymous
	if err := m.opts.Storage.Delete(ctx, m.key); err != nil {
		m.opts.Logger.Error("delete session", slog.String("key", m.key), slog.Any("error", err))
	}
	if prev != nil {
		m.record(ctx, Event{Kind: EventSignOut, Email: prev.User.Email, IdentityID: prev.User.ID, Method: prev.User.Method, Provider: prev.User.Provider})
	}
}

func (m *Manager) record(ctx context.Context, ev Event) {
	ev.SessionKey = m.key
	ev.At = m.opts.Now()
	if err := m.opts.Audit.RecordEvent(ctx, ev); err != nil {
		m.opts.Logger.Warn("record auth event", slog.String("kind", ev.Kind), slog.Any("error", err))
	}
}

// Identity returns the current identity, or nil when none is held.
func (m *Manager) Identity() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	id := *m.session.User
	return &id
}

// Session returns a copy of the held session, or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.session)
}

// Loading is true until Init has completed.
func (m *Manager) Loading() bool {
	return m.Status() == StatusInitializing
}

// Status returns the lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.User != nil {
		id := *s.User
		out.User = &id
	}
	return &out
}
