package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingRepo struct {
	events []Event
}

func (r *recordingRepo) RecordEvent(ctx context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingRepo) kinds() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type failingStorage struct {
	Storage
	err error
}

func (f failingStorage) Load(ctx context.Context, key string) ([]byte, error) { return nil, f.err }
func (f failingStorage) Save(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return f.err
}

func testOptions(t *testing.T, storage Storage) (Options, *recordingRepo) {
	t.Helper()
	tokens, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	repo := &recordingRepo{}
	return Options{Verifier: DefaultAllowList(), Tokens: tokens, Storage: storage, Audit: repo}, repo
}

func newManager(t *testing.T, key string, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(key, opts)
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	opts, _ := testOptions(t, NewMemoryStorage())
	for name, mutate := range map[string]func(*Options){
		"verifier": func(o *Options) { o.Verifier = nil },
		"tokens":   func(o *Options) { o.Tokens = nil },
		"storage":  func(o *Options) { o.Storage = nil },
	} {
		t.Run(name, func(t *testing.T) {
			o := opts
			mutate(&o)
			_, err := NewManager("k", o)
			assert.ErrorIs(t, err, ErrMissingOption)
			_, err = NewSessions(o, "", false)
			assert.ErrorIs(t, err, ErrMissingOption)
		})
	}
}

func readyManager(t *testing.T, storage Storage) (*Manager, *recordingRepo) {
	t.Helper()
	opts, repo := testOptions(t, storage)
	m := newManager(t, "browser-1", opts)
	require.NoError(t, m.Init(context.Background()))
	return m, repo
}

func TestManagerStartsInitializing(t *testing.T) {
	opts, _ := testOptions(t, NewMemoryStorage())
	m := newManager(t, "browser-1", opts)
	assert.True(t, m.Loading())
	assert.Equal(t, StatusInitializing, m.Status())

	_, err := m.SignIn(context.Background(), "jason@cascadeprojects.com", "x")
	assert.ErrorIs(t, err, ErrInitializing)

	require.NoError(t, m.Init(context.Background()))
	assert.False(t, m.Loading())
	assert.Equal(t, StatusAnonymous, m.Status())
	assert.Nil(t, m.Identity())
}

func TestSignInAllowListed(t *testing.T) {
	storage := NewMemoryStorage()
	m, repo := readyManager(t, storage)

	sess, err := m.SignIn(context.Background(), "jason@cascadeprojects.com", "anything")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, m.Status())
	assert.Equal(t, "Jason Golden", sess.User.Name)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.EqualValues(t, 3600, sess.ExpiresIn)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.Equal(t, MethodPassword, sess.User.Method)

	id := m.Identity()
	require.NotNil(t, id)
	assert.Equal(t, "jason@cascadeprojects.com", id.Email)
	assert.Equal(t, "admin", id.Role)

	raw, err := storage.Load(context.Background(), "browser-1")
	require.NoError(t, err)
	var stored Session
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, sess.AccessToken, stored.AccessToken)
	assert.Equal(t, []string{EventSignIn}, repo.kinds())
}

func TestSignInNormalizesEmail(t *testing.T) {
	for _, email := range []string{"  Doug@CascadeProjects.com ", "DOUG@cascadeprojects.com"} {
		m, _ := readyManager(t, NewMemoryStorage())
		sess, err := m.SignIn(context.Background(), email, "")
		require.NoError(t, err, email)
		assert.Equal(t, "doug@cascadeprojects.com", sess.User.Email)
		assert.Equal(t, "Doug Mino", sess.User.Name)
	}
}

func TestSignInRejectsUnknownEmail(t *testing.T) {
	storage := NewMemoryStorage()
	for _, email := range []string{"nobody@example.com", " NOBODY@example.com", "jason@cascadeprojects.co", ""} {
		m, repo := readyManager(t, storage)
		sess, err := m.SignIn(context.Background(), email, "x")
		assert.Nil(t, sess)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, StatusAnonymous, m.Status())
		assert.Nil(t, m.Identity())
		assert.Equal(t, []string{EventSignInFailed}, repo.kinds())
	}
	_, err := storage.Load(context.Background(), "browser-1")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSignInChecksStoredHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	list, err := NewAllowList(Entry{Email: "ops@cascadeprojects.com", ID: "ops", Name: "Ops", Role: "admin", PasswordHash: string(hash)})
	require.NoError(t, err)

	opts, _ := testOptions(t, NewMemoryStorage())
	opts.Verifier = list
	m := newManager(t, "k", opts)
	require.NoError(t, m.Init(context.Background()))

	_, err = m.SignIn(context.Background(), "ops@cascadeprojects.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = m.SignIn(context.Background(), "ops@cascadeprojects.com", "correct horse")
	assert.NoError(t, err)
}

func TestSignInWhileAuthenticated(t *testing.T) {
	m, _ := readyManager(t, NewMemoryStorage())
	_, err := m.SignIn(context.Background(), "jason@cascadeprojects.com", "x")
	require.NoError(t, err)

	_, err = m.SignIn(context.Background(), "doug@cascadeprojects.com", "x")
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, "jason@cascadeprojects.com", m.Identity().Email)
}

func TestSignInWithProvider(t *testing.T) {
	cases := map[string]string{
		"google":   "Jason Golden",
		"facebook": "Doug Mino",
		"Apple":    "Jason Golden",
	}
	for provider, name := range cases {
		t.Run(provider, func(t *testing.T) {
			m, _ := readyManager(t, NewMemoryStorage())
			sess, err := m.SignInWithProvider(context.Background(), provider)
			require.NoError(t, err)
			assert.Equal(t, name, sess.User.Name)
			assert.Equal(t, MethodProvider, sess.User.Method)
		})
	}

	m, _ := readyManager(t, NewMemoryStorage())
	_, err := m.SignInWithProvider(context.Background(), "github")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, StatusAnonymous, m.Status())
}

func TestSignInWithProviderNeedsAllowListedEmail(t *testing.T) {
	list, err := NewAllowList(Entry{Email: "doug@cascadeprojects.com", ID: "dmino", Name: "Doug Mino"})
	require.NoError(t, err)
	opts, _ := testOptions(t, NewMemoryStorage())
	opts.Verifier = list
	m := newManager(t, "k", opts)
	require.NoError(t, m.Init(context.Background()))

	_, err = m.SignInWithProvider(context.Background(), "google")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSignOutClearsStorage(t *testing.T) {
	storage := NewMemoryStorage()
	m, repo := readyManager(t, storage)
	_, err := m.SignIn(context.Background(), "jason@cascadeprojects.com", "x")
	require.NoError(t, err)

	m.SignOut(context.Background())
	assert.Equal(t, StatusAnonymous, m.Status())
	assert.Nil(t, m.Identity())
	assert.Nil(t, m.Session())
	_, err = storage.Load(context.Background(), "browser-1")
	assert.ErrorIs(t, err, ErrNoSession)

	m.SignOut(context.Background())
	assert.Equal(t, []string{EventSignIn, EventSignOut}, repo.kinds())
}

func TestInitRehydratesStoredSession(t *testing.T) {
	storage := NewMemoryStorage()
	first, _ := readyManager(t, storage)
	sess, err := first.SignIn(context.Background(), "doug@cascadeprojects.com", "x")
	require.NoError(t, err)

	second, _ := readyManager(t, storage)
	assert.Equal(t, StatusAuthenticated, second.Status())
	assert.Equal(t, sess.AccessToken, second.Session().AccessToken)
	assert.Equal(t, "Doug Mino", second.Identity().Name)
}

func TestInitDiscardsCorruptSession(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("{oops"),
		"no identity":  []byte(`{"access_token":"abc","token_type":"bearer"}`),
		"forged token": []byte(`{"access_token":"abc","user":{"id":"jgolden","email":"jason@cascadeprojects.com"}}`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			storage := NewMemoryStorage()
			require.NoError(t, storage.Save(context.Background(), "browser-1", payload, 0))

			m, _ := readyManager(t, storage)
			assert.Equal(t, StatusAnonymous, m.Status())
			_, err := storage.Load(context.Background(), "browser-1")
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestInitDiscardsExpiredSession(t *testing.T) {
	storage := NewMemoryStorage()
	opts, _ := testOptions(t, storage)
	past := time.Now().Add(-2 * time.Hour)
	opts.Tokens.now = func() time.Time { return past }
	writer := newManager(t, "browser-1", opts)
	require.NoError(t, writer.Init(context.Background()))
	_, err := writer.SignIn(context.Background(), "jason@cascadeprojects.com", "x")
	require.NoError(t, err)

	reader, _ := readyManager(t, storage)
	assert.Equal(t, StatusAnonymous, reader.Status())
}

func TestStorageFailures(t *testing.T) {
	boom := errors.New("connection refused")
	opts, _ := testOptions(t, failingStorage{Storage: NewMemoryStorage(), err: boom})
	m := newManager(t, "k", opts)

	assert.ErrorIs(t, m.Init(context.Background()), boom)
	assert.Equal(t, StatusAnonymous, m.Status())

	_, err := m.SignIn(context.Background(), "jason@cascadeprojects.com", "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusAnonymous, m.Status())
}

func TestIdentityIsACopy(t *testing.T) {
	m, _ := readyManager(t, NewMemoryStorage())
	_, err := m.SignIn(context.Background(), "jason@cascadeprojects.com", "x")
	require.NoError(t, err)

	id := m.Identity()
	id.Name = "Someone Else"
	assert.Equal(t, "Jason Golden", m.Identity().Name)
}
