package auth

import (
	"errors"
	"time"
)

// Method records how an Identity was established.
type Method string

const (
	MethodPassword Method = "password"
	MethodProvider Method = "provider"
)

// Status is the state of a Manager.
type Status int

const (
	StatusInitializing Status = iota
	StatusAnonymous
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Identity is the authenticated operator.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	RoleLabel string    `json:"role_label,omitempty"`
	Method    Method    `json:"method"`
	Provider  string    `json:"provider,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Session wraps an Identity with token metadata. It is the value kept in
// durable storage.
type Session struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         *Identity `json:"user"`
}

// Valid reports whether the session carries a usable identity.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.User != nil && s.User.ID != "" && s.User.Email != ""
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

var (
	// ErrUnauthorized indicates the email or provider is not on the allow-list,
	// or a stored password hash did not match.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrStorageCorrupt indicates a stored session could not be decoded.
	ErrStorageCorrupt = errors.New("auth: stored session corrupt")
	// ErrNoSession indicates durable storage holds no session for the key.
	ErrNoSession = errors.New("auth: no session")
	// ErrSessionActive is returned by sign-in while a session is held.
	ErrSessionActive = errors.New("auth: session already active")
	// ErrInitializing is returned by sign-in before Init has completed.
	ErrInitializing = errors.New("auth: manager initializing")
)
