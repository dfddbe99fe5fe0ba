package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "crm221"
	tokenType   = "bearer"
)

// Claims is the access token payload.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	AMR   string `json:"amr"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 access tokens for sessions.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the session lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue builds a Session around id.
func (t *TokenIssuer) Issue(id *Identity) (*Session, error) {
	now := t.now().UTC().Truncate(time.Second)
	expires := now.Add(t.ttl)
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		Role:  id.Role,
		AMR:   string(id.Method),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return &Session{
		AccessToken:  signed,
		TokenType:    tokenType,
		ExpiresIn:    int64(t.ttl / time.Second),
		ExpiresAt:    expires,
		RefreshToken: uuid.NewString(),
		User:         id,
	}, nil
}

// Parse verifies an access token and returns its claims.
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("auth: token invalid")
	}
	return claims, nil
}
