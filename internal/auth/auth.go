// Package auth resolves the session identity that personal status writes
// require, and carries it through a context.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/varoOP/shinkrolist/internal/domain"
)

// Session is the resolved identity of the caller.
type Session struct {
	UserID   string
	Username string
}

type sessionKey struct{}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session in ctx, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, false
	}
	return s, true
}

// RequireSession returns the session in ctx or domain.ErrNotAuthenticated.
func RequireSession(ctx context.Context) (Session, error) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return Session{}, domain.ErrNotAuthenticated
	}
	return s, nil
}

type claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

const issuer = "shinkrolist"

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, errors.Wrap(domain.ErrValidation, "auth secret must be at least 16 characters")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for s. A zero ttl issues a token that never
// expires.
func (t *Tokens) Issue(s Session) (string, error) {
	if s.UserID == "" {
		return "", errors.Wrap(domain.ErrValidation, "user id is required")
	}

	now := t.now()
	c := claims{
		Name: s.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  s.UserID,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if t.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Parse verifies a token and returns its session. Any failure is reported
// as domain.ErrNotAuthenticated.
func (t *Tokens) Parse(token string) (Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Session{}, domain.ErrNotAuthenticated
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return Session{}, errors.Wrapf(domain.ErrNotAuthenticated, "invalid token: %v", err)
	}
	if c.Subject == "" {
		return Session{}, errors.Wrap(domain.ErrNotAuthenticated, "token has no subject")
	}

	return Session{UserID: c.Subject, Username: c.Name}, nil
}
