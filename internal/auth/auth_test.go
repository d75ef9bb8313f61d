package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/shinkrolist/internal/domain"
)

const secret = "0123456789abcdef0123"

func TestIssueAndParse(t *testing.T) {
	tokens, err := NewTokens(secret, time.Hour)
	require.NoError(t, err)

	tok, err := tokens.Issue(Session{UserID: "u-1", Username: "mai"})
	require.NoError(t, err)

	s, err := tokens.Parse("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: "u-1", Username: "mai"}, s)
}

func TestParse_Rejects(t *testing.T) {
	tokens, err := NewTokens(secret, time.Hour)
	require.NoError(t, err)

	other, err := NewTokens("another-secret-that-is-long", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(Session{UserID: "u-1"})
	require.NoError(t, err)

	for _, tok := range []string{"", "Bearer ", "garbage", foreign} {
		_, err := tokens.Parse(tok)
		assert.True(t, errors.Is(err, domain.ErrNotAuthenticated), tok)
	}
}

func TestParse_Expired(t *testing.T) {
	tokens, err := NewTokens(secret, time.Minute)
	require.NoError(t, err)

	issuedAt := time.Now().Add(-time.Hour)
	tokens.now = func() time.Time { return issuedAt }
	tok, err := tokens.Issue(Session{UserID: "u-1"})
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Parse(tok)
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))
}

func TestNewTokens_ShortSecret(t *testing.T) {
	_, err := NewTokens("short", time.Hour)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	_, err := RequireSession(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))

	ctx := WithSession(context.Background(), Session{UserID: "u-1"})
	s, err := RequireSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", s.UserID)

	// an empty identity is no identity
	ctx = WithSession(context.Background(), Session{})
	_, ok = SessionFromContext(ctx)
	assert.False(t, ok)
}
