package service

import (
	"testing"
	"time"

	"memberdir/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_IssueAndParse(t *testing.T) {
	t.Parallel()
	tokens := NewTokens("test-secret", 12*time.Hour, 30*24*time.Hour)
	identity := session.Identity{ID: uuid.New(), Email: "ann@example.com"}

	raw, issued, err := tokens.Issue(identity, "", false)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)
	require.NotEmpty(t, issued.TokenID)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), issued.ExpiresAt, 5*time.Second)

	parsed, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, identity, parsed.Identity)
	assert.Equal(t, issued.ID, parsed.ID)
	assert.Equal(t, issued.TokenID, parsed.TokenID)
	assert.False(t, parsed.RememberMe)
}

func TestTokens_RememberMeUsesLongTTL(t *testing.T) {
	t.Parallel()
	tokens := NewTokens("test-secret", 12*time.Hour, 30*24*time.Hour)

	_, sess, err := tokens.Issue(session.Identity{ID: uuid.New()}, "sess-1", true)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.True(t, sess.RememberMe)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), sess.ExpiresAt, 5*time.Second)
}

func TestTokens_Rejects(t *testing.T) {
	t.Parallel()
	tokens := NewTokens("test-secret", time.Hour, time.Hour)
	identity := session.Identity{ID: uuid.New(), Email: "ann@example.com"}

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		old := NewTokens("test-secret", time.Hour, time.Hour)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		raw, _, err := old.Issue(identity, "", false)
		require.NoError(t, err)
		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		raw, _, err := NewTokens("other-secret", time.Hour, time.Hour).Issue(identity, "", false)
		require.NoError(t, err)
		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		t.Parallel()
		claims := Claims{
			SessionID: "s",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   identity.ID.String(),
				Issuer:    TokenIssuer,
				Audience:  jwt.ClaimStrings{"someone-else"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				ID:        "jti",
			},
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = tokens.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := tokens.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Parallel()
		_, _, err := NewTokens("", time.Hour, time.Hour).Issue(identity, "", false)
		assert.Error(t, err)
	})
}
