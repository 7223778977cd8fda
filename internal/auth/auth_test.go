package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	t.Run("issued token verifies to the same user id", func(t *testing.T) {
		tokens := NewTokens("test-secret", time.Hour)

		signed, err := tokens.Issue(42)
		require.NoError(t, err)
		require.NotEmpty(t, signed)

		userID, err := tokens.Verify(signed)
		require.NoError(t, err)
		assert.Equal(t, int64(42), userID)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		tokens := NewTokens("test-secret", -time.Minute)

		signed, err := tokens.Issue(42)
		require.NoError(t, err)

		_, err = tokens.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		tokens := NewTokens("test-secret", time.Hour)
		other := NewTokens("other-secret", time.Hour)

		signed, err := other.Issue(42)
		require.NoError(t, err)

		_, err = tokens.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		tokens := NewTokens("test-secret", time.Hour)

		_, err := tokens.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("token with alg none is rejected", func(t *testing.T) {
		tokens := NewTokens("test-secret", time.Hour)

		// header {"alg":"none","typ":"JWT"} with claims {"id":42}
		unsigned := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJpZCI6NDJ9."
		_, err := tokens.Verify(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPasswords(t *testing.T) {
	t.Run("hash round-trips through check", func(t *testing.T) {
		hash, err := HashPassword("s3cret")
		require.NoError(t, err)
		assert.NotEqual(t, "s3cret", hash)

		assert.True(t, CheckPassword(hash, "s3cret"))
		assert.False(t, CheckPassword(hash, "wrong"))
	})

	t.Run("hashes are salted", func(t *testing.T) {
		first, err := HashPassword("s3cret")
		require.NoError(t, err)
		second, err := HashPassword("s3cret")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
		assert.True(t, CheckPassword(first, "s3cret"))
		assert.True(t, CheckPassword(second, "s3cret"))
	})

	t.Run("hasher satisfies the password port", func(t *testing.T) {
		h := Hasher{}

		hash, err := h.Hash("s3cret")
		require.NoError(t, err)
		assert.True(t, h.Check(hash, "s3cret"))
		assert.False(t, h.Check(hash, "wrong"))
	})
}
