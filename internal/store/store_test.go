package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, mapError(nil))
	})

	t.Run("no rows becomes ErrNotFound", func(t *testing.T) {
		assert.ErrorIs(t, mapError(pgx.ErrNoRows), ErrNotFound)
	})

	t.Run("wrapped no rows becomes ErrNotFound", func(t *testing.T) {
		err := fmt.Errorf("query user: %w", pgx.ErrNoRows)
		assert.ErrorIs(t, mapError(err), ErrNotFound)
	})

	t.Run("unique violation becomes ErrDuplicate", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		assert.ErrorIs(t, mapError(err), ErrDuplicate)
	})

	t.Run("other constraint violations pass through", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23503"} // foreign key
		mapped := mapError(err)
		assert.NotErrorIs(t, mapped, ErrDuplicate)
		assert.ErrorIs(t, mapped, err)
	})

	t.Run("unrelated errors pass through", func(t *testing.T) {
		err := errors.New("connection reset")
		assert.Equal(t, err, mapError(err))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	t.Run("detects code 23505", func(t *testing.T) {
		assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	})

	t.Run("detects wrapped driver errors", func(t *testing.T) {
		err := fmt.Errorf("insert cart entry: %w", &pgconn.PgError{Code: "23505"})
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("ignores other codes", func(t *testing.T) {
		assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
		assert.False(t, isUniqueViolation(errors.New("not a pg error")))
	})
}
