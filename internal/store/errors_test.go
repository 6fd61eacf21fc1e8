package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "noop"))

	err := WrapError(pgx.ErrNoRows, "get video")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "get video")

	assert.True(t, IsNotFound(WrapError(sql.ErrNoRows, "get video")))

	dup := WrapError(&pgconn.PgError{Code: "23505", ConstraintName: "all_observations_pkey"}, "insert")
	assert.True(t, IsDuplicateKey(dup))
	assert.Contains(t, dup.Error(), "all_observations_pkey")

	other := WrapError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, "select")
	assert.False(t, IsDuplicateKey(other))
	assert.Contains(t, other.Error(), "42P01")

	plain := errors.New("boom")
	wrapped := WrapError(plain, "op")
	assert.ErrorIs(t, wrapped, plain)
	assert.Equal(t, "op: boom", wrapped.Error())
}
