package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxdb.Close() })
	return sqlxdb, mock
}

func TestRunInTxCommits(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := RunInTx(context.Background(), db, TxOptions{}, func(tx *sqlx.Tx) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxBusinessErrorRollsBackWithoutRetry(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("insufficient balance")
	calls := 0
	err := RunInTx(context.Background(), db, TxOptions{RetryDelay: time.Millisecond}, func(tx *sqlx.Tx) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRetriesSerializationFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := RunInTx(context.Background(), db, TxOptions{MaxRetries: 3, RetryDelay: time.Millisecond}, func(tx *sqlx.Tx) error {
		calls++
		if calls == 1 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxExhaustsRetries(t *testing.T) {
	db, mock := newMockDB(t)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	calls := 0
	err := RunInTx(context.Background(), db, TxOptions{MaxRetries: 2, RetryDelay: time.Millisecond}, func(tx *sqlx.Tx) error {
		calls++
		return &pq.Error{Code: "40P01"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("constraint violated")))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))

	assert.True(t, IsTransient(driver.ErrBadConn))
	assert.True(t, IsTransient(fmt.Errorf("exec: %w", driver.ErrBadConn)))
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))
	assert.True(t, IsTransient(&pq.Error{Code: "40001"}))
	assert.True(t, IsTransient(&pq.Error{Code: "40P01"}))
}
