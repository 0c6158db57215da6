package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
)

// TxStarter is satisfied by *sqlx.DB.
type TxStarter interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TxOptions tunes the retry behaviour of RunInTx.
type TxOptions struct {
	MaxRetries int
	RetryDelay time.Duration
}

// RunInTx executes fn inside a single transaction. The whole unit is retried
// on transient infrastructure failures; re-running is safe because nothing is
// observable until commit. Business errors from fn roll back and propagate
// unchanged.
func RunInTx(ctx context.Context, db TxStarter, opts TxOptions, fn func(tx *sqlx.Tx) error) error {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.NewConstant(delay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return markTransient(err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return markTransient(err)
		}
		if err := tx.Commit(); err != nil {
			return markTransient(err)
		}
		return nil
	})
}

func markTransient(err error) error {
	if IsTransient(err) {
		return retry.RetryableError(err)
	}
	return err
}

// IsTransient classifies errors worth re-running a transaction for:
// bad connections, connection-exception SQLSTATEs (class 08), serialization
// failures and deadlocks.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if strings.HasPrefix(code, "08") {
			return true
		}
		switch code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}
