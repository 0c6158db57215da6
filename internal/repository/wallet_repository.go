package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/matching-api/internal/models"
)

// WalletRepository persists wallets and their transaction ledger.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository constructs the repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByUserID returns the wallet owned by a user.
func (r *WalletRepository) FindByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.Wallet, error) {
	const query = `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`
	var wallet models.Wallet
	if err := sqlx.GetContext(ctx, r.exec(exec), &wallet, query, userID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Debit subtracts the amount from the wallet only when the balance
// covers it. Returns false when funds are insufficient.
func (r *WalletRepository) Debit(ctx context.Context, exec sqlx.ExtContext, walletID string, amount int64) (bool, error) {
	const query = `UPDATE wallets SET balance = balance - $2, updated_at = $3 WHERE id = $1 AND balance >= $2`
	result, err := r.exec(exec).ExecContext(ctx, query, walletID, amount, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("debit wallet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows affected: %w", err)
	}
	return affected > 0, nil
}

// Credit adds the amount to the wallet.
func (r *WalletRepository) Credit(ctx context.Context, exec sqlx.ExtContext, walletID string, amount int64) error {
	const query = `UPDATE wallets SET balance = balance + $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, walletID, amount, time.Now().UTC()); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// CreateTransaction appends a row to the wallet ledger.
func (r *WalletRepository) CreateTransaction(ctx context.Context, exec sqlx.ExtContext, txn *models.WalletTransaction) error {
	if txn == nil {
		return fmt.Errorf("transaction payload is nil")
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Status == "" {
		txn.Status = models.TransactionStatusCompleted
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO wallet_transactions (id, wallet_id, amount, type, status, description, reference_id, created_at)
        VALUES (:id, :wallet_id, :amount, :type, :status, :description, :reference_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, txn); err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}
