package models

import "time"

// TransactionType classifies a wallet transaction row.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "DEBIT"
	TransactionTypeCredit TransactionType = "CREDIT"
)

// TransactionStatus is the settlement state of a wallet transaction.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Wallet holds a user's balance in minor currency units.
type Wallet struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransaction records one movement on a wallet. Debits carry a
// negative amount so the ledger sums to the balance delta.
type WalletTransaction struct {
	ID          string            `db:"id" json:"id"`
	WalletID    string            `db:"wallet_id" json:"wallet_id"`
	Amount      int64             `db:"amount" json:"amount"`
	Type        TransactionType   `db:"type" json:"type"`
	Status      TransactionStatus `db:"status" json:"status"`
	Description string            `db:"description" json:"description"`
	ReferenceID *string           `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}
