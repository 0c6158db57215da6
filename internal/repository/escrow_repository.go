package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/matching-api/internal/models"
)

// EscrowRepository persists escrow holds backing paid enrollments.
type EscrowRepository struct {
	db *sqlx.DB
}

// NewEscrowRepository constructs the repository.
func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new escrow hold.
func (r *EscrowRepository) Create(ctx context.Context, exec sqlx.ExtContext, escrow *models.Escrow) error {
	if escrow == nil {
		return fmt.Errorf("escrow payload is nil")
	}
	if escrow.ID == "" {
		escrow.ID = uuid.NewString()
	}
	if escrow.Status == "" {
		escrow.Status = models.EscrowStatusHeld
	}
	now := time.Now().UTC()
	if escrow.CreatedAt.IsZero() {
		escrow.CreatedAt = now
	}
	escrow.UpdatedAt = now
	const query = `INSERT INTO escrows (id, class_assign_id, student_id, tutor_id, gross_amount, released_amount, status, created_at, updated_at)
        VALUES (:id, :class_assign_id, :student_id, :tutor_id, :gross_amount, :released_amount, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, escrow); err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

// ListRefundableByAssign returns every escrow of an enrollment that still
// holds funds. The slice is empty when everything has been settled.
func (r *EscrowRepository) ListRefundableByAssign(ctx context.Context, exec sqlx.ExtContext, classAssignID string) ([]models.Escrow, error) {
	const query = `SELECT id, class_assign_id, student_id, tutor_id, gross_amount, released_amount, status, created_at, updated_at
        FROM escrows WHERE class_assign_id = $1 AND status IN ($2, $3) ORDER BY created_at`
	var escrows []models.Escrow
	err := sqlx.SelectContext(ctx, r.exec(exec), &escrows, query, classAssignID,
		models.EscrowStatusHeld, models.EscrowStatusPartiallyReleased)
	if err != nil {
		return nil, fmt.Errorf("list refundable escrows: %w", err)
	}
	return escrows, nil
}

// MarkRefunded moves an escrow to the refunded state.
func (r *EscrowRepository) MarkRefunded(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE escrows SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.EscrowStatusRefunded, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark escrow refunded: %w", err)
	}
	return nil
}

// Delete removes a settled escrow row.
func (r *EscrowRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM escrows WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete escrow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("escrow rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
