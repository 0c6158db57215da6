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

// ClassAssignRepository persists student enrollments into classes.
type ClassAssignRepository struct {
	db *sqlx.DB
}

// NewClassAssignRepository constructs the repository.
func NewClassAssignRepository(db *sqlx.DB) *ClassAssignRepository {
	return &ClassAssignRepository{db: db}
}

func (r *ClassAssignRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an enrollment. The unique index on
// (class_id, student_id) rejects concurrent duplicates.
func (r *ClassAssignRepository) Create(ctx context.Context, exec sqlx.ExtContext, assign *models.ClassAssign) error {
	if assign == nil {
		return fmt.Errorf("assign payload is nil")
	}
	if assign.ID == "" {
		assign.ID = uuid.NewString()
	}
	if assign.PaymentStatus == "" {
		assign.PaymentStatus = models.PaymentStatusPending
	}
	if assign.ApprovalStatus == "" {
		assign.ApprovalStatus = models.ApprovalStatusApproved
	}
	now := time.Now().UTC()
	if assign.CreatedAt.IsZero() {
		assign.CreatedAt = now
	}
	assign.UpdatedAt = now
	const query = `INSERT INTO class_assigns (id, class_id, student_id, payment_status, approval_status, created_at, updated_at)
        VALUES (:id, :class_id, :student_id, :payment_status, :approval_status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assign); err != nil {
		return fmt.Errorf("insert class assign: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *ClassAssignRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassAssign, error) {
	const query = `SELECT id, class_id, student_id, payment_status, approval_status, created_at, updated_at
        FROM class_assigns WHERE id = $1`
	var assign models.ClassAssign
	if err := sqlx.GetContext(ctx, r.exec(exec), &assign, query, id); err != nil {
		return nil, err
	}
	return &assign, nil
}

// FindByClassAndStudent returns the enrollment for a pair if one
// exists.
func (r *ClassAssignRepository) FindByClassAndStudent(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (*models.ClassAssign, error) {
	const query = `SELECT id, class_id, student_id, payment_status, approval_status, created_at, updated_at
        FROM class_assigns WHERE class_id = $1 AND student_id = $2`
	var assign models.ClassAssign
	if err := sqlx.GetContext(ctx, r.exec(exec), &assign, query, classID, studentID); err != nil {
		return nil, err
	}
	return &assign, nil
}

// ListByStudent returns all enrollments of a student, newest first.
func (r *ClassAssignRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ClassAssign, error) {
	const query = `SELECT id, class_id, student_id, payment_status, approval_status, created_at, updated_at
        FROM class_assigns WHERE student_id = $1 ORDER BY created_at DESC`
	var assigns []models.ClassAssign
	if err := r.db.SelectContext(ctx, &assigns, query, studentID); err != nil {
		return nil, fmt.Errorf("list class assigns: %w", err)
	}
	return assigns, nil
}

// Exists checks whether the student is already enrolled in the class.
func (r *ClassAssignRepository) Exists(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM class_assigns WHERE class_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class assign: %w", err)
	}
	return true, nil
}

// UpdatePaymentStatus moves an enrollment's payment to a new state.
func (r *ClassAssignRepository) UpdatePaymentStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error {
	const query = `UPDATE class_assigns SET payment_status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// Delete removes an enrollment row.
func (r *ClassAssignRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM class_assigns WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete class assign: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class assign rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
