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

// TutorApplicationRepository persists tutor applications to class
// requests.
type TutorApplicationRepository struct {
	db *sqlx.DB
}

// NewTutorApplicationRepository constructs the repository.
func NewTutorApplicationRepository(db *sqlx.DB) *TutorApplicationRepository {
	return &TutorApplicationRepository{db: db}
}

func (r *TutorApplicationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create persists a new application.
func (r *TutorApplicationRepository) Create(ctx context.Context, application *models.TutorApplication) error {
	if application == nil {
		return fmt.Errorf("application payload is nil")
	}
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	if application.Status == "" {
		application.Status = models.ApplicationStatusPending
	}
	now := time.Now().UTC()
	if application.CreatedAt.IsZero() {
		application.CreatedAt = now
	}
	application.UpdatedAt = now
	const query = `INSERT INTO tutor_applications (id, tutor_id, class_request_id, status, meeting_link, created_at, updated_at)
        VALUES (:id, :tutor_id, :class_request_id, :status, :meeting_link, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, application); err != nil {
		return fmt.Errorf("insert tutor application: %w", err)
	}
	return nil
}

// FindByID returns an application by its ID.
func (r *TutorApplicationRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TutorApplication, error) {
	const query = `SELECT id, tutor_id, class_request_id, status, meeting_link, created_at, updated_at
        FROM tutor_applications WHERE id = $1`
	var application models.TutorApplication
	if err := sqlx.GetContext(ctx, r.exec(exec), &application, query, id); err != nil {
		return nil, err
	}
	return &application, nil
}

// ExistsForRequest checks whether the tutor has already applied to the
// request, in any status.
func (r *TutorApplicationRepository) ExistsForRequest(ctx context.Context, tutorID, requestID string) (bool, error) {
	const query = `SELECT 1 FROM tutor_applications WHERE tutor_id = $1 AND class_request_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, tutorID, requestID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check tutor application: %w", err)
	}
	return true, nil
}

// ListByRequest returns all applications submitted to a request.
func (r *TutorApplicationRepository) ListByRequest(ctx context.Context, requestID string) ([]models.TutorApplication, error) {
	const query = `SELECT id, tutor_id, class_request_id, status, meeting_link, created_at, updated_at
        FROM tutor_applications WHERE class_request_id = $1 ORDER BY created_at`
	var applications []models.TutorApplication
	if err := r.db.SelectContext(ctx, &applications, query, requestID); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return applications, nil
}

// UpdateStatus moves an application to a new status.
func (r *TutorApplicationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus) error {
	const query = `UPDATE tutor_applications SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}

// RejectOtherPending rejects every pending application on the request
// except the accepted one, returning the affected tutor IDs.
func (r *TutorApplicationRepository) RejectOtherPending(ctx context.Context, exec sqlx.ExtContext, requestID, acceptedID string) ([]string, error) {
	const query = `UPDATE tutor_applications SET status = $3, updated_at = $4
        WHERE class_request_id = $1 AND id <> $2 AND status = $5
        RETURNING tutor_id`
	rows, err := r.exec(exec).QueryxContext(ctx, query, requestID, acceptedID,
		models.ApplicationStatusRejected, time.Now().UTC(), models.ApplicationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("reject other applications: %w", err)
	}
	defer rows.Close()

	var tutorIDs []string
	for rows.Next() {
		var tutorID string
		if err := rows.Scan(&tutorID); err != nil {
			return nil, fmt.Errorf("scan rejected tutor id: %w", err)
		}
		tutorIDs = append(tutorIDs, tutorID)
	}
	return tutorIDs, rows.Err()
}

// Delete removes an application row. Used for withdrawal of pending
// applications.
func (r *TutorApplicationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM tutor_applications WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete tutor application: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("tutor application rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
