package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/matching-api/internal/models"
)

// ClassRequestRepository persists class requests and their weekly
// schedule rows.
type ClassRequestRepository struct {
	db *sqlx.DB
}

// NewClassRequestRepository constructs the repository.
func NewClassRequestRepository(db *sqlx.DB) *ClassRequestRepository {
	return &ClassRequestRepository{db: db}
}

func (r *ClassRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a request together with its schedule rows.
func (r *ClassRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, request *models.ClassRequest, schedules []models.RequestSchedule) error {
	if request == nil {
		return fmt.Errorf("request payload is nil")
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	target := r.exec(exec)

	const insertQuery = `
INSERT INTO class_requests (id, student_id, tutor_id, subject, education_level, mode, budget, location, description,
        special_requirements, class_start_date, online_study_link, status, expires_at, created_at, updated_at)
VALUES (:id, :student_id, :tutor_id, :subject, :education_level, :mode, :budget, :location, :description,
        :special_requirements, :class_start_date, :online_study_link, :status, :expires_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, request); err != nil {
		return fmt.Errorf("insert class request: %w", err)
	}
	return r.insertSchedules(ctx, target, request.ID, schedules)
}

func (r *ClassRequestRepository) insertSchedules(ctx context.Context, target sqlx.ExtContext, requestID string, schedules []models.RequestSchedule) error {
	const query = `INSERT INTO class_request_schedules (id, class_request_id, day_of_week, start_minutes, end_minutes)
        VALUES (:id, :class_request_id, :day_of_week, :start_minutes, :end_minutes)`
	for i := range schedules {
		if schedules[i].ID == "" {
			schedules[i].ID = uuid.NewString()
		}
		schedules[i].ClassRequestID = requestID
		if _, err := sqlx.NamedExecContext(ctx, target, query, schedules[i]); err != nil {
			return fmt.Errorf("insert request schedule: %w", err)
		}
	}
	return nil
}

// FindByID returns a request by its ID. Soft-deleted rows are excluded.
func (r *ClassRequestRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassRequest, error) {
	const query = `SELECT id, student_id, tutor_id, subject, education_level, mode, budget, location, description,
        special_requirements, class_start_date, online_study_link, status, expires_at, created_at, updated_at, deleted_at
        FROM class_requests WHERE id = $1 AND deleted_at IS NULL`
	var request models.ClassRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID returns a request with its schedule rows.
func (r *ClassRequestRepository) FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error) {
	request, err := r.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	schedules, err := r.ListSchedules(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return &models.RequestDetail{ClassRequest: *request, Schedules: schedules}, nil
}

// ListSchedules returns the schedule rows of a request.
func (r *ClassRequestRepository) ListSchedules(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]models.RequestSchedule, error) {
	const query = `SELECT id, class_request_id, day_of_week, start_minutes, end_minutes
        FROM class_request_schedules WHERE class_request_id = $1 ORDER BY day_of_week, start_minutes`
	var schedules []models.RequestSchedule
	if err := sqlx.SelectContext(ctx, r.exec(exec), &schedules, query, requestID); err != nil {
		return nil, fmt.Errorf("list request schedules: %w", err)
	}
	return schedules, nil
}

// List returns marketplace requests filtered by the provided criteria.
// Direct requests (tutor_id set) are excluded unless the filter names a
// tutor.
func (r *ClassRequestRepository) List(ctx context.Context, filter models.MarketplaceFilter) ([]models.ClassRequest, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	} else {
		conditions = append(conditions, "tutor_id IS NULL")
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.EducationLevel != "" {
		conditions = append(conditions, fmt.Sprintf("education_level = $%d", len(args)+1))
		args = append(args, filter.EducationLevel)
	}
	if filter.Mode != "" {
		conditions = append(conditions, fmt.Sprintf("mode = $%d", len(args)+1))
		args = append(args, filter.Mode)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, tutor_id, subject, education_level, mode, budget, location, description,
        special_requirements, class_start_date, online_study_link, status, expires_at, created_at, updated_at, deleted_at
        FROM class_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, size, offset)

	var requests []models.ClassRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class requests: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM class_requests" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class requests: %w", err)
	}
	return requests, total, nil
}

// Update rewrites the mutable fields of a request.
func (r *ClassRequestRepository) Update(ctx context.Context, request *models.ClassRequest) error {
	request.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_requests SET subject = :subject, education_level = :education_level, mode = :mode,
        budget = :budget, location = :location, description = :description, special_requirements = :special_requirements,
        class_start_date = :class_start_date, online_study_link = :online_study_link, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, request)
	if err != nil {
		return fmt.Errorf("update class request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class request rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceSchedules deletes all schedule rows of a request and inserts
// the provided set.
func (r *ClassRequestRepository) ReplaceSchedules(ctx context.Context, exec sqlx.ExtContext, requestID string, schedules []models.RequestSchedule) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM class_request_schedules WHERE class_request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete request schedules: %w", err)
	}
	return r.insertSchedules(ctx, target, requestID, schedules)
}

// UpdateStatus moves a request to a new status.
func (r *ClassRequestRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RequestStatus) error {
	const query = `UPDATE class_requests SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update class request status: %w", err)
	}
	return nil
}

// SoftDelete marks a request deleted without removing the row.
func (r *ClassRequestRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE class_requests SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete class request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class request rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListExpired returns requests past their expiry whose status matches
// one of the given values.
func (r *ClassRequestRepository) ListExpired(ctx context.Context, statuses []models.RequestStatus, now time.Time, limit int) ([]models.ClassRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := []interface{}{now}
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, status)
	}
	query := fmt.Sprintf(`SELECT id, student_id, tutor_id, subject, education_level, mode, budget, location, description,
        special_requirements, class_start_date, online_study_link, status, expires_at, created_at, updated_at, deleted_at
        FROM class_requests WHERE deleted_at IS NULL AND expires_at <= $1 AND status IN (%s)
        ORDER BY expires_at LIMIT %d`, strings.Join(placeholders, ","), limit)

	var requests []models.ClassRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list expired requests: %w", err)
	}
	return requests, nil
}
