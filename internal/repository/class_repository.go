package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/matching-api/internal/models"
)

// ClassRepository persists classes and their weekly schedule rules.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a class together with its schedule rules.
func (r *ClassRepository) Create(ctx context.Context, exec sqlx.ExtContext, class *models.Class, rules []models.ClassScheduleRule) error {
	if class == nil {
		return fmt.Errorf("class payload is nil")
	}
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.Status == "" {
		class.Status = models.ClassStatusPending
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	target := r.exec(exec)

	const insertQuery = `
INSERT INTO classes (id, tutor_id, title, description, subject, education_level, mode, price, status,
        student_limit, current_student_count, location, online_study_link, class_start_date, created_at, updated_at)
VALUES (:id, :tutor_id, :title, :description, :subject, :education_level, :mode, :price, :status,
        :student_limit, :current_student_count, :location, :online_study_link, :class_start_date, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, class); err != nil {
		return fmt.Errorf("insert class: %w", err)
	}

	const ruleQuery = `INSERT INTO class_schedules (id, class_id, day_of_week, start_minutes, end_minutes)
        VALUES (:id, :class_id, :day_of_week, :start_minutes, :end_minutes)`
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = uuid.NewString()
		}
		rules[i].ClassID = class.ID
		if _, err := sqlx.NamedExecContext(ctx, target, ruleQuery, rules[i]); err != nil {
			return fmt.Errorf("insert class schedule: %w", err)
		}
	}
	return nil
}

// FindByID returns a class by its ID. Soft-deleted rows are excluded.
func (r *ClassRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	const query = `SELECT id, tutor_id, title, description, subject, education_level, mode, price, status,
        student_limit, current_student_count, location, online_study_link, class_start_date, created_at, updated_at, deleted_at
        FROM classes WHERE id = $1 AND deleted_at IS NULL`
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListScheduleRules returns the weekly rules of a class.
func (r *ClassRepository) ListScheduleRules(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.ClassScheduleRule, error) {
	const query = `SELECT id, class_id, day_of_week, start_minutes, end_minutes
        FROM class_schedules WHERE class_id = $1 ORDER BY day_of_week, start_minutes`
	var rules []models.ClassScheduleRule
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rules, query, classID); err != nil {
		return nil, fmt.Errorf("list class schedules: %w", err)
	}
	return rules, nil
}

// ListConflictCandidates returns live classes of the tutor teaching the
// same subject at the same level and mode, joined with their rules.
func (r *ClassRepository) ListConflictCandidates(ctx context.Context, tutorID, subject, educationLevel string, mode models.ClassMode) ([]models.ConflictCandidate, error) {
	const query = `SELECT id, tutor_id, title, description, subject, education_level, mode, price, status,
        student_limit, current_student_count, location, online_study_link, class_start_date, created_at, updated_at, deleted_at
        FROM classes
        WHERE tutor_id = $1 AND subject = $2 AND education_level = $3 AND mode = $4
          AND deleted_at IS NULL AND status IN ($5, $6, $7)`
	var classes []models.Class
	err := r.db.SelectContext(ctx, &classes, query, tutorID, subject, educationLevel, mode,
		models.ClassStatusPending, models.ClassStatusActive, models.ClassStatusOngoing)
	if err != nil {
		return nil, fmt.Errorf("list conflict candidates: %w", err)
	}

	candidates := make([]models.ConflictCandidate, 0, len(classes))
	for _, class := range classes {
		rules, err := r.ListScheduleRules(ctx, nil, class.ID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, models.ConflictCandidate{Class: class, Rules: rules})
	}
	return candidates, nil
}

// IncrementStudentCount adds one enrolled student.
func (r *ClassRepository) IncrementStudentCount(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE classes SET current_student_count = current_student_count + 1, updated_at = $2 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment student count: %w", err)
	}
	return nil
}

// DecrementStudentCount removes one enrolled student, never going below
// zero, and returns the remaining count.
func (r *ClassRepository) DecrementStudentCount(ctx context.Context, exec sqlx.ExtContext, id string) (int, error) {
	const query = `UPDATE classes SET current_student_count = GREATEST(current_student_count - 1, 0), updated_at = $2
        WHERE id = $1 RETURNING current_student_count`
	var remaining int
	if err := sqlx.GetContext(ctx, r.exec(exec), &remaining, query, id, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("decrement student count: %w", err)
	}
	return remaining, nil
}

// UpdateStatus moves a class to a new status.
func (r *ClassRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ClassStatus) error {
	const query = `UPDATE classes SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	return nil
}
