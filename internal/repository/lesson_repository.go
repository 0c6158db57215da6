package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/matching-api/internal/models"
)

// LessonRepository persists lessons and their dated schedule entries.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

func (r *LessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BulkCreate inserts lessons and entries produced by the schedule
// generator.
func (r *LessonRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson, entries []models.ScheduleEntry) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	const lessonQuery = `INSERT INTO lessons (id, class_id, title, sequence, created_at, updated_at)
        VALUES (:id, :class_id, :title, :sequence, :created_at, :updated_at)`
	for i := range lessons {
		if lessons[i].ID == "" {
			lessons[i].ID = uuid.NewString()
		}
		if lessons[i].CreatedAt.IsZero() {
			lessons[i].CreatedAt = now
		}
		lessons[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, lessonQuery, lessons[i]); err != nil {
			return fmt.Errorf("insert lesson: %w", err)
		}
	}

	const entryQuery = `INSERT INTO schedule_entries (id, lesson_id, class_id, start_time, end_time, created_at)
        VALUES (:id, :lesson_id, :class_id, :start_time, :end_time, :created_at)`
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, entryQuery, entries[i]); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}
	return nil
}

// ListEntriesByClass returns all schedule entries for a class ordered
// by start time.
func (r *LessonRepository) ListEntriesByClass(ctx context.Context, classID string) ([]models.ScheduleEntry, error) {
	const query = `SELECT id, lesson_id, class_id, start_time, end_time, created_at
        FROM schedule_entries WHERE class_id = $1 ORDER BY start_time`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	return entries, nil
}

// DeleteFutureEntries removes every schedule entry of the class
// starting after the cutoff, returning the number removed.
func (r *LessonRepository) DeleteFutureEntries(ctx context.Context, exec sqlx.ExtContext, classID string, after time.Time) (int64, error) {
	const query = `DELETE FROM schedule_entries WHERE class_id = $1 AND start_time > $2`
	result, err := r.exec(exec).ExecContext(ctx, query, classID, after)
	if err != nil {
		return 0, fmt.Errorf("delete future entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("future entries rows affected: %w", err)
	}
	return affected, nil
}

// DeleteOrphanedLessons removes lessons of the class that have no
// remaining schedule entries. Entries must be deleted first.
func (r *LessonRepository) DeleteOrphanedLessons(ctx context.Context, exec sqlx.ExtContext, classID string) (int64, error) {
	const query = `DELETE FROM lessons WHERE class_id = $1
        AND NOT EXISTS (SELECT 1 FROM schedule_entries se WHERE se.lesson_id = lessons.id)`
	result, err := r.exec(exec).ExecContext(ctx, query, classID)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned lessons: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("orphaned lessons rows affected: %w", err)
	}
	return affected, nil
}
