package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
)

type lessonWriter interface {
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson, entries []models.ScheduleEntry) error
}

// ScheduleGeneratorService expands a class's weekly rules into dated
// lessons and schedule entries covering the planning horizon.
type ScheduleGeneratorService struct {
	lessons lessonWriter
	horizon time.Duration
	logger  *zap.Logger
}

// NewScheduleGeneratorService constructs the generator.
func NewScheduleGeneratorService(lessons lessonWriter, horizon time.Duration, logger *zap.Logger) *ScheduleGeneratorService {
	if horizon <= 0 {
		horizon = 28 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleGeneratorService{lessons: lessons, horizon: horizon, logger: logger}
}

// Generate materialises occurrences for the class starting at from (or
// the class start date when later) and persists them through the given
// transaction.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, exec sqlx.ExtContext, class *models.Class, rules []models.ClassScheduleRule, from time.Time) error {
	lessons, entries := s.Plan(class, rules, from)
	if len(lessons) == 0 {
		s.logger.Sugar().Warnw("no occurrences generated", "class_id", class.ID)
		return nil
	}
	if err := s.lessons.BulkCreate(ctx, exec, lessons, entries); err != nil {
		return fmt.Errorf("persist generated schedule: %w", err)
	}
	s.logger.Sugar().Infow("schedule generated", "class_id", class.ID, "lessons", len(lessons))
	return nil
}

// Plan computes the occurrences without persisting them. Each
// occurrence becomes one lesson with a single dated entry, sequenced
// chronologically.
func (s *ScheduleGeneratorService) Plan(class *models.Class, rules []models.ClassScheduleRule, from time.Time) ([]models.Lesson, []models.ScheduleEntry) {
	start := from.UTC()
	if class.ClassStartDate != nil && class.ClassStartDate.After(start) {
		start = class.ClassStartDate.UTC()
	}
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(s.horizon)

	var occurrences []models.ScheduleEntry
	for day := startDay; day.Before(end); day = day.AddDate(0, 0, 1) {
		for _, rule := range rules {
			if int(day.Weekday()) != rule.DayOfWeek {
				continue
			}
			entryStart := day.Add(time.Duration(rule.StartMinutes) * time.Minute)
			if entryStart.Before(start) {
				continue
			}
			entryEnd := day.Add(time.Duration(rule.EndMinutes) * time.Minute)
			occurrences = append(occurrences, models.ScheduleEntry{
				ClassID:   class.ID,
				StartTime: entryStart,
				EndTime:   entryEnd,
			})
		}
	}
	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].StartTime.Before(occurrences[j].StartTime)
	})

	lessons := make([]models.Lesson, 0, len(occurrences))
	entries := make([]models.ScheduleEntry, 0, len(occurrences))
	for i, occurrence := range occurrences {
		lesson := models.Lesson{
			ID:       uuid.NewString(),
			ClassID:  class.ID,
			Title:    fmt.Sprintf("Lesson %d", i+1),
			Sequence: i + 1,
		}
		occurrence.LessonID = lesson.ID
		lessons = append(lessons, lesson)
		entries = append(entries, occurrence)
	}
	return lessons, entries
}
