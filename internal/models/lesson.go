package models

import "time"

// Lesson is one logical session of a class. Concrete occurrences live
// in schedule_entries; a lesson with no remaining entries is orphaned
// and removed by the withdrawal purge.
type Lesson struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Title     string    `db:"title" json:"title"`
	Sequence  int       `db:"sequence" json:"sequence"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleEntry is a concrete dated occurrence of a lesson.
type ScheduleEntry struct {
	ID        string    `db:"id" json:"id"`
	LessonID  string    `db:"lesson_id" json:"lesson_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
