package models

import "time"

// ClassStatus represents the lifecycle of a class.
type ClassStatus string

// Possible class statuses. Cancelled is reachable from any non-terminal
// state when the last enrolled student withdraws.
const (
	ClassStatusPending   ClassStatus = "PENDING"
	ClassStatusActive    ClassStatus = "ACTIVE"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusCompleted ClassStatus = "COMPLETED"
	ClassStatusCancelled ClassStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s ClassStatus) Terminal() bool {
	return s == ClassStatusCompleted || s == ClassStatusCancelled
}

// Class is a tutor's offering, created either from a recurring template
// (open, zero students) or from a matched request (1-1, one seat reserved).
type Class struct {
	ID                  string      `db:"id" json:"id"`
	TutorID             string      `db:"tutor_id" json:"tutor_id"`
	Title               string      `db:"title" json:"title"`
	Description         string      `db:"description" json:"description"`
	Subject             string      `db:"subject" json:"subject"`
	EducationLevel      string      `db:"education_level" json:"education_level"`
	Mode                ClassMode   `db:"mode" json:"mode"`
	Price               *int64      `db:"price" json:"price,omitempty"`
	Status              ClassStatus `db:"status" json:"status"`
	StudentLimit        int         `db:"student_limit" json:"student_limit"`
	CurrentStudentCount int         `db:"current_student_count" json:"current_student_count"`
	Location            *string     `db:"location" json:"location,omitempty"`
	OnlineStudyLink     *string     `db:"online_study_link" json:"online_study_link,omitempty"`
	ClassStartDate      *time.Time  `db:"class_start_date" json:"class_start_date,omitempty"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
	DeletedAt           *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
}

// ClassScheduleRule is one weekly recurrence rule owned by a class.
type ClassScheduleRule struct {
	ID      string `db:"id" json:"id"`
	ClassID string `db:"class_id" json:"class_id"`
	WeeklyInterval
}

// ClassDetail bundles a class with its weekly rules.
type ClassDetail struct {
	Class
	ScheduleRules []ClassScheduleRule `json:"schedule_rules"`
}

// ConflictCandidate is a class considered by the conflict detector,
// joined with its schedule rules.
type ConflictCandidate struct {
	Class Class
	Rules []ClassScheduleRule
}
