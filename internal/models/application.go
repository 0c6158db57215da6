package models

import "time"

// ApplicationStatus represents the lifecycle of a tutor application.
type ApplicationStatus string

// Possible application statuses. Pending applications may also be withdrawn,
// which removes the row entirely.
const (
	ApplicationStatusPending  ApplicationStatus = "PENDING"
	ApplicationStatusAccepted ApplicationStatus = "ACCEPTED"
	ApplicationStatusRejected ApplicationStatus = "REJECTED"
)

// TutorApplication is a tutor's offer to fulfil an open class request.
// At most one application per (tutor, request) pair exists, of any status.
type TutorApplication struct {
	ID             string            `db:"id" json:"id"`
	TutorID        string            `db:"tutor_id" json:"tutor_id"`
	ClassRequestID string            `db:"class_request_id" json:"class_request_id"`
	Status         ApplicationStatus `db:"status" json:"status"`
	MeetingLink    *string           `db:"meeting_link" json:"meeting_link,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}
