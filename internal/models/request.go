package models

import "time"

// RequestStatus represents the lifecycle of a class request.
type RequestStatus string

// Possible class request statuses.
const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusActive    RequestStatus = "ACTIVE"
	RequestStatusMatched   RequestStatus = "MATCHED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
	RequestStatusExpired   RequestStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusMatched, RequestStatusRejected, RequestStatusCancelled, RequestStatusExpired:
		return true
	}
	return false
}

// ClassMode describes how lessons are delivered.
type ClassMode string

// Possible class modes.
const (
	ClassModeOnline  ClassMode = "ONLINE"
	ClassModeOffline ClassMode = "OFFLINE"
	ClassModeHybrid  ClassMode = "HYBRID"
)

// ClassRequest is a demand posting from a student or parent. A nil TutorID
// means the request is open on the marketplace; a non-nil TutorID addresses
// one tutor directly.
type ClassRequest struct {
	ID                  string        `db:"id" json:"id"`
	StudentID           string        `db:"student_id" json:"student_id"`
	TutorID             *string       `db:"tutor_id" json:"tutor_id,omitempty"`
	Subject             string        `db:"subject" json:"subject"`
	EducationLevel      string        `db:"education_level" json:"education_level"`
	Mode                ClassMode     `db:"mode" json:"mode"`
	Budget              *int64        `db:"budget" json:"budget,omitempty"`
	Location            *string       `db:"location" json:"location,omitempty"`
	Description         string        `db:"description" json:"description"`
	SpecialRequirements *string       `db:"special_requirements" json:"special_requirements,omitempty"`
	ClassStartDate      *time.Time    `db:"class_start_date" json:"class_start_date,omitempty"`
	OnlineStudyLink     *string       `db:"online_study_link" json:"online_study_link,omitempty"`
	Status              RequestStatus `db:"status" json:"status"`
	ExpiresAt           time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
	DeletedAt           *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Direct reports whether the request targets one tutor.
func (r *ClassRequest) Direct() bool {
	return r.TutorID != nil && *r.TutorID != ""
}

// RequestSchedule is a schedule-preference row owned by a class request.
type RequestSchedule struct {
	ID             string `db:"id" json:"id"`
	ClassRequestID string `db:"class_request_id" json:"class_request_id"`
	WeeklyInterval
}

// RequestDetail enriches a request with its schedule preferences.
type RequestDetail struct {
	ClassRequest
	Schedules []RequestSchedule `json:"schedules"`
}

// MarketplaceFilter describes criteria for browsing open requests.
type MarketplaceFilter struct {
	StudentID      string
	TutorID        string
	Status         RequestStatus
	Subject        string
	EducationLevel string
	Mode           ClassMode
	Page           int
	PageSize       int
}
