package models

import "time"

// PaymentStatus tracks escrow funding of a single enrollment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// ApprovalStatus tracks tutor approval of an enrollment. Enrollments
// created through matching or direct assignment are auto-approved.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// ClassAssign links one student to one class. At most one row may exist
// per (class_id, student_id) pair; the unique index enforces that under
// concurrent assignment.
type ClassAssign struct {
	ID             string         `db:"id" json:"id"`
	ClassID        string         `db:"class_id" json:"class_id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	PaymentStatus  PaymentStatus  `db:"payment_status" json:"payment_status"`
	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
