package models

import "time"

// EscrowStatus is the release state of held funds.
type EscrowStatus string

const (
	EscrowStatusHeld              EscrowStatus = "HELD"
	EscrowStatusPartiallyReleased EscrowStatus = "PARTIALLY_RELEASED"
	EscrowStatusReleased          EscrowStatus = "RELEASED"
	EscrowStatusRefunded          EscrowStatus = "REFUNDED"
)

// Escrow holds funds debited at enrollment until they are released to
// the tutor or refunded to the student.
type Escrow struct {
	ID             string       `db:"id" json:"id"`
	ClassAssignID  string       `db:"class_assign_id" json:"class_assign_id"`
	StudentID      string       `db:"student_id" json:"student_id"`
	TutorID        string       `db:"tutor_id" json:"tutor_id"`
	GrossAmount    int64        `db:"gross_amount" json:"gross_amount"`
	ReleasedAmount int64        `db:"released_amount" json:"released_amount"`
	Status         EscrowStatus `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// RefundableAmount is the portion returned to the student on
// withdrawal: the full gross when untouched, otherwise the unreleased
// remainder.
func (e Escrow) RefundableAmount() int64 {
	switch e.Status {
	case EscrowStatusHeld:
		return e.GrossAmount
	case EscrowStatusPartiallyReleased:
		if e.GrossAmount <= 0 {
			return 0
		}
		remaining := e.GrossAmount - e.ReleasedAmount
		if remaining < 0 {
			return 0
		}
		return remaining
	default:
		return 0
	}
}
