package models

import "time"

// NotificationKind identifies the event a notification describes.
type NotificationKind string

const (
	NotificationClassRequestReceived     NotificationKind = "CLASS_REQUEST_RECEIVED"
	NotificationClassRequestAccepted     NotificationKind = "CLASS_REQUEST_ACCEPTED"
	NotificationClassRequestRejected     NotificationKind = "CLASS_REQUEST_REJECTED"
	NotificationApplicationReceived      NotificationKind = "TUTOR_APPLICATION_RECEIVED"
	NotificationApplicationAccepted      NotificationKind = "TUTOR_APPLICATION_ACCEPTED"
	NotificationApplicationRejected      NotificationKind = "TUTOR_APPLICATION_REJECTED"
	NotificationClassCreatedFromRequest  NotificationKind = "CLASS_CREATED_FROM_REQUEST"
	NotificationEscrowPaid               NotificationKind = "ESCROW_PAID"
	NotificationClassEnrollmentSuccess   NotificationKind = "CLASS_ENROLLMENT_SUCCESS"
	NotificationClassEnrollmentWithdrawn NotificationKind = "CLASS_ENROLLMENT_WITHDRAWN"
)

// Notification is a persisted notification row.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Kind        NotificationKind `db:"kind" json:"kind"`
	Title       string           `db:"title" json:"title"`
	Body        string           `db:"body" json:"body"`
	ReferenceID *string          `db:"reference_id" json:"reference_id,omitempty"`
	Read        bool             `db:"read" json:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// PendingNotification is a notification decided inside a transaction
// and dispatched only after the transaction commits. A dispatch failure
// never affects the committed workflow.
type PendingNotification struct {
	UserID      string
	Kind        NotificationKind
	Title       string
	Body        string
	ReferenceID string
}
