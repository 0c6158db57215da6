package models

import "time"

// AccountRole distinguishes the account kinds that can enroll or be
// enrolled into classes.
type AccountRole string

const (
	RoleStudent AccountRole = "STUDENT"
	RoleParent  AccountRole = "PARENT"
	RoleTutor   AccountRole = "TUTOR"
)

// StudentProfile is the enrollable identity behind a student or a
// parent-managed child account.
type StudentProfile struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TutorProfile is a tutor's teaching identity.
type TutorProfile struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
