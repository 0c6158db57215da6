package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ProfileRepository resolves user accounts to enrollable student
// profiles and tutor profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// StudentProfileIDForUser returns the student profile owned by the
// user account.
func (r *ProfileRepository) StudentProfileIDForUser(ctx context.Context, userID string) (string, error) {
	const query = `SELECT id FROM student_profiles WHERE user_id = $1`
	var profileID string
	if err := r.db.GetContext(ctx, &profileID, query, userID); err != nil {
		return "", err
	}
	return profileID, nil
}

// TutorProfileIDForUser returns the tutor profile owned by the user
// account.
func (r *ProfileRepository) TutorProfileIDForUser(ctx context.Context, userID string) (string, error) {
	const query = `SELECT id FROM tutor_profiles WHERE user_id = $1`
	var profileID string
	if err := r.db.GetContext(ctx, &profileID, query, userID); err != nil {
		return "", err
	}
	return profileID, nil
}

// UserIDForStudentProfile maps a student profile back to its owning
// user, for notification delivery.
func (r *ProfileRepository) UserIDForStudentProfile(ctx context.Context, profileID string) (string, error) {
	const query = `SELECT user_id FROM student_profiles WHERE id = $1`
	var userID string
	if err := r.db.GetContext(ctx, &userID, query, profileID); err != nil {
		return "", err
	}
	return userID, nil
}

// UserIDForTutorProfile maps a tutor profile back to its owning user.
func (r *ProfileRepository) UserIDForTutorProfile(ctx context.Context, profileID string) (string, error) {
	const query = `SELECT user_id FROM tutor_profiles WHERE id = $1`
	var userID string
	if err := r.db.GetContext(ctx, &userID, query, profileID); err != nil {
		return "", err
	}
	return userID, nil
}

// ParentChildLinkExists checks whether the parent account manages the
// student profile.
func (r *ProfileRepository) ParentChildLinkExists(ctx context.Context, parentUserID, studentProfileID string) (bool, error) {
	const query = `SELECT 1 FROM parent_student_links WHERE parent_user_id = $1 AND student_profile_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, parentUserID, studentProfileID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check parent link: %w", err)
	}
	return true, nil
}
