package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhive/matching-api/internal/models"
)

func requestColumns() []string {
	return []string{"id", "student_id", "tutor_id", "subject", "education_level", "mode", "budget",
		"location", "description", "special_requirements", "class_start_date", "online_study_link",
		"status", "expires_at", "created_at", "updated_at", "deleted_at"}
}

func requestRow(rows *sqlmock.Rows, id, studentID string, status models.RequestStatus) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, studentID, nil, "Math", "HS", string(models.ClassModeOnline), nil,
		nil, "", nil, nil, nil, string(status), now.Add(7*24*time.Hour), now, now, nil)
}

func TestClassRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectExec("INSERT INTO class_requests").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO class_request_schedules").
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.ClassRequest{
		StudentID:      "student-1",
		Subject:        "Math",
		EducationLevel: "HS",
		Mode:           models.ClassModeOnline,
		Status:         models.RequestStatusPending,
	}
	schedules := []models.RequestSchedule{
		{WeeklyInterval: models.WeeklyInterval{DayOfWeek: 1, StartMinutes: 540, EndMinutes: 600}},
	}
	require.NoError(t, repo.Create(context.Background(), nil, request, schedules))
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, request.ID, schedules[0].ClassRequestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	rows := requestRow(sqlmock.NewRows(requestColumns()), "req-1", "student-1", models.RequestStatusPending)
	mock.ExpectQuery("FROM class_requests WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("req-1").
		WillReturnRows(rows)

	request, err := repo.FindByID(context.Background(), nil, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", request.ID)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryListFiltersDirect(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	rows := requestRow(sqlmock.NewRows(requestColumns()), "req-1", "student-1", models.RequestStatusPending)
	mock.ExpectQuery("FROM class_requests WHERE deleted_at IS NULL AND tutor_id IS NULL AND subject = \\$1 AND status = \\$2").
		WithArgs("Math", string(models.RequestStatusPending)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM class_requests")).
		WithArgs("Math", string(models.RequestStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.MarketplaceFilter{
		Subject: "Math", Status: models.RequestStatusPending,
	})
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryUpdateNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectExec("UPDATE class_requests SET subject").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.ClassRequest{ID: "req-missing"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestClassRequestRepositoryReplaceSchedules(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_request_schedules WHERE class_request_id = $1")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO class_request_schedules").
		WillReturnResult(sqlmock.NewResult(1, 1))

	schedules := []models.RequestSchedule{
		{WeeklyInterval: models.WeeklyInterval{DayOfWeek: 3, StartMinutes: 840, EndMinutes: 900}},
	}
	require.NoError(t, repo.ReplaceSchedules(context.Background(), nil, "req-1", schedules))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryListExpired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	rows := requestRow(sqlmock.NewRows(requestColumns()), "req-1", "student-1", models.RequestStatusActive)
	mock.ExpectQuery("expires_at <= \\$1 AND status IN \\(\\$2\\)").
		WithArgs(sqlmock.AnyArg(), string(models.RequestStatusActive)).
		WillReturnRows(rows)

	now := time.Now().UTC()
	requests, err := repo.ListExpired(context.Background(), []models.RequestStatus{models.RequestStatusActive}, now, 100)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRequestRepositoryListExpiredNoStatuses(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRequestRepository(db)

	requests, err := repo.ListExpired(context.Background(), nil, time.Now(), 100)
	require.NoError(t, err)
	assert.Empty(t, requests)
}
