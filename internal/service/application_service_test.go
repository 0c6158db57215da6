package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	appErrors "github.com/tutorhive/matching-api/pkg/errors"
)

type applicationRepoMock struct {
	applications map[string]models.TutorApplication
	existing     map[string]bool
	created      *models.TutorApplication
	deleted      []string
	statuses     map[string]models.ApplicationStatus
	rejected     []string
}

func newApplicationRepoMock() *applicationRepoMock {
	return &applicationRepoMock{
		applications: make(map[string]models.TutorApplication),
		existing:     make(map[string]bool),
		statuses:     make(map[string]models.ApplicationStatus),
	}
}

func (m *applicationRepoMock) Create(ctx context.Context, application *models.TutorApplication) error {
	if application.ID == "" {
		application.ID = "app-new"
	}
	m.applications[application.ID] = *application
	m.created = application
	return nil
}

func (m *applicationRepoMock) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TutorApplication, error) {
	if a, ok := m.applications[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *applicationRepoMock) ExistsForRequest(ctx context.Context, tutorID, requestID string) (bool, error) {
	return m.existing[tutorID+":"+requestID], nil
}

func (m *applicationRepoMock) ListByRequest(ctx context.Context, requestID string) ([]models.TutorApplication, error) {
	var out []models.TutorApplication
	for _, a := range m.applications {
		if a.ClassRequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *applicationRepoMock) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus) error {
	m.statuses[id] = status
	if a, ok := m.applications[id]; ok {
		a.Status = status
		m.applications[id] = a
	}
	return nil
}

func (m *applicationRepoMock) RejectOtherPending(ctx context.Context, exec sqlx.ExtContext, requestID, acceptedID string) ([]string, error) {
	var tutors []string
	for id, a := range m.applications {
		if a.ClassRequestID == requestID && id != acceptedID && a.Status == models.ApplicationStatusPending {
			a.Status = models.ApplicationStatusRejected
			m.applications[id] = a
			m.rejected = append(m.rejected, id)
			tutors = append(tutors, a.TutorID)
		}
	}
	return tutors, nil
}

func (m *applicationRepoMock) Delete(ctx context.Context, id string) error {
	if _, ok := m.applications[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.applications, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func openRequest(id, studentID string) *requestRepoMock {
	repo := newRequestRepoMock()
	repo.requests[id] = models.ClassRequest{ID: id, StudentID: studentID, Subject: "Math", Status: models.RequestStatusPending}
	return repo
}

func TestApplicationServiceSubmit(t *testing.T) {
	apps := newApplicationRepoMock()
	requests := openRequest("req-1", "student-1")
	profiles := &profilesStub{userByStudent: map[string]string{"student-1": "user-1"}}
	notifier := &notifierStub{}
	svc := NewApplicationService(apps, requests, profiles, notifier, nil, validator.New(), zap.NewNop())

	application, err := svc.Submit(context.Background(), SubmitApplicationRequest{TutorID: "tutor-1", ClassRequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, application.Status)
	require.Len(t, notifier.dispatched, 1)
	assert.Equal(t, models.NotificationApplicationReceived, notifier.dispatched[0].Kind)
	assert.Equal(t, "user-1", notifier.dispatched[0].UserID)
}

func TestApplicationServiceSubmitDuplicateAnyStatus(t *testing.T) {
	apps := newApplicationRepoMock()
	apps.existing["tutor-1:req-1"] = true
	svc := NewApplicationService(apps, openRequest("req-1", "student-1"), &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Submit(context.Background(), SubmitApplicationRequest{TutorID: "tutor-1", ClassRequestID: "req-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicate))
}

func TestApplicationServiceSubmitClosedRequest(t *testing.T) {
	requests := newRequestRepoMock()
	requests.requests["req-1"] = models.ClassRequest{ID: "req-1", StudentID: "student-1", Status: models.RequestStatusMatched}
	svc := NewApplicationService(newApplicationRepoMock(), requests, &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Submit(context.Background(), SubmitApplicationRequest{TutorID: "tutor-1", ClassRequestID: "req-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestApplicationServiceSubmitDirectRequestOtherTutor(t *testing.T) {
	requests := newRequestRepoMock()
	target := "tutor-9"
	requests.requests["req-1"] = models.ClassRequest{ID: "req-1", StudentID: "student-1", TutorID: &target, Status: models.RequestStatusPending}
	svc := NewApplicationService(newApplicationRepoMock(), requests, &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Submit(context.Background(), SubmitApplicationRequest{TutorID: "tutor-1", ClassRequestID: "req-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestApplicationServiceWithdrawDeletesPending(t *testing.T) {
	apps := newApplicationRepoMock()
	apps.applications["app-1"] = models.TutorApplication{ID: "app-1", TutorID: "tutor-1", ClassRequestID: "req-1", Status: models.ApplicationStatusPending}
	svc := NewApplicationService(apps, newRequestRepoMock(), &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	require.NoError(t, svc.Withdraw(context.Background(), "app-1", "tutor-1"))
	assert.Contains(t, apps.deleted, "app-1")
}

func TestApplicationServiceWithdrawNonPending(t *testing.T) {
	apps := newApplicationRepoMock()
	apps.applications["app-1"] = models.TutorApplication{ID: "app-1", TutorID: "tutor-1", Status: models.ApplicationStatusAccepted}
	svc := NewApplicationService(apps, newRequestRepoMock(), &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	err := svc.Withdraw(context.Background(), "app-1", "tutor-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Empty(t, apps.deleted)
}

func TestApplicationServiceWithdrawOwnership(t *testing.T) {
	apps := newApplicationRepoMock()
	apps.applications["app-1"] = models.TutorApplication{ID: "app-1", TutorID: "tutor-1", Status: models.ApplicationStatusPending}
	svc := NewApplicationService(apps, newRequestRepoMock(), &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	err := svc.Withdraw(context.Background(), "app-1", "tutor-2")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestApplicationServiceListByRequestOwnership(t *testing.T) {
	svc := NewApplicationService(newApplicationRepoMock(), openRequest("req-1", "student-1"), &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	_, err := svc.ListByRequest(context.Background(), "req-1", "intruder")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestApplicationServiceReject(t *testing.T) {
	apps := newApplicationRepoMock()
	apps.applications["app-1"] = models.TutorApplication{ID: "app-1", TutorID: "tutor-1", ClassRequestID: "req-1", Status: models.ApplicationStatusPending}
	profiles := &profilesStub{userByTutor: map[string]string{"tutor-1": "user-t1"}}
	notifier := &notifierStub{}
	svc := NewApplicationService(apps, openRequest("req-1", "student-1"), profiles, notifier, nil, validator.New(), zap.NewNop())

	require.NoError(t, svc.Reject(context.Background(), "app-1", "student-1"))
	assert.Equal(t, models.ApplicationStatusRejected, apps.statuses["app-1"])
	require.Len(t, notifier.dispatched, 1)
	assert.Equal(t, "user-t1", notifier.dispatched[0].UserID)
	assert.Equal(t, models.NotificationApplicationRejected, notifier.dispatched[0].Kind)
}

func TestApplicationServiceRejectOwnership(t *testing.T) {
	apps := newApplicationRepoMock()
	apps.applications["app-1"] = models.TutorApplication{ID: "app-1", TutorID: "tutor-1", ClassRequestID: "req-1", Status: models.ApplicationStatusPending}
	svc := NewApplicationService(apps, openRequest("req-1", "student-1"), &profilesStub{}, &notifierStub{}, nil, validator.New(), zap.NewNop())

	err := svc.Reject(context.Background(), "app-1", "intruder")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
	assert.Empty(t, apps.statuses)
}
