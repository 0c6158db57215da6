package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	appErrors "github.com/tutorhive/matching-api/pkg/errors"
)

type tutorApplicationRepository interface {
	Create(ctx context.Context, application *models.TutorApplication) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TutorApplication, error)
	ExistsForRequest(ctx context.Context, tutorID, requestID string) (bool, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.TutorApplication, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus) error
	Delete(ctx context.Context, id string) error
}

type requestReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassRequest, error)
}

// SubmitApplicationRequest describes a tutor applying to a request.
type SubmitApplicationRequest struct {
	TutorID        string  `json:"tutor_id" validate:"required"`
	ClassRequestID string  `json:"class_request_id" validate:"required"`
	MeetingLink    *string `json:"meeting_link" validate:"omitempty,url"`
}

// ApplicationService manages tutor applications to open class
// requests.
type ApplicationService struct {
	repo      tutorApplicationRepository
	requests  requestReader
	profiles  profileResolver
	notifier  notificationDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApplicationService constructs ApplicationService.
func NewApplicationService(repo tutorApplicationRepository, requests requestReader, profiles profileResolver, notifier notificationDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{repo: repo, requests: requests, profiles: profiles, notifier: notifier, metrics: metrics, validator: validate, logger: logger}
}

// Submit files an application against a pending request. A tutor may
// hold at most one application per request regardless of its status, so
// a withdrawn-then-reapplied tutor starts clean but a rejected one may
// not reapply.
func (s *ApplicationService) Submit(ctx context.Context, req SubmitApplicationRequest) (*models.TutorApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	request, err := s.requests.FindByID(ctx, nil, req.ClassRequestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is no longer open for applications")
	}
	if request.Direct() && *request.TutorID != req.TutorID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "request is addressed to another tutor")
	}
	exists, err := s.repo.ExistsForRequest(ctx, req.TutorID, req.ClassRequestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "tutor already applied to this request")
	}

	application := &models.TutorApplication{
		TutorID:        req.TutorID,
		ClassRequestID: req.ClassRequestID,
		Status:         models.ApplicationStatusPending,
		MeetingLink:    req.MeetingLink,
	}
	if err := s.repo.Create(ctx, application); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.metrics.RecordApplicationSubmitted()
	s.notifyStudent(ctx, request.StudentID, models.PendingNotification{
		Kind:        models.NotificationApplicationReceived,
		Title:       "New tutor application",
		Body:        fmt.Sprintf("A tutor applied to your %s class request.", request.Subject),
		ReferenceID: application.ID,
	})
	s.logger.Sugar().Infow("tutor application submitted",
		"application_id", application.ID, "tutor_id", req.TutorID, "request_id", req.ClassRequestID)
	return application, nil
}

// Withdraw removes a pending application. The row is deleted outright
// so the tutor can apply again later.
func (s *ApplicationService) Withdraw(ctx context.Context, applicationID, tutorID string) error {
	application, err := s.repo.FindByID(ctx, nil, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if application.TutorID != tutorID {
		return appErrors.Clone(appErrors.ErrUnauthorized, "application belongs to another tutor")
	}
	if application.Status != models.ApplicationStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "only pending applications can be withdrawn")
	}
	if err := s.repo.Delete(ctx, applicationID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw application")
	}
	s.logger.Sugar().Infow("tutor application withdrawn", "application_id", applicationID, "tutor_id", tutorID)
	return nil
}

// Reject lets the owning student turn down a pending application
// without closing the request.
func (s *ApplicationService) Reject(ctx context.Context, applicationID, studentID string) error {
	application, err := s.repo.FindByID(ctx, nil, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	request, err := s.requests.FindByID(ctx, nil, application.ClassRequestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	if request.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrUnauthorized, "request belongs to another student")
	}
	if application.Status != models.ApplicationStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "only pending applications can be rejected")
	}
	if err := s.repo.UpdateStatus(ctx, nil, applicationID, models.ApplicationStatusRejected); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject application")
	}
	s.notifyTutor(ctx, application.TutorID, models.PendingNotification{
		Kind:        models.NotificationApplicationRejected,
		Title:       "Application rejected",
		Body:        fmt.Sprintf("Your application for the %s class request was rejected.", request.Subject),
		ReferenceID: applicationID,
	})
	s.logger.Sugar().Infow("tutor application rejected", "application_id", applicationID, "request_id", request.ID)
	return nil
}

// ListByRequest returns the applications on a request. Only the owning
// student may list them.
func (s *ApplicationService) ListByRequest(ctx context.Context, requestID, studentID string) ([]models.TutorApplication, error) {
	request, err := s.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	if request.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "request belongs to another student")
	}
	applications, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return applications, nil
}

func (s *ApplicationService) notifyStudent(ctx context.Context, studentProfileID string, pending models.PendingNotification) {
	userID, err := s.profiles.UserIDForStudentProfile(ctx, studentProfileID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve student user", "student_id", studentProfileID, "error", err)
		return
	}
	pending.UserID = userID
	s.notifier.Dispatch([]models.PendingNotification{pending})
}

func (s *ApplicationService) notifyTutor(ctx context.Context, tutorProfileID string, pending models.PendingNotification) {
	userID, err := s.profiles.UserIDForTutorProfile(ctx, tutorProfileID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve tutor user", "tutor_id", tutorProfileID, "error", err)
		return
	}
	pending.UserID = userID
	s.notifier.Dispatch([]models.PendingNotification{pending})
}
