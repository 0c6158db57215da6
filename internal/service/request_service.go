package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	"github.com/tutorhive/matching-api/pkg/database"
	appErrors "github.com/tutorhive/matching-api/pkg/errors"
)

type classRequestRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, request *models.ClassRequest, schedules []models.RequestSchedule) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error)
	ListSchedules(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]models.RequestSchedule, error)
	List(ctx context.Context, filter models.MarketplaceFilter) ([]models.ClassRequest, int, error)
	Update(ctx context.Context, request *models.ClassRequest) error
	ReplaceSchedules(ctx context.Context, exec sqlx.ExtContext, requestID string, schedules []models.RequestSchedule) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RequestStatus) error
	ListExpired(ctx context.Context, statuses []models.RequestStatus, now time.Time, limit int) ([]models.ClassRequest, error)
}

type profileResolver interface {
	StudentProfileIDForUser(ctx context.Context, userID string) (string, error)
	TutorProfileIDForUser(ctx context.Context, userID string) (string, error)
	UserIDForStudentProfile(ctx context.Context, profileID string) (string, error)
	UserIDForTutorProfile(ctx context.Context, profileID string) (string, error)
}

type notificationDispatcher interface {
	Dispatch(pending []models.PendingNotification)
}

// WeeklySlotInput is one requested weekly time slot.
type WeeklySlotInput struct {
	DayOfWeek    int `json:"day_of_week" validate:"min=0,max=6"`
	StartMinutes int `json:"start_minutes" validate:"min=0,max=1439"`
	EndMinutes   int `json:"end_minutes" validate:"min=1,max=1440"`
}

// CreateClassRequestRequest describes request creation. StudentProfileID
// may name a managed child; when empty the caller's own student profile
// owns the request.
type CreateClassRequestRequest struct {
	UserID             string            `json:"user_id" validate:"required"`
	StudentProfileID   string            `json:"student_profile_id"`
	TutorID            string            `json:"tutor_id"`
	Subject            string            `json:"subject" validate:"required"`
	EducationLevel     string            `json:"education_level" validate:"required"`
	Mode               models.ClassMode  `json:"mode" validate:"required,oneof=ONLINE OFFLINE HYBRID"`
	Description        string            `json:"description"`
	Budget             *int64            `json:"budget" validate:"omitempty,gt=0"`
	Location           *string           `json:"location"`
	SpecialRequirement *string           `json:"special_requirements"`
	ClassStartDate     *time.Time        `json:"class_start_date"`
	OnlineStudyLink    *string           `json:"online_study_link"`
	Schedules          []WeeklySlotInput `json:"schedules" validate:"required,min=1,dive"`
}

// UpdateClassRequestRequest patches mutable request fields. Absent
// fields keep their prior value.
type UpdateClassRequestRequest struct {
	Subject            *string           `json:"subject" validate:"omitempty,min=1"`
	EducationLevel     *string           `json:"education_level" validate:"omitempty,min=1"`
	Mode               *models.ClassMode `json:"mode" validate:"omitempty,oneof=ONLINE OFFLINE HYBRID"`
	Description        *string           `json:"description"`
	Budget             *int64            `json:"budget" validate:"omitempty,gt=0"`
	Location           *string           `json:"location"`
	SpecialRequirement *string           `json:"special_requirements"`
	ClassStartDate     *time.Time        `json:"class_start_date"`
	OnlineStudyLink    *string           `json:"online_study_link"`
}

// RequestService manages the class request lifecycle from creation to
// cancellation or expiry.
type RequestService struct {
	db        database.TxStarter
	txOpts    database.TxOptions
	repo      classRequestRepository
	profiles  identityResolver
	notifier  notificationDispatcher
	ttl       time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService constructs RequestService.
func NewRequestService(db database.TxStarter, txOpts database.TxOptions, repo classRequestRepository, profiles identityResolver, notifier notificationDispatcher, ttl time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{db: db, txOpts: txOpts, repo: repo, profiles: profiles, notifier: notifier, ttl: ttl, metrics: metrics, validator: validate, logger: logger}
}

func toRequestSchedules(inputs []WeeklySlotInput) ([]models.RequestSchedule, error) {
	schedules := make([]models.RequestSchedule, 0, len(inputs))
	for _, input := range inputs {
		interval := models.WeeklyInterval{
			DayOfWeek:    input.DayOfWeek,
			StartMinutes: input.StartMinutes,
			EndMinutes:   input.EndMinutes,
		}
		if !interval.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "schedule slot end must be after start")
		}
		schedules = append(schedules, models.RequestSchedule{WeeklyInterval: interval})
	}
	return schedules, nil
}

// Create opens a new class request. The request and its schedule rows
// commit atomically; a direct request notifies the targeted tutor after
// commit.
func (s *RequestService) Create(ctx context.Context, req CreateClassRequestRequest) (*models.RequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class request payload")
	}
	schedules, err := toRequestSchedules(req.Schedules)
	if err != nil {
		return nil, err
	}
	studentID, err := s.resolveStudentProfile(ctx, req.UserID, req.StudentProfileID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)
	request := &models.ClassRequest{
		StudentID:           studentID,
		Subject:             req.Subject,
		EducationLevel:      req.EducationLevel,
		Mode:                req.Mode,
		Description:         req.Description,
		Budget:              req.Budget,
		Location:            req.Location,
		SpecialRequirements: req.SpecialRequirement,
		ClassStartDate:      req.ClassStartDate,
		OnlineStudyLink:     req.OnlineStudyLink,
		Status:              models.RequestStatusPending,
		ExpiresAt:           expiresAt,
	}
	if req.TutorID != "" {
		tutorID := req.TutorID
		request.TutorID = &tutorID
	}

	err = database.RunInTx(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		return s.repo.Create(ctx, tx, request, schedules)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class request")
	}

	s.metrics.RecordRequestCreated()
	if request.Direct() {
		s.notifyTutor(ctx, *request.TutorID, models.PendingNotification{
			Kind:        models.NotificationClassRequestReceived,
			Title:       "New class request",
			Body:        fmt.Sprintf("A student requested %s lessons from you.", request.Subject),
			ReferenceID: request.ID,
		})
	}
	s.logger.Sugar().Infow("class request created",
		"request_id", request.ID, "student_id", request.StudentID, "direct", request.Direct())

	return s.detail(ctx, request.ID)
}

// GetByID returns a request with its schedules.
func (s *RequestService) GetByID(ctx context.Context, id string) (*models.RequestDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	return detail, nil
}

// List returns marketplace requests matching the filter.
func (s *RequestService) List(ctx context.Context, filter models.MarketplaceFilter) ([]models.ClassRequest, int, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class requests")
	}
	return requests, total, nil
}

// Update patches the request fields, keeping prior values for anything
// absent from the payload. Only the owning account may update, and only
// while the request is still pending.
func (s *RequestService) Update(ctx context.Context, id, userID string, req UpdateClassRequestRequest) (*models.RequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class request payload")
	}
	request, err := s.loadOwnedPending(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.Subject != nil {
		request.Subject = *req.Subject
	}
	if req.EducationLevel != nil {
		request.EducationLevel = *req.EducationLevel
	}
	if req.Mode != nil {
		request.Mode = *req.Mode
	}
	if req.Description != nil {
		request.Description = *req.Description
	}
	if req.Budget != nil {
		request.Budget = req.Budget
	}
	if req.Location != nil {
		request.Location = req.Location
	}
	if req.SpecialRequirement != nil {
		request.SpecialRequirements = req.SpecialRequirement
	}
	if req.ClassStartDate != nil {
		request.ClassStartDate = req.ClassStartDate
	}
	if req.OnlineStudyLink != nil {
		request.OnlineStudyLink = req.OnlineStudyLink
	}

	if err := s.repo.Update(ctx, request); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class request")
	}
	return s.detail(ctx, id)
}

// UpdateSchedules replaces the request's weekly slots. The old rows are
// removed and the new set inserted in one transaction.
func (s *RequestService) UpdateSchedules(ctx context.Context, id, userID string, slots []WeeklySlotInput) (*models.RequestDetail, error) {
	if len(slots) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one schedule slot is required")
	}
	schedules, err := toRequestSchedules(slots)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOwnedPending(ctx, id, userID); err != nil {
		return nil, err
	}

	err = database.RunInTx(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		return s.repo.ReplaceSchedules(ctx, tx, id, schedules)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request schedules")
	}
	return s.detail(ctx, id)
}

// Cancel withdraws a pending request.
func (s *RequestService) Cancel(ctx context.Context, id, userID string) error {
	if _, err := s.loadOwnedPending(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, nil, id, models.RequestStatusCancelled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel class request")
	}
	s.logger.Sugar().Infow("class request cancelled", "request_id", id)
	return nil
}

// ExpireDue moves requests past their expiry to the expired status and
// notifies the owning students. It returns the number of requests
// expired.
func (s *RequestService) ExpireDue(ctx context.Context, includePending bool, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	statuses := []models.RequestStatus{models.RequestStatusActive}
	if includePending {
		statuses = append(statuses, models.RequestStatusPending)
	}
	due, err := s.repo.ListExpired(ctx, statuses, time.Now().UTC(), batchSize)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired requests")
	}

	expired := 0
	for _, request := range due {
		if err := s.repo.UpdateStatus(ctx, nil, request.ID, models.RequestStatusExpired); err != nil {
			s.logger.Sugar().Errorw("failed to expire request", "request_id", request.ID, "error", err)
			continue
		}
		expired++
		s.notifyStudent(ctx, request.StudentID, models.PendingNotification{
			Kind:        models.NotificationClassRequestRejected,
			Title:       "Class request expired",
			Body:        fmt.Sprintf("Your %s class request expired without a match.", request.Subject),
			ReferenceID: request.ID,
		})
	}
	if expired > 0 {
		s.metrics.RecordRequestsExpired(expired)
		s.logger.Sugar().Infow("expired class requests", "count", expired)
	}
	return expired, nil
}

// loadOwnedPending returns the pending request when the acting user owns
// it, either through their own student profile or a parent-child link.
func (s *RequestService) loadOwnedPending(ctx context.Context, id, userID string) (*models.ClassRequest, error) {
	request, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	own, err := s.profiles.StudentProfileIDForUser(ctx, userID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
	}
	if own != request.StudentID {
		linked, err := s.profiles.ParentChildLinkExists(ctx, userID, request.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify parent link")
		}
		if !linked {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "request belongs to another student")
		}
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is no longer pending")
	}
	return request, nil
}

// resolveStudentProfile maps the acting user to the student profile a
// request is opened for, requiring a parent-child link when the named
// profile is not the caller's own.
func (s *RequestService) resolveStudentProfile(ctx context.Context, userID, studentProfileID string) (string, error) {
	own, err := s.profiles.StudentProfileIDForUser(ctx, userID)
	if err != nil && err != sql.ErrNoRows {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profile")
	}
	if studentProfileID == "" || studentProfileID == own {
		if own == "" {
			return "", appErrors.Clone(appErrors.ErrNotFound, "no student profile for this account")
		}
		return own, nil
	}
	linked, err := s.profiles.ParentChildLinkExists(ctx, userID, studentProfileID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify parent link")
	}
	if !linked {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "student is not managed by this account")
	}
	return studentProfileID, nil
}

func (s *RequestService) detail(ctx context.Context, id string) (*models.RequestDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	return detail, nil
}

func (s *RequestService) notifyTutor(ctx context.Context, tutorProfileID string, pending models.PendingNotification) {
	userID, err := s.profiles.UserIDForTutorProfile(ctx, tutorProfileID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve tutor user", "tutor_id", tutorProfileID, "error", err)
		return
	}
	pending.UserID = userID
	s.notifier.Dispatch([]models.PendingNotification{pending})
}

func (s *RequestService) notifyStudent(ctx context.Context, studentProfileID string, pending models.PendingNotification) {
	userID, err := s.profiles.UserIDForStudentProfile(ctx, studentProfileID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve student user", "student_id", studentProfileID, "error", err)
		return
	}
	pending.UserID = userID
	s.notifier.Dispatch([]models.PendingNotification{pending})
}
