package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	"github.com/tutorhive/matching-api/pkg/database"
	appErrors "github.com/tutorhive/matching-api/pkg/errors"
)

type classStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, class *models.Class, rules []models.ClassScheduleRule) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	ListScheduleRules(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.ClassScheduleRule, error)
	IncrementStudentCount(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type assignStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, assign *models.ClassAssign) error
	Exists(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ClassAssign, error)
}

type requestTxStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassRequest, error)
	ListSchedules(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]models.RequestSchedule, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RequestStatus) error
}

type applicationTxStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TutorApplication, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus) error
	RejectOtherPending(ctx context.Context, exec sqlx.ExtContext, requestID, acceptedID string) ([]string, error)
}

type walletStore interface {
	FindByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.Wallet, error)
	Debit(ctx context.Context, exec sqlx.ExtContext, walletID string, amount int64) (bool, error)
	CreateTransaction(ctx context.Context, exec sqlx.ExtContext, txn *models.WalletTransaction) error
}

type escrowWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, escrow *models.Escrow) error
}

type scheduleGenerator interface {
	Generate(ctx context.Context, exec sqlx.ExtContext, class *models.Class, rules []models.ClassScheduleRule, from time.Time) error
}

type conflictChecker interface {
	Check(ctx context.Context, proposal ClassProposal) error
}

type identityResolver interface {
	profileResolver
	ParentChildLinkExists(ctx context.Context, parentUserID, studentProfileID string) (bool, error)
}

// AssignRecurringClassRequest describes a wallet-funded enrollment into
// an open class. StudentProfileID may name a managed child; when empty
// the caller's own student profile enrolls.
type AssignRecurringClassRequest struct {
	ClassID          string `json:"class_id" validate:"required"`
	UserID           string `json:"user_id" validate:"required"`
	StudentProfileID string `json:"student_profile_id"`
}

// CreateRecurringClassRequest describes a tutor opening a class
// directly, without a matched request.
type CreateRecurringClassRequest struct {
	TutorID         string            `json:"tutor_id" validate:"required"`
	Title           string            `json:"title" validate:"required"`
	Description     string            `json:"description"`
	Subject         string            `json:"subject" validate:"required"`
	EducationLevel  string            `json:"education_level" validate:"required"`
	Mode            models.ClassMode  `json:"mode" validate:"required,oneof=ONLINE OFFLINE HYBRID"`
	Price           int64             `json:"price" validate:"gt=0"`
	StudentLimit    int               `json:"student_limit" validate:"gt=0"`
	Location        *string           `json:"location"`
	OnlineStudyLink *string           `json:"online_study_link"`
	ClassStartDate  *time.Time        `json:"class_start_date"`
	Schedules       []WeeklySlotInput `json:"schedules" validate:"required,min=1,dive"`
}

// EnrollmentService runs the matching and enrollment transactions: a
// student accepting an application, a tutor answering a direct
// request, and wallet-funded enrollment into recurring classes.
type EnrollmentService struct {
	db           database.TxStarter
	txOpts       database.TxOptions
	classes      classStore
	assigns      assignStore
	requests     requestTxStore
	applications applicationTxStore
	wallets      walletStore
	escrows      escrowWriter
	generator    scheduleGenerator
	detector     conflictChecker
	profiles     identityResolver
	notifier     notificationDispatcher
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	db database.TxStarter,
	txOpts database.TxOptions,
	classes classStore,
	assigns assignStore,
	requests requestTxStore,
	applications applicationTxStore,
	wallets walletStore,
	escrows escrowWriter,
	generator scheduleGenerator,
	detector conflictChecker,
	profiles identityResolver,
	notifier notificationDispatcher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		db:           db,
		txOpts:       txOpts,
		classes:      classes,
		assigns:      assigns,
		requests:     requests,
		applications: applications,
		wallets:      wallets,
		escrows:      escrows,
		generator:    generator,
		detector:     detector,
		profiles:     profiles,
		notifier:     notifier,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// AcceptApplication lets the owning student accept a tutor's
// application. Class creation, enrollment, request and application
// transitions and schedule generation commit as one unit; the losing
// applicants are rejected in the same transaction.
func (s *EnrollmentService) AcceptApplication(ctx context.Context, applicationID, studentID string) (*models.Class, error) {
	application, err := s.applications.FindByID(ctx, nil, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if application.Status != models.ApplicationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "application is no longer pending")
	}
	request, err := s.requests.FindByID(ctx, nil, application.ClassRequestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	if request.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "request belongs to another student")
	}

	return s.match(ctx, request, application)
}

// RespondToDirectRequest lets the targeted tutor accept or reject a
// direct request. Acceptance runs the same matched-class transaction as
// accepting an application; rejection only transitions the request.
func (s *EnrollmentService) RespondToDirectRequest(ctx context.Context, requestID, tutorID string, accept bool, meetingLink *string) (*models.Class, error) {
	request, err := s.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class request")
	}
	if !request.Direct() || *request.TutorID != tutorID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "request is addressed to another tutor")
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is no longer pending")
	}

	if !accept {
		if err := s.requests.UpdateStatus(ctx, nil, requestID, models.RequestStatusRejected); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject class request")
		}
		s.notifyStudent(ctx, request.StudentID, models.PendingNotification{
			Kind:        models.NotificationClassRequestRejected,
			Title:       "Class request declined",
			Body:        fmt.Sprintf("The tutor declined your %s class request.", request.Subject),
			ReferenceID: request.ID,
		})
		s.logger.Sugar().Infow("direct request rejected", "request_id", requestID, "tutor_id", tutorID)
		return nil, nil
	}

	synthetic := &models.TutorApplication{TutorID: tutorID, ClassRequestID: requestID, MeetingLink: meetingLink}
	return s.match(ctx, request, synthetic)
}

// match runs the accept-offer transaction shared by marketplace and
// direct acceptance. application.ID is empty for direct acceptance.
func (s *EnrollmentService) match(ctx context.Context, request *models.ClassRequest, application *models.TutorApplication) (*models.Class, error) {
	schedules, err := s.requests.ListSchedules(ctx, nil, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request schedules")
	}
	intervals := make([]models.WeeklyInterval, 0, len(schedules))
	for _, schedule := range schedules {
		intervals = append(intervals, schedule.WeeklyInterval)
	}

	proposal := ClassProposal{
		TutorID:        application.TutorID,
		Subject:        request.Subject,
		EducationLevel: request.EducationLevel,
		Mode:           request.Mode,
		Budget:         request.Budget,
		Schedules:      intervals,
	}
	if err := s.detector.Check(ctx, proposal); err != nil {
		if appErrors.Is(err, appErrors.ErrScheduleConflict) {
			s.metrics.RecordConflictDetected()
		}
		return nil, err
	}

	onlineLink := request.OnlineStudyLink
	if application.MeetingLink != nil && *application.MeetingLink != "" {
		onlineLink = application.MeetingLink
	}

	class := &models.Class{
		TutorID:             application.TutorID,
		Title:               fmt.Sprintf("%s - %s", request.Subject, request.EducationLevel),
		Description:         request.Description,
		Subject:             request.Subject,
		EducationLevel:      request.EducationLevel,
		Mode:                request.Mode,
		Price:               request.Budget,
		Status:              models.ClassStatusPending,
		StudentLimit:        1,
		CurrentStudentCount: 1,
		Location:            request.Location,
		OnlineStudyLink:     onlineLink,
		ClassStartDate:      request.ClassStartDate,
	}
	rules := make([]models.ClassScheduleRule, 0, len(intervals))
	for _, interval := range intervals {
		rules = append(rules, models.ClassScheduleRule{WeeklyInterval: interval})
	}

	var rejectedTutors []string
	err = database.RunInTx(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		current, err := s.requests.FindByID(ctx, tx, request.ID)
		if err != nil {
			return err
		}
		if current.Status != models.RequestStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "request is no longer pending")
		}
		if application.ID != "" {
			currentApp, err := s.applications.FindByID(ctx, tx, application.ID)
			if err != nil {
				return err
			}
			if currentApp.Status != models.ApplicationStatusPending {
				return appErrors.Clone(appErrors.ErrInvalidState, "application is no longer pending")
			}
		}

		if err := s.classes.Create(ctx, tx, class, rules); err != nil {
			return err
		}
		assign := &models.ClassAssign{
			ClassID:        class.ID,
			StudentID:      request.StudentID,
			PaymentStatus:  models.PaymentStatusPending,
			ApprovalStatus: models.ApprovalStatusApproved,
		}
		if err := s.assigns.Create(ctx, tx, assign); err != nil {
			return err
		}
		if err := s.requests.UpdateStatus(ctx, tx, request.ID, models.RequestStatusMatched); err != nil {
			return err
		}
		if application.ID != "" {
			if err := s.applications.UpdateStatus(ctx, tx, application.ID, models.ApplicationStatusAccepted); err != nil {
				return err
			}
			rejectedTutors, err = s.applications.RejectOtherPending(ctx, tx, request.ID, application.ID)
			if err != nil {
				return err
			}
		}
		return s.generator.Generate(ctx, tx, class, rules, time.Now().UTC())
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept offer")
	}

	s.metrics.RecordMatchCompleted()
	s.logger.Sugar().Infow("request matched into class",
		"request_id", request.ID, "class_id", class.ID, "tutor_id", application.TutorID)

	s.notifyStudent(ctx, request.StudentID, models.PendingNotification{
		Kind:        models.NotificationClassCreatedFromRequest,
		Title:       "Class created",
		Body:        fmt.Sprintf("Your %s class request was accepted and a class was created.", request.Subject),
		ReferenceID: class.ID,
	})
	s.notifyTutor(ctx, application.TutorID, models.PendingNotification{
		Kind:        models.NotificationApplicationAccepted,
		Title:       "Offer accepted",
		Body:        fmt.Sprintf("Your offer for the %s class request was accepted.", request.Subject),
		ReferenceID: class.ID,
	})
	for _, rejected := range rejectedTutors {
		s.notifyTutor(ctx, rejected, models.PendingNotification{
			Kind:        models.NotificationApplicationRejected,
			Title:       "Application rejected",
			Body:        fmt.Sprintf("Another tutor was chosen for the %s class request.", request.Subject),
			ReferenceID: request.ID,
		})
	}
	return class, nil
}

// CreateRecurringClass lets a tutor open a class with weekly rules. The
// class, its rules and its generated schedule commit atomically.
func (s *EnrollmentService) CreateRecurringClass(ctx context.Context, req CreateRecurringClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	schedules, err := toRequestSchedules(req.Schedules)
	if err != nil {
		return nil, err
	}
	intervals := make([]models.WeeklyInterval, 0, len(schedules))
	rules := make([]models.ClassScheduleRule, 0, len(schedules))
	for _, schedule := range schedules {
		intervals = append(intervals, schedule.WeeklyInterval)
		rules = append(rules, models.ClassScheduleRule{WeeklyInterval: schedule.WeeklyInterval})
	}

	price := req.Price
	proposal := ClassProposal{
		TutorID:        req.TutorID,
		Subject:        req.Subject,
		EducationLevel: req.EducationLevel,
		Mode:           req.Mode,
		Budget:         &price,
		Schedules:      intervals,
	}
	if err := s.detector.Check(ctx, proposal); err != nil {
		if appErrors.Is(err, appErrors.ErrScheduleConflict) {
			s.metrics.RecordConflictDetected()
		}
		return nil, err
	}

	class := &models.Class{
		TutorID:         req.TutorID,
		Title:           req.Title,
		Description:     req.Description,
		Subject:         req.Subject,
		EducationLevel:  req.EducationLevel,
		Mode:            req.Mode,
		Price:           &price,
		Status:          models.ClassStatusPending,
		StudentLimit:    req.StudentLimit,
		Location:        req.Location,
		OnlineStudyLink: req.OnlineStudyLink,
		ClassStartDate:  req.ClassStartDate,
	}

	err = database.RunInTx(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		if err := s.classes.Create(ctx, tx, class, rules); err != nil {
			return err
		}
		return s.generator.Generate(ctx, tx, class, rules, time.Now().UTC())
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Sugar().Infow("recurring class created", "class_id", class.ID, "tutor_id", req.TutorID)
	return class, nil
}

// AssignRecurringClass enrolls a student into an open class, debiting
// the payer's wallet into escrow. Debit, ledger row, enrollment, escrow
// hold and seat count commit as one unit.
func (s *EnrollmentService) AssignRecurringClass(ctx context.Context, req AssignRecurringClassRequest) (*models.ClassAssign, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	studentProfileID, err := s.resolveStudentProfile(ctx, req.UserID, req.StudentProfileID)
	if err != nil {
		return nil, err
	}

	var (
		assign *models.ClassAssign
		class  *models.Class
		price  int64
	)
	err = database.RunInTx(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		var err error
		class, err = s.classes.FindByID(ctx, tx, req.ClassID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return err
		}
		if class.Status != models.ClassStatusPending && class.Status != models.ClassStatusActive {
			return appErrors.Clone(appErrors.ErrInvalidState, "class is not open for enrollment")
		}
		if class.CurrentStudentCount >= class.StudentLimit {
			return appErrors.Clone(appErrors.ErrCapacityFull, "class has reached its student limit")
		}
		if class.Price == nil || *class.Price <= 0 {
			return appErrors.Clone(appErrors.ErrInvalidState, "class has no price configured")
		}
		price = *class.Price

		exists, err := s.assigns.Exists(ctx, tx, class.ID, studentProfileID)
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrDuplicate, "student already enrolled in this class")
		}

		wallet, err := s.wallets.FindByUserID(ctx, tx, req.UserID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "wallet not found")
			}
			return err
		}
		debited, err := s.wallets.Debit(ctx, tx, wallet.ID, price)
		if err != nil {
			return err
		}
		if !debited {
			return appErrors.Clone(appErrors.ErrInsufficientFunds, "wallet balance is insufficient")
		}

		assign = &models.ClassAssign{
			ClassID:        class.ID,
			StudentID:      studentProfileID,
			PaymentStatus:  models.PaymentStatusPaid,
			ApprovalStatus: models.ApprovalStatusApproved,
		}
		if err := s.assigns.Create(ctx, tx, assign); err != nil {
			if isUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrDuplicate, "student already enrolled in this class")
			}
			return err
		}

		txnRef := assign.ID
		txn := &models.WalletTransaction{
			WalletID:    wallet.ID,
			Amount:      -price,
			Type:        models.TransactionTypeDebit,
			Status:      models.TransactionStatusCompleted,
			Description: fmt.Sprintf("Enrollment payment for class %s", class.Title),
			ReferenceID: &txnRef,
		}
		if err := s.wallets.CreateTransaction(ctx, tx, txn); err != nil {
			return err
		}

		escrow := &models.Escrow{
			ClassAssignID: assign.ID,
			StudentID:     studentProfileID,
			TutorID:       class.TutorID,
			GrossAmount:   price,
			Status:        models.EscrowStatusHeld,
		}
		if err := s.escrows.Create(ctx, tx, escrow); err != nil {
			return err
		}
		return s.classes.IncrementStudentCount(ctx, tx, class.ID)
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	s.metrics.RecordEnrollment()
	s.logger.Sugar().Infow("student enrolled",
		"class_id", class.ID, "student_id", studentProfileID, "amount", price)

	s.notifier.Dispatch([]models.PendingNotification{{
		UserID:      req.UserID,
		Kind:        models.NotificationEscrowPaid,
		Title:       "Payment held in escrow",
		Body:        fmt.Sprintf("Your payment for %s is held in escrow until lessons are delivered.", class.Title),
		ReferenceID: assign.ID,
	}, {
		UserID:      req.UserID,
		Kind:        models.NotificationClassEnrollmentSuccess,
		Title:       "Enrollment confirmed",
		Body:        fmt.Sprintf("Enrollment into %s is confirmed.", class.Title),
		ReferenceID: assign.ID,
	}})
	if own, err := s.profiles.StudentProfileIDForUser(ctx, req.UserID); err != nil || own != studentProfileID {
		// The payer is a parent enrolling a child. The child hears about
		// the enrollment too, on their own account.
		s.notifyStudent(ctx, studentProfileID, models.PendingNotification{
			Kind:        models.NotificationClassEnrollmentSuccess,
			Title:       "Enrollment confirmed",
			Body:        fmt.Sprintf("You have been enrolled into %s.", class.Title),
			ReferenceID: assign.ID,
		})
	}
	s.notifyTutor(ctx, class.TutorID, models.PendingNotification{
		Kind:        models.NotificationClassEnrollmentSuccess,
		Title:       "New student enrolled",
		Body:        fmt.Sprintf("A new student enrolled into %s.", class.Title),
		ReferenceID: assign.ID,
	})
	return assign, nil
}

// ListEnrollments returns the enrollments of the caller's own student
// profile, or of a managed child when studentProfileID names one.
func (s *EnrollmentService) ListEnrollments(ctx context.Context, userID, studentProfileID string) ([]models.ClassAssign, error) {
	resolved, err := s.resolveStudentProfile(ctx, userID, studentProfileID)
	if err != nil {
		return nil, err
	}
	assigns, err := s.assigns.ListByStudent(ctx, resolved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return assigns, nil
}

func (s *EnrollmentService) resolveStudentProfile(ctx context.Context, userID, studentProfileID string) (string, error) {
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

func (s *EnrollmentService) notifyStudent(ctx context.Context, studentProfileID string, pending models.PendingNotification) {
	userID, err := s.profiles.UserIDForStudentProfile(ctx, studentProfileID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve student user", "student_id", studentProfileID, "error", err)
		return
	}
	pending.UserID = userID
	s.notifier.Dispatch([]models.PendingNotification{pending})
}

func (s *EnrollmentService) notifyTutor(ctx context.Context, tutorProfileID string, pending models.PendingNotification) {
	userID, err := s.profiles.UserIDForTutorProfile(ctx, tutorProfileID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve tutor user", "tutor_id", tutorProfileID, "error", err)
		return
	}
	pending.UserID = userID
	s.notifier.Dispatch([]models.PendingNotification{pending})
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
