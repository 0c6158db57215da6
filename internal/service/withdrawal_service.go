package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	"github.com/tutorhive/matching-api/pkg/database"
	appErrors "github.com/tutorhive/matching-api/pkg/errors"
)

type assignRemover interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassAssign, error)
	UpdatePaymentStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type classCompensator interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	DecrementStudentCount(ctx context.Context, exec sqlx.ExtContext, id string) (int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ClassStatus) error
}

type escrowSettler interface {
	ListRefundableByAssign(ctx context.Context, exec sqlx.ExtContext, classAssignID string) ([]models.Escrow, error)
	MarkRefunded(ctx context.Context, exec sqlx.ExtContext, id string) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type walletRefunder interface {
	FindByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.Wallet, error)
	Credit(ctx context.Context, exec sqlx.ExtContext, walletID string, amount int64) error
	CreateTransaction(ctx context.Context, exec sqlx.ExtContext, txn *models.WalletTransaction) error
}

type occurrencePurger interface {
	DeleteFutureEntries(ctx context.Context, exec sqlx.ExtContext, classID string, after time.Time) (int64, error)
	DeleteOrphanedLessons(ctx context.Context, exec sqlx.ExtContext, classID string) (int64, error)
}

// WithdrawRequest describes an enrollment withdrawal.
type WithdrawRequest struct {
	ClassAssignID    string `json:"class_assign_id" validate:"required"`
	UserID           string `json:"user_id" validate:"required"`
	StudentProfileID string `json:"student_profile_id"`
}

// WithdrawResult reports what the withdrawal settled.
type WithdrawResult struct {
	RefundedAmount int64 `json:"refunded_amount"`
	ClassCancelled bool  `json:"class_cancelled"`
}

// WithdrawalService unwinds an enrollment: refunds unreleased escrow to
// the payer's wallet, removes the enrollment, frees the seat, and
// cancels the class and purges its future occurrences when the last
// student leaves.
type WithdrawalService struct {
	db        database.TxStarter
	txOpts    database.TxOptions
	assigns   assignRemover
	classes   classCompensator
	escrows   escrowSettler
	wallets   walletRefunder
	lessons   occurrencePurger
	profiles  identityResolver
	notifier  notificationDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewWithdrawalService constructs WithdrawalService.
func NewWithdrawalService(
	db database.TxStarter,
	txOpts database.TxOptions,
	assigns assignRemover,
	classes classCompensator,
	escrows escrowSettler,
	wallets walletRefunder,
	lessons occurrencePurger,
	profiles identityResolver,
	notifier notificationDispatcher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *WithdrawalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WithdrawalService{
		db:        db,
		txOpts:    txOpts,
		assigns:   assigns,
		classes:   classes,
		escrows:   escrows,
		wallets:   wallets,
		lessons:   lessons,
		profiles:  profiles,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Withdraw removes the student from the class. Refund, enrollment
// deletion, seat release and the cascading cancellation commit as one
// unit. Future occurrences are removed before their lessons so no entry
// ever dangles.
func (s *WithdrawalService) Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withdrawal payload")
	}
	studentProfileID, err := s.resolveStudentProfile(ctx, req.UserID, req.StudentProfileID)
	if err != nil {
		return nil, err
	}

	var (
		class     *models.Class
		refunded  int64
		cancelled bool
	)
	err = database.RunInTx(ctx, s.db, s.txOpts, func(tx *sqlx.Tx) error {
		assign, err := s.assigns.FindByID(ctx, tx, req.ClassAssignID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return err
		}
		if assign.StudentID != studentProfileID {
			return appErrors.Clone(appErrors.ErrUnauthorized, "enrollment belongs to another student")
		}
		class, err = s.classes.FindByID(ctx, tx, assign.ClassID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return err
		}
		if class.Status == models.ClassStatusCompleted || class.Status == models.ClassStatusCancelled {
			return appErrors.Clone(appErrors.ErrInvalidState, "class is already closed")
		}

		escrows, err := s.escrows.ListRefundableByAssign(ctx, tx, assign.ID)
		if err != nil {
			return err
		}
		for _, escrow := range escrows {
			amount := escrow.RefundableAmount()
			if amount > 0 {
				wallet, err := s.wallets.FindByUserID(ctx, tx, req.UserID)
				if err != nil {
					if err == sql.ErrNoRows {
						return appErrors.Clone(appErrors.ErrNotFound, "wallet not found")
					}
					return err
				}
				if err := s.wallets.Credit(ctx, tx, wallet.ID, amount); err != nil {
					return err
				}
				txnRef := assign.ID
				txn := &models.WalletTransaction{
					WalletID:    wallet.ID,
					Amount:      amount,
					Type:        models.TransactionTypeCredit,
					Status:      models.TransactionStatusCompleted,
					Description: fmt.Sprintf("Withdrawal refund for class %s", class.Title),
					ReferenceID: &txnRef,
				}
				if err := s.wallets.CreateTransaction(ctx, tx, txn); err != nil {
					return err
				}
				refunded += amount
			}
			if err := s.escrows.MarkRefunded(ctx, tx, escrow.ID); err != nil {
				return err
			}
			if err := s.escrows.Delete(ctx, tx, escrow.ID); err != nil {
				return err
			}
		}

		if err := s.assigns.UpdatePaymentStatus(ctx, tx, assign.ID, models.PaymentStatusRefunded); err != nil {
			return err
		}
		if err := s.assigns.Delete(ctx, tx, assign.ID); err != nil {
			return err
		}
		remaining, err := s.classes.DecrementStudentCount(ctx, tx, class.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			cancelled = true
			if err := s.classes.UpdateStatus(ctx, tx, class.ID, models.ClassStatusCancelled); err != nil {
				return err
			}
			now := time.Now().UTC()
			if _, err := s.lessons.DeleteFutureEntries(ctx, tx, class.ID, now); err != nil {
				return err
			}
			if _, err := s.lessons.DeleteOrphanedLessons(ctx, tx, class.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}

	s.metrics.RecordWithdrawal(refunded)
	if cancelled {
		s.metrics.RecordClassCancelled()
	}
	s.logger.Sugar().Infow("enrollment withdrawn",
		"class_assign_id", req.ClassAssignID, "class_id", class.ID,
		"refunded", refunded, "class_cancelled", cancelled)

	s.notifier.Dispatch([]models.PendingNotification{{
		UserID:      req.UserID,
		Kind:        models.NotificationClassEnrollmentWithdrawn,
		Title:       "Withdrawal complete",
		Body:        fmt.Sprintf("You withdrew from %s. %d was returned to your wallet.", class.Title, refunded),
		ReferenceID: req.ClassAssignID,
	}})
	s.notifyTutor(ctx, class.TutorID, models.PendingNotification{
		Kind:        models.NotificationClassEnrollmentWithdrawn,
		Title:       "Student withdrew",
		Body:        fmt.Sprintf("A student withdrew from %s.", class.Title),
		ReferenceID: class.ID,
	})
	return &WithdrawResult{RefundedAmount: refunded, ClassCancelled: cancelled}, nil
}

func (s *WithdrawalService) resolveStudentProfile(ctx context.Context, userID, studentProfileID string) (string, error) {
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

func (s *WithdrawalService) notifyTutor(ctx context.Context, tutorProfileID string, pending models.PendingNotification) {
	userID, err := s.profiles.UserIDForTutorProfile(ctx, tutorProfileID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve tutor user", "tutor_id", tutorProfileID, "error", err)
		return
	}
	pending.UserID = userID
	s.notifier.Dispatch([]models.PendingNotification{pending})
}
