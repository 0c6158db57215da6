package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	"github.com/tutorhive/matching-api/pkg/database"
	appErrors "github.com/tutorhive/matching-api/pkg/errors"
)

type lessonPurgerMock struct {
	purgedEntries []string
	purgedLessons []string
}

func (m *lessonPurgerMock) DeleteFutureEntries(ctx context.Context, exec sqlx.ExtContext, classID string, after time.Time) (int64, error) {
	m.purgedEntries = append(m.purgedEntries, classID)
	return 4, nil
}

func (m *lessonPurgerMock) DeleteOrphanedLessons(ctx context.Context, exec sqlx.ExtContext, classID string) (int64, error) {
	m.purgedLessons = append(m.purgedLessons, classID)
	return 4, nil
}

type withdrawalFixture struct {
	svc      *WithdrawalService
	assigns  *assignStoreMock
	classes  *classStoreMock
	escrows  *escrowStoreMock
	wallets  *walletStoreMock
	lessons  *lessonPurgerMock
	profiles *profilesStub
	notifier *notifierStub
}

func buildWithdrawalService(t *testing.T) (*withdrawalFixture, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTxStarter(t)
	f := &withdrawalFixture{
		assigns: newAssignStoreMock(),
		classes: newClassStoreMock(),
		escrows: newEscrowStoreMock(),
		wallets: newWalletStoreMock(),
		lessons: &lessonPurgerMock{},
		profiles: &profilesStub{
			studentByUser: map[string]string{},
			userByStudent: map[string]string{},
			userByTutor:   map[string]string{},
			parentLinks:   map[string]bool{},
		},
		notifier: &notifierStub{},
	}
	f.svc = NewWithdrawalService(db, database.TxOptions{}, f.assigns, f.classes, f.escrows,
		f.wallets, f.lessons, f.profiles, f.notifier, nil, validator.New(), zap.NewNop())
	return f, mock
}

func (f *withdrawalFixture) seedEnrollment(count int, escrowStatus models.EscrowStatus, gross, released int64) {
	f.classes.classes["class-1"] = models.Class{
		ID: "class-1", TutorID: "tutor-1", Title: "Algebra",
		Status: models.ClassStatusActive, StudentLimit: 5, CurrentStudentCount: count,
	}
	f.assigns.assigns["assign-1"] = models.ClassAssign{ID: "assign-1", ClassID: "class-1", StudentID: "student-1"}
	if escrowStatus != "" {
		f.escrows.escrows["escrow-1"] = models.Escrow{
			ID: "escrow-1", ClassAssignID: "assign-1", StudentID: "student-1", TutorID: "tutor-1",
			GrossAmount: gross, ReleasedAmount: released, Status: escrowStatus,
		}
	}
	f.wallets.wallets["user-1"] = models.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 50000}
	f.profiles.studentByUser["user-1"] = "student-1"
	f.profiles.userByTutor["tutor-1"] = "user-t1"
}

func TestWithdrawalServiceFullRefund(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f.seedEnrollment(2, models.EscrowStatusHeld, 300000, 0)

	result, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(300000), result.RefundedAmount)
	assert.False(t, result.ClassCancelled)

	assert.Equal(t, int64(350000), f.wallets.wallets["user-1"].Balance)
	require.Len(t, f.wallets.transactions, 1)
	assert.Equal(t, int64(300000), f.wallets.transactions[0].Amount)
	assert.Equal(t, models.TransactionTypeCredit, f.wallets.transactions[0].Type)

	assert.Contains(t, f.escrows.refunded, "escrow-1")
	assert.Contains(t, f.escrows.deleted, "escrow-1")
	assert.Equal(t, models.PaymentStatusRefunded, f.assigns.paymentStatuses["assign-1"])
	assert.Contains(t, f.assigns.deleted, "assign-1")
	assert.Equal(t, 1, f.classes.decremented["class-1"])
	assert.Empty(t, f.lessons.purgedEntries)

	users := make([]string, 0, len(f.notifier.dispatched))
	for _, n := range f.notifier.dispatched {
		assert.Equal(t, models.NotificationClassEnrollmentWithdrawn, n.Kind)
		users = append(users, n.UserID)
	}
	assert.ElementsMatch(t, []string{"user-1", "user-t1"}, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalServicePartialRefund(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f.seedEnrollment(3, models.EscrowStatusPartiallyReleased, 300000, 100000)

	result, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(200000), result.RefundedAmount)
	assert.Equal(t, int64(250000), f.wallets.wallets["user-1"].Balance)
}

func TestWithdrawalServiceClosedClassRejected(t *testing.T) {
	for _, status := range []models.ClassStatus{models.ClassStatusCompleted, models.ClassStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			f, mock := buildWithdrawalService(t)
			mock.ExpectBegin()
			mock.ExpectRollback()
			f.seedEnrollment(2, models.EscrowStatusHeld, 500000, 0)
			class := f.classes.classes["class-1"]
			class.Status = status
			f.classes.classes["class-1"] = class

			_, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-1"})
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
			assert.Equal(t, int64(50000), f.wallets.wallets["user-1"].Balance)
			assert.Empty(t, f.wallets.transactions)
			assert.NotContains(t, f.escrows.deleted, "escrow-1")
			assert.NotContains(t, f.assigns.deleted, "assign-1")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWithdrawalServiceRefundsEveryHeldEscrow(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f.seedEnrollment(2, models.EscrowStatusHeld, 200000, 0)
	f.escrows.escrows["escrow-2"] = models.Escrow{
		ID: "escrow-2", ClassAssignID: "assign-1", StudentID: "student-1", TutorID: "tutor-1",
		GrossAmount: 300000, ReleasedAmount: 100000, Status: models.EscrowStatusPartiallyReleased,
	}

	result, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(400000), result.RefundedAmount)
	assert.Equal(t, int64(450000), f.wallets.wallets["user-1"].Balance)
	assert.ElementsMatch(t, []int64{200000, 200000}, f.wallets.credits)
	assert.ElementsMatch(t, []string{"escrow-1", "escrow-2"}, f.escrows.refunded)
	assert.ElementsMatch(t, []string{"escrow-1", "escrow-2"}, f.escrows.deleted)
}

func TestWithdrawalServiceLastStudentCancelsClass(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f.seedEnrollment(1, models.EscrowStatusHeld, 300000, 0)

	result, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.True(t, result.ClassCancelled)
	assert.Equal(t, models.ClassStatusCancelled, f.classes.statuses["class-1"])
	assert.Equal(t, []string{"class-1"}, f.lessons.purgedEntries)
	assert.Equal(t, []string{"class-1"}, f.lessons.purgedLessons)
}

func TestWithdrawalServiceNoRefundableEscrow(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f.seedEnrollment(2, "", 0, 0)

	result, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Zero(t, result.RefundedAmount)
	assert.Equal(t, int64(50000), f.wallets.wallets["user-1"].Balance)
	assert.Empty(t, f.wallets.transactions)
	assert.Contains(t, f.assigns.deleted, "assign-1")
}

func TestWithdrawalServiceFullyReleasedEscrowRefundsNothing(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f.seedEnrollment(2, models.EscrowStatusPartiallyReleased, 300000, 300000)

	result, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Zero(t, result.RefundedAmount)
	assert.Empty(t, f.wallets.credits)
	assert.Contains(t, f.escrows.refunded, "escrow-1")
	assert.Contains(t, f.escrows.deleted, "escrow-1")
}

func TestWithdrawalServiceOwnership(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f.seedEnrollment(2, models.EscrowStatusHeld, 300000, 0)
	f.profiles.studentByUser["user-2"] = "student-2"

	_, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "assign-1", UserID: "user-2"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
	assert.NotContains(t, f.assigns.deleted, "assign-1")
}

func TestWithdrawalServiceUnknownEnrollment(t *testing.T) {
	f, mock := buildWithdrawalService(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f.profiles.studentByUser["user-1"] = "student-1"

	_, err := f.svc.Withdraw(context.Background(), WithdrawRequest{ClassAssignID: "missing", UserID: "user-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
