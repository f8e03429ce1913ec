package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/testutil"
	"github.com/reliabill/reliabill/internal/types"
)

type BillingServiceTestSuite struct {
	testutil.BaseServiceTestSuite
	service BillingService
}

func TestBillingService(t *testing.T) {
	suite.Run(t, new(BillingServiceTestSuite))
}

func (s *BillingServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewBillingService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *BillingServiceTestSuite) TestSuspendPastDueAccount() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_suspend")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)

	err := s.service.Suspend(ctx, account.ID)
	s.NoError(err)

	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusSuspended, updated.Status)

	// Premium entitlements are stripped synchronously with the transition.
	stripped, err := s.GetStores().UserRepo.Get(ctx, u.ID)
	s.NoError(err)
	s.False(stripped.PremiumActive)
	s.Nil(stripped.PremiumExpiresAt)

	s.Equal([]string{"account_suspended"}, s.GetNotifier().EmailTemplates())
}

func (s *BillingServiceTestSuite) TestSuspendSkipsAdvancedAccount() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_active")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)

	err := s.service.Suspend(ctx, account.ID)
	s.NoError(err)

	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusActive, updated.Status)

	kept, err := s.GetStores().UserRepo.Get(ctx, u.ID)
	s.NoError(err)
	s.True(kept.PremiumActive)
	s.Empty(s.GetNotifier().Emails())
}

func (s *BillingServiceTestSuite) TestSuspendIsIdempotent() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_twice")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)

	s.NoError(s.service.Suspend(ctx, account.ID))
	s.NoError(s.service.Suspend(ctx, account.ID))

	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusSuspended, updated.Status)

	// The second suspend is a pure no-op: one notice, not two.
	s.Equal([]string{"account_suspended"}, s.GetNotifier().EmailTemplates())
}

func (s *BillingServiceTestSuite) TestCancelActiveAccount() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_cancel")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_cancel")
	seedFailure(ctx, s.GetStores(), account, txn.ID, time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))

	err := s.service.Cancel(ctx, account.ID, true)
	s.NoError(err)

	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusCanceled, updated.Status)
	s.NotNil(updated.CanceledAt)

	s.Equal([]string{account.SubscriptionID}, s.GetGateway().CanceledSubscriptions())

	// The open failure chain resolves with the cancellation.
	failure, err := s.GetStores().PaymentFailureRepo.GetByTransactionID(ctx, txn.ID)
	s.NoError(err)
	s.True(failure.Resolved)
	s.Equal(types.ResolutionMethodCancellation, failure.ResolutionMethod)

	stripped, err := s.GetStores().UserRepo.Get(ctx, u.ID)
	s.NoError(err)
	s.False(stripped.PremiumActive)
}

func (s *BillingServiceTestSuite) TestCancelWithoutRemote() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_local")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)

	err := s.service.Cancel(ctx, account.ID, false)
	s.NoError(err)

	s.Empty(s.GetGateway().CanceledSubscriptions())
	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusCanceled, updated.Status)
}

func (s *BillingServiceTestSuite) TestCancelCanceledAccountIsNoOp() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_gone")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusCanceled)

	err := s.service.Cancel(ctx, account.ID, true)
	s.NoError(err)
	s.Empty(s.GetGateway().CanceledSubscriptions())
	s.Empty(s.GetNotifier().Emails())
}

func (s *BillingServiceTestSuite) TestReactivateSuspendedAccount() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_back")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusSuspended)

	updated, err := s.service.Reactivate(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusActive, updated.Status)
}

func (s *BillingServiceTestSuite) TestReactivateRejectsNonSuspended() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_nope")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)

	_, err := s.service.Reactivate(ctx, account.ID)
	s.Error(err)
	s.True(ierr.IsConflict(err))
}

func (s *BillingServiceTestSuite) TestManualPayment() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_manual")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusSuspended)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_manual")
	seedFailure(ctx, s.GetStores(), account, txn.ID, time.Now().UTC(), 2, time.Now().UTC().Add(48*time.Hour))

	failure, err := s.service.ManualPayment(ctx, account.ID)
	s.NoError(err)
	s.True(failure.Resolved)
	s.Equal(types.ResolutionMethodManualPayment, failure.ResolutionMethod)
	s.NotNil(failure.ResolvedAt)

	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusActive, updated.Status)
}

func (s *BillingServiceTestSuite) TestManualPaymentWithoutOpenFailure() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_clean")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)

	_, err := s.service.ManualPayment(ctx, account.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}
