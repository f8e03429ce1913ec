package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/reliabill/reliabill/internal/domain/transaction"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/integration/processor"
	"github.com/reliabill/reliabill/internal/testutil"
	"github.com/reliabill/reliabill/internal/types"
)

type PaymentFailureServiceTestSuite struct {
	testutil.BaseServiceTestSuite
	service PaymentFailureService
}

func TestPaymentFailureService(t *testing.T) {
	suite.Run(t, new(PaymentFailureServiceTestSuite))
}

func (s *PaymentFailureServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewPaymentFailureService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *PaymentFailureServiceTestSuite) TestHandlePaymentFailure() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_fail")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_fail")

	before := time.Now().UTC()
	failure, err := s.service.HandlePaymentFailure(ctx, txn.ID, account.ID,
		types.FailureReasonCardDeclined, "card_declined")
	s.NoError(err)

	s.Equal(1, failure.AttemptNumber)
	s.Equal(3, failure.MaxAttempts)
	s.False(failure.Resolved)
	s.Equal(account.Amount, failure.Amount)
	s.Equal(account.Currency, failure.Currency)

	// First retry a day out, grace period a week out.
	s.WithinDuration(before.Add(24*time.Hour), failure.NextRetryAt, time.Minute)
	s.WithinDuration(before.Add(7*24*time.Hour), failure.GracePeriodEnds, time.Minute)

	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusPastDue, updated.Status)

	// The standard campaign starts and its immediate step fires synchronously.
	s.Equal("dun_standard", failure.DunningCampaignID)
	s.Equal(1, failure.DunningStepsDone)
	s.Equal([]string{"payment_failed"}, s.GetNotifier().EmailTemplates())
}

func (s *PaymentFailureServiceTestSuite) TestHandlePaymentFailureDuplicate() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_dup")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_dup")

	first, err := s.service.HandlePaymentFailure(ctx, txn.ID, account.ID,
		types.FailureReasonInsufficientFunds, "")
	s.NoError(err)

	// A second report for the same account resolves to the open chain.
	second, err := s.service.HandlePaymentFailure(ctx, txn.ID, account.ID,
		types.FailureReasonInsufficientFunds, "")
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	failures, err := s.GetStores().PaymentFailureRepo.ListUnresolved(ctx)
	s.NoError(err)
	s.Len(failures, 1)
}

func (s *PaymentFailureServiceTestSuite) TestHandlePaymentFailureUnknownAccount() {
	_, err := s.service.HandlePaymentFailure(s.GetContext(), "txn_x", "ba_missing",
		types.FailureReasonCardDeclined, "")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *PaymentFailureServiceTestSuite) TestProcessRetrySuccess() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_retry")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_retry")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-25*time.Hour), 1, time.Now().UTC().Add(-time.Hour))

	picked, err := s.service.ProcessRetryAttempts(ctx)
	s.NoError(err)
	s.Equal(1, picked)

	requests := s.GetGateway().PaymentRequests()
	s.Len(requests, 1)
	s.Equal("2", requests[0].Metadata["attempt_number"])
	s.Equal(f.ID, requests[0].Metadata["payment_failure_id"])

	resolved, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	s.True(resolved.Resolved)
	s.Equal(types.ResolutionMethodRetrySuccess, resolved.ResolutionMethod)
	s.Equal(2, resolved.AttemptNumber)

	updated, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusActive, updated.Status)

	// The successful charge is recorded as a completed transaction.
	recorded := s.GetStores().TransactionRepo.List(ctx, func(t *transaction.Transaction) bool {
		return t.PaymentFailureID == f.ID
	})
	s.Len(recorded, 1)
	s.Equal(types.TransactionStatusCompleted, recorded[0].Status)
}

func (s *PaymentFailureServiceTestSuite) TestProcessRetryDeclineBacksOff() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_decline")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_decline")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-25*time.Hour), 1, time.Now().UTC().Add(-time.Hour))

	s.GetGateway().PaymentFn = func(req *processor.ProcessPaymentRequest) (*processor.Payment, error) {
		return nil, ierr.NewError("payment declined").Mark(ierr.ErrProcessorDeclined)
	}

	_, err := s.service.ProcessRetryAttempts(ctx)
	s.NoError(err)

	before := time.Now().UTC()
	updated, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	s.False(updated.Resolved)
	s.Nil(updated.EscalatedAt)
	s.Equal(2, updated.AttemptNumber)
	s.WithinDuration(before.Add(48*time.Hour), updated.NextRetryAt, time.Minute)

	// Still past_due; only success or resolution moves the account back.
	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusPastDue, acct.Status)
}

func (s *PaymentFailureServiceTestSuite) TestProcessRetryExhaustionEscalates() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_exhaust")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_exhaust")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-73*time.Hour), 2, time.Now().UTC().Add(-time.Hour))

	s.GetGateway().PaymentFn = func(req *processor.ProcessPaymentRequest) (*processor.Payment, error) {
		return nil, ierr.NewError("payment declined").Mark(ierr.ErrProcessorDeclined)
	}

	_, err := s.service.ProcessRetryAttempts(ctx)
	s.NoError(err)

	escalated, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	s.Equal(3, escalated.AttemptNumber)
	s.NotNil(escalated.EscalatedAt)
	// Escalation ends the chain without resolving it.
	s.False(escalated.Resolved)

	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusSuspended, acct.Status)

	stripped, err := s.GetStores().UserRepo.Get(ctx, u.ID)
	s.NoError(err)
	s.False(stripped.PremiumActive)

	// Escalated chains never come back as due.
	due, err := s.GetStores().PaymentFailureRepo.ListDue(ctx, time.Now().UTC().Add(30*24*time.Hour))
	s.NoError(err)
	s.Empty(due)
}

func (s *PaymentFailureServiceTestSuite) TestProcessRetryNothingDue() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_early")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_early")
	seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))

	picked, err := s.service.ProcessRetryAttempts(ctx)
	s.NoError(err)
	s.Zero(picked)
	s.Empty(s.GetGateway().PaymentRequests())
}
