package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/reliabill/reliabill/internal/testutil"
	"github.com/reliabill/reliabill/internal/types"
)

type DunningServiceTestSuite struct {
	testutil.BaseServiceTestSuite
	service DunningService
}

func TestDunningService(t *testing.T) {
	suite.Run(t, new(DunningServiceTestSuite))
}

func (s *DunningServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewDunningService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *DunningServiceTestSuite) TestStandardCampaignImmediateStep() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_std")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_std")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))

	err := s.service.StartCampaign(ctx, f)
	s.NoError(err)

	s.Equal("dun_standard", f.DunningCampaignID)
	s.Equal(1, f.DunningStepsDone)
	s.Equal([]string{"payment_failed"}, s.GetNotifier().EmailTemplates())
	s.Empty(s.GetNotifier().SMS())

	// Only the immediate prefix ran; later steps wait for the scan.
	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusPastDue, acct.Status)
}

func (s *DunningServiceTestSuite) TestFraudCampaignSuspendsImmediately() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_fraud")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_fraud")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))
	f.Reason = types.FailureReasonFraudSuspected

	err := s.service.StartCampaign(ctx, f)
	s.NoError(err)

	s.Equal("dun_fraud", f.DunningCampaignID)
	s.Equal(2, f.DunningStepsDone)

	// Both immediate steps ran: the fraud alert and the suspension.
	s.Contains(s.GetNotifier().EmailTemplates(), "fraud_alert")
	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusSuspended, acct.Status)
}

func (s *DunningServiceTestSuite) TestNoCampaignForReason() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_none")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_none")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))
	f.Reason = types.FailureReasonNetworkError

	err := s.service.StartCampaign(ctx, f)
	s.NoError(err)
	s.Empty(f.DunningCampaignID)
	s.Empty(s.GetNotifier().Emails())
}

func (s *DunningServiceTestSuite) TestProcessDunningStepsExecutesOverdue() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_scan")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_scan")

	// Created three days ago with only the immediate step done: the day 1
	// email, day 2 sms and day 3 email are all overdue.
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-73*time.Hour), 2, time.Now().UTC().Add(23*time.Hour))
	f.DunningCampaignID = "dun_standard"
	f.DunningStepsDone = 1
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, f))

	executed, err := s.service.ProcessDunningSteps(ctx)
	s.NoError(err)
	s.Equal(3, executed)

	updated, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	s.Equal(4, updated.DunningStepsDone)

	s.Equal([]string{"payment_retry_notice", "payment_retry_notice"}, s.GetNotifier().EmailTemplates())
	sms := s.GetNotifier().SMS()
	s.Len(sms, 1)
	s.Equal("payment_retry_notice", sms[0].Template)
}

func (s *DunningServiceTestSuite) TestProcessDunningStepsNothingDue() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_fresh")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_fresh")

	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-time.Hour), 1, time.Now().UTC().Add(23*time.Hour))
	f.DunningCampaignID = "dun_standard"
	f.DunningStepsDone = 1
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, f))

	executed, err := s.service.ProcessDunningSteps(ctx)
	s.NoError(err)
	s.Zero(executed)
	s.Empty(s.GetNotifier().Emails())
}

func (s *DunningServiceTestSuite) TestScheduledStepSkipsResolvedFailure() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_res")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_res")

	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-49*time.Hour), 2, time.Now().UTC().Add(47*time.Hour))
	f.DunningCampaignID = "dun_standard"
	f.DunningStepsDone = 1
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, f))

	// The failure resolves after the scan snapshot was taken; the re-check
	// before each step must turn the overdue steps into no-ops.
	stale := *f
	resolved, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	resolved.MarkResolved(types.ResolutionMethodManualPayment, time.Now())
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, resolved))

	svc := s.service.(*dunningService)
	executed, err := svc.processFailureSteps(ctx, &stale, time.Now().UTC())
	s.NoError(err)
	s.Zero(executed)
	s.Empty(s.GetNotifier().Emails())
	s.Empty(s.GetNotifier().SMS())
}

func (s *DunningServiceTestSuite) TestEscalatedChainStopsScheduledSteps() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_esc")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusSuspended)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_esc")

	// Retries exhausted mid-campaign and the account is already suspended.
	// The remaining final notices would promise retries that cannot happen,
	// and the day 7 suspend step would re-notify, so none of them may fire.
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-(7*24+1)*time.Hour), 3, time.Now().UTC().Add(96*time.Hour))
	f.DunningCampaignID = "dun_standard"
	f.DunningStepsDone = 4
	f.MarkEscalated(time.Now().UTC())
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, f))

	executed, err := s.service.ProcessDunningSteps(ctx)
	s.NoError(err)
	s.Zero(executed)
	s.Empty(s.GetNotifier().Emails())
	s.Empty(s.GetNotifier().SMS())

	updated, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	s.Equal(4, updated.DunningStepsDone)
}

func (s *DunningServiceTestSuite) TestScheduledStepSkipsFreshlyEscalatedFailure() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_esc_race")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_esc_race")

	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-49*time.Hour), 2, time.Now().UTC().Add(47*time.Hour))
	f.DunningCampaignID = "dun_standard"
	f.DunningStepsDone = 1
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, f))

	// Escalation lands after the scan snapshot was taken; the pre-step
	// re-check must stop the chain.
	stale := *f
	escalated, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	escalated.MarkEscalated(time.Now().UTC())
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, escalated))

	svc := s.service.(*dunningService)
	executed, err := svc.processFailureSteps(ctx, &stale, time.Now().UTC())
	s.NoError(err)
	s.Zero(executed)
	s.Empty(s.GetNotifier().Emails())
	s.Empty(s.GetNotifier().SMS())
}

func (s *DunningServiceTestSuite) TestFinalStepSuspendsService() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_final")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_final")

	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC().Add(-(7*24+1)*time.Hour), 3, time.Now().UTC().Add(96*time.Hour))
	f.DunningCampaignID = "dun_standard"
	f.DunningStepsDone = 6
	s.NoError(s.GetStores().PaymentFailureRepo.Update(ctx, f))

	executed, err := s.service.ProcessDunningSteps(ctx)
	s.NoError(err)
	s.Equal(1, executed)

	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusSuspended, acct.Status)

	updated, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	s.Equal(7, updated.DunningStepsDone)
}

func (s *DunningServiceTestSuite) TestExecuteStepSkipsRetryPaymentAction() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_skip")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_skip")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))

	err := s.service.ExecuteStep(ctx, f, types.DunningStep{
		DelayDays: 1,
		Action:    types.DunningActionRetryPayment,
	})
	s.NoError(err)
	s.Empty(s.GetGateway().PaymentRequests())
}
