package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/integration/processor"
	"github.com/reliabill/reliabill/internal/testutil"
	"github.com/reliabill/reliabill/internal/types"
)

type WebhookServiceTestSuite struct {
	testutil.BaseServiceTestSuite
	service WebhookService
}

func TestWebhookService(t *testing.T) {
	suite.Run(t, new(WebhookServiceTestSuite))
}

func (s *WebhookServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewWebhookService(newTestParams(&s.BaseServiceTestSuite))
}

// signedEvent builds a processor event payload and its valid signature.
func signedEvent(eventID, eventType string, data map[string]interface{}) ([]byte, string) {
	payload, err := json.Marshal(map[string]interface{}{
		"id":         eventID,
		"type":       eventType,
		"created_at": time.Now().UTC(),
		"data":       data,
	})
	if err != nil {
		panic(err)
	}
	return payload, processor.SignPayload(testutil.TestWebhookSecret, payload)
}

func (s *WebhookServiceTestSuite) TestInvalidSignatureRejectedAndNotRecorded() {
	ctx := s.GetContext()
	payload, _ := signedEvent("evt_bad", "payment_intent.succeeded", nil)

	_, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, "deadbeef")
	s.Error(err)
	s.True(ierr.IsInvalidSignature(err))

	// Nothing lands in the ledger: a corrected redelivery must still process.
	_, err = s.GetStores().WebhookEventRepo.Get(ctx, types.ProcessorTypeStripe, "evt_bad")
	s.True(ierr.IsNotFound(err))
}

func (s *WebhookServiceTestSuite) TestPaymentSucceededResolvesFailure() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_wh_ok")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_wh_ok")
	f := seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))

	payload, sig := signedEvent("evt_ok_1", "payment_intent.succeeded", map[string]interface{}{
		"payment_id": "pi_wh_ok",
	})
	resp, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(resp.Received)
	s.True(resp.Processed)
	s.False(resp.Duplicate)

	updatedTxn, err := s.GetStores().TransactionRepo.Get(ctx, txn.ID)
	s.NoError(err)
	s.Equal(types.TransactionStatusCompleted, updatedTxn.Status)

	resolved, err := s.GetStores().PaymentFailureRepo.Get(ctx, f.ID)
	s.NoError(err)
	s.True(resolved.Resolved)
	s.Equal(types.ResolutionMethodRetrySuccess, resolved.ResolutionMethod)

	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusActive, acct.Status)
}

func (s *WebhookServiceTestSuite) TestDuplicateDeliveryDispatchesOnce() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_wh_dup")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_wh_dup")

	payload, sig := signedEvent("evt_dup_1", "payment_intent.succeeded", map[string]interface{}{
		"payment_id": "pi_wh_dup",
	})

	first, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(first.Processed)
	s.False(first.Duplicate)

	second, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(second.Received)
	s.True(second.Duplicate)
	s.False(second.Processed)
}

func (s *WebhookServiceTestSuite) TestPaymentFailedOpensFailureChain() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_wh_fail")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)

	payload, sig := signedEvent("evt_fail_1", "payment_intent.payment_failed", map[string]interface{}{
		"customer_id":  account.CustomerID,
		"failure_code": "insufficient_funds",
	})
	resp, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(resp.Processed)

	failure, err := s.GetStores().PaymentFailureRepo.GetUnresolvedByAccount(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.FailureReasonInsufficientFunds, failure.Reason)
	s.Equal(1, failure.AttemptNumber)
	s.Equal("dun_standard", failure.DunningCampaignID)

	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusPastDue, acct.Status)

	// The failed charge is on record even though the processor initiated it.
	s.Equal([]string{"payment_failed"}, s.GetNotifier().EmailTemplates())
}

func (s *WebhookServiceTestSuite) TestInvoicePaymentSucceededAdvancesBillingDate() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_wh_inv")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusPastDue)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusFailed, "pi_wh_inv")
	seedFailure(ctx, s.GetStores(), account, txn.ID,
		time.Now().UTC(), 1, time.Now().UTC().Add(24*time.Hour))

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)
	payload, sig := signedEvent("evt_inv_1", "invoice.payment_succeeded", map[string]interface{}{
		"subscription_id": account.SubscriptionID,
		"period_end":      periodEnd,
	})
	resp, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(resp.Processed)

	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusActive, acct.Status)
	s.True(acct.NextBillingDate.Equal(periodEnd))

	failure, err := s.GetStores().PaymentFailureRepo.GetByTransactionID(ctx, txn.ID)
	s.NoError(err)
	s.True(failure.Resolved)
}

func (s *WebhookServiceTestSuite) TestSubscriptionDeletedCancelsLocally() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_wh_del")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)

	payload, sig := signedEvent("evt_del_1", "customer.subscription.deleted", map[string]interface{}{
		"subscription_id": account.SubscriptionID,
	})
	resp, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(resp.Processed)

	acct, err := s.GetStores().BillingAccountRepo.Get(ctx, account.ID)
	s.NoError(err)
	s.Equal(types.BillingAccountStatusCanceled, acct.Status)

	// The subscription is already gone upstream; no remote cancel call.
	s.Empty(s.GetGateway().CanceledSubscriptions())

	stripped, err := s.GetStores().UserRepo.Get(ctx, u.ID)
	s.NoError(err)
	s.False(stripped.PremiumActive)
}

func (s *WebhookServiceTestSuite) TestUnhandledEventAcknowledged() {
	ctx := s.GetContext()
	payload, sig := signedEvent("evt_unknown_1", "customer.created", nil)

	resp, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(resp.Received)
	s.False(resp.Processed)
	s.False(resp.Duplicate)

	// Recorded so redeliveries are deduplicated, but nothing was dispatched.
	record, err := s.GetStores().WebhookEventRepo.Get(ctx, types.ProcessorTypeStripe, "evt_unknown_1")
	s.NoError(err)
	s.True(record.Processed)

	again, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(again.Duplicate)
}

func (s *WebhookServiceTestSuite) TestDisputeCreatedOpensCase() {
	ctx := s.GetContext()
	u := seedUser(ctx, s.GetStores(), "user_wh_disp")
	account := seedAccount(ctx, s.GetStores(), u.ID, types.BillingAccountStatusActive)
	txn := seedTransaction(ctx, s.GetStores(), account, types.TransactionStatusCompleted, "pi_wh_disp")

	payload, sig := signedEvent("evt_disp_1", "charge.dispute.created", map[string]interface{}{
		"transaction_id": txn.ID,
		"dispute_type":   "fraud",
		"amount":         1200,
	})
	resp, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(resp.Processed)

	d, err := s.GetStores().DisputeRepo.GetCaseByTransactionID(ctx, txn.ID)
	s.NoError(err)
	s.Equal(types.DisputeTypeFraud, d.DisputeType)
	s.Equal(types.DisputePriorityHigh, d.Priority)
	s.Equal(types.DisputeStatusEvidenceRequired, d.DisputeStatus)

	// A second dispute event for the same transaction is idempotent.
	payload2, sig2 := signedEvent("evt_disp_2", "charge.dispute.created", map[string]interface{}{
		"transaction_id": txn.ID,
		"dispute_type":   "fraud",
	})
	_, err = s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload2, sig2)
	s.NoError(err)

	again, err := s.GetStores().DisputeRepo.GetCaseByTransactionID(ctx, txn.ID)
	s.NoError(err)
	s.Equal(d.ID, again.ID)
}

func (s *WebhookServiceTestSuite) TestUnknownReferencesAcknowledged() {
	ctx := s.GetContext()

	// Events referring to entities the engine does not know are logged and
	// acknowledged, never bounced back for endless redelivery.
	payload, sig := signedEvent("evt_err_1", "charge.dispute.created", map[string]interface{}{
		"payment_id": "pi_nonexistent",
	})
	resp, err := s.service.ProcessWebhook(ctx, types.ProcessorTypeStripe, payload, sig)
	s.NoError(err)
	s.True(resp.Processed)
}
