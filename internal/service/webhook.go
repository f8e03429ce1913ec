package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reliabill/reliabill/internal/api/dto"
	"github.com/reliabill/reliabill/internal/domain/billingaccount"
	"github.com/reliabill/reliabill/internal/domain/transaction"
	"github.com/reliabill/reliabill/internal/domain/webhookevent"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/integration/processor"
	"github.com/reliabill/reliabill/internal/types"
)

const (
	// webhookMaxRetries bounds how many redeliveries of a failed event are
	// reprocessed before the ledger stops accepting them.
	webhookMaxRetries = 3

	// conflictRetryLimit bounds the in-handler retries of lost conditional
	// writes before giving the event back to the sender for redelivery.
	conflictRetryLimit = 3
)

// WebhookService is the ingestion pipeline for processor webhook deliveries:
// verify, deduplicate, dispatch, record. Deliveries are at-least-once and
// unordered; every handler is an idempotent conditional read-modify-write.
type WebhookService interface {
	ProcessWebhook(ctx context.Context, processorType types.ProcessorType, payload []byte, signature string) (*dto.WebhookResponse, error)
}

type webhookService struct {
	ServiceParams
	billing  BillingService
	failures PaymentFailureService
	disputes DisputeService
}

// NewWebhookService creates a new webhook service
func NewWebhookService(params ServiceParams) WebhookService {
	return &webhookService{
		ServiceParams: params,
		billing:       NewBillingService(params),
		failures:      NewPaymentFailureService(params),
		disputes:      NewDisputeService(params),
	}
}

func (s *webhookService) ProcessWebhook(ctx context.Context, processorType types.ProcessorType, payload []byte, signature string) (*dto.WebhookResponse, error) {
	// Verification failures are never recorded: if the processor ever resends
	// with a corrected signature the event must still be processable.
	event, err := s.Gateway.ConstructWebhookEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	classified, err := s.Gateway.ClassifyEvent(event)
	if err != nil {
		return nil, err
	}

	key := webhookevent.DedupKey(processorType, event.ID)
	if _, hit := s.Cache.Get(ctx, key); hit {
		s.Logger.Infow("duplicate webhook delivery (cache)",
			"processor_type", processorType,
			"event_id", event.ID)
		return &dto.WebhookResponse{Received: true, Duplicate: true}, nil
	}

	record := &webhookevent.ProcessedWebhookEvent{
		ID:            event.ID,
		ProcessorType: processorType,
		EventType:     event.Type,
		Action:        classified.Action,
		MaxRetries:    webhookMaxRetries,
		BaseModel:     types.NewBaseModel(time.Now()),
	}

	// Claiming the ledger entry before dispatch is what makes concurrent
	// duplicate deliveries produce at most one dispatch.
	if err := s.WebhookEventRepo.CreateIfAbsent(ctx, record); err != nil {
		if !ierr.IsAlreadyExists(err) {
			return nil, err
		}

		existing, getErr := s.WebhookEventRepo.Get(ctx, processorType, event.ID)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Processed {
			s.Cache.Set(ctx, key, true, s.Config.Webhook.DedupCacheTTL)
			s.Logger.Infow("duplicate webhook delivery",
				"processor_type", processorType,
				"event_id", event.ID)
			return &dto.WebhookResponse{Received: true, Duplicate: true}, nil
		}
		if existing.RetryCount >= existing.MaxRetries {
			s.Logger.Warnw("webhook event retries exhausted, dropping redelivery",
				"processor_type", processorType,
				"event_id", event.ID,
				"retry_count", existing.RetryCount)
			return &dto.WebhookResponse{Received: true, Duplicate: true}, nil
		}

		// Redelivery of an event whose dispatch failed earlier.
		existing.RetryCount++
		record = existing
	}

	if !classified.Handled {
		// Forward compatibility: unknown event types are acknowledged and
		// never reprocessed, but nothing is dispatched.
		s.Logger.Infow("ignoring unhandled webhook event type",
			"processor_type", processorType,
			"event_id", event.ID,
			"event_type", event.Type)
		record.Processed = true
		if err := s.WebhookEventRepo.Update(ctx, record); err != nil {
			return nil, err
		}
		s.Cache.Set(ctx, key, true, s.Config.Webhook.DedupCacheTTL)
		return &dto.WebhookResponse{Received: true}, nil
	}

	if err := s.dispatch(ctx, classified.Action, classified.Data); err != nil {
		record.Error = err.Error()
		if updateErr := s.WebhookEventRepo.Update(ctx, record); updateErr != nil {
			s.Logger.Errorw("failed to record webhook dispatch error",
				"event_id", event.ID,
				"error", updateErr)
		}
		return nil, err
	}

	record.Processed = true
	record.Error = ""
	if err := s.WebhookEventRepo.Update(ctx, record); err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, true, s.Config.Webhook.DedupCacheTTL)

	s.Logger.Infow("processed webhook event",
		"processor_type", processorType,
		"event_id", event.ID,
		"action", classified.Action)
	return &dto.WebhookResponse{Received: true, Processed: true}, nil
}

func (s *webhookService) dispatch(ctx context.Context, action types.WebhookAction, data processor.EventData) error {
	switch action {
	case types.WebhookActionPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, data)
	case types.WebhookActionPaymentFailed:
		return s.handlePaymentFailed(ctx, data)
	case types.WebhookActionInvoicePaymentSucceeded:
		return s.handleInvoicePaymentSucceeded(ctx, data)
	case types.WebhookActionInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, data)
	case types.WebhookActionSubscriptionCreated:
		return s.handleSubscriptionCreated(ctx, data)
	case types.WebhookActionSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, data)
	case types.WebhookActionSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, data)
	case types.WebhookActionDisputeCreated:
		return s.handleDisputeCreated(ctx, data)
	default:
		s.Logger.Warnw("unmapped webhook action, ignoring", "action", action)
		return nil
	}
}

func (s *webhookService) handlePaymentSucceeded(ctx context.Context, data processor.EventData) error {
	txn, err := s.findTransaction(ctx, data)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("payment succeeded for unknown transaction",
				"payment_id", data.PaymentID,
				"transaction_id", data.TransactionID)
			return nil
		}
		return err
	}

	if txn.Status != types.TransactionStatusCompleted {
		if err := s.TransactionRepo.UpdateStatus(ctx, txn.ID, types.TransactionStatusCompleted); err != nil {
			return err
		}
	}

	if err := s.resolveFailureForTransaction(ctx, txn.ID); err != nil {
		return err
	}

	_, err = s.BillingAccountRepo.UpdateStatus(ctx, txn.BillingAccountID,
		types.BillingAccountStatusActive, types.BillingAccountStatusPastDue)
	if err != nil && !ierr.IsConflict(err) {
		return err
	}
	return nil
}

func (s *webhookService) handlePaymentFailed(ctx context.Context, data processor.EventData) error {
	account, err := s.findAccount(ctx, data)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("payment failed for unknown billing account",
				"customer_id", data.CustomerID,
				"subscription_id", data.SubscriptionID)
			return nil
		}
		return err
	}

	txnID, err := s.ensureFailedTransaction(ctx, account.ID, account.UserID, data, "Payment")
	if err != nil {
		return err
	}

	reason := processor.ClassifyDeclineCode(data.FailureCode)
	_, err = s.failures.HandlePaymentFailure(ctx, txnID, account.ID, reason, data.FailureCode)
	return err
}

func (s *webhookService) handleInvoicePaymentSucceeded(ctx context.Context, data processor.EventData) error {
	account, err := s.findAccount(ctx, data)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("invoice payment succeeded for unknown billing account",
				"customer_id", data.CustomerID,
				"subscription_id", data.SubscriptionID)
			return nil
		}
		return err
	}

	if err := s.resolveOpenFailure(ctx, account.ID, types.ResolutionMethodRetrySuccess); err != nil {
		return err
	}

	if data.PeriodEnd != nil {
		if err := withConflictRetry(ctx, func() error {
			fresh, err := s.BillingAccountRepo.Get(ctx, account.ID)
			if err != nil {
				return err
			}
			fresh.NextBillingDate = data.PeriodEnd.UTC()
			return s.BillingAccountRepo.Update(ctx, fresh)
		}); err != nil {
			return err
		}
	}

	_, err = s.BillingAccountRepo.UpdateStatus(ctx, account.ID,
		types.BillingAccountStatusActive, types.BillingAccountStatusPastDue)
	if err != nil && !ierr.IsConflict(err) {
		return err
	}
	return nil
}

func (s *webhookService) handleInvoicePaymentFailed(ctx context.Context, data processor.EventData) error {
	account, err := s.findAccount(ctx, data)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("invoice payment failed for unknown billing account",
				"customer_id", data.CustomerID,
				"subscription_id", data.SubscriptionID)
			return nil
		}
		return err
	}

	txnID, err := s.ensureFailedTransaction(ctx, account.ID, account.UserID, data, "Invoice payment")
	if err != nil {
		return err
	}

	reason := processor.ClassifyDeclineCode(data.FailureCode)
	_, err = s.failures.HandlePaymentFailure(ctx, txnID, account.ID, reason, data.FailureCode)
	return err
}

func (s *webhookService) handleSubscriptionCreated(ctx context.Context, data processor.EventData) error {
	account, err := s.BillingAccountRepo.GetByCustomerID(ctx, data.CustomerID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("subscription created for unknown customer",
				"customer_id", data.CustomerID)
			return nil
		}
		return err
	}

	if err := withConflictRetry(ctx, func() error {
		fresh, err := s.BillingAccountRepo.Get(ctx, account.ID)
		if err != nil {
			return err
		}
		fresh.SubscriptionID = data.SubscriptionID
		if data.PlanID != "" {
			fresh.PlanID = data.PlanID
		}
		if data.PeriodEnd != nil {
			fresh.NextBillingDate = data.PeriodEnd.UTC()
		}
		return s.BillingAccountRepo.Update(ctx, fresh)
	}); err != nil {
		return err
	}

	_, err = s.BillingAccountRepo.UpdateStatus(ctx, account.ID,
		types.BillingAccountStatusActive, types.BillingAccountStatusTrialing)
	if err != nil && !ierr.IsConflict(err) {
		return err
	}
	return nil
}

func (s *webhookService) handleSubscriptionUpdated(ctx context.Context, data processor.EventData) error {
	account, err := s.BillingAccountRepo.GetBySubscriptionID(ctx, data.SubscriptionID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("subscription updated for unknown subscription",
				"subscription_id", data.SubscriptionID)
			return nil
		}
		return err
	}

	return withConflictRetry(ctx, func() error {
		fresh, err := s.BillingAccountRepo.Get(ctx, account.ID)
		if err != nil {
			return err
		}
		if data.PlanID != "" {
			fresh.PlanID = data.PlanID
		}
		if data.PeriodEnd != nil {
			fresh.NextBillingDate = data.PeriodEnd.UTC()
		}
		return s.BillingAccountRepo.Update(ctx, fresh)
	})
}

func (s *webhookService) handleSubscriptionDeleted(ctx context.Context, data processor.EventData) error {
	account, err := s.BillingAccountRepo.GetBySubscriptionID(ctx, data.SubscriptionID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("subscription deleted for unknown subscription",
				"subscription_id", data.SubscriptionID)
			return nil
		}
		return err
	}

	// The processor already deleted the subscription; only the local side of
	// the cancellation remains.
	return s.billing.Cancel(ctx, account.ID, false)
}

func (s *webhookService) handleDisputeCreated(ctx context.Context, data processor.EventData) error {
	txn, err := s.findTransaction(ctx, data)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("dispute created for unknown transaction",
				"payment_id", data.PaymentID,
				"transaction_id", data.TransactionID)
			return nil
		}
		return err
	}

	if existing, err := s.DisputeRepo.GetCaseByTransactionID(ctx, txn.ID); err == nil {
		s.Logger.Infow("dispute case already exists for transaction",
			"transaction_id", txn.ID,
			"dispute_id", existing.ID)
		return nil
	} else if !ierr.IsNotFound(err) {
		return err
	}

	amount := data.Amount
	if amount.IsZero() {
		amount = txn.Amount
	}
	disputeType := types.DisputeType(data.DisputeType)
	if !disputeType.Validate() {
		disputeType = types.DisputeTypeChargeback
	}
	respondBy := time.Now().UTC().Add(7 * 24 * time.Hour)
	if data.RespondByDate != nil {
		respondBy = data.RespondByDate.UTC()
	}

	_, err = s.disputes.CreateDisputeCase(ctx, &dto.CreateDisputeRequest{
		TransactionID: txn.ID,
		DisputeType:   disputeType,
		Amount:        amount,
		Currency:      txn.Currency,
		EvidenceRequired: []types.EvidenceType{
			types.EvidenceTypeReceipt,
			types.EvidenceTypeCustomerComms,
		},
		RespondByDate: respondBy,
	})
	return err
}

// findTransaction resolves the local transaction an event refers to, by our
// id when the processor echoed it back, otherwise by processor payment id.
func (s *webhookService) findTransaction(ctx context.Context, data processor.EventData) (*transaction.Transaction, error) {
	if data.TransactionID != "" {
		return s.TransactionRepo.Get(ctx, data.TransactionID)
	}
	if data.PaymentID != "" {
		return s.TransactionRepo.GetByProcessorPaymentID(ctx, data.PaymentID)
	}
	return nil, ierr.NewError("event carries no transaction reference").Mark(ierr.ErrNotFound)
}

// findAccount resolves the billing account an event refers to, trying the
// subscription id first, then the processor customer id.
func (s *webhookService) findAccount(ctx context.Context, data processor.EventData) (*billingaccount.BillingAccount, error) {
	if data.SubscriptionID != "" {
		account, err := s.BillingAccountRepo.GetBySubscriptionID(ctx, data.SubscriptionID)
		if err == nil || !ierr.IsNotFound(err) {
			return account, err
		}
	}
	if data.CustomerID != "" {
		return s.BillingAccountRepo.GetByCustomerID(ctx, data.CustomerID)
	}
	return nil, ierr.NewError("event carries no billing account reference").Mark(ierr.ErrNotFound)
}

// ensureFailedTransaction finds or records the failed transaction behind a
// payment-failed event and returns its id.
func (s *webhookService) ensureFailedTransaction(ctx context.Context, accountID, userID string, data processor.EventData, description string) (string, error) {
	if data.PaymentID != "" {
		txn, err := s.TransactionRepo.GetByProcessorPaymentID(ctx, data.PaymentID)
		if err == nil {
			if txn.Status != types.TransactionStatusFailed {
				if err := s.TransactionRepo.UpdateStatus(ctx, txn.ID, types.TransactionStatusFailed); err != nil {
					return "", err
				}
			}
			return txn.ID, nil
		}
		if !ierr.IsNotFound(err) {
			return "", err
		}
	}

	amount := data.Amount
	currency := data.Currency
	account, err := s.BillingAccountRepo.Get(ctx, accountID)
	if err == nil {
		if amount.IsZero() {
			amount = account.Amount
		}
		if currency == "" {
			currency = account.Currency
		}
	}

	txn := &transaction.Transaction{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		UserID:             userID,
		BillingAccountID:   accountID,
		Amount:             amount,
		Currency:           currency,
		Status:             types.TransactionStatusFailed,
		Description:        description,
		ProcessorPaymentID: data.PaymentID,
		BaseModel:          types.NewBaseModel(time.Now()),
	}
	if err := s.TransactionRepo.Create(ctx, txn); err != nil {
		return "", err
	}
	return txn.ID, nil
}

// resolveFailureForTransaction closes the failure chain opened for a
// transaction, if one exists and is still open.
func (s *webhookService) resolveFailureForTransaction(ctx context.Context, transactionID string) error {
	failure, err := s.PaymentFailureRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if failure.Resolved {
		return nil
	}

	failure.MarkResolved(types.ResolutionMethodRetrySuccess, time.Now())
	if err := s.PaymentFailureRepo.Update(ctx, failure); err != nil && !ierr.IsConflict(err) {
		return err
	}
	return nil
}

// resolveOpenFailure closes the account's open failure chain, if any.
func (s *webhookService) resolveOpenFailure(ctx context.Context, accountID string, method types.ResolutionMethod) error {
	failure, err := s.PaymentFailureRepo.GetUnresolvedByAccount(ctx, accountID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}

	failure.MarkResolved(method, time.Now())
	if err := s.PaymentFailureRepo.Update(ctx, failure); err != nil && !ierr.IsConflict(err) {
		return err
	}
	return nil
}

// withConflictRetry retries a read-modify-write a bounded number of times
// when the conditional write loses a race. Anything but a conflict aborts.
func withConflictRetry(ctx context.Context, op func() error) error {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = 50 * time.Millisecond
	ebo.MaxInterval = time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ierr.IsConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(ebo, conflictRetryLimit), ctx))
}
