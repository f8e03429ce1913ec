package service

import (
	"context"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
	"github.com/reliabill/reliabill/internal/domain/transaction"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/integration/processor"
	"github.com/reliabill/reliabill/internal/types"
)

// retryScanConcurrency bounds the per-failure fan-out of a retry tick.
const retryScanConcurrency = 8

// PaymentFailureService owns the retry scheduler: the attempt/backoff
// arithmetic and the decision to retry versus escalate to suspension.
type PaymentFailureService interface {
	// HandlePaymentFailure opens a failure chain for a failed transaction:
	// attempt 1, first retry after the base delay, grace period started, the
	// account moved to past_due and the matching dunning campaign begun.
	// A duplicate report for an account with an open chain returns the
	// existing failure instead of opening a second one.
	HandlePaymentFailure(ctx context.Context, transactionID, billingAccountID string, reason types.FailureReason, reasonDetails string) (*paymentfailure.PaymentFailure, error)

	// ProcessRetryAttempts is the periodic tick entry point: charges every
	// unresolved failure whose retry is due. Failures are processed
	// independently; one erroring never aborts the rest. Returns how many
	// were picked up.
	ProcessRetryAttempts(ctx context.Context) (int, error)
}

type paymentFailureService struct {
	ServiceParams
	billing BillingService
	dunning DunningService
}

// NewPaymentFailureService creates a new payment failure service
func NewPaymentFailureService(params ServiceParams) PaymentFailureService {
	return &paymentFailureService{
		ServiceParams: params,
		billing:       NewBillingService(params),
		dunning:       NewDunningService(params),
	}
}

func (s *paymentFailureService) HandlePaymentFailure(ctx context.Context, transactionID, billingAccountID string, reason types.FailureReason, reasonDetails string) (*paymentfailure.PaymentFailure, error) {
	account, err := s.BillingAccountRepo.Get(ctx, billingAccountID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	failure := &paymentfailure.PaymentFailure{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_FAILURE),
		TransactionID:    transactionID,
		SubscriptionID:   account.SubscriptionID,
		BillingAccountID: account.ID,
		UserID:           account.UserID,
		Amount:           account.Amount,
		Currency:         account.Currency,
		Reason:           reason,
		ReasonDetails:    reasonDetails,
		AttemptNumber:    1,
		MaxAttempts:      s.RetryPolicy.MaxAttempts,
		NextRetryAt:      now.Add(s.RetryPolicy.NextRetryDelay(1)),
		GracePeriodEnds:  now.Add(s.RetryPolicy.GracePeriod),
		BaseModel:        types.NewBaseModel(now),
	}
	if err := failure.Validate(); err != nil {
		return nil, err
	}

	if err := s.PaymentFailureRepo.CreateUnlessUnresolved(ctx, failure); err != nil {
		if ierr.IsAlreadyExists(err) {
			// Conditional create lost: a chain is already open for this
			// account. Duplicate reports resolve to the existing failure.
			existing, getErr := s.PaymentFailureRepo.GetUnresolvedByAccount(ctx, account.ID)
			if getErr != nil {
				return nil, err
			}
			s.Logger.Infow("payment failure already open for account",
				"billing_account_id", account.ID,
				"payment_failure_id", existing.ID)
			return existing, nil
		}
		return nil, err
	}

	_, err = s.BillingAccountRepo.UpdateStatus(ctx, account.ID,
		types.BillingAccountStatusPastDue,
		types.BillingAccountStatusTrialing, types.BillingAccountStatusActive)
	if err != nil && !ierr.IsConflict(err) {
		return nil, err
	}
	if ierr.IsConflict(err) {
		s.Logger.Infow("account not moved to past_due, status already advanced",
			"billing_account_id", account.ID)
	}

	if err := s.dunning.StartCampaign(ctx, failure); err != nil {
		s.Logger.Errorw("failed to start dunning campaign",
			"payment_failure_id", failure.ID,
			"error", err)
	}

	s.Logger.Infow("opened payment failure",
		"payment_failure_id", failure.ID,
		"billing_account_id", account.ID,
		"transaction_id", transactionID,
		"reason", reason)
	return failure, nil
}

func (s *paymentFailureService) ProcessRetryAttempts(ctx context.Context) (int, error) {
	due, err := s.PaymentFailureRepo.ListDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	p := pool.New().WithMaxGoroutines(retryScanConcurrency)
	for _, f := range due {
		f := f
		p.Go(func() {
			if err := s.processRetry(ctx, f); err != nil {
				// Continue-on-error: a failure in one chain never aborts the
				// rest of the tick.
				s.Logger.Errorw("retry attempt processing failed",
					"payment_failure_id", f.ID,
					"error", err)
			}
		})
	}
	p.Wait()

	s.Logger.Infow("retry tick complete", "failures_due", len(due))
	return len(due), nil
}

// processRetry runs one retry attempt. The attempt is claimed with a
// versioned write before the charge, so overlapping ticks cannot double
// charge the same failure.
func (s *paymentFailureService) processRetry(ctx context.Context, f *paymentfailure.PaymentFailure) error {
	if f.Resolved || f.EscalatedAt != nil {
		return nil
	}
	if f.AttemptsExhausted() {
		return s.escalate(ctx, f)
	}

	account, err := s.BillingAccountRepo.Get(ctx, f.BillingAccountID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempt := f.AttemptNumber + 1
	f.AttemptNumber = attempt
	f.NextRetryAt = now.Add(s.RetryPolicy.NextRetryDelay(attempt))
	if err := s.PaymentFailureRepo.Update(ctx, f); err != nil {
		if ierr.IsConflict(err) {
			// Another tick claimed this attempt.
			return nil
		}
		return err
	}

	payment, err := s.Gateway.ProcessPayment(ctx, &processor.ProcessPaymentRequest{
		CustomerID:      account.CustomerID,
		PaymentMethodID: account.PaymentMethodID,
		Amount:          f.Amount,
		Currency:        f.Currency,
		Description:     "Payment retry",
		Metadata: map[string]string{
			"attempt_number":     strconv.Itoa(attempt),
			"payment_failure_id": f.ID,
		},
	})
	if err != nil {
		// Declines, timeouts and transient processor errors all take the
		// same branch: back off or escalate, never fail the tick.
		s.Logger.Warnw("retry attempt declined",
			"payment_failure_id", f.ID,
			"attempt_number", attempt,
			"error", err)

		if f.AttemptsExhausted() {
			return s.escalate(ctx, f)
		}
		return nil
	}

	return s.resolveOnSuccess(ctx, f, account.ID, payment)
}

// resolveOnSuccess records the completed charge and closes the failure chain.
func (s *paymentFailureService) resolveOnSuccess(ctx context.Context, f *paymentfailure.PaymentFailure, accountID string, payment *processor.Payment) error {
	now := time.Now().UTC()

	txn := &transaction.Transaction{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		UserID:             f.UserID,
		BillingAccountID:   accountID,
		Amount:             f.Amount,
		Currency:           f.Currency,
		Status:             types.TransactionStatusCompleted,
		Description:        "Payment retry " + strconv.Itoa(f.AttemptNumber),
		ProcessorPaymentID: payment.ID,
		PaymentFailureID:   f.ID,
		BaseModel:          types.NewBaseModel(now),
	}
	if err := s.TransactionRepo.Create(ctx, txn); err != nil {
		s.Logger.Errorw("failed to record retry transaction",
			"payment_failure_id", f.ID,
			"processor_payment_id", payment.ID,
			"error", err)
	}

	f.MarkResolved(types.ResolutionMethodRetrySuccess, now)
	if err := s.PaymentFailureRepo.Update(ctx, f); err != nil {
		return err
	}

	_, err := s.BillingAccountRepo.UpdateStatus(ctx, accountID,
		types.BillingAccountStatusActive, types.BillingAccountStatusPastDue)
	if err != nil && !ierr.IsConflict(err) {
		return err
	}

	s.Logger.Infow("payment retry succeeded",
		"payment_failure_id", f.ID,
		"attempt_number", f.AttemptNumber,
		"processor_payment_id", payment.ID)
	return nil
}

// escalate ends the failure chain in suspension. The failure is marked
// escalated but deliberately left unresolved; suspension is terminal for the
// chain and only a real resolution releases the account's claim.
func (s *paymentFailureService) escalate(ctx context.Context, f *paymentfailure.PaymentFailure) error {
	if err := s.billing.Suspend(ctx, f.BillingAccountID); err != nil {
		return err
	}

	f.MarkEscalated(time.Now())
	if err := s.PaymentFailureRepo.Update(ctx, f); err != nil {
		if ierr.IsConflict(err) {
			return nil
		}
		return err
	}

	s.Logger.Infow("payment failure escalated to suspension",
		"payment_failure_id", f.ID,
		"billing_account_id", f.BillingAccountID,
		"attempt_number", f.AttemptNumber)
	return nil
}
