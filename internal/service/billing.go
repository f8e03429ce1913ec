package service

import (
	"context"
	"time"

	"github.com/reliabill/reliabill/internal/domain/billingaccount"
	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/notification"
	"github.com/reliabill/reliabill/internal/types"
)

// BillingService owns the billing account state machine. Every transition is
// a conditional write in the repository; a lost race means a newer event
// already advanced the account and the operation degrades to a no-op.
type BillingService interface {
	GetAccount(ctx context.Context, id string) (*billingaccount.BillingAccount, error)

	// Suspend moves a past_due account to suspended, strips the user's premium
	// entitlements synchronously and sends a suspension notice. Idempotent.
	Suspend(ctx context.Context, accountID string) error

	// Cancel moves a non-canceled account to canceled, strips entitlements and
	// resolves any open payment failure with resolution_method=cancellation.
	// When cancelRemote is set the processor-side subscription is canceled
	// first; webhook-driven cancellations skip that since the subscription is
	// already gone upstream.
	Cancel(ctx context.Context, accountID string, cancelRemote bool) error

	// Reactivate moves a suspended account back to active. Entitlements are
	// not re-granted beyond what the existing next billing date implies.
	Reactivate(ctx context.Context, accountID string) (*billingaccount.BillingAccount, error)

	// ManualPayment resolves the account's open payment failure out of band
	// and moves the account back to active.
	ManualPayment(ctx context.Context, accountID string) (*paymentfailure.PaymentFailure, error)
}

type billingService struct {
	ServiceParams
}

// NewBillingService creates a new billing service
func NewBillingService(params ServiceParams) BillingService {
	return &billingService{ServiceParams: params}
}

func (s *billingService) GetAccount(ctx context.Context, id string) (*billingaccount.BillingAccount, error) {
	return s.BillingAccountRepo.Get(ctx, id)
}

func (s *billingService) Suspend(ctx context.Context, accountID string) error {
	account, err := s.BillingAccountRepo.UpdateStatus(ctx, accountID,
		types.BillingAccountStatusSuspended, types.BillingAccountStatusPastDue)
	if err != nil {
		if !ierr.IsConflict(err) {
			return err
		}
		// Lost the conditional write. Either the account is already suspended,
		// in which case the transition that won stripped entitlements and sent
		// the notice, or a newer event advanced the account elsewhere. Running
		// the side effects again would double-send the suspension notice.
		account, err = s.BillingAccountRepo.Get(ctx, accountID)
		if err != nil {
			return err
		}
		s.Logger.Infow("skipping suspension, account already advanced",
			"billing_account_id", accountID,
			"status", account.Status)
		return nil
	}

	s.stripPremium(ctx, account.UserID)
	s.notifyUser(ctx, account.UserID, "account_suspended", nil)

	s.Logger.Infow("suspended billing account",
		"billing_account_id", accountID,
		"user_id", account.UserID)
	return nil
}

func (s *billingService) Cancel(ctx context.Context, accountID string, cancelRemote bool) error {
	account, err := s.BillingAccountRepo.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status == types.BillingAccountStatusCanceled {
		return nil
	}

	if cancelRemote && account.SubscriptionID != "" {
		if err := s.Gateway.CancelSubscription(ctx, account.SubscriptionID); err != nil {
			// A subscription the processor no longer knows is already canceled
			// upstream; anything else blocks the cancellation.
			if !ierr.IsNotFound(err) {
				return err
			}
			s.Logger.Warnw("processor subscription already gone",
				"subscription_id", account.SubscriptionID)
		}
	}

	account, err = s.BillingAccountRepo.UpdateStatus(ctx, accountID,
		types.BillingAccountStatusCanceled,
		types.SourcesFor(types.BillingAccountStatusCanceled)...)
	if err != nil {
		if ierr.IsConflict(err) {
			// Only the terminal state can win this race.
			return nil
		}
		return err
	}

	s.stripPremium(ctx, account.UserID)
	s.resolveOpenFailure(ctx, accountID, types.ResolutionMethodCancellation)
	s.notifyUser(ctx, account.UserID, "account_canceled", nil)

	s.Logger.Infow("canceled billing account",
		"billing_account_id", accountID,
		"user_id", account.UserID)
	return nil
}

func (s *billingService) Reactivate(ctx context.Context, accountID string) (*billingaccount.BillingAccount, error) {
	account, err := s.BillingAccountRepo.UpdateStatus(ctx, accountID,
		types.BillingAccountStatusActive, types.BillingAccountStatusSuspended)
	if err != nil {
		if ierr.IsConflict(err) {
			return nil, ierr.NewError("billing account cannot be reactivated").
				WithHint("Only suspended accounts can be reactivated").
				WithReportableDetails(map[string]interface{}{"billing_account_id": accountID}).
				Mark(ierr.ErrConflict)
		}
		return nil, err
	}

	s.Logger.Infow("reactivated billing account", "billing_account_id", accountID)
	return account, nil
}

func (s *billingService) ManualPayment(ctx context.Context, accountID string) (*paymentfailure.PaymentFailure, error) {
	failure, err := s.PaymentFailureRepo.GetUnresolvedByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	failure.MarkResolved(types.ResolutionMethodManualPayment, time.Now())
	if err := s.PaymentFailureRepo.Update(ctx, failure); err != nil {
		return nil, err
	}

	_, err = s.BillingAccountRepo.UpdateStatus(ctx, accountID,
		types.BillingAccountStatusActive,
		types.BillingAccountStatusPastDue, types.BillingAccountStatusSuspended)
	if err != nil && !ierr.IsConflict(err) {
		return nil, err
	}

	s.Logger.Infow("resolved payment failure via manual payment",
		"payment_failure_id", failure.ID,
		"billing_account_id", accountID)
	return failure, nil
}

// stripPremium clears the user's premium entitlement flags. Suspension and
// cancellation must strip synchronously with the state write; a missing user
// record is logged, not fatal.
func (s *billingService) stripPremium(ctx context.Context, userID string) {
	u, err := s.UserRepo.Get(ctx, userID)
	if err != nil {
		s.Logger.Errorw("failed to load user for entitlement strip",
			"user_id", userID, "error", err)
		return
	}
	if !u.PremiumActive && u.PremiumExpiresAt == nil {
		return
	}

	u.StripPremium(time.Now())
	if err := s.UserRepo.Update(ctx, u); err != nil {
		s.Logger.Errorw("failed to strip premium entitlements",
			"user_id", userID, "error", err)
	}
}

// resolveOpenFailure closes the account's open failure chain, if any.
func (s *billingService) resolveOpenFailure(ctx context.Context, accountID string, method types.ResolutionMethod) {
	failure, err := s.PaymentFailureRepo.GetUnresolvedByAccount(ctx, accountID)
	if err != nil {
		if !ierr.IsNotFound(err) {
			s.Logger.Errorw("failed to load open payment failure",
				"billing_account_id", accountID, "error", err)
		}
		return
	}

	failure.MarkResolved(method, time.Now())
	if err := s.PaymentFailureRepo.Update(ctx, failure); err != nil {
		s.Logger.Errorw("failed to resolve payment failure",
			"payment_failure_id", failure.ID, "error", err)
	}
}

func (s *billingService) notifyUser(ctx context.Context, userID, template string, data map[string]interface{}) {
	notifyUser(ctx, s.ServiceParams, userID, template, data)
}

// notifyUser sends a templated notification to the account owner. Dispatch is
// best-effort and never blocks a billing transition.
func notifyUser(ctx context.Context, params ServiceParams, userID, template string, data map[string]interface{}) {
	u, err := params.UserRepo.Get(ctx, userID)
	if err != nil {
		params.Logger.Warnw("failed to load user for notification",
			"user_id", userID, "template", template, "error", err)
		return
	}
	if u.Email == "" {
		return
	}

	if data == nil {
		data = map[string]interface{}{}
	}
	if _, ok := data["name"]; !ok {
		data["name"] = u.Name
	}

	if err := params.Notifier.SendEmail(ctx, &notification.EmailRequest{
		To:       u.Email,
		Template: template,
		Data:     data,
	}); err != nil {
		params.Logger.Errorw("failed to send notification",
			"user_id", userID, "template", template, "error", err)
	}
}
