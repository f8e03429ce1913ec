package paymentfailure

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// PaymentFailure is one failed payment attempt chain. At most one unresolved
// failure exists per billing account; a new one opens only after the prior is
// resolved or exhausted.
type PaymentFailure struct {
	ID               string                 `json:"id"`
	TransactionID    string                 `json:"transaction_id"`
	SubscriptionID   string                 `json:"subscription_id,omitempty"`
	BillingAccountID string                 `json:"billing_account_id"`
	UserID           string                 `json:"user_id"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	Reason           types.FailureReason    `json:"reason"`
	ReasonDetails    string                 `json:"reason_details,omitempty"`
	AttemptNumber    int                    `json:"attempt_number"`
	MaxAttempts      int                    `json:"max_attempts"`
	NextRetryAt      time.Time              `json:"next_retry_at"`
	GracePeriodEnds  time.Time              `json:"grace_period_ends"`
	Resolved         bool                   `json:"resolved"`
	ResolvedAt       *time.Time             `json:"resolved_at,omitempty"`
	ResolutionMethod types.ResolutionMethod `json:"resolution_method,omitempty"`

	// EscalatedAt is set when attempts are exhausted and the account has been
	// suspended. The failure stays unresolved, but no further retries run.
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`

	// Dunning bookkeeping. Steps are executed off durable due times anchored
	// to CreatedAt, never in-memory timers, so restarts cannot lose them.
	DunningCampaignID string `json:"dunning_campaign_id,omitempty"`
	DunningStepsDone  int    `json:"dunning_steps_done"`

	Version int64 `json:"version"`
	types.BaseModel
}

// Validate validates the payment failure
func (f *PaymentFailure) Validate() error {
	if f.TransactionID == "" {
		return ierr.NewError("transaction_id is required").Mark(ierr.ErrValidation)
	}
	if f.BillingAccountID == "" {
		return ierr.NewError("billing_account_id is required").Mark(ierr.ErrValidation)
	}
	if f.AttemptNumber < 1 || f.AttemptNumber > f.MaxAttempts {
		return ierr.NewError("attempt_number must be between 1 and max_attempts").
			WithReportableDetails(map[string]interface{}{
				"attempt_number": f.AttemptNumber,
				"max_attempts":   f.MaxAttempts,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// MarkResolved closes the failure chain. Resolved failures schedule no
// further retries or dunning steps.
func (f *PaymentFailure) MarkResolved(method types.ResolutionMethod, at time.Time) {
	at = at.UTC()
	f.Resolved = true
	f.ResolvedAt = &at
	f.ResolutionMethod = method
	f.UpdatedAt = at
}

// AttemptsExhausted reports whether another retry would exceed MaxAttempts.
func (f *PaymentFailure) AttemptsExhausted() bool {
	return f.AttemptNumber >= f.MaxAttempts
}

// MarkEscalated records that the failure chain ended in suspension. The
// failure is intentionally not resolved; only resolution releases the
// per-account claim.
func (f *PaymentFailure) MarkEscalated(at time.Time) {
	at = at.UTC()
	f.EscalatedAt = &at
	f.UpdatedAt = at
}
