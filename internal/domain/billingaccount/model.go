package billingaccount

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// BillingAccount is the shared mutable entity of the billing engine: one per
// subscribing user, mutated only through the state machine transitions.
type BillingAccount struct {
	ID              string                     `json:"id"`
	UserID          string                     `json:"user_id"`
	CustomerID      string                     `json:"customer_id"`
	PaymentMethodID string                     `json:"payment_method_id"`
	SubscriptionID  string                     `json:"subscription_id,omitempty"`
	PlanID          string                     `json:"plan_id"`
	Amount          decimal.Decimal            `json:"amount"`
	Currency        string                     `json:"currency"`
	Status          types.BillingAccountStatus `json:"status"`
	NextBillingDate time.Time                  `json:"next_billing_date"`
	CanceledAt      *time.Time                 `json:"canceled_at,omitempty"`
	Version         int64                      `json:"version"`
	types.BaseModel
}

// Validate validates the billing account
func (a *BillingAccount) Validate() error {
	if a.UserID == "" {
		return ierr.NewError("user_id is required").Mark(ierr.ErrValidation)
	}
	if a.CustomerID == "" {
		return ierr.NewError("customer_id is required").Mark(ierr.ErrValidation)
	}
	if a.Currency == "" {
		return ierr.NewError("currency is required").Mark(ierr.ErrValidation)
	}
	if a.Amount.IsNegative() {
		return ierr.NewError("amount cannot be negative").Mark(ierr.ErrValidation)
	}
	return nil
}

// CanTransitionTo reports whether the account may move to the target status.
func (a *BillingAccount) CanTransitionTo(target types.BillingAccountStatus) bool {
	return a.Status.CanTransitionTo(target)
}
