package dto

import (
	"time"

	"github.com/reliabill/reliabill/internal/domain/billingaccount"
	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
)

// BillingAccountResponse wraps a billing account.
type BillingAccountResponse struct {
	*billingaccount.BillingAccount
}

// PaymentFailureResponse wraps a payment failure record.
type PaymentFailureResponse struct {
	*paymentfailure.PaymentFailure
}

// ProcessRunResponse reports a completed scheduler run: how many records were
// picked up and when the run finished.
type ProcessRunResponse struct {
	Processed   int       `json:"processed"`
	CompletedAt time.Time `json:"completed_at"`
}
