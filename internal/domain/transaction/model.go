package transaction

import (
	"github.com/shopspring/decimal"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// Transaction is a payment attempt record linked to a billing account.
type Transaction struct {
	ID                 string                  `json:"id"`
	UserID             string                  `json:"user_id"`
	BillingAccountID   string                  `json:"billing_account_id"`
	Amount             decimal.Decimal         `json:"amount"`
	Currency           string                  `json:"currency"`
	Status             types.TransactionStatus `json:"status"`
	Description        string                  `json:"description,omitempty"`
	ProcessorPaymentID string                  `json:"processor_payment_id,omitempty"`
	PaymentFailureID   string                  `json:"payment_failure_id,omitempty"`
	types.BaseModel
}

// Validate validates the transaction
func (t *Transaction) Validate() error {
	if t.BillingAccountID == "" {
		return ierr.NewError("billing_account_id is required").Mark(ierr.ErrValidation)
	}
	if t.Currency == "" {
		return ierr.NewError("currency is required").Mark(ierr.ErrValidation)
	}
	return nil
}
