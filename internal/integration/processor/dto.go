package processor

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reliabill/reliabill/internal/types"
)

// CreateCustomerRequest creates a processor-side customer.
type CreateCustomerRequest struct {
	Email    string            `json:"email"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Customer is a processor-side customer.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreatePaymentMethodRequest attaches a tokenized payment method to a customer.
type CreatePaymentMethodRequest struct {
	CustomerID string `json:"customer_id"`
	Token      string `json:"token"`
}

// PaymentMethod is a processor-side stored payment method.
type PaymentMethod struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Brand      string `json:"brand,omitempty"`
	Last4      string `json:"last4,omitempty"`
}

// ProcessPaymentRequest charges a stored payment method. Metadata carries the
// attempt number and originating failure id for traceability.
type ProcessPaymentRequest struct {
	CustomerID      string            `json:"customer_id"`
	PaymentMethodID string            `json:"payment_method_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Payment is the processor's view of a payment.
type Payment struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreateSubscriptionRequest creates a processor-side subscription.
type CreateSubscriptionRequest struct {
	CustomerID      string            `json:"customer_id"`
	PaymentMethodID string            `json:"payment_method_id"`
	PlanID          string            `json:"plan_id"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// UpdateSubscriptionRequest changes the plan on an existing subscription.
type UpdateSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id"`
	PlanID         string `json:"plan_id"`
}

// Subscription is a processor-side subscription.
type Subscription struct {
	ID                 string    `json:"id"`
	CustomerID         string    `json:"customer_id"`
	PlanID             string    `json:"plan_id"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
}

// ProcessRefundRequest refunds a payment, fully when Amount is zero.
type ProcessRefundRequest struct {
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Refund is a processor-side refund.
type Refund struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// ErrorResponse is the processor's error envelope.
type ErrorResponse struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is a verified webhook event as delivered by the processor. Data stays
// raw until ClassifyEvent normalizes it.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// EventData is the normalized payload ClassifyEvent extracts from an event.
// Only the fields relevant to the event's action are populated.
type EventData struct {
	PaymentID      string          `json:"payment_id,omitempty"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	InvoiceID      string          `json:"invoice_id,omitempty"`
	CustomerID     string          `json:"customer_id,omitempty"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	PlanID         string          `json:"plan_id,omitempty"`
	Amount         decimal.Decimal `json:"amount,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	FailureCode    string          `json:"failure_code,omitempty"`
	PeriodEnd      *time.Time      `json:"period_end,omitempty"`

	// Dispute fields
	DisputeType   string     `json:"dispute_type,omitempty"`
	RespondByDate *time.Time `json:"respond_by_date,omitempty"`
}

// ClassifiedEvent is the result of classifying a raw event: a normalized
// action plus its data. Handled is false for event types this engine does not
// understand; those are logged and ignored upstream.
type ClassifiedEvent struct {
	Handled bool
	Action  types.WebhookAction
	Data    EventData
}

// eventActions maps processor event types to normalized actions. Anything
// absent from this table is unhandled.
var eventActions = map[string]types.WebhookAction{
	"payment_intent.succeeded":      types.WebhookActionPaymentSucceeded,
	"payment_intent.payment_failed": types.WebhookActionPaymentFailed,
	"invoice.payment_succeeded":     types.WebhookActionInvoicePaymentSucceeded,
	"invoice.payment_failed":        types.WebhookActionInvoicePaymentFailed,
	"customer.subscription.created": types.WebhookActionSubscriptionCreated,
	"customer.subscription.updated": types.WebhookActionSubscriptionUpdated,
	"customer.subscription.deleted": types.WebhookActionSubscriptionDeleted,
	"charge.dispute.created":        types.WebhookActionDisputeCreated,
}

// ClassifyDeclineCode maps a processor decline code onto the locally
// classified failure reason shown to users.
func ClassifyDeclineCode(code string) types.FailureReason {
	switch code {
	case "insufficient_funds":
		return types.FailureReasonInsufficientFunds
	case "card_declined", "generic_decline", "do_not_honor":
		return types.FailureReasonCardDeclined
	case "expired_card":
		return types.FailureReasonExpiredCard
	case "fraudulent", "stolen_card", "lost_card":
		return types.FailureReasonFraudSuspected
	case "":
		return types.FailureReasonProcessingError
	default:
		return types.FailureReasonProcessingError
	}
}
