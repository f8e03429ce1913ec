package types

// ProcessorType identifies which payment processor delivered an event. Part
// of the (processor, event id) deduplication key.
type ProcessorType string

const (
	ProcessorTypeStripe ProcessorType = "stripe"
)

// WebhookAction is the normalized action a processor event maps to. The
// pipeline dispatches exactly one handler per action; unmapped actions are
// logged and ignored for forward compatibility.
type WebhookAction string

const (
	WebhookActionPaymentSucceeded        WebhookAction = "payment_succeeded"
	WebhookActionPaymentFailed           WebhookAction = "payment_failed"
	WebhookActionInvoicePaymentSucceeded WebhookAction = "invoice_payment_succeeded"
	WebhookActionInvoicePaymentFailed    WebhookAction = "invoice_payment_failed"
	WebhookActionSubscriptionCreated     WebhookAction = "subscription_created"
	WebhookActionSubscriptionUpdated     WebhookAction = "subscription_updated"
	WebhookActionSubscriptionDeleted     WebhookAction = "subscription_deleted"
	WebhookActionDisputeCreated          WebhookAction = "dispute_created"
)

// WebhookSignatureHeader is the HTTP header carrying the processor signature.
const WebhookSignatureHeader = "stripe-signature"
