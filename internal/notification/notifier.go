package notification

import "context"

// Notifier is the outbound notification channel. Dispatch is fire-and-forget
// from the engine's point of view: failures are logged by callers, never
// allowed to block a billing state transition.
type Notifier interface {
	SendEmail(ctx context.Context, req *EmailRequest) error
	SendSMS(ctx context.Context, req *SMSRequest) error
}

// EmailRequest is a templated email dispatch.
type EmailRequest struct {
	To       string
	Template string
	Data     map[string]interface{}
}

// SMSRequest is a templated SMS dispatch.
type SMSRequest struct {
	To       string
	Template string
	Data     map[string]interface{}
}
