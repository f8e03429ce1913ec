package notification

import (
	"bytes"
	"context"
	"html/template"

	"github.com/resend/resend-go/v2"

	"github.com/reliabill/reliabill/internal/config"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
)

// emailSubjects maps template names to subject lines.
var emailSubjects = map[string]string{
	"payment_failed":       "We couldn't process your payment",
	"payment_retry_notice": "We'll retry your payment soon",
	"payment_final_notice": "Final notice: your payment is overdue",
	"account_suspended":    "Your subscription has been suspended",
	"account_canceled":     "Your subscription has been canceled",
	"fraud_alert":          "Important: unusual activity on your account",
	"dispute_opened":       "A dispute was opened on your payment",
}

// emailTemplates stores email templates as string constants
var emailTemplates = map[string]string{
	"payment_failed": `<p>Hi {{.name}},</p>
<p>We were unable to process your payment of {{.amount}} {{.currency}}.
We'll automatically retry it on {{.next_retry_at}}. To avoid any interruption,
please check that your payment method is up to date.</p>`,
	"payment_retry_notice": `<p>Hi {{.name}},</p>
<p>This is a reminder that a payment of {{.amount}} {{.currency}} on your
account is still outstanding. We'll retry it on {{.next_retry_at}}.</p>`,
	"payment_final_notice": `<p>Hi {{.name}},</p>
<p>Your payment of {{.amount}} {{.currency}} is still outstanding. If it
cannot be collected by {{.grace_period_ends}}, your subscription will be
suspended.</p>`,
	"account_suspended": `<p>Hi {{.name}},</p>
<p>Your subscription has been suspended because we could not collect payment.
You can reactivate at any time by updating your payment method.</p>`,
	"account_canceled": `<p>Hi {{.name}},</p>
<p>Your subscription has been canceled. We're sorry to see you go.</p>`,
	"fraud_alert": `<p>Hi {{.name}},</p>
<p>We detected unusual activity on a recent payment and have paused your
subscription while we review it. Please contact support.</p>`,
	"dispute_opened": `<p>Hi {{.name}},</p>
<p>A dispute was opened for a payment of {{.amount}} {{.currency}}. Our team
is reviewing it; no action is needed from you right now.</p>`,
}

// Service sends customer notifications through Resend for email. SMS dispatch
// is logged only until an SMS provider is wired up.
type Service struct {
	cfg    config.NotificationConfig
	client *resend.Client
	logger *logger.Logger
}

// NewService creates a new notification service
func NewService(cfg config.NotificationConfig, log *logger.Logger) *Service {
	var client *resend.Client
	if cfg.Enabled && cfg.ResendAPIKey != "" {
		client = resend.NewClient(cfg.ResendAPIKey)
	}
	return &Service{
		cfg:    cfg,
		client: client,
		logger: log,
	}
}

// SendEmail renders the named template and dispatches it through Resend.
func (s *Service) SendEmail(ctx context.Context, req *EmailRequest) error {
	if s.client == nil {
		s.logger.Warnw("email client is disabled, skipping email send",
			"to", req.To,
			"template", req.Template)
		return nil
	}

	subject, ok := emailSubjects[req.Template]
	if !ok {
		return ierr.NewError("unknown email template").
			WithReportableDetails(map[string]interface{}{"template": req.Template}).
			Mark(ierr.ErrValidation)
	}

	body, err := s.renderTemplate(req.Template, req.Data)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.cfg.FromAddress,
		To:      []string{req.To},
		Subject: subject,
		Html:    body,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to send email").
			WithReportableDetails(map[string]interface{}{
				"to":       req.To,
				"template": req.Template,
			}).
			Mark(ierr.ErrInternal)
	}

	s.logger.Infow("sent email notification",
		"email_id", sent.Id,
		"to", req.To,
		"template", req.Template)
	return nil
}

// SendSMS logs the dispatch. No SMS provider is configured yet; the engine
// treats SMS as best-effort so this keeps dunning sms steps non-fatal.
func (s *Service) SendSMS(ctx context.Context, req *SMSRequest) error {
	s.logger.Infow("sms dispatch requested",
		"to", req.To,
		"template", req.Template)
	return nil
}

func (s *Service) renderTemplate(name string, data map[string]interface{}) (string, error) {
	raw, ok := emailTemplates[name]
	if !ok {
		return "", ierr.NewError("unknown email template").
			WithReportableDetails(map[string]interface{}{"template": name}).
			Mark(ierr.ErrValidation)
	}

	tmpl, err := template.New(name).Parse(raw)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to parse email template").
			Mark(ierr.ErrInternal)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to render email template").
			Mark(ierr.ErrInternal)
	}
	return buf.String(), nil
}
