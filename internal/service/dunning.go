package service

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/notification"
	"github.com/reliabill/reliabill/internal/types"
)

// dunningScanConcurrency bounds the per-failure fan-out of a scan tick.
const dunningScanConcurrency = 8

// DefaultCampaigns returns the built-in dunning campaigns. Campaign selection
// is first match wins, so order matters here: fraud before standard.
func DefaultCampaigns() []types.DunningCampaign {
	return []types.DunningCampaign{
		{
			ID:     "dun_fraud",
			Name:   "Fraud response",
			Active: true,
			Triggers: types.DunningCampaignTriggers{
				FailureReasons: []types.FailureReason{
					types.FailureReasonFraudSuspected,
				},
			},
			Steps: []types.DunningStep{
				{DelayDays: 0, Action: types.DunningActionEmail, Template: "fraud_alert"},
				{DelayDays: 0, Action: types.DunningActionSuspendService},
			},
		},
		{
			ID:     "dun_standard",
			Name:   "Standard dunning",
			Active: true,
			Triggers: types.DunningCampaignTriggers{
				FailureReasons: []types.FailureReason{
					types.FailureReasonInsufficientFunds,
					types.FailureReasonCardDeclined,
					types.FailureReasonExpiredCard,
				},
			},
			Steps: []types.DunningStep{
				{DelayDays: 0, Action: types.DunningActionEmail, Template: "payment_failed"},
				{DelayDays: 1, Action: types.DunningActionEmail, Template: "payment_retry_notice"},
				{DelayDays: 2, Action: types.DunningActionSMS, Template: "payment_retry_notice"},
				{DelayDays: 3, Action: types.DunningActionEmail, Template: "payment_retry_notice"},
				{DelayDays: 5, Action: types.DunningActionEmail, Template: "payment_final_notice"},
				{DelayDays: 6, Action: types.DunningActionSMS, Template: "payment_final_notice"},
				{DelayDays: 7, Action: types.DunningActionSuspendService},
			},
		},
	}
}

// DunningService maps payment failures onto campaigns and executes their
// steps. Delay-zero steps run synchronously when a campaign starts; later
// steps are durable due-time records anchored to the failure's creation time
// and picked up by the periodic scan, never in-memory timers.
type DunningService interface {
	// StartCampaign selects the first matching active campaign for the
	// failure, runs its immediate steps and persists the schedule bookkeeping.
	StartCampaign(ctx context.Context, failure *paymentfailure.PaymentFailure) error

	// ProcessDunningSteps is the periodic scan entry point: executes every
	// scheduled step whose due time has passed, re-checking that the failure
	// is still unresolved before acting. Returns how many steps ran.
	ProcessDunningSteps(ctx context.Context) (int, error)

	// ExecuteStep dispatches a single campaign step.
	ExecuteStep(ctx context.Context, failure *paymentfailure.PaymentFailure, step types.DunningStep) error
}

type dunningService struct {
	ServiceParams
	billing BillingService
}

// NewDunningService creates a new dunning service
func NewDunningService(params ServiceParams) DunningService {
	return &dunningService{
		ServiceParams: params,
		billing:       NewBillingService(params),
	}
}

// selectCampaign returns the first active campaign triggering on the reason.
// Overlapping campaigns are resolved purely by configured order.
func (s *dunningService) selectCampaign(reason types.FailureReason) *types.DunningCampaign {
	for i := range s.Campaigns {
		if s.Campaigns[i].Matches(reason) {
			return &s.Campaigns[i]
		}
	}
	return nil
}

func (s *dunningService) campaignByID(id string) *types.DunningCampaign {
	for i := range s.Campaigns {
		if s.Campaigns[i].ID == id {
			return &s.Campaigns[i]
		}
	}
	return nil
}

func (s *dunningService) StartCampaign(ctx context.Context, failure *paymentfailure.PaymentFailure) error {
	campaign := s.selectCampaign(failure.Reason)
	if campaign == nil {
		s.Logger.Infow("no dunning campaign matches failure reason",
			"payment_failure_id", failure.ID,
			"reason", failure.Reason)
		return nil
	}

	failure.DunningCampaignID = campaign.ID

	// Steps are ordered by DelayDays, so the immediate steps form a prefix.
	done := 0
	for _, step := range campaign.Steps {
		if step.DelayDays > 0 {
			break
		}
		if err := s.ExecuteStep(ctx, failure, step); err != nil {
			s.Logger.Errorw("immediate dunning step failed",
				"payment_failure_id", failure.ID,
				"campaign_id", campaign.ID,
				"action", step.Action,
				"error", err)
		}
		done++
	}
	failure.DunningStepsDone = done

	if err := s.PaymentFailureRepo.Update(ctx, failure); err != nil {
		return err
	}

	s.Logger.Infow("started dunning campaign",
		"payment_failure_id", failure.ID,
		"campaign_id", campaign.ID,
		"immediate_steps", done,
		"scheduled_steps", len(campaign.Steps)-done)
	return nil
}

func (s *dunningService) ProcessDunningSteps(ctx context.Context) (int, error) {
	failures, err := s.PaymentFailureRepo.ListUnresolved(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	executed := make(chan int, len(failures))

	p := pool.New().WithMaxGoroutines(dunningScanConcurrency)
	for _, f := range failures {
		f := f
		p.Go(func() {
			n, err := s.processFailureSteps(ctx, f, now)
			if err != nil {
				// One failure's steps must not abort the scan.
				s.Logger.Errorw("dunning step processing failed",
					"payment_failure_id", f.ID,
					"error", err)
			}
			executed <- n
		})
	}
	p.Wait()
	close(executed)

	total := 0
	for n := range executed {
		total += n
	}

	s.Logger.Infow("dunning scan complete",
		"failures_scanned", len(failures),
		"steps_executed", total)
	return total, nil
}

// processFailureSteps runs every overdue scheduled step for one failure. Each
// step is claimed with a versioned write before executing, so overlapping
// scan ticks cannot double-fire a step.
func (s *dunningService) processFailureSteps(ctx context.Context, f *paymentfailure.PaymentFailure, now time.Time) (int, error) {
	if f.DunningCampaignID == "" || f.EscalatedAt != nil {
		return 0, nil
	}
	campaign := s.campaignByID(f.DunningCampaignID)
	if campaign == nil {
		s.Logger.Warnw("failure references unknown dunning campaign",
			"payment_failure_id", f.ID,
			"campaign_id", f.DunningCampaignID)
		return 0, nil
	}

	executed := 0
	for f.DunningStepsDone < len(campaign.Steps) {
		step := campaign.Steps[f.DunningStepsDone]
		due := f.CreatedAt.Add(time.Duration(step.DelayDays) * 24 * time.Hour)
		if due.After(now) {
			break
		}

		// Re-check right before acting: a step scheduled for day 3 must be a
		// no-op when the failure resolved on day 1, and an escalated chain
		// already ended in suspension so its remaining notices would
		// contradict it.
		fresh, err := s.PaymentFailureRepo.Get(ctx, f.ID)
		if err != nil {
			return executed, err
		}
		if fresh.Resolved || fresh.EscalatedAt != nil {
			return executed, nil
		}
		f = fresh

		f.DunningStepsDone++
		if err := s.PaymentFailureRepo.Update(ctx, f); err != nil {
			if ierr.IsConflict(err) {
				// Another tick owns this failure.
				return executed, nil
			}
			return executed, err
		}

		if err := s.ExecuteStep(ctx, f, step); err != nil {
			s.Logger.Errorw("dunning step execution failed",
				"payment_failure_id", f.ID,
				"campaign_id", campaign.ID,
				"step", f.DunningStepsDone-1,
				"action", step.Action,
				"error", err)
		}
		executed++
	}
	return executed, nil
}

func (s *dunningService) ExecuteStep(ctx context.Context, failure *paymentfailure.PaymentFailure, step types.DunningStep) error {
	switch step.Action {
	case types.DunningActionEmail:
		s.sendEmail(ctx, failure, step.Template)
		return nil
	case types.DunningActionSMS:
		s.sendSMS(ctx, failure, step.Template)
		return nil
	case types.DunningActionSuspendService:
		return s.billing.Suspend(ctx, failure.BillingAccountID)
	case types.DunningActionCancelSubscription:
		if err := s.billing.Cancel(ctx, failure.BillingAccountID, true); err != nil {
			return err
		}
		return nil
	case types.DunningActionRetryPayment:
		// Retries are owned by the retry scheduler's own backoff arithmetic;
		// a campaign step cannot shortcut it.
		s.Logger.Infow("skipping retry_payment dunning step, scheduler owns retries",
			"payment_failure_id", failure.ID)
		return nil
	default:
		s.Logger.Warnw("unknown dunning action, skipping",
			"payment_failure_id", failure.ID,
			"action", step.Action)
		return nil
	}
}

func (s *dunningService) sendEmail(ctx context.Context, failure *paymentfailure.PaymentFailure, template string) {
	u, err := s.UserRepo.Get(ctx, failure.UserID)
	if err != nil || u.Email == "" {
		s.Logger.Warnw("cannot send dunning email",
			"payment_failure_id", failure.ID,
			"user_id", failure.UserID,
			"error", err)
		return
	}

	if err := s.Notifier.SendEmail(ctx, &notification.EmailRequest{
		To:       u.Email,
		Template: template,
		Data:     s.templateData(u.Name, failure),
	}); err != nil {
		s.Logger.Errorw("dunning email dispatch failed",
			"payment_failure_id", failure.ID,
			"template", template,
			"error", err)
	}
}

func (s *dunningService) sendSMS(ctx context.Context, failure *paymentfailure.PaymentFailure, template string) {
	u, err := s.UserRepo.Get(ctx, failure.UserID)
	if err != nil || u.Phone == "" {
		s.Logger.Warnw("cannot send dunning sms",
			"payment_failure_id", failure.ID,
			"user_id", failure.UserID,
			"error", err)
		return
	}

	if err := s.Notifier.SendSMS(ctx, &notification.SMSRequest{
		To:       u.Phone,
		Template: template,
		Data:     s.templateData(u.Name, failure),
	}); err != nil {
		s.Logger.Errorw("dunning sms dispatch failed",
			"payment_failure_id", failure.ID,
			"template", template,
			"error", err)
	}
}

func (s *dunningService) templateData(name string, failure *paymentfailure.PaymentFailure) map[string]interface{} {
	return map[string]interface{}{
		"name":              name,
		"amount":            failure.Amount.String(),
		"currency":          failure.Currency,
		"next_retry_at":     failure.NextRetryAt.Format(time.RFC1123),
		"grace_period_ends": failure.GracePeriodEnds.Format(time.RFC1123),
	}
}
