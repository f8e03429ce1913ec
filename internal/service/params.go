package service

import (
	"github.com/reliabill/reliabill/internal/cache"
	"github.com/reliabill/reliabill/internal/config"
	"github.com/reliabill/reliabill/internal/domain/billingaccount"
	"github.com/reliabill/reliabill/internal/domain/dispute"
	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
	"github.com/reliabill/reliabill/internal/domain/transaction"
	"github.com/reliabill/reliabill/internal/domain/user"
	"github.com/reliabill/reliabill/internal/domain/webhookevent"
	"github.com/reliabill/reliabill/internal/integration/processor"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/notification"
	"github.com/reliabill/reliabill/internal/types"
)

// ServiceParams holds common dependencies for services. Everything is
// constructed once at startup and injected; services never reach for process
// globals.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	BillingAccountRepo billingaccount.Repository
	PaymentFailureRepo paymentfailure.Repository
	TransactionRepo    transaction.Repository
	DisputeRepo        dispute.Repository
	WebhookEventRepo   webhookevent.Repository
	UserRepo           user.Repository

	// Integrations
	Gateway  processor.Gateway
	Notifier notification.Notifier
	Cache    cache.Cache

	// Policy
	RetryPolicy types.RetryPolicy
	Campaigns   []types.DunningCampaign
}

// NewRetryPolicy maps configured overrides onto the built-in retry policy.
// Zero values keep the defaults.
func NewRetryPolicy(cfg config.RetryConfig) types.RetryPolicy {
	policy := types.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = cfg.BaseDelay
	}
	if cfg.BackoffMultiplier > 0 {
		policy.BackoffMultiplier = cfg.BackoffMultiplier
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}
	if cfg.GracePeriod > 0 {
		policy.GracePeriod = cfg.GracePeriod
	}
	return policy
}
