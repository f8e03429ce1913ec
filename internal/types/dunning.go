package types

// DunningAction is the closed set of actions a dunning step can take.
// Unknown actions are logged and skipped, never fatal.
type DunningAction string

const (
	DunningActionEmail              DunningAction = "email"
	DunningActionSMS                DunningAction = "sms"
	DunningActionRetryPayment       DunningAction = "retry_payment"
	DunningActionSuspendService     DunningAction = "suspend_service"
	DunningActionCancelSubscription DunningAction = "cancel_subscription"
)

// DunningStep is one step of a campaign. DelayDays is measured from the
// failure's creation time, not wall-clock now, so replays land on the same
// schedule.
type DunningStep struct {
	DelayDays int           `json:"delay_days"`
	Action    DunningAction `json:"action"`
	Template  string        `json:"template,omitempty"`
}

// DunningCampaignTriggers select which failures a campaign applies to.
type DunningCampaignTriggers struct {
	FailureReasons []FailureReason `json:"failure_reasons"`
	PlanTypes      []string        `json:"plan_types,omitempty"`
}

// DunningCampaign is static configuration, constructed at startup and
// injected; campaigns are never persisted per-instance.
type DunningCampaign struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Active   bool                    `json:"active"`
	Triggers DunningCampaignTriggers `json:"triggers"`
	// Steps must be ordered by increasing DelayDays.
	Steps []DunningStep `json:"steps"`
}

// Matches reports whether the campaign triggers on the given failure reason.
func (c *DunningCampaign) Matches(reason FailureReason) bool {
	if !c.Active {
		return false
	}
	for _, r := range c.Triggers.FailureReasons {
		if r == reason {
			return true
		}
	}
	return false
}
