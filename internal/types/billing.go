package types

// BillingAccountStatus is the lifecycle state of a billing account. Status
// only moves along the transition table below; conditional writes in the
// repository layer guard against regressions from stale events.
type BillingAccountStatus string

const (
	BillingAccountStatusTrialing  BillingAccountStatus = "trialing"
	BillingAccountStatusActive    BillingAccountStatus = "active"
	BillingAccountStatusPastDue   BillingAccountStatus = "past_due"
	BillingAccountStatusSuspended BillingAccountStatus = "suspended"
	BillingAccountStatusCanceled  BillingAccountStatus = "canceled"
)

// billingAccountTransitions maps each status to the statuses it may move to.
// canceled is terminal.
var billingAccountTransitions = map[BillingAccountStatus][]BillingAccountStatus{
	BillingAccountStatusTrialing:  {BillingAccountStatusActive, BillingAccountStatusPastDue, BillingAccountStatusCanceled},
	BillingAccountStatusActive:    {BillingAccountStatusPastDue, BillingAccountStatusCanceled},
	BillingAccountStatusPastDue:   {BillingAccountStatusActive, BillingAccountStatusSuspended, BillingAccountStatusCanceled},
	BillingAccountStatusSuspended: {BillingAccountStatusActive, BillingAccountStatusCanceled},
	BillingAccountStatusCanceled:  {},
}

// CanTransitionTo reports whether the state machine allows moving from s to
// target. Self transitions are allowed so idempotent re-applies are no-ops.
func (s BillingAccountStatus) CanTransitionTo(target BillingAccountStatus) bool {
	if s == target {
		return true
	}
	for _, allowed := range billingAccountTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// SourcesFor returns every status from which target is reachable, used to
// build conditional-write guards ("set status=X only if current in ...").
func SourcesFor(target BillingAccountStatus) []BillingAccountStatus {
	var sources []BillingAccountStatus
	for from, targets := range billingAccountTransitions {
		for _, t := range targets {
			if t == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

func (s BillingAccountStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no transition leaves this status.
func (s BillingAccountStatus) IsTerminal() bool {
	return s == BillingAccountStatusCanceled
}
