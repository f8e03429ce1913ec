package types

import "time"

// FailureReason is the locally classified cause of a failed payment attempt.
// Users are only ever shown these, never raw processor error codes.
type FailureReason string

const (
	FailureReasonInsufficientFunds FailureReason = "insufficient_funds"
	FailureReasonCardDeclined      FailureReason = "card_declined"
	FailureReasonExpiredCard       FailureReason = "expired_card"
	FailureReasonFraudSuspected    FailureReason = "fraud_suspected"
	FailureReasonProcessingError   FailureReason = "processing_error"
	FailureReasonNetworkError      FailureReason = "network_error"
)

// ResolutionMethod records how a payment failure chain ended.
type ResolutionMethod string

const (
	ResolutionMethodRetrySuccess  ResolutionMethod = "retry_success"
	ResolutionMethodManualPayment ResolutionMethod = "manual_payment"
	ResolutionMethodPlanChange    ResolutionMethod = "plan_change"
	ResolutionMethodCancellation  ResolutionMethod = "cancellation"
)

// TransactionStatus is the state of a payment transaction record.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// RetryPolicy owns the attempt/backoff arithmetic for payment retries.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier int
	MaxDelay          time.Duration
	GracePeriod       time.Duration
}

// DefaultRetryPolicy is 3 attempts with delays of 24h, 48h, then capped at 7d,
// and a 7 day grace period before suspension.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         24 * time.Hour,
		BackoffMultiplier: 2,
		MaxDelay:          7 * 24 * time.Hour,
		GracePeriod:       7 * 24 * time.Hour,
	}
}

// NextRetryDelay computes the backoff delay before the given attempt number
// (1-based): baseDelay * multiplier^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) NextRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(p.BackoffMultiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
