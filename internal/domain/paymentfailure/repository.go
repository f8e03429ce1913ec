package paymentfailure

import (
	"context"
	"time"
)

// Repository defines the interface for payment failure persistence operations.
type Repository interface {
	// CreateUnlessUnresolved creates the failure only if no unresolved failure
	// exists for the same billing account. This is a conditional create, not a
	// read-then-write check, so two concurrent failure reports for one account
	// cannot both open a chain. Returns ErrAlreadyExists on violation.
	CreateUnlessUnresolved(ctx context.Context, failure *PaymentFailure) error

	// Get retrieves a payment failure by id
	Get(ctx context.Context, id string) (*PaymentFailure, error)

	// GetByTransactionID retrieves the failure opened for a transaction
	GetByTransactionID(ctx context.Context, transactionID string) (*PaymentFailure, error)

	// GetUnresolvedByAccount retrieves the single unresolved failure for a
	// billing account, if any.
	GetUnresolvedByAccount(ctx context.Context, billingAccountID string) (*PaymentFailure, error)

	// ListDue lists unresolved failures whose next_retry_at is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*PaymentFailure, error)

	// ListUnresolved lists all unresolved failures; the dunning scan uses this
	// to find steps whose anchored due time has passed.
	ListUnresolved(ctx context.Context) ([]*PaymentFailure, error)

	// Update persists the failure with an optimistic version check; returns
	// ErrConflict when the stored version moved.
	Update(ctx context.Context, failure *PaymentFailure) error
}
