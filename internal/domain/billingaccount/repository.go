package billingaccount

import (
	"context"

	"github.com/reliabill/reliabill/internal/types"
)

// Repository defines the interface for billing account persistence operations.
// Secondary lookups by user, customer and subscription id are required by the
// webhook handlers to resolve the correct account from processor payloads.
type Repository interface {
	// Create creates a new billing account
	Create(ctx context.Context, account *BillingAccount) error

	// Get retrieves a billing account by id
	Get(ctx context.Context, id string) (*BillingAccount, error)

	// GetByUserID retrieves the billing account owned by the given user
	GetByUserID(ctx context.Context, userID string) (*BillingAccount, error)

	// GetByCustomerID retrieves the billing account for a processor customer id
	GetByCustomerID(ctx context.Context, customerID string) (*BillingAccount, error)

	// GetBySubscriptionID retrieves the billing account for a processor
	// subscription id
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*BillingAccount, error)

	// Update persists the account with an optimistic version check; returns
	// ErrConflict when the stored version moved.
	Update(ctx context.Context, account *BillingAccount) error

	// UpdateStatus conditionally transitions the account's status: the write
	// succeeds only if the current status is one of allowedFrom, so a stale
	// event can never regress state already advanced by a newer one. Returns
	// the updated account, or ErrConflict when the guard fails.
	UpdateStatus(ctx context.Context, id string, to types.BillingAccountStatus, allowedFrom ...types.BillingAccountStatus) (*BillingAccount, error)
}
