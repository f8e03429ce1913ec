package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/reliabill/reliabill/internal/domain/billingaccount"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// InMemoryBillingAccountStore implements billingaccount.Repository with the
// same conditional-write semantics as the real store.
type InMemoryBillingAccountStore struct {
	*InMemoryStore[*billingaccount.BillingAccount]

	// cond serializes the conditional read-check-write operations.
	cond sync.Mutex
}

// NewInMemoryBillingAccountStore creates a new in-memory billing account store
func NewInMemoryBillingAccountStore() *InMemoryBillingAccountStore {
	return &InMemoryBillingAccountStore{
		InMemoryStore: NewInMemoryStore[*billingaccount.BillingAccount](),
	}
}

func copyBillingAccount(a *billingaccount.BillingAccount) *billingaccount.BillingAccount {
	if a == nil {
		return nil
	}
	copied := *a
	if a.CanceledAt != nil {
		t := *a.CanceledAt
		copied.CanceledAt = &t
	}
	return &copied
}

func (s *InMemoryBillingAccountStore) Create(ctx context.Context, account *billingaccount.BillingAccount) error {
	return s.InMemoryStore.Create(ctx, account.ID, copyBillingAccount(account))
}

func (s *InMemoryBillingAccountStore) Get(ctx context.Context, id string) (*billingaccount.BillingAccount, error) {
	account, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("billing account not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return copyBillingAccount(account), nil
}

func (s *InMemoryBillingAccountStore) GetByUserID(ctx context.Context, userID string) (*billingaccount.BillingAccount, error) {
	return s.findOne(ctx, "user_id", userID, func(a *billingaccount.BillingAccount) bool {
		return a.UserID == userID
	})
}

func (s *InMemoryBillingAccountStore) GetByCustomerID(ctx context.Context, customerID string) (*billingaccount.BillingAccount, error) {
	return s.findOne(ctx, "customer_id", customerID, func(a *billingaccount.BillingAccount) bool {
		return a.CustomerID == customerID
	})
}

func (s *InMemoryBillingAccountStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*billingaccount.BillingAccount, error) {
	return s.findOne(ctx, "subscription_id", subscriptionID, func(a *billingaccount.BillingAccount) bool {
		return a.SubscriptionID == subscriptionID
	})
}

func (s *InMemoryBillingAccountStore) findOne(ctx context.Context, field, value string, filter func(*billingaccount.BillingAccount) bool) (*billingaccount.BillingAccount, error) {
	account, found := s.InMemoryStore.Find(ctx, filter)
	if !found {
		return nil, ierr.NewError("billing account not found").
			WithReportableDetails(map[string]interface{}{field: value}).
			Mark(ierr.ErrNotFound)
	}
	return copyBillingAccount(account), nil
}

func (s *InMemoryBillingAccountStore) Update(ctx context.Context, account *billingaccount.BillingAccount) error {
	s.cond.Lock()
	defer s.cond.Unlock()

	stored, err := s.InMemoryStore.Get(ctx, account.ID)
	if err != nil {
		return ierr.NewError("billing account not found").
			WithReportableDetails(map[string]interface{}{"id": account.ID}).
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != account.Version {
		return ierr.NewError("billing account was modified concurrently").
			WithReportableDetails(map[string]interface{}{"id": account.ID}).
			Mark(ierr.ErrConflict)
	}

	account.Version++
	account.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, account.ID, copyBillingAccount(account))
}

func (s *InMemoryBillingAccountStore) UpdateStatus(ctx context.Context, id string, to types.BillingAccountStatus, allowedFrom ...types.BillingAccountStatus) (*billingaccount.BillingAccount, error) {
	s.cond.Lock()
	defer s.cond.Unlock()

	stored, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("billing account not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}

	// The target itself is never an allowed source, matching the store guard:
	// a repeat of the same transition conflicts instead of silently winning.
	allowed := false
	for _, from := range allowedFrom {
		if stored.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return nil, ierr.NewError("billing account status transition rejected").
			WithReportableDetails(map[string]interface{}{
				"id":     id,
				"status": stored.Status,
				"target": to,
			}).
			Mark(ierr.ErrConflict)
	}

	updated := copyBillingAccount(stored)
	updated.Status = to
	updated.Version++
	updated.UpdatedAt = time.Now().UTC()
	if to == types.BillingAccountStatusCanceled && updated.CanceledAt == nil {
		now := time.Now().UTC()
		updated.CanceledAt = &now
	}

	if err := s.InMemoryStore.Update(ctx, id, updated); err != nil {
		return nil, err
	}
	return copyBillingAccount(updated), nil
}
