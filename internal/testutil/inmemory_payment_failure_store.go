package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
	ierr "github.com/reliabill/reliabill/internal/errors"
)

// InMemoryPaymentFailureStore implements paymentfailure.Repository. The
// per-account claim map mirrors the conditional-create semantics of the real
// store: one unresolved failure per billing account.
type InMemoryPaymentFailureStore struct {
	*InMemoryStore[*paymentfailure.PaymentFailure]

	cond sync.Mutex
	// claims maps billing account id to the id of its unresolved failure.
	claims map[string]string
}

// NewInMemoryPaymentFailureStore creates a new in-memory payment failure store
func NewInMemoryPaymentFailureStore() *InMemoryPaymentFailureStore {
	return &InMemoryPaymentFailureStore{
		InMemoryStore: NewInMemoryStore[*paymentfailure.PaymentFailure](),
		claims:        map[string]string{},
	}
}

func copyPaymentFailure(f *paymentfailure.PaymentFailure) *paymentfailure.PaymentFailure {
	if f == nil {
		return nil
	}
	copied := *f
	if f.ResolvedAt != nil {
		t := *f.ResolvedAt
		copied.ResolvedAt = &t
	}
	if f.EscalatedAt != nil {
		t := *f.EscalatedAt
		copied.EscalatedAt = &t
	}
	return &copied
}

func (s *InMemoryPaymentFailureStore) CreateUnlessUnresolved(ctx context.Context, failure *paymentfailure.PaymentFailure) error {
	s.cond.Lock()
	defer s.cond.Unlock()

	if existing, claimed := s.claims[failure.BillingAccountID]; claimed {
		return ierr.NewError("an unresolved payment failure already exists for this account").
			WithReportableDetails(map[string]interface{}{
				"billing_account_id":  failure.BillingAccountID,
				"existing_failure_id": existing,
			}).
			Mark(ierr.ErrAlreadyExists)
	}
	if err := s.InMemoryStore.Create(ctx, failure.ID, copyPaymentFailure(failure)); err != nil {
		return err
	}
	s.claims[failure.BillingAccountID] = failure.ID
	return nil
}

func (s *InMemoryPaymentFailureStore) Get(ctx context.Context, id string) (*paymentfailure.PaymentFailure, error) {
	failure, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("payment failure not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return copyPaymentFailure(failure), nil
}

func (s *InMemoryPaymentFailureStore) GetByTransactionID(ctx context.Context, transactionID string) (*paymentfailure.PaymentFailure, error) {
	failure, found := s.InMemoryStore.Find(ctx, func(f *paymentfailure.PaymentFailure) bool {
		return f.TransactionID == transactionID
	})
	if !found {
		return nil, ierr.NewError("payment failure not found").
			WithReportableDetails(map[string]interface{}{"transaction_id": transactionID}).
			Mark(ierr.ErrNotFound)
	}
	return copyPaymentFailure(failure), nil
}

func (s *InMemoryPaymentFailureStore) GetUnresolvedByAccount(ctx context.Context, billingAccountID string) (*paymentfailure.PaymentFailure, error) {
	failure, found := s.InMemoryStore.Find(ctx, func(f *paymentfailure.PaymentFailure) bool {
		return f.BillingAccountID == billingAccountID && !f.Resolved
	})
	if !found {
		return nil, ierr.NewError("no unresolved payment failure for account").
			WithReportableDetails(map[string]interface{}{"billing_account_id": billingAccountID}).
			Mark(ierr.ErrNotFound)
	}
	return copyPaymentFailure(failure), nil
}

func (s *InMemoryPaymentFailureStore) ListDue(ctx context.Context, now time.Time) ([]*paymentfailure.PaymentFailure, error) {
	items := s.InMemoryStore.List(ctx, func(f *paymentfailure.PaymentFailure) bool {
		return !f.Resolved && f.EscalatedAt == nil && !f.NextRetryAt.After(now)
	})
	out := make([]*paymentfailure.PaymentFailure, 0, len(items))
	for _, f := range items {
		out = append(out, copyPaymentFailure(f))
	}
	return out, nil
}

func (s *InMemoryPaymentFailureStore) ListUnresolved(ctx context.Context) ([]*paymentfailure.PaymentFailure, error) {
	items := s.InMemoryStore.List(ctx, func(f *paymentfailure.PaymentFailure) bool {
		return !f.Resolved
	})
	out := make([]*paymentfailure.PaymentFailure, 0, len(items))
	for _, f := range items {
		out = append(out, copyPaymentFailure(f))
	}
	return out, nil
}

func (s *InMemoryPaymentFailureStore) Update(ctx context.Context, failure *paymentfailure.PaymentFailure) error {
	s.cond.Lock()
	defer s.cond.Unlock()

	stored, err := s.InMemoryStore.Get(ctx, failure.ID)
	if err != nil {
		return ierr.NewError("payment failure not found").
			WithReportableDetails(map[string]interface{}{"id": failure.ID}).
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != failure.Version {
		return ierr.NewError("payment failure was modified concurrently").
			WithReportableDetails(map[string]interface{}{"id": failure.ID}).
			Mark(ierr.ErrConflict)
	}

	failure.Version++
	failure.UpdatedAt = time.Now().UTC()
	if err := s.InMemoryStore.Update(ctx, failure.ID, copyPaymentFailure(failure)); err != nil {
		return err
	}

	// Resolution releases the per-account claim so a new chain can open.
	if failure.Resolved && s.claims[failure.BillingAccountID] == failure.ID {
		delete(s.claims, failure.BillingAccountID)
	}
	return nil
}
