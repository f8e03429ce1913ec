package testutil

import (
	"context"
	"time"

	"github.com/reliabill/reliabill/internal/domain/transaction"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// InMemoryTransactionStore implements transaction.Repository
type InMemoryTransactionStore struct {
	*InMemoryStore[*transaction.Transaction]
}

// NewInMemoryTransactionStore creates a new in-memory transaction store
func NewInMemoryTransactionStore() *InMemoryTransactionStore {
	return &InMemoryTransactionStore{
		InMemoryStore: NewInMemoryStore[*transaction.Transaction](),
	}
}

func copyTransaction(t *transaction.Transaction) *transaction.Transaction {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

func (s *InMemoryTransactionStore) Create(ctx context.Context, txn *transaction.Transaction) error {
	return s.InMemoryStore.Create(ctx, txn.ID, copyTransaction(txn))
}

func (s *InMemoryTransactionStore) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	txn, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("transaction not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return copyTransaction(txn), nil
}

func (s *InMemoryTransactionStore) GetByProcessorPaymentID(ctx context.Context, processorPaymentID string) (*transaction.Transaction, error) {
	txn, found := s.InMemoryStore.Find(ctx, func(t *transaction.Transaction) bool {
		return t.ProcessorPaymentID == processorPaymentID
	})
	if !found {
		return nil, ierr.NewError("transaction not found").
			WithReportableDetails(map[string]interface{}{"processor_payment_id": processorPaymentID}).
			Mark(ierr.ErrNotFound)
	}
	return copyTransaction(txn), nil
}

func (s *InMemoryTransactionStore) Update(ctx context.Context, txn *transaction.Transaction) error {
	txn.UpdatedAt = time.Now().UTC()
	if err := s.InMemoryStore.Update(ctx, txn.ID, copyTransaction(txn)); err != nil {
		return ierr.NewError("transaction not found").
			WithReportableDetails(map[string]interface{}{"id": txn.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryTransactionStore) UpdateStatus(ctx context.Context, id string, status types.TransactionStatus) error {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	txn.Status = status
	return s.Update(ctx, txn)
}
