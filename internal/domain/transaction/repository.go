package transaction

import (
	"context"

	"github.com/reliabill/reliabill/internal/types"
)

// Repository defines the interface for transaction persistence operations
type Repository interface {
	// Create creates a new transaction
	Create(ctx context.Context, txn *Transaction) error

	// Get retrieves a transaction by id
	Get(ctx context.Context, id string) (*Transaction, error)

	// GetByProcessorPaymentID retrieves the transaction recorded for a
	// processor-side payment id
	GetByProcessorPaymentID(ctx context.Context, processorPaymentID string) (*Transaction, error)

	// Update persists the transaction
	Update(ctx context.Context, txn *Transaction) error

	// UpdateStatus sets the transaction status
	UpdateStatus(ctx context.Context, id string, status types.TransactionStatus) error
}
