package webhookevent

import (
	"context"

	"github.com/reliabill/reliabill/internal/types"
)

// Repository defines the interface for the processed webhook event ledger.
type Repository interface {
	// CreateIfAbsent records the event only if no record exists for its
	// (processor type, event id) pair. Concurrent duplicate deliveries get
	// ErrAlreadyExists, so at most one dispatch wins.
	CreateIfAbsent(ctx context.Context, event *ProcessedWebhookEvent) error

	// Get retrieves the ledger entry for a (processor type, event id) pair;
	// ErrNotFound when the event has never been recorded.
	Get(ctx context.Context, processor types.ProcessorType, eventID string) (*ProcessedWebhookEvent, error)

	// Update persists dispatch outcome bookkeeping (processed flag, error
	// text, retry count).
	Update(ctx context.Context, event *ProcessedWebhookEvent) error
}
