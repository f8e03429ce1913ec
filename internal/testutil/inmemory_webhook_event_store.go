package testutil

import (
	"context"
	"time"

	"github.com/reliabill/reliabill/internal/domain/webhookevent"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// InMemoryWebhookEventStore implements webhookevent.Repository, keyed by the
// (processor type, event id) dedup key like the real ledger table.
type InMemoryWebhookEventStore struct {
	*InMemoryStore[*webhookevent.ProcessedWebhookEvent]
}

// NewInMemoryWebhookEventStore creates a new in-memory webhook event store
func NewInMemoryWebhookEventStore() *InMemoryWebhookEventStore {
	return &InMemoryWebhookEventStore{
		InMemoryStore: NewInMemoryStore[*webhookevent.ProcessedWebhookEvent](),
	}
}

func copyWebhookEvent(e *webhookevent.ProcessedWebhookEvent) *webhookevent.ProcessedWebhookEvent {
	if e == nil {
		return nil
	}
	copied := *e
	return &copied
}

func (s *InMemoryWebhookEventStore) CreateIfAbsent(ctx context.Context, event *webhookevent.ProcessedWebhookEvent) error {
	if err := s.InMemoryStore.Create(ctx, event.DedupKey(), copyWebhookEvent(event)); err != nil {
		return ierr.NewError("webhook event already recorded").
			WithReportableDetails(map[string]interface{}{
				"event_id":       event.ID,
				"processor_type": event.ProcessorType,
			}).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryWebhookEventStore) Get(ctx context.Context, processor types.ProcessorType, eventID string) (*webhookevent.ProcessedWebhookEvent, error) {
	event, err := s.InMemoryStore.Get(ctx, webhookevent.DedupKey(processor, eventID))
	if err != nil {
		return nil, ierr.NewError("webhook event not recorded").
			WithReportableDetails(map[string]interface{}{
				"event_id":       eventID,
				"processor_type": processor,
			}).
			Mark(ierr.ErrNotFound)
	}
	return copyWebhookEvent(event), nil
}

func (s *InMemoryWebhookEventStore) Update(ctx context.Context, event *webhookevent.ProcessedWebhookEvent) error {
	event.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, event.DedupKey(), copyWebhookEvent(event))
}
