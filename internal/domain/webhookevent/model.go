package webhookevent

import (
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// ProcessedWebhookEvent is the deduplication ledger entry for one processor
// event. The (processor type, event id) pair is the uniqueness key; once
// written with Processed=true the event is never reprocessed.
type ProcessedWebhookEvent struct {
	// ID is the processor-assigned event id.
	ID            string              `json:"id"`
	ProcessorType types.ProcessorType `json:"processor_type"`
	EventType     string              `json:"event_type"`
	Action        types.WebhookAction `json:"action,omitempty"`
	Processed     bool                `json:"processed"`
	RetryCount    int                 `json:"retry_count"`
	MaxRetries    int                 `json:"max_retries"`
	Error         string              `json:"error,omitempty"`
	types.BaseModel
}

// DedupKey is the composite uniqueness key for the ledger.
func (e *ProcessedWebhookEvent) DedupKey() string {
	return DedupKey(e.ProcessorType, e.ID)
}

// DedupKey builds the composite key for a (processor, event id) pair.
func DedupKey(processor types.ProcessorType, eventID string) string {
	return string(processor) + "#" + eventID
}

// Validate validates the processed webhook event
func (e *ProcessedWebhookEvent) Validate() error {
	if e.ID == "" {
		return ierr.NewError("event id is required").Mark(ierr.ErrValidation)
	}
	if e.ProcessorType == "" {
		return ierr.NewError("processor_type is required").Mark(ierr.ErrValidation)
	}
	return nil
}
