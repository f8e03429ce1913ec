package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/reliabill/reliabill/internal/domain/dispute"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// InMemoryDisputeStore implements dispute.Repository, holding cases and their
// workflows in separate maps the way the real store uses separate tables.
type InMemoryDisputeStore struct {
	cases     *InMemoryStore[*dispute.DisputeCase]
	workflows *InMemoryStore[*dispute.DisputeWorkflow]

	// cond serializes the version-checked read-check-write updates.
	cond sync.Mutex
}

// NewInMemoryDisputeStore creates a new in-memory dispute store
func NewInMemoryDisputeStore() *InMemoryDisputeStore {
	return &InMemoryDisputeStore{
		cases:     NewInMemoryStore[*dispute.DisputeCase](),
		workflows: NewInMemoryStore[*dispute.DisputeWorkflow](),
	}
}

func copyDisputeCase(d *dispute.DisputeCase) *dispute.DisputeCase {
	if d == nil {
		return nil
	}
	copied := *d
	copied.EvidenceRequired = append([]types.EvidenceType(nil), d.EvidenceRequired...)
	copied.EvidenceSubmitted = append([]dispute.DisputeEvidence(nil), d.EvidenceSubmitted...)
	return &copied
}

func copyDisputeWorkflow(w *dispute.DisputeWorkflow) *dispute.DisputeWorkflow {
	if w == nil {
		return nil
	}
	copied := *w
	copied.Steps = make([]dispute.DisputeWorkflowStep, len(w.Steps))
	for i, step := range w.Steps {
		copied.Steps[i] = step
		if step.CompletedAt != nil {
			t := *step.CompletedAt
			copied.Steps[i].CompletedAt = &t
		}
	}
	return &copied
}

func (s *InMemoryDisputeStore) CreateCase(ctx context.Context, d *dispute.DisputeCase) error {
	return s.cases.Create(ctx, d.ID, copyDisputeCase(d))
}

func (s *InMemoryDisputeStore) GetCase(ctx context.Context, id string) (*dispute.DisputeCase, error) {
	d, err := s.cases.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("dispute case not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return copyDisputeCase(d), nil
}

func (s *InMemoryDisputeStore) GetCaseByTransactionID(ctx context.Context, transactionID string) (*dispute.DisputeCase, error) {
	d, found := s.cases.Find(ctx, func(c *dispute.DisputeCase) bool {
		return c.TransactionID == transactionID
	})
	if !found {
		return nil, ierr.NewError("dispute case not found").
			WithReportableDetails(map[string]interface{}{"transaction_id": transactionID}).
			Mark(ierr.ErrNotFound)
	}
	return copyDisputeCase(d), nil
}

func (s *InMemoryDisputeStore) UpdateCase(ctx context.Context, d *dispute.DisputeCase) error {
	s.cond.Lock()
	defer s.cond.Unlock()

	stored, err := s.cases.Get(ctx, d.ID)
	if err != nil {
		return ierr.NewError("dispute case not found").
			WithReportableDetails(map[string]interface{}{"id": d.ID}).
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != d.Version {
		return ierr.NewError("dispute case was modified concurrently").
			WithReportableDetails(map[string]interface{}{"id": d.ID}).
			Mark(ierr.ErrConflict)
	}

	d.Version++
	d.UpdatedAt = time.Now().UTC()
	return s.cases.Update(ctx, d.ID, copyDisputeCase(d))
}

func (s *InMemoryDisputeStore) CreateWorkflow(ctx context.Context, w *dispute.DisputeWorkflow) error {
	return s.workflows.Create(ctx, w.ID, copyDisputeWorkflow(w))
}

func (s *InMemoryDisputeStore) GetWorkflowByDisputeID(ctx context.Context, disputeID string) (*dispute.DisputeWorkflow, error) {
	w, found := s.workflows.Find(ctx, func(wf *dispute.DisputeWorkflow) bool {
		return wf.DisputeID == disputeID
	})
	if !found {
		return nil, ierr.NewError("dispute workflow not found").
			WithReportableDetails(map[string]interface{}{"dispute_id": disputeID}).
			Mark(ierr.ErrNotFound)
	}
	return copyDisputeWorkflow(w), nil
}

func (s *InMemoryDisputeStore) UpdateWorkflow(ctx context.Context, w *dispute.DisputeWorkflow) error {
	s.cond.Lock()
	defer s.cond.Unlock()

	stored, err := s.workflows.Get(ctx, w.ID)
	if err != nil {
		return ierr.NewError("dispute workflow not found").
			WithReportableDetails(map[string]interface{}{"id": w.ID}).
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != w.Version {
		return ierr.NewError("dispute workflow was modified concurrently").
			WithReportableDetails(map[string]interface{}{"id": w.ID}).
			Mark(ierr.ErrConflict)
	}

	w.Version++
	w.UpdatedAt = time.Now().UTC()
	return s.workflows.Update(ctx, w.ID, copyDisputeWorkflow(w))
}
