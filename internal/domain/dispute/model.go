package dispute

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// DisputeCase tracks a chargeback/inquiry raised against a transaction.
type DisputeCase struct {
	ID                string                `json:"id"`
	CaseNumber        string                `json:"case_number"`
	TransactionID     string                `json:"transaction_id"`
	BillingAccountID  string                `json:"billing_account_id,omitempty"`
	DisputeType       types.DisputeType     `json:"dispute_type"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          string                `json:"currency"`
	Priority          types.DisputePriority `json:"priority"`
	EvidenceRequired  []types.EvidenceType  `json:"evidence_required"`
	EvidenceSubmitted []DisputeEvidence     `json:"evidence_submitted"`
	RespondByDate     time.Time             `json:"respond_by_date"`
	DisputeStatus     types.DisputeStatus   `json:"dispute_status"`
	Version           int64                 `json:"version"`
	types.BaseModel
}

// DisputeEvidence is one submitted evidence record.
type DisputeEvidence struct {
	ID          string             `json:"id"`
	Type        types.EvidenceType `json:"type"`
	Description string             `json:"description"`
	FileURL     string             `json:"file_url,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

// Validate validates the dispute case
func (d *DisputeCase) Validate() error {
	if d.TransactionID == "" {
		return ierr.NewError("transaction_id is required").Mark(ierr.ErrValidation)
	}
	if !d.DisputeType.Validate() {
		return ierr.NewError("invalid dispute type").
			WithReportableDetails(map[string]interface{}{"dispute_type": d.DisputeType}).
			Mark(ierr.ErrValidation)
	}
	// Submitted evidence types must stay within the domain evidence kinds.
	for _, ev := range d.EvidenceSubmitted {
		if !ev.Type.Validate() {
			return ierr.NewError("invalid evidence type").
				WithReportableDetails(map[string]interface{}{"evidence_type": ev.Type}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// DisputeWorkflow is the fixed three step evidence workflow attached to a
// case. Steps complete strictly in order.
type DisputeWorkflow struct {
	ID          string                        `json:"id"`
	DisputeID   string                        `json:"dispute_id"`
	Steps       []DisputeWorkflowStep         `json:"steps"`
	CurrentStep types.DisputeWorkflowStepType `json:"current_step"`
	DueDate     time.Time                     `json:"due_date"`
	Version     int64                         `json:"version"`
	types.BaseModel
}

// DisputeWorkflowStep is one workflow step with its own due date.
type DisputeWorkflowStep struct {
	Type        types.DisputeWorkflowStepType `json:"type"`
	DueDate     time.Time                     `json:"due_date"`
	Completed   bool                          `json:"completed"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
}

// NewWorkflow builds the standard workflow for a case: evidence collection
// due a day before the deadline, review 12 hours before, submission exactly
// at the deadline.
func NewWorkflow(disputeID string, respondBy time.Time, now time.Time) *DisputeWorkflow {
	return &DisputeWorkflow{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DISPUTE_WORKFLOW),
		DisputeID: disputeID,
		Steps: []DisputeWorkflowStep{
			{Type: types.WorkflowStepEvidenceCollection, DueDate: respondBy.Add(-24 * time.Hour)},
			{Type: types.WorkflowStepEvidenceReview, DueDate: respondBy.Add(-12 * time.Hour)},
			{Type: types.WorkflowStepEvidenceSubmission, DueDate: respondBy},
		},
		CurrentStep: types.WorkflowStepEvidenceCollection,
		DueDate:     respondBy,
		BaseModel:   types.NewBaseModel(now),
	}
}

// FirstIncomplete returns the index of the first incomplete step, or -1 when
// every step is done. CurrentStep never points past this step.
func (w *DisputeWorkflow) FirstIncomplete() int {
	_, idx, ok := lo.FindIndexOf(w.Steps, func(s DisputeWorkflowStep) bool {
		return !s.Completed
	})
	if !ok {
		return -1
	}
	return idx
}

// CompleteCurrentStep marks the first incomplete step done and advances
// CurrentStep. Returns false when the workflow is already complete.
func (w *DisputeWorkflow) CompleteCurrentStep(at time.Time) bool {
	idx := w.FirstIncomplete()
	if idx < 0 {
		return false
	}
	at = at.UTC()
	w.Steps[idx].Completed = true
	w.Steps[idx].CompletedAt = &at
	if idx+1 < len(w.Steps) {
		w.CurrentStep = w.Steps[idx+1].Type
	} else {
		w.CurrentStep = w.Steps[idx].Type
	}
	w.UpdatedAt = at
	return true
}
