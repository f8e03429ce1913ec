package service

import (
	"context"
	"fmt"
	"time"

	"github.com/teris-io/shortid"

	"github.com/reliabill/reliabill/internal/api/dto"
	"github.com/reliabill/reliabill/internal/domain/dispute"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// DisputeService manages dispute cases and their evidence workflows. The
// workflow is deliberately manual: evidence submission never advances the
// current step, only the explicit advance operation does.
type DisputeService interface {
	// CreateDisputeCase opens a case against a known transaction and attaches
	// the standard three step evidence workflow. NotFound when the
	// transaction does not exist.
	CreateDisputeCase(ctx context.Context, req *dto.CreateDisputeRequest) (*dto.DisputeCaseResponse, error)

	// GetDisputeCase returns a case with its workflow.
	GetDisputeCase(ctx context.Context, disputeID string) (*dto.DisputeCaseResponse, error)

	// SubmitEvidence appends a timestamped evidence record to the case.
	SubmitEvidence(ctx context.Context, disputeID string, req *dto.SubmitEvidenceRequest) (*dto.EvidenceResponse, error)

	// AdvanceWorkflowStep completes the current workflow step in order. When
	// the last step completes the case moves to submitted.
	AdvanceWorkflowStep(ctx context.Context, disputeID string) (*dispute.DisputeWorkflow, error)
}

type disputeService struct {
	ServiceParams
}

// NewDisputeService creates a new dispute service
func NewDisputeService(params ServiceParams) DisputeService {
	return &disputeService{ServiceParams: params}
}

// newCaseNumber builds a case number from a millisecond timestamp and a short
// random suffix. Uniqueness is probabilistic, not enforced; the case id
// remains the real key.
func newCaseNumber(now time.Time) string {
	suffix, err := shortid.Generate()
	if err != nil {
		suffix = types.GenerateUUID()[:9]
	}
	return fmt.Sprintf("DSP-%d-%s", now.UnixMilli(), suffix)
}

func (s *disputeService) CreateDisputeCase(ctx context.Context, req *dto.CreateDisputeRequest) (*dto.DisputeCaseResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	txn, err := s.TransactionRepo.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	currency := req.Currency
	if currency == "" {
		currency = txn.Currency
	}

	status := types.DisputeStatusOpen
	if len(req.EvidenceRequired) > 0 {
		status = types.DisputeStatusEvidenceRequired
	}

	d := &dispute.DisputeCase{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DISPUTE),
		CaseNumber:        newCaseNumber(now),
		TransactionID:     txn.ID,
		BillingAccountID:  txn.BillingAccountID,
		DisputeType:       req.DisputeType,
		Amount:            req.Amount,
		Currency:          currency,
		Priority:          types.DisputePriorityForAmount(req.Amount),
		EvidenceRequired:  req.EvidenceRequired,
		EvidenceSubmitted: []dispute.DisputeEvidence{},
		RespondByDate:     req.RespondByDate.UTC(),
		DisputeStatus:     status,
		BaseModel:         types.NewBaseModel(now),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if err := s.DisputeRepo.CreateCase(ctx, d); err != nil {
		return nil, err
	}

	workflow := dispute.NewWorkflow(d.ID, d.RespondByDate, now)
	if err := s.DisputeRepo.CreateWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.notifyDisputeOpened(ctx, d)

	s.Logger.Infow("created dispute case",
		"dispute_id", d.ID,
		"case_number", d.CaseNumber,
		"transaction_id", d.TransactionID,
		"priority", d.Priority,
		"respond_by", d.RespondByDate)

	return &dto.DisputeCaseResponse{DisputeCase: d, Workflow: workflow}, nil
}

func (s *disputeService) GetDisputeCase(ctx context.Context, disputeID string) (*dto.DisputeCaseResponse, error) {
	d, err := s.DisputeRepo.GetCase(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	workflow, err := s.DisputeRepo.GetWorkflowByDisputeID(ctx, disputeID)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, err
		}
		workflow = nil
	}

	return &dto.DisputeCaseResponse{DisputeCase: d, Workflow: workflow}, nil
}

func (s *disputeService) SubmitEvidence(ctx context.Context, disputeID string, req *dto.SubmitEvidenceRequest) (*dto.EvidenceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	evidence := dispute.DisputeEvidence{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DISPUTE_EVIDENCE),
		Type:        req.Type,
		Description: req.Description,
		FileURL:     req.FileURL,
		SubmittedAt: time.Now().UTC(),
	}

	// Concurrent submissions race on the evidence list; a lost versioned
	// write re-reads the case and appends again rather than dropping records.
	if err := withConflictRetry(ctx, func() error {
		d, err := s.DisputeRepo.GetCase(ctx, disputeID)
		if err != nil {
			return err
		}
		d.EvidenceSubmitted = append(d.EvidenceSubmitted, evidence)
		return s.DisputeRepo.UpdateCase(ctx, d)
	}); err != nil {
		return nil, err
	}

	s.Logger.Infow("submitted dispute evidence",
		"dispute_id", disputeID,
		"evidence_id", evidence.ID,
		"evidence_type", evidence.Type)

	return &dto.EvidenceResponse{DisputeEvidence: &evidence}, nil
}

func (s *disputeService) AdvanceWorkflowStep(ctx context.Context, disputeID string) (*dispute.DisputeWorkflow, error) {
	workflow, err := s.DisputeRepo.GetWorkflowByDisputeID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	if !workflow.CompleteCurrentStep(time.Now()) {
		return nil, ierr.NewError("dispute workflow is already complete").
			WithReportableDetails(map[string]interface{}{"dispute_id": disputeID}).
			Mark(ierr.ErrValidation)
	}

	if err := s.DisputeRepo.UpdateWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	if workflow.FirstIncomplete() < 0 {
		if err := withConflictRetry(ctx, func() error {
			d, err := s.DisputeRepo.GetCase(ctx, disputeID)
			if err != nil {
				return err
			}
			d.DisputeStatus = types.DisputeStatusSubmitted
			return s.DisputeRepo.UpdateCase(ctx, d)
		}); err != nil {
			return nil, err
		}
	}

	s.Logger.Infow("advanced dispute workflow",
		"dispute_id", disputeID,
		"current_step", workflow.CurrentStep)
	return workflow, nil
}

// notifyDisputeOpened tells the account owner a dispute exists. Best effort.
func (s *disputeService) notifyDisputeOpened(ctx context.Context, d *dispute.DisputeCase) {
	if d.BillingAccountID == "" {
		return
	}
	account, err := s.BillingAccountRepo.Get(ctx, d.BillingAccountID)
	if err != nil {
		s.Logger.Warnw("failed to load account for dispute notification",
			"dispute_id", d.ID, "error", err)
		return
	}

	notifyUser(ctx, s.ServiceParams, account.UserID, "dispute_opened", map[string]interface{}{
		"amount":   d.Amount.String(),
		"currency": d.Currency,
	})
}
