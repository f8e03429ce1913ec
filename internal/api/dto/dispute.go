package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/reliabill/reliabill/internal/domain/dispute"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
	"github.com/reliabill/reliabill/internal/validator"
)

// CreateDisputeRequest opens a dispute case against a transaction.
type CreateDisputeRequest struct {
	TransactionID    string               `json:"transaction_id" validate:"required"`
	DisputeType      types.DisputeType    `json:"dispute_type" validate:"required"`
	Amount           decimal.Decimal      `json:"amount" validate:"required"`
	Currency         string               `json:"currency"`
	EvidenceRequired []types.EvidenceType `json:"evidence_required"`
	RespondByDate    time.Time            `json:"respond_by_date" validate:"required"`
}

func (r *CreateDisputeRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.DisputeType.Validate() {
		return ierr.NewError("invalid dispute type").
			WithReportableDetails(map[string]interface{}{"dispute_type": r.DisputeType}).
			Mark(ierr.ErrValidation)
	}
	for _, et := range r.EvidenceRequired {
		if !et.Validate() {
			return ierr.NewError("invalid evidence type").
				WithReportableDetails(map[string]interface{}{"evidence_type": et}).
				Mark(ierr.ErrValidation)
		}
	}
	if r.Amount.IsNegative() {
		return ierr.NewError("amount cannot be negative").Mark(ierr.ErrValidation)
	}
	return nil
}

// SubmitEvidenceRequest appends one evidence record to an open dispute.
type SubmitEvidenceRequest struct {
	Type        types.EvidenceType `json:"type" validate:"required"`
	Description string             `json:"description" validate:"required"`
	FileURL     string             `json:"file_url"`
}

func (r *SubmitEvidenceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Type.Validate() {
		return ierr.NewError("invalid evidence type").
			WithReportableDetails(map[string]interface{}{"evidence_type": r.Type}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DisputeCaseResponse is a dispute case with its workflow attached.
type DisputeCaseResponse struct {
	*dispute.DisputeCase
	Workflow *dispute.DisputeWorkflow `json:"workflow,omitempty"`
}

// EvidenceResponse wraps a created evidence record.
type EvidenceResponse struct {
	*dispute.DisputeEvidence
}
