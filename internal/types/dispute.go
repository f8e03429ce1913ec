package types

import "github.com/shopspring/decimal"

// DisputeType classifies the processor-reported dispute signal.
type DisputeType string

const (
	DisputeTypeChargeback      DisputeType = "chargeback"
	DisputeTypeInquiry         DisputeType = "inquiry"
	DisputeTypeFraud           DisputeType = "fraud"
	DisputeTypeAuthorization   DisputeType = "authorization"
	DisputeTypeProcessingError DisputeType = "processing_error"
)

func (t DisputeType) Validate() bool {
	switch t {
	case DisputeTypeChargeback, DisputeTypeInquiry, DisputeTypeFraud,
		DisputeTypeAuthorization, DisputeTypeProcessingError:
		return true
	}
	return false
}

// DisputePriority is derived purely from the disputed amount.
type DisputePriority string

const (
	DisputePriorityLow    DisputePriority = "low"
	DisputePriorityMedium DisputePriority = "medium"
	DisputePriorityHigh   DisputePriority = "high"
)

var (
	disputeHighThreshold   = decimal.NewFromInt(1000)
	disputeMediumThreshold = decimal.NewFromInt(500)
)

// DisputePriorityForAmount assigns priority by amount thresholds:
// >1000 high, >500 medium, else low.
func DisputePriorityForAmount(amount decimal.Decimal) DisputePriority {
	switch {
	case amount.GreaterThan(disputeHighThreshold):
		return DisputePriorityHigh
	case amount.GreaterThan(disputeMediumThreshold):
		return DisputePriorityMedium
	default:
		return DisputePriorityLow
	}
}

// DisputeStatus tracks a dispute case through its lifecycle.
type DisputeStatus string

const (
	DisputeStatusOpen             DisputeStatus = "open"
	DisputeStatusEvidenceRequired DisputeStatus = "evidence_required"
	DisputeStatusUnderReview      DisputeStatus = "under_review"
	DisputeStatusSubmitted        DisputeStatus = "submitted"
	DisputeStatusWon              DisputeStatus = "won"
	DisputeStatusLost             DisputeStatus = "lost"
)

// EvidenceType enumerates the kinds of evidence a dispute may require.
type EvidenceType string

const (
	EvidenceTypeReceipt              EvidenceType = "receipt"
	EvidenceTypeCustomerComms        EvidenceType = "customer_communication"
	EvidenceTypeServiceDocumentation EvidenceType = "service_documentation"
	EvidenceTypeShippingProof        EvidenceType = "shipping_proof"
	EvidenceTypeRefundPolicy         EvidenceType = "refund_policy"
	EvidenceTypeOther                EvidenceType = "other"
)

func (t EvidenceType) Validate() bool {
	switch t {
	case EvidenceTypeReceipt, EvidenceTypeCustomerComms, EvidenceTypeServiceDocumentation,
		EvidenceTypeShippingProof, EvidenceTypeRefundPolicy, EvidenceTypeOther:
		return true
	}
	return false
}

// DisputeWorkflowStepType names the fixed evidence workflow steps, completed
// strictly in this order.
type DisputeWorkflowStepType string

const (
	WorkflowStepEvidenceCollection DisputeWorkflowStepType = "evidence_collection"
	WorkflowStepEvidenceReview     DisputeWorkflowStepType = "evidence_review"
	WorkflowStepEvidenceSubmission DisputeWorkflowStepType = "evidence_submission"
)
