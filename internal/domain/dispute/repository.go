package dispute

import "context"

// Repository defines the interface for dispute case and workflow persistence.
// Workflows are stored alongside their case but addressed independently.
type Repository interface {
	// CreateCase creates a new dispute case. The case number is unique and
	// immutable once assigned.
	CreateCase(ctx context.Context, d *DisputeCase) error

	// GetCase retrieves a dispute case by id
	GetCase(ctx context.Context, id string) (*DisputeCase, error)

	// GetCaseByTransactionID retrieves the dispute case opened for a transaction
	GetCaseByTransactionID(ctx context.Context, transactionID string) (*DisputeCase, error)

	// UpdateCase persists the case
	UpdateCase(ctx context.Context, d *DisputeCase) error

	// CreateWorkflow creates the workflow attached to a case
	CreateWorkflow(ctx context.Context, w *DisputeWorkflow) error

	// GetWorkflowByDisputeID retrieves the workflow for a dispute case
	GetWorkflowByDisputeID(ctx context.Context, disputeID string) (*DisputeWorkflow, error)

	// UpdateWorkflow persists the workflow
	UpdateWorkflow(ctx context.Context, w *DisputeWorkflow) error
}
