package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/reliabill/reliabill/internal/domain/dispute"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/types"
)

const (
	disputeCasesTable     = "dispute_cases"
	disputeTxnIndex       = "transaction_id-index"
	disputeWorkflowsTable = "dispute_workflows"
	workflowDisputeIndex  = "dispute_id-index"
)

type disputeEvidenceItem struct {
	ID          string `dynamodbav:"id"`
	Type        string `dynamodbav:"type"`
	Description string `dynamodbav:"description"`
	FileURL     string `dynamodbav:"file_url,omitempty"`
	SubmittedAt string `dynamodbav:"submitted_at"`
}

type disputeCaseItem struct {
	ID                string                `dynamodbav:"id"`
	CaseNumber        string                `dynamodbav:"case_number"`
	TransactionID     string                `dynamodbav:"transaction_id"`
	BillingAccountID  string                `dynamodbav:"billing_account_id,omitempty"`
	DisputeType       string                `dynamodbav:"dispute_type"`
	Amount            string                `dynamodbav:"amount"`
	Currency          string                `dynamodbav:"currency"`
	Priority          string                `dynamodbav:"priority"`
	EvidenceRequired  []string              `dynamodbav:"evidence_required"`
	EvidenceSubmitted []disputeEvidenceItem `dynamodbav:"evidence_submitted"`
	RespondByDate     string                `dynamodbav:"respond_by_date"`
	DisputeStatus     string                `dynamodbav:"dispute_status"`
	Version           int64                 `dynamodbav:"version"`
	CreatedAt         string                `dynamodbav:"created_at"`
	UpdatedAt         string                `dynamodbav:"updated_at"`
}

type workflowStepItem struct {
	Type        string `dynamodbav:"type"`
	DueDate     string `dynamodbav:"due_date"`
	Completed   bool   `dynamodbav:"completed"`
	CompletedAt string `dynamodbav:"completed_at,omitempty"`
}

type disputeWorkflowItem struct {
	ID          string             `dynamodbav:"id"`
	DisputeID   string             `dynamodbav:"dispute_id"`
	Steps       []workflowStepItem `dynamodbav:"steps"`
	CurrentStep string             `dynamodbav:"current_step"`
	DueDate     string             `dynamodbav:"due_date"`
	Version     int64              `dynamodbav:"version"`
	CreatedAt   string             `dynamodbav:"created_at"`
	UpdatedAt   string             `dynamodbav:"updated_at"`
}

func toDisputeCaseItem(d *dispute.DisputeCase) *disputeCaseItem {
	return &disputeCaseItem{
		ID:               d.ID,
		CaseNumber:       d.CaseNumber,
		TransactionID:    d.TransactionID,
		BillingAccountID: d.BillingAccountID,
		DisputeType:      string(d.DisputeType),
		Amount:           d.Amount.String(),
		Currency:         d.Currency,
		Priority:         string(d.Priority),
		EvidenceRequired: lo.Map(d.EvidenceRequired, func(t types.EvidenceType, _ int) string {
			return string(t)
		}),
		EvidenceSubmitted: lo.Map(d.EvidenceSubmitted, func(e dispute.DisputeEvidence, _ int) disputeEvidenceItem {
			return disputeEvidenceItem{
				ID:          e.ID,
				Type:        string(e.Type),
				Description: e.Description,
				FileURL:     e.FileURL,
				SubmittedAt: formatTime(e.SubmittedAt),
			}
		}),
		RespondByDate: formatTime(d.RespondByDate),
		DisputeStatus: string(d.DisputeStatus),
		Version:       d.Version,
		CreatedAt:     formatTime(d.CreatedAt),
		UpdatedAt:     formatTime(d.UpdatedAt),
	}
}

func fromDisputeCaseItem(it *disputeCaseItem) *dispute.DisputeCase {
	amount, _ := decimal.NewFromString(it.Amount)
	return &dispute.DisputeCase{
		ID:               it.ID,
		CaseNumber:       it.CaseNumber,
		TransactionID:    it.TransactionID,
		BillingAccountID: it.BillingAccountID,
		DisputeType:      types.DisputeType(it.DisputeType),
		Amount:           amount,
		Currency:         it.Currency,
		Priority:         types.DisputePriority(it.Priority),
		EvidenceRequired: lo.Map(it.EvidenceRequired, func(s string, _ int) types.EvidenceType {
			return types.EvidenceType(s)
		}),
		EvidenceSubmitted: lo.Map(it.EvidenceSubmitted, func(e disputeEvidenceItem, _ int) dispute.DisputeEvidence {
			return dispute.DisputeEvidence{
				ID:          e.ID,
				Type:        types.EvidenceType(e.Type),
				Description: e.Description,
				FileURL:     e.FileURL,
				SubmittedAt: parseTime(e.SubmittedAt),
			}
		}),
		RespondByDate: parseTime(it.RespondByDate),
		DisputeStatus: types.DisputeStatus(it.DisputeStatus),
		Version:       it.Version,
		BaseModel: types.BaseModel{
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
		},
	}
}

func toDisputeWorkflowItem(w *dispute.DisputeWorkflow) *disputeWorkflowItem {
	return &disputeWorkflowItem{
		ID:        w.ID,
		DisputeID: w.DisputeID,
		Steps: lo.Map(w.Steps, func(s dispute.DisputeWorkflowStep, _ int) workflowStepItem {
			return workflowStepItem{
				Type:        string(s.Type),
				DueDate:     formatTime(s.DueDate),
				Completed:   s.Completed,
				CompletedAt: formatTimePtr(s.CompletedAt),
			}
		}),
		CurrentStep: string(w.CurrentStep),
		DueDate:     formatTime(w.DueDate),
		Version:     w.Version,
		CreatedAt:   formatTime(w.CreatedAt),
		UpdatedAt:   formatTime(w.UpdatedAt),
	}
}

func fromDisputeWorkflowItem(it *disputeWorkflowItem) *dispute.DisputeWorkflow {
	return &dispute.DisputeWorkflow{
		ID:        it.ID,
		DisputeID: it.DisputeID,
		Steps: lo.Map(it.Steps, func(s workflowStepItem, _ int) dispute.DisputeWorkflowStep {
			return dispute.DisputeWorkflowStep{
				Type:        types.DisputeWorkflowStepType(s.Type),
				DueDate:     parseTime(s.DueDate),
				Completed:   s.Completed,
				CompletedAt: parseTimePtr(s.CompletedAt),
			}
		}),
		CurrentStep: types.DisputeWorkflowStepType(it.CurrentStep),
		DueDate:     parseTime(it.DueDate),
		Version:     it.Version,
		BaseModel: types.BaseModel{
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
		},
	}
}

// DisputeRepository implements dispute.Repository on DynamoDB.
type DisputeRepository struct {
	client *Client
	logger *logger.Logger
}

func NewDisputeRepository(client *Client, log *logger.Logger) dispute.Repository {
	return &DisputeRepository{client: client, logger: log}
}

func (r *DisputeRepository) CreateCase(ctx context.Context, d *dispute.DisputeCase) error {
	item, err := attributevalue.MarshalMap(toDisputeCaseItem(d))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal dispute case").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(disputeCasesTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("dispute case already exists").
				WithReportableDetails(map[string]interface{}{"id": d.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create dispute case").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *DisputeRepository) GetCase(ctx context.Context, id string) (*dispute.DisputeCase, error) {
	out, err := r.client.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.client.TableName(disputeCasesTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get dispute case").
			Mark(ierr.ErrDatabase)
	}
	if out.Item == nil {
		return nil, ierr.NewError("dispute case not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}

	var item disputeCaseItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal dispute case").
			Mark(ierr.ErrInternal)
	}
	return fromDisputeCaseItem(&item), nil
}

func (r *DisputeRepository) GetCaseByTransactionID(ctx context.Context, transactionID string) (*dispute.DisputeCase, error) {
	out, err := r.client.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.client.TableName(disputeCasesTable)),
		IndexName:              aws.String(disputeTxnIndex),
		KeyConditionExpression: aws.String("transaction_id = :txn"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":txn": &ddbtypes.AttributeValueMemberS{Value: transactionID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query dispute cases").
			Mark(ierr.ErrDatabase)
	}
	if len(out.Items) == 0 {
		return nil, ierr.NewError("dispute case not found").
			WithReportableDetails(map[string]interface{}{"transaction_id": transactionID}).
			Mark(ierr.ErrNotFound)
	}

	var item disputeCaseItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal dispute case").
			Mark(ierr.ErrInternal)
	}
	return fromDisputeCaseItem(&item), nil
}

// UpdateCase writes the case guarded by an optimistic version check, so
// concurrent evidence appends cannot silently drop records.
func (r *DisputeRepository) UpdateCase(ctx context.Context, d *dispute.DisputeCase) error {
	expected := d.Version
	d.Version++
	d.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(toDisputeCaseItem(d))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal dispute case").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(disputeCasesTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id) AND version = :expected"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		d.Version = expected
		if isConditionalCheckFailed(err) {
			return ierr.NewError("dispute case was modified concurrently").
				WithReportableDetails(map[string]interface{}{"id": d.ID}).
				Mark(ierr.ErrConflict)
		}
		return ierr.WithError(err).
			WithHint("Failed to update dispute case").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *DisputeRepository) CreateWorkflow(ctx context.Context, w *dispute.DisputeWorkflow) error {
	item, err := attributevalue.MarshalMap(toDisputeWorkflowItem(w))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal dispute workflow").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(disputeWorkflowsTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create dispute workflow").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *DisputeRepository) GetWorkflowByDisputeID(ctx context.Context, disputeID string) (*dispute.DisputeWorkflow, error) {
	out, err := r.client.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.client.TableName(disputeWorkflowsTable)),
		IndexName:              aws.String(workflowDisputeIndex),
		KeyConditionExpression: aws.String("dispute_id = :d"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":d": &ddbtypes.AttributeValueMemberS{Value: disputeID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query dispute workflows").
			Mark(ierr.ErrDatabase)
	}
	if len(out.Items) == 0 {
		return nil, ierr.NewError("dispute workflow not found").
			WithReportableDetails(map[string]interface{}{"dispute_id": disputeID}).
			Mark(ierr.ErrNotFound)
	}

	var item disputeWorkflowItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal dispute workflow").
			Mark(ierr.ErrInternal)
	}
	return fromDisputeWorkflowItem(&item), nil
}

// UpdateWorkflow writes the workflow guarded by an optimistic version check.
func (r *DisputeRepository) UpdateWorkflow(ctx context.Context, w *dispute.DisputeWorkflow) error {
	expected := w.Version
	w.Version++
	w.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(toDisputeWorkflowItem(w))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal dispute workflow").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(disputeWorkflowsTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id) AND version = :expected"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		w.Version = expected
		if isConditionalCheckFailed(err) {
			return ierr.NewError("dispute workflow was modified concurrently").
				WithReportableDetails(map[string]interface{}{"id": w.ID}).
				Mark(ierr.ErrConflict)
		}
		return ierr.WithError(err).
			WithHint("Failed to update dispute workflow").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
