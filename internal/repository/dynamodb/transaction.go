package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/reliabill/reliabill/internal/domain/transaction"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/types"
)

const (
	transactionsTable       = "transactions"
	transactionPaymentIndex = "processor_payment_id-index"
)

type transactionItem struct {
	ID                 string `dynamodbav:"id"`
	UserID             string `dynamodbav:"user_id"`
	BillingAccountID   string `dynamodbav:"billing_account_id"`
	Amount             string `dynamodbav:"amount"`
	Currency           string `dynamodbav:"currency"`
	Status             string `dynamodbav:"status"`
	Description        string `dynamodbav:"description,omitempty"`
	ProcessorPaymentID string `dynamodbav:"processor_payment_id,omitempty"`
	PaymentFailureID   string `dynamodbav:"payment_failure_id,omitempty"`
	CreatedAt          string `dynamodbav:"created_at"`
	UpdatedAt          string `dynamodbav:"updated_at"`
}

func toTransactionItem(t *transaction.Transaction) *transactionItem {
	return &transactionItem{
		ID:                 t.ID,
		UserID:             t.UserID,
		BillingAccountID:   t.BillingAccountID,
		Amount:             t.Amount.String(),
		Currency:           t.Currency,
		Status:             string(t.Status),
		Description:        t.Description,
		ProcessorPaymentID: t.ProcessorPaymentID,
		PaymentFailureID:   t.PaymentFailureID,
		CreatedAt:          formatTime(t.CreatedAt),
		UpdatedAt:          formatTime(t.UpdatedAt),
	}
}

func fromTransactionItem(it *transactionItem) *transaction.Transaction {
	amount, _ := decimal.NewFromString(it.Amount)
	return &transaction.Transaction{
		ID:                 it.ID,
		UserID:             it.UserID,
		BillingAccountID:   it.BillingAccountID,
		Amount:             amount,
		Currency:           it.Currency,
		Status:             types.TransactionStatus(it.Status),
		Description:        it.Description,
		ProcessorPaymentID: it.ProcessorPaymentID,
		PaymentFailureID:   it.PaymentFailureID,
		BaseModel: types.BaseModel{
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
		},
	}
}

// TransactionRepository implements transaction.Repository on DynamoDB.
type TransactionRepository struct {
	client *Client
	logger *logger.Logger
}

func NewTransactionRepository(client *Client, log *logger.Logger) transaction.Repository {
	return &TransactionRepository{client: client, logger: log}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *transaction.Transaction) error {
	item, err := attributevalue.MarshalMap(toTransactionItem(txn))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal transaction").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(transactionsTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("transaction already exists").
				WithReportableDetails(map[string]interface{}{"id": txn.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	out, err := r.client.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.client.TableName(transactionsTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get transaction").
			Mark(ierr.ErrDatabase)
	}
	if out.Item == nil {
		return nil, ierr.NewError("transaction not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}

	var item transactionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal transaction").
			Mark(ierr.ErrInternal)
	}
	return fromTransactionItem(&item), nil
}

func (r *TransactionRepository) GetByProcessorPaymentID(ctx context.Context, processorPaymentID string) (*transaction.Transaction, error) {
	out, err := r.client.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.client.TableName(transactionsTable)),
		IndexName:              aws.String(transactionPaymentIndex),
		KeyConditionExpression: aws.String("processor_payment_id = :pid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pid": &ddbtypes.AttributeValueMemberS{Value: processorPaymentID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query transactions").
			Mark(ierr.ErrDatabase)
	}
	if len(out.Items) == 0 {
		return nil, ierr.NewError("transaction not found").
			WithReportableDetails(map[string]interface{}{"processor_payment_id": processorPaymentID}).
			Mark(ierr.ErrNotFound)
	}

	var item transactionItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal transaction").
			Mark(ierr.ErrInternal)
	}
	return fromTransactionItem(&item), nil
}

func (r *TransactionRepository) Update(ctx context.Context, txn *transaction.Transaction) error {
	txn.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(toTransactionItem(txn))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal transaction").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(transactionsTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("transaction not found").
				WithReportableDetails(map[string]interface{}{"id": txn.ID}).
				Mark(ierr.ErrNotFound)
		}
		return ierr.WithError(err).
			WithHint("Failed to update transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status types.TransactionStatus) error {
	_, err := r.client.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.client.TableName(transactionsTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #status = :status, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":status": &ddbtypes.AttributeValueMemberS{Value: string(status)},
			":now":    &ddbtypes.AttributeValueMemberS{Value: formatTime(time.Now())},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("transaction not found").
				WithReportableDetails(map[string]interface{}{"id": id}).
				Mark(ierr.ErrNotFound)
		}
		return ierr.WithError(err).
			WithHint("Failed to update transaction status").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
