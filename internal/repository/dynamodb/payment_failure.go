package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/reliabill/reliabill/internal/domain/paymentfailure"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/types"
)

const (
	paymentFailuresTable   = "payment_failures"
	failureTxnIndex        = "transaction_id-index"
	failureUnresolvedIndex = "unresolved-index"

	// unresolvedPartition is the single partition value of the sparse
	// unresolved index; the attribute is removed when a failure resolves, so
	// only open chains appear in the index.
	unresolvedPartition = "unresolved"

	// claimKeyPrefix keys the per-account claim items that enforce the
	// one-unresolved-failure-per-account invariant with a single conditional
	// write (the store has no multi-record transactions).
	claimKeyPrefix = "claim#"
)

type paymentFailureItem struct {
	ID               string `dynamodbav:"id"`
	TransactionID    string `dynamodbav:"transaction_id"`
	SubscriptionID   string `dynamodbav:"subscription_id,omitempty"`
	BillingAccountID string `dynamodbav:"billing_account_id"`
	UserID           string `dynamodbav:"user_id"`
	Amount           string `dynamodbav:"amount"`
	Currency         string `dynamodbav:"currency"`
	Reason           string `dynamodbav:"reason"`
	ReasonDetails    string `dynamodbav:"reason_details,omitempty"`
	AttemptNumber    int    `dynamodbav:"attempt_number"`
	MaxAttempts      int    `dynamodbav:"max_attempts"`
	NextRetryAt      string `dynamodbav:"next_retry_at"`
	GracePeriodEnds  string `dynamodbav:"grace_period_ends"`
	Resolved         bool   `dynamodbav:"resolved"`
	ResolvedAt       string `dynamodbav:"resolved_at,omitempty"`
	ResolutionMethod string `dynamodbav:"resolution_method,omitempty"`
	EscalatedAt      string `dynamodbav:"escalated_at,omitempty"`

	DunningCampaignID string `dynamodbav:"dunning_campaign_id,omitempty"`
	DunningStepsDone  int    `dynamodbav:"dunning_steps_done"`

	// UnresolvedPK is present only while the failure is unresolved; it is the
	// sparse index partition key.
	UnresolvedPK string `dynamodbav:"unresolved_pk,omitempty"`

	Version   int64  `dynamodbav:"version"`
	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

func toPaymentFailureItem(f *paymentfailure.PaymentFailure) *paymentFailureItem {
	item := &paymentFailureItem{
		ID:                f.ID,
		TransactionID:     f.TransactionID,
		SubscriptionID:    f.SubscriptionID,
		BillingAccountID:  f.BillingAccountID,
		UserID:            f.UserID,
		Amount:            f.Amount.String(),
		Currency:          f.Currency,
		Reason:            string(f.Reason),
		ReasonDetails:     f.ReasonDetails,
		AttemptNumber:     f.AttemptNumber,
		MaxAttempts:       f.MaxAttempts,
		NextRetryAt:       formatTime(f.NextRetryAt),
		GracePeriodEnds:   formatTime(f.GracePeriodEnds),
		Resolved:          f.Resolved,
		ResolvedAt:        formatTimePtr(f.ResolvedAt),
		ResolutionMethod:  string(f.ResolutionMethod),
		EscalatedAt:       formatTimePtr(f.EscalatedAt),
		DunningCampaignID: f.DunningCampaignID,
		DunningStepsDone:  f.DunningStepsDone,
		Version:           f.Version,
		CreatedAt:         formatTime(f.CreatedAt),
		UpdatedAt:         formatTime(f.UpdatedAt),
	}
	if !f.Resolved {
		item.UnresolvedPK = unresolvedPartition
	}
	return item
}

func fromPaymentFailureItem(it *paymentFailureItem) *paymentfailure.PaymentFailure {
	amount, _ := decimal.NewFromString(it.Amount)
	return &paymentfailure.PaymentFailure{
		ID:                it.ID,
		TransactionID:     it.TransactionID,
		SubscriptionID:    it.SubscriptionID,
		BillingAccountID:  it.BillingAccountID,
		UserID:            it.UserID,
		Amount:            amount,
		Currency:          it.Currency,
		Reason:            types.FailureReason(it.Reason),
		ReasonDetails:     it.ReasonDetails,
		AttemptNumber:     it.AttemptNumber,
		MaxAttempts:       it.MaxAttempts,
		NextRetryAt:       parseTime(it.NextRetryAt),
		GracePeriodEnds:   parseTime(it.GracePeriodEnds),
		Resolved:          it.Resolved,
		ResolvedAt:        parseTimePtr(it.ResolvedAt),
		ResolutionMethod:  types.ResolutionMethod(it.ResolutionMethod),
		EscalatedAt:       parseTimePtr(it.EscalatedAt),
		DunningCampaignID: it.DunningCampaignID,
		DunningStepsDone:  it.DunningStepsDone,
		Version:           it.Version,
		BaseModel: types.BaseModel{
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
		},
	}
}

// PaymentFailureRepository implements paymentfailure.Repository on DynamoDB.
type PaymentFailureRepository struct {
	client *Client
	logger *logger.Logger
}

func NewPaymentFailureRepository(client *Client, log *logger.Logger) paymentfailure.Repository {
	return &PaymentFailureRepository{client: client, logger: log}
}

// CreateUnlessUnresolved first claims the per-account slot with a conditional
// create, then writes the failure record. Two concurrent failure reports for
// one account race on the claim; the loser gets ErrAlreadyExists.
func (r *PaymentFailureRepository) CreateUnlessUnresolved(ctx context.Context, failure *paymentfailure.PaymentFailure) error {
	table := aws.String(r.client.TableName(paymentFailuresTable))

	claim := map[string]ddbtypes.AttributeValue{
		"id":         &ddbtypes.AttributeValueMemberS{Value: claimKeyPrefix + failure.BillingAccountID},
		"failure_id": &ddbtypes.AttributeValueMemberS{Value: failure.ID},
		"created_at": &ddbtypes.AttributeValueMemberS{Value: formatTime(failure.CreatedAt)},
	}
	_, err := r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           table,
		Item:                claim,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("an unresolved payment failure already exists for this billing account").
				WithReportableDetails(map[string]interface{}{
					"billing_account_id": failure.BillingAccountID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to claim payment failure slot").
			Mark(ierr.ErrDatabase)
	}

	item, err := attributevalue.MarshalMap(toPaymentFailureItem(failure))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal payment failure").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		// Roll the claim back so the account is not wedged.
		r.releaseClaim(ctx, failure.BillingAccountID)
		return ierr.WithError(err).
			WithHint("Failed to create payment failure").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *PaymentFailureRepository) Get(ctx context.Context, id string) (*paymentfailure.PaymentFailure, error) {
	out, err := r.client.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.client.TableName(paymentFailuresTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment failure").
			Mark(ierr.ErrDatabase)
	}
	if out.Item == nil {
		return nil, ierr.NewError("payment failure not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}

	var item paymentFailureItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal payment failure").
			Mark(ierr.ErrInternal)
	}
	return fromPaymentFailureItem(&item), nil
}

func (r *PaymentFailureRepository) GetByTransactionID(ctx context.Context, transactionID string) (*paymentfailure.PaymentFailure, error) {
	out, err := r.client.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.client.TableName(paymentFailuresTable)),
		IndexName:              aws.String(failureTxnIndex),
		KeyConditionExpression: aws.String("transaction_id = :txn"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":txn": &ddbtypes.AttributeValueMemberS{Value: transactionID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query payment failures").
			Mark(ierr.ErrDatabase)
	}
	if len(out.Items) == 0 {
		return nil, ierr.NewError("payment failure not found").
			WithReportableDetails(map[string]interface{}{"transaction_id": transactionID}).
			Mark(ierr.ErrNotFound)
	}

	var item paymentFailureItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal payment failure").
			Mark(ierr.ErrInternal)
	}
	return fromPaymentFailureItem(&item), nil
}

// GetUnresolvedByAccount resolves the claim item to the open failure.
func (r *PaymentFailureRepository) GetUnresolvedByAccount(ctx context.Context, billingAccountID string) (*paymentfailure.PaymentFailure, error) {
	out, err := r.client.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.client.TableName(paymentFailuresTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: claimKeyPrefix + billingAccountID},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment failure claim").
			Mark(ierr.ErrDatabase)
	}
	if out.Item == nil {
		return nil, ierr.NewError("no unresolved payment failure for billing account").
			WithReportableDetails(map[string]interface{}{"billing_account_id": billingAccountID}).
			Mark(ierr.ErrNotFound)
	}

	var claim struct {
		FailureID string `dynamodbav:"failure_id"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &claim); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal payment failure claim").
			Mark(ierr.ErrInternal)
	}
	return r.Get(ctx, claim.FailureID)
}

func (r *PaymentFailureRepository) ListDue(ctx context.Context, now time.Time) ([]*paymentfailure.PaymentFailure, error) {
	out, err := r.client.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.client.TableName(paymentFailuresTable)),
		IndexName:              aws.String(failureUnresolvedIndex),
		KeyConditionExpression: aws.String("unresolved_pk = :p AND next_retry_at <= :now"),
		FilterExpression:       aws.String("attribute_not_exists(escalated_at)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":p":   &ddbtypes.AttributeValueMemberS{Value: unresolvedPartition},
			":now": &ddbtypes.AttributeValueMemberS{Value: formatTime(now)},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list due payment failures").
			Mark(ierr.ErrDatabase)
	}
	return r.unmarshalList(out.Items)
}

func (r *PaymentFailureRepository) ListUnresolved(ctx context.Context) ([]*paymentfailure.PaymentFailure, error) {
	out, err := r.client.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.client.TableName(paymentFailuresTable)),
		IndexName:              aws.String(failureUnresolvedIndex),
		KeyConditionExpression: aws.String("unresolved_pk = :p"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":p": &ddbtypes.AttributeValueMemberS{Value: unresolvedPartition},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list unresolved payment failures").
			Mark(ierr.ErrDatabase)
	}
	return r.unmarshalList(out.Items)
}

// Update writes the failure with an optimistic version check. When the write
// marks the failure resolved, the per-account claim is released so a new
// failure chain may open.
func (r *PaymentFailureRepository) Update(ctx context.Context, failure *paymentfailure.PaymentFailure) error {
	expected := failure.Version
	failure.Version++
	failure.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(toPaymentFailureItem(failure))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal payment failure").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(paymentFailuresTable)),
		Item:                item,
		ConditionExpression: aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		failure.Version = expected
		if isConditionalCheckFailed(err) {
			return ierr.NewError("payment failure was modified concurrently").
				WithReportableDetails(map[string]interface{}{"id": failure.ID}).
				Mark(ierr.ErrConflict)
		}
		return ierr.WithError(err).
			WithHint("Failed to update payment failure").
			Mark(ierr.ErrDatabase)
	}

	if failure.Resolved {
		r.releaseClaim(ctx, failure.BillingAccountID)
	}
	return nil
}

// releaseClaim deletes the per-account claim item; best effort, a leftover
// claim is repaired on the next resolved-state write.
func (r *PaymentFailureRepository) releaseClaim(ctx context.Context, billingAccountID string) {
	_, err := r.client.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.client.TableName(paymentFailuresTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: claimKeyPrefix + billingAccountID},
		},
	})
	if err != nil {
		r.logger.Warnw("failed to release payment failure claim",
			"billing_account_id", billingAccountID,
			"error", err)
	}
}

func (r *PaymentFailureRepository) unmarshalList(items []map[string]ddbtypes.AttributeValue) ([]*paymentfailure.PaymentFailure, error) {
	failures := make([]*paymentfailure.PaymentFailure, 0, len(items))
	for _, raw := range items {
		var item paymentFailureItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to unmarshal payment failure").
				Mark(ierr.ErrInternal)
		}
		failures = append(failures, fromPaymentFailureItem(&item))
	}
	return failures, nil
}
