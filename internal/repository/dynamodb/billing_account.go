package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/reliabill/reliabill/internal/domain/billingaccount"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/types"
)

const (
	billingAccountsTable    = "billing_accounts"
	billingAccountUserIndex = "user_id-index"
	billingAccountCustIndex = "customer_id-index"
	billingAccountSubIndex  = "subscription_id-index"
)

// billingAccountItem is the stored shape of a billing account. Money is kept
// as a decimal string; timestamps as sortable RFC3339 strings.
type billingAccountItem struct {
	ID              string `dynamodbav:"id"`
	UserID          string `dynamodbav:"user_id"`
	CustomerID      string `dynamodbav:"customer_id"`
	PaymentMethodID string `dynamodbav:"payment_method_id"`
	SubscriptionID  string `dynamodbav:"subscription_id,omitempty"`
	PlanID          string `dynamodbav:"plan_id"`
	Amount          string `dynamodbav:"amount"`
	Currency        string `dynamodbav:"currency"`
	Status          string `dynamodbav:"status"`
	NextBillingDate string `dynamodbav:"next_billing_date"`
	CanceledAt      string `dynamodbav:"canceled_at,omitempty"`
	Version         int64  `dynamodbav:"version"`
	CreatedAt       string `dynamodbav:"created_at"`
	UpdatedAt       string `dynamodbav:"updated_at"`
}

func toBillingAccountItem(a *billingaccount.BillingAccount) *billingAccountItem {
	return &billingAccountItem{
		ID:              a.ID,
		UserID:          a.UserID,
		CustomerID:      a.CustomerID,
		PaymentMethodID: a.PaymentMethodID,
		SubscriptionID:  a.SubscriptionID,
		PlanID:          a.PlanID,
		Amount:          a.Amount.String(),
		Currency:        a.Currency,
		Status:          string(a.Status),
		NextBillingDate: formatTime(a.NextBillingDate),
		CanceledAt:      formatTimePtr(a.CanceledAt),
		Version:         a.Version,
		CreatedAt:       formatTime(a.CreatedAt),
		UpdatedAt:       formatTime(a.UpdatedAt),
	}
}

func fromBillingAccountItem(it *billingAccountItem) *billingaccount.BillingAccount {
	amount, _ := decimal.NewFromString(it.Amount)
	return &billingaccount.BillingAccount{
		ID:              it.ID,
		UserID:          it.UserID,
		CustomerID:      it.CustomerID,
		PaymentMethodID: it.PaymentMethodID,
		SubscriptionID:  it.SubscriptionID,
		PlanID:          it.PlanID,
		Amount:          amount,
		Currency:        it.Currency,
		Status:          types.BillingAccountStatus(it.Status),
		NextBillingDate: parseTime(it.NextBillingDate),
		CanceledAt:      parseTimePtr(it.CanceledAt),
		Version:         it.Version,
		BaseModel: types.BaseModel{
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
		},
	}
}

// BillingAccountRepository implements billingaccount.Repository on DynamoDB.
type BillingAccountRepository struct {
	client *Client
	logger *logger.Logger
}

func NewBillingAccountRepository(client *Client, log *logger.Logger) billingaccount.Repository {
	return &BillingAccountRepository{client: client, logger: log}
}

func (r *BillingAccountRepository) Create(ctx context.Context, account *billingaccount.BillingAccount) error {
	item, err := attributevalue.MarshalMap(toBillingAccountItem(account))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal billing account").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(billingAccountsTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("billing account already exists").
				WithReportableDetails(map[string]interface{}{"id": account.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create billing account").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *BillingAccountRepository) Get(ctx context.Context, id string) (*billingaccount.BillingAccount, error) {
	out, err := r.client.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.client.TableName(billingAccountsTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get billing account").
			Mark(ierr.ErrDatabase)
	}
	if out.Item == nil {
		return nil, ierr.NewError("billing account not found").
			WithHint("Billing account does not exist").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}

	var item billingAccountItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal billing account").
			Mark(ierr.ErrInternal)
	}
	return fromBillingAccountItem(&item), nil
}

func (r *BillingAccountRepository) GetByUserID(ctx context.Context, userID string) (*billingaccount.BillingAccount, error) {
	return r.queryOne(ctx, billingAccountUserIndex, "user_id", userID)
}

func (r *BillingAccountRepository) GetByCustomerID(ctx context.Context, customerID string) (*billingaccount.BillingAccount, error) {
	return r.queryOne(ctx, billingAccountCustIndex, "customer_id", customerID)
}

func (r *BillingAccountRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*billingaccount.BillingAccount, error) {
	return r.queryOne(ctx, billingAccountSubIndex, "subscription_id", subscriptionID)
}

func (r *BillingAccountRepository) queryOne(ctx context.Context, index, attr, value string) (*billingaccount.BillingAccount, error) {
	out, err := r.client.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.client.TableName(billingAccountsTable)),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", attr)),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":v": &ddbtypes.AttributeValueMemberS{Value: value},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query billing accounts").
			Mark(ierr.ErrDatabase)
	}
	if len(out.Items) == 0 {
		return nil, ierr.NewError("billing account not found").
			WithHint("Billing account does not exist").
			WithReportableDetails(map[string]interface{}{attr: value}).
			Mark(ierr.ErrNotFound)
	}

	var item billingAccountItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal billing account").
			Mark(ierr.ErrInternal)
	}
	return fromBillingAccountItem(&item), nil
}

// Update writes the account guarded by an optimistic version check.
func (r *BillingAccountRepository) Update(ctx context.Context, account *billingaccount.BillingAccount) error {
	expected := account.Version
	account.Version++
	account.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(toBillingAccountItem(account))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal billing account").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(billingAccountsTable)),
		Item:                item,
		ConditionExpression: aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		account.Version = expected
		if isConditionalCheckFailed(err) {
			return ierr.NewError("billing account was modified concurrently").
				WithReportableDetails(map[string]interface{}{"id": account.ID}).
				Mark(ierr.ErrConflict)
		}
		return ierr.WithError(err).
			WithHint("Failed to update billing account").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// UpdateStatus conditionally transitions the status: the write only succeeds
// when the current status is one of allowedFrom, so a stale event cannot
// regress state already advanced by a newer one. Transitioning to canceled
// also stamps canceled_at.
func (r *BillingAccountRepository) UpdateStatus(ctx context.Context, id string, to types.BillingAccountStatus, allowedFrom ...types.BillingAccountStatus) (*billingaccount.BillingAccount, error) {
	if len(allowedFrom) == 0 {
		allowedFrom = types.SourcesFor(to)
	}

	now := time.Now().UTC()
	update := "SET #status = :to, updated_at = :now, version = version + :one"
	values := map[string]ddbtypes.AttributeValue{
		":to":  &ddbtypes.AttributeValueMemberS{Value: string(to)},
		":now": &ddbtypes.AttributeValueMemberS{Value: formatTime(now)},
		":one": &ddbtypes.AttributeValueMemberN{Value: "1"},
	}
	if to == types.BillingAccountStatusCanceled {
		update += ", canceled_at = :canceled_at"
		values[":canceled_at"] = &ddbtypes.AttributeValueMemberS{Value: formatTime(now)}
	}

	// #status IN (:from0, :from1, ...). The target itself is excluded: a
	// re-apply of the same transition loses the write, so callers can tell a
	// real transition from a repeat and skip one-shot side effects.
	placeholders := []string{}
	for i, from := range allowedFrom {
		ph := fmt.Sprintf(":from%d", i)
		placeholders = append(placeholders, ph)
		values[ph] = &ddbtypes.AttributeValueMemberS{Value: string(from)}
	}
	condition := fmt.Sprintf("attribute_exists(id) AND #status IN (%s)", strings.Join(placeholders, ", "))

	out, err := r.client.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.client.TableName(billingAccountsTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              ddbtypes.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, ierr.NewError("billing account status transition rejected").
				WithReportableDetails(map[string]interface{}{
					"id": id,
					"to": to,
				}).
				Mark(ierr.ErrConflict)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to update billing account status").
			Mark(ierr.ErrDatabase)
	}

	var item billingAccountItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal billing account").
			Mark(ierr.ErrInternal)
	}
	return fromBillingAccountItem(&item), nil
}
