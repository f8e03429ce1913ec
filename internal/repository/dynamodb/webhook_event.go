package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/reliabill/reliabill/internal/domain/webhookevent"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/types"
)

const processedEventsTable = "processed_webhook_events"

type webhookEventItem struct {
	// DedupKey is "<processor>#<event id>", the table's primary key and the
	// uniqueness constraint behind at-most-one dispatch.
	DedupKey      string `dynamodbav:"dedup_key"`
	EventID       string `dynamodbav:"event_id"`
	ProcessorType string `dynamodbav:"processor_type"`
	EventType     string `dynamodbav:"event_type"`
	Action        string `dynamodbav:"action,omitempty"`
	Processed     bool   `dynamodbav:"processed"`
	RetryCount    int    `dynamodbav:"retry_count"`
	MaxRetries    int    `dynamodbav:"max_retries"`
	Error         string `dynamodbav:"error,omitempty"`
	CreatedAt     string `dynamodbav:"created_at"`
	UpdatedAt     string `dynamodbav:"updated_at"`
}

func toWebhookEventItem(e *webhookevent.ProcessedWebhookEvent) *webhookEventItem {
	return &webhookEventItem{
		DedupKey:      e.DedupKey(),
		EventID:       e.ID,
		ProcessorType: string(e.ProcessorType),
		EventType:     e.EventType,
		Action:        string(e.Action),
		Processed:     e.Processed,
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		Error:         e.Error,
		CreatedAt:     formatTime(e.CreatedAt),
		UpdatedAt:     formatTime(e.UpdatedAt),
	}
}

func fromWebhookEventItem(it *webhookEventItem) *webhookevent.ProcessedWebhookEvent {
	return &webhookevent.ProcessedWebhookEvent{
		ID:            it.EventID,
		ProcessorType: types.ProcessorType(it.ProcessorType),
		EventType:     it.EventType,
		Action:        types.WebhookAction(it.Action),
		Processed:     it.Processed,
		RetryCount:    it.RetryCount,
		MaxRetries:    it.MaxRetries,
		Error:         it.Error,
		BaseModel: types.BaseModel{
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
		},
	}
}

// WebhookEventRepository implements webhookevent.Repository on DynamoDB.
type WebhookEventRepository struct {
	client *Client
	logger *logger.Logger
}

func NewWebhookEventRepository(client *Client, log *logger.Logger) webhookevent.Repository {
	return &WebhookEventRepository{client: client, logger: log}
}

func (r *WebhookEventRepository) CreateIfAbsent(ctx context.Context, event *webhookevent.ProcessedWebhookEvent) error {
	item, err := attributevalue.MarshalMap(toWebhookEventItem(event))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal webhook event").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(processedEventsTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(dedup_key)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("webhook event already recorded").
				WithReportableDetails(map[string]interface{}{
					"processor_type": event.ProcessorType,
					"event_id":       event.ID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to record webhook event").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *WebhookEventRepository) Get(ctx context.Context, processor types.ProcessorType, eventID string) (*webhookevent.ProcessedWebhookEvent, error) {
	out, err := r.client.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.client.TableName(processedEventsTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"dedup_key": &ddbtypes.AttributeValueMemberS{Value: webhookevent.DedupKey(processor, eventID)},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get webhook event").
			Mark(ierr.ErrDatabase)
	}
	if out.Item == nil {
		return nil, ierr.NewError("webhook event not found").
			WithReportableDetails(map[string]interface{}{
				"processor_type": processor,
				"event_id":       eventID,
			}).
			Mark(ierr.ErrNotFound)
	}

	var item webhookEventItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal webhook event").
			Mark(ierr.ErrInternal)
	}
	return fromWebhookEventItem(&item), nil
}

func (r *WebhookEventRepository) Update(ctx context.Context, event *webhookevent.ProcessedWebhookEvent) error {
	event.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(toWebhookEventItem(event))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal webhook event").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(processedEventsTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(dedup_key)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("webhook event not found").
				WithReportableDetails(map[string]interface{}{"event_id": event.ID}).
				Mark(ierr.ErrNotFound)
		}
		return ierr.WithError(err).
			WithHint("Failed to update webhook event").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
