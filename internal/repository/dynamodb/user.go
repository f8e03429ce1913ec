package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/reliabill/reliabill/internal/domain/user"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/types"
)

const usersTable = "users"

type userItem struct {
	ID               string `dynamodbav:"id"`
	Email            string `dynamodbav:"email"`
	Phone            string `dynamodbav:"phone,omitempty"`
	Name             string `dynamodbav:"name,omitempty"`
	PremiumActive    bool   `dynamodbav:"premium_active"`
	PremiumExpiresAt string `dynamodbav:"premium_expires_at,omitempty"`
	CreatedAt        string `dynamodbav:"created_at"`
	UpdatedAt        string `dynamodbav:"updated_at"`
}

func toUserItem(u *user.User) *userItem {
	return &userItem{
		ID:               u.ID,
		Email:            u.Email,
		Phone:            u.Phone,
		Name:             u.Name,
		PremiumActive:    u.PremiumActive,
		PremiumExpiresAt: formatTimePtr(u.PremiumExpiresAt),
		CreatedAt:        formatTime(u.CreatedAt),
		UpdatedAt:        formatTime(u.UpdatedAt),
	}
}

func fromUserItem(it *userItem) *user.User {
	return &user.User{
		ID:               it.ID,
		Email:            it.Email,
		Phone:            it.Phone,
		Name:             it.Name,
		PremiumActive:    it.PremiumActive,
		PremiumExpiresAt: parseTimePtr(it.PremiumExpiresAt),
		BaseModel: types.BaseModel{
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
		},
	}
}

// UserRepository implements user.Repository on DynamoDB.
type UserRepository struct {
	client *Client
	logger *logger.Logger
}

func NewUserRepository(client *Client, log *logger.Logger) user.Repository {
	return &UserRepository{client: client, logger: log}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	out, err := r.client.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.client.TableName(usersTable)),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get user").
			Mark(ierr.ErrDatabase)
	}
	if out.Item == nil {
		return nil, ierr.NewError("user not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal user").
			Mark(ierr.ErrInternal)
	}
	return fromUserItem(&item), nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(toUserItem(u))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal user").
			Mark(ierr.ErrInternal)
	}

	_, err = r.client.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.client.TableName(usersTable)),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ierr.NewError("user not found").
				WithReportableDetails(map[string]interface{}{"id": u.ID}).
				Mark(ierr.ErrNotFound)
		}
		return ierr.WithError(err).
			WithHint("Failed to update user").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
