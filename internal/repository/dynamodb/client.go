package dynamodb

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"

	"github.com/reliabill/reliabill/internal/config"
	ierr "github.com/reliabill/reliabill/internal/errors"
)

// timeFormat is the stored representation for timestamps. RFC3339Nano in UTC
// sorts lexicographically, which the due-time range queries rely on.
const timeFormat = time.RFC3339Nano

// Client wraps the DynamoDB client with table naming for this deployment.
type Client struct {
	db          *dynamodb.Client
	tablePrefix string
}

// NewClient creates a DynamoDB-backed store client. Endpoint is overridable
// for local development against dynamodb-local.
func NewClient(ctx context.Context, cfg config.DynamoDBConfig) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load AWS configuration").
			Mark(ierr.ErrInternal)
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
	})

	return &Client{db: db, tablePrefix: cfg.TablePrefix}, nil
}

// TableName returns the fully qualified table name for an entity collection.
func (c *Client) TableName(entity string) string {
	if c.tablePrefix == "" {
		return entity
	}
	return c.tablePrefix + "_" + entity
}

// isConditionalCheckFailed reports whether err is a failed DynamoDB condition
// expression, i.e. a lost conditional write.
func isConditionalCheckFailed(err error) bool {
	var ccf *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}
