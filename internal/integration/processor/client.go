package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/reliabill/reliabill/internal/config"
	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
)

// Gateway defines the interface for payment processor operations. The
// processor is a black box that may be slow, may fail transiently, and whose
// webhook deliveries may arrive duplicated or out of order.
type Gateway interface {
	CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*Customer, error)
	CreatePaymentMethod(ctx context.Context, req *CreatePaymentMethodRequest) (*PaymentMethod, error)
	ProcessPayment(ctx context.Context, req *ProcessPaymentRequest) (*Payment, error)
	CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*Subscription, error)
	UpdateSubscription(ctx context.Context, req *UpdateSubscriptionRequest) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ProcessRefund(ctx context.Context, req *ProcessRefundRequest) (*Refund, error)

	// ConstructWebhookEvent verifies the signature over the raw payload and
	// parses the event. A verification failure is marked ErrInvalidSignature.
	ConstructWebhookEvent(payload []byte, signature string) (*Event, error)

	// ClassifyEvent normalizes a verified event into an action plus data.
	ClassifyEvent(event *Event) (*ClassifiedEvent, error)
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	cfg        config.ProcessorConfig
	logger     *logger.Logger
	httpClient *http.Client
}

// NewClient creates a new processor client. Transient 5xx responses and
// connection errors are retried a bounded number of times; every call is
// bounded by the configured timeout.
func NewClient(cfg config.ProcessorConfig, log *logger.Logger) Gateway {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = log.GetRetryableHTTPLogger()

	return &Client{
		cfg:        cfg,
		logger:     log,
		httpClient: rc.StandardClient(),
	}
}

func (c *Client) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*Customer, error) {
	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", req, &customer); err != nil {
		return nil, err
	}

	c.logger.Infow("created processor customer", "customer_id", customer.ID)
	return &customer, nil
}

func (c *Client) CreatePaymentMethod(ctx context.Context, req *CreatePaymentMethodRequest) (*PaymentMethod, error) {
	var pm PaymentMethod
	if err := c.do(ctx, http.MethodPost, "/payment_methods", req, &pm); err != nil {
		return nil, err
	}

	c.logger.Infow("created processor payment method",
		"payment_method_id", pm.ID,
		"customer_id", pm.CustomerID)
	return &pm, nil
}

func (c *Client) ProcessPayment(ctx context.Context, req *ProcessPaymentRequest) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodPost, "/payments", req, &payment); err != nil {
		return nil, err
	}

	c.logger.Infow("processed payment",
		"payment_id", payment.ID,
		"status", payment.Status,
		"amount", payment.Amount)
	return &payment, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", req, &sub); err != nil {
		return nil, err
	}

	c.logger.Infow("created processor subscription",
		"subscription_id", sub.ID,
		"plan_id", sub.PlanID)
	return &sub, nil
}

func (c *Client) UpdateSubscription(ctx context.Context, req *UpdateSubscriptionRequest) (*Subscription, error) {
	var sub Subscription
	path := "/subscriptions/" + req.SubscriptionID
	if err := c.do(ctx, http.MethodPut, path, req, &sub); err != nil {
		return nil, err
	}

	c.logger.Infow("updated processor subscription",
		"subscription_id", sub.ID,
		"plan_id", sub.PlanID)
	return &sub, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	path := "/subscriptions/" + subscriptionID
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}

	c.logger.Infow("canceled processor subscription", "subscription_id", subscriptionID)
	return nil
}

func (c *Client) ProcessRefund(ctx context.Context, req *ProcessRefundRequest) (*Refund, error) {
	var refund Refund
	path := "/payments/" + req.PaymentID + "/refund"
	if err := c.do(ctx, http.MethodPost, path, req, &refund); err != nil {
		return nil, err
	}

	c.logger.Infow("processed refund",
		"refund_id", refund.ID,
		"payment_id", refund.PaymentID,
		"amount", refund.Amount)
	return &refund, nil
}

// do executes one processor API call. Connection errors and timeouts are
// marked ErrProcessorTransient so callers funnel them into the backoff path;
// a timeout is never treated as success.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Invalid processor request data").
				Mark(ierr.ErrInternal)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return ierr.NewError("failed to create HTTP request").Mark(ierr.ErrInternal)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Errorw("processor request failed", "error", err, "method", method, "path", path)
		return ierr.WithError(err).
			WithHint("Unable to reach the payment processor").
			Mark(ierr.ErrProcessorTransient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ierr.NewError("failed to read processor response").Mark(ierr.ErrProcessorTransient)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classifyHTTPError(resp.StatusCode, respBody, path)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return ierr.NewError("failed to parse processor response").Mark(ierr.ErrInternal)
	}
	return nil
}

// classifyHTTPError maps processor error responses onto the local taxonomy:
// 402 declines carry a decline code, 404 is NotFound, 5xx is transient.
func (c *Client) classifyHTTPError(status int, body []byte, path string) error {
	var errResp ErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch {
	case status == http.StatusPaymentRequired:
		reason := ClassifyDeclineCode(errResp.Code)
		c.logger.Warnw("payment declined by processor",
			"code", errResp.Code,
			"reason", reason,
			"message", errResp.Message)
		return ierr.NewError("payment declined").
			WithHint(errResp.Message).
			WithReportableDetails(map[string]interface{}{
				"code":   errResp.Code,
				"reason": reason,
			}).
			Mark(ierr.ErrProcessorDeclined)
	case status == http.StatusNotFound:
		return ierr.NewError("processor resource not found").
			WithHint(fmt.Sprintf("Resource at %s not found", path)).
			Mark(ierr.ErrNotFound)
	case status >= 500:
		c.logger.Errorw("processor API error", "status", status, "message", errResp.Message)
		return ierr.NewError("processor API error").
			WithHint(fmt.Sprintf("HTTP status %d", status)).
			Mark(ierr.ErrProcessorTransient)
	default:
		c.logger.Errorw("processor rejected request", "status", status, "message", errResp.Message)
		return ierr.NewError("processor rejected request").
			WithHint(fmt.Sprintf("HTTP status %d", status)).
			Mark(ierr.ErrInternal)
	}
}
