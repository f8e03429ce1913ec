package testutil

import (
	"context"
	"sync"

	"github.com/reliabill/reliabill/internal/integration/processor"
	"github.com/reliabill/reliabill/internal/types"
)

// TestWebhookSecret signs webhook payloads in tests.
const TestWebhookSecret = "whsec_test"

// MockGateway implements processor.Gateway for tests. Payment outcomes are
// driven by PaymentFn; webhook verification and classification reuse the real
// logic with a fixed test secret.
type MockGateway struct {
	mu sync.Mutex

	// PaymentFn decides the outcome of ProcessPayment. When nil, every
	// payment succeeds.
	PaymentFn func(req *processor.ProcessPaymentRequest) (*processor.Payment, error)

	// CancelSubscriptionErr is returned from CancelSubscription when set.
	CancelSubscriptionErr error

	payments      []*processor.ProcessPaymentRequest
	cancellations []string
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// PaymentRequests returns every ProcessPayment call recorded so far.
func (g *MockGateway) PaymentRequests() []*processor.ProcessPaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*processor.ProcessPaymentRequest(nil), g.payments...)
}

// CanceledSubscriptions returns the subscription ids passed to CancelSubscription.
func (g *MockGateway) CanceledSubscriptions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancellations...)
}

func (g *MockGateway) CreateCustomer(ctx context.Context, req *processor.CreateCustomerRequest) (*processor.Customer, error) {
	return &processor.Customer{
		ID:    types.GenerateUUIDWithPrefix("cus"),
		Email: req.Email,
	}, nil
}

func (g *MockGateway) CreatePaymentMethod(ctx context.Context, req *processor.CreatePaymentMethodRequest) (*processor.PaymentMethod, error) {
	return &processor.PaymentMethod{
		ID:         types.GenerateUUIDWithPrefix("pm"),
		CustomerID: req.CustomerID,
	}, nil
}

func (g *MockGateway) ProcessPayment(ctx context.Context, req *processor.ProcessPaymentRequest) (*processor.Payment, error) {
	g.mu.Lock()
	g.payments = append(g.payments, req)
	fn := g.PaymentFn
	g.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &processor.Payment{
		ID:       types.GenerateUUIDWithPrefix("pay"),
		Status:   "succeeded",
		Amount:   req.Amount,
		Currency: req.Currency,
	}, nil
}

func (g *MockGateway) CreateSubscription(ctx context.Context, req *processor.CreateSubscriptionRequest) (*processor.Subscription, error) {
	return &processor.Subscription{
		ID:         types.GenerateUUIDWithPrefix("sub"),
		CustomerID: req.CustomerID,
		PlanID:     req.PlanID,
		Status:     "active",
	}, nil
}

func (g *MockGateway) UpdateSubscription(ctx context.Context, req *processor.UpdateSubscriptionRequest) (*processor.Subscription, error) {
	return &processor.Subscription{
		ID:     req.SubscriptionID,
		PlanID: req.PlanID,
		Status: "active",
	}, nil
}

func (g *MockGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	g.mu.Lock()
	g.cancellations = append(g.cancellations, subscriptionID)
	err := g.CancelSubscriptionErr
	g.mu.Unlock()
	return err
}

func (g *MockGateway) ProcessRefund(ctx context.Context, req *processor.ProcessRefundRequest) (*processor.Refund, error) {
	return &processor.Refund{
		ID:        types.GenerateUUIDWithPrefix("re"),
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Status:    "succeeded",
	}, nil
}

func (g *MockGateway) ConstructWebhookEvent(payload []byte, signature string) (*processor.Event, error) {
	return processor.ConstructEvent(TestWebhookSecret, payload, signature)
}

func (g *MockGateway) ClassifyEvent(event *processor.Event) (*processor.ClassifiedEvent, error) {
	return processor.Classify(event)
}
