package testutil

import (
	"context"
	"sync"

	"github.com/reliabill/reliabill/internal/notification"
)

// MockNotifier implements notification.Notifier and records every dispatch.
type MockNotifier struct {
	mu sync.Mutex

	// EmailErr and SMSErr are returned from the send methods when set.
	EmailErr error
	SMSErr   error

	emails []*notification.EmailRequest
	sms    []*notification.SMSRequest
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (n *MockNotifier) SendEmail(ctx context.Context, req *notification.EmailRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, req)
	return n.EmailErr
}

func (n *MockNotifier) SendSMS(ctx context.Context, req *notification.SMSRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sms = append(n.sms, req)
	return n.SMSErr
}

// Emails returns the recorded email dispatches.
func (n *MockNotifier) Emails() []*notification.EmailRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*notification.EmailRequest(nil), n.emails...)
}

// SMS returns the recorded SMS dispatches.
func (n *MockNotifier) SMS() []*notification.SMSRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*notification.SMSRequest(nil), n.sms...)
}

// EmailTemplates returns the templates of recorded emails in dispatch order.
func (n *MockNotifier) EmailTemplates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.emails))
	for _, e := range n.emails {
		out = append(out, e.Template)
	}
	return out
}

// Reset clears every recorded dispatch.
func (n *MockNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = nil
	n.sms = nil
}
