package processor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

const testSecret = "whsec_unit"

func signedPayload(t *testing.T, eventID, eventType string, data map[string]interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":         eventID,
		"type":       eventType,
		"created_at": time.Now().UTC(),
		"data":       data,
	})
	require.NoError(t, err)
	return payload, SignPayload(testSecret, payload)
}

func TestConstructEventRoundTrip(t *testing.T) {
	payload, sig := signedPayload(t, "evt_1", "payment_intent.succeeded", map[string]interface{}{
		"payment_id": "pi_123",
	})

	event, err := ConstructEvent(testSecret, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
}

func TestConstructEventRejectsTamperedPayload(t *testing.T) {
	payload, sig := signedPayload(t, "evt_2", "payment_intent.succeeded", nil)
	payload[len(payload)-2] ^= 0xff

	_, err := ConstructEvent(testSecret, payload, sig)
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidSignature(err))
}

func TestConstructEventRejectsWrongSecret(t *testing.T) {
	payload, sig := signedPayload(t, "evt_3", "payment_intent.succeeded", nil)

	_, err := ConstructEvent("whsec_other", payload, sig)
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidSignature(err))
}

func TestConstructEventRejectsMalformedSignature(t *testing.T) {
	payload, _ := signedPayload(t, "evt_4", "payment_intent.succeeded", nil)

	_, err := ConstructEvent(testSecret, payload, "not-hex!")
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidSignature(err))
}

func TestClassifyKnownEvents(t *testing.T) {
	cases := map[string]types.WebhookAction{
		"payment_intent.succeeded":      types.WebhookActionPaymentSucceeded,
		"payment_intent.payment_failed": types.WebhookActionPaymentFailed,
		"invoice.payment_succeeded":     types.WebhookActionInvoicePaymentSucceeded,
		"invoice.payment_failed":        types.WebhookActionInvoicePaymentFailed,
		"customer.subscription.created": types.WebhookActionSubscriptionCreated,
		"customer.subscription.updated": types.WebhookActionSubscriptionUpdated,
		"customer.subscription.deleted": types.WebhookActionSubscriptionDeleted,
		"charge.dispute.created":        types.WebhookActionDisputeCreated,
	}

	for eventType, action := range cases {
		classified, err := Classify(&Event{ID: "evt", Type: eventType})
		require.NoError(t, err, eventType)
		assert.True(t, classified.Handled, eventType)
		assert.Equal(t, action, classified.Action, eventType)
	}
}

func TestClassifyUnknownEvent(t *testing.T) {
	classified, err := Classify(&Event{ID: "evt", Type: "customer.created"})
	require.NoError(t, err)
	assert.False(t, classified.Handled)
}

func TestClassifyExtractsData(t *testing.T) {
	data, err := json.Marshal(map[string]interface{}{
		"payment_id":   "pi_9",
		"customer_id":  "cus_9",
		"failure_code": "insufficient_funds",
	})
	require.NoError(t, err)

	classified, err := Classify(&Event{
		ID:   "evt",
		Type: "payment_intent.payment_failed",
		Data: data,
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_9", classified.Data.PaymentID)
	assert.Equal(t, "cus_9", classified.Data.CustomerID)
	assert.Equal(t, "insufficient_funds", classified.Data.FailureCode)
}

func TestClassifyDeclineCode(t *testing.T) {
	assert.Equal(t, types.FailureReasonInsufficientFunds, ClassifyDeclineCode("insufficient_funds"))
	assert.Equal(t, types.FailureReasonCardDeclined, ClassifyDeclineCode("do_not_honor"))
	assert.Equal(t, types.FailureReasonExpiredCard, ClassifyDeclineCode("expired_card"))
	assert.Equal(t, types.FailureReasonFraudSuspected, ClassifyDeclineCode("stolen_card"))
	assert.Equal(t, types.FailureReasonProcessingError, ClassifyDeclineCode("something_new"))
	assert.Equal(t, types.FailureReasonProcessingError, ClassifyDeclineCode(""))
}
