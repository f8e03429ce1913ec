package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	ierr "github.com/reliabill/reliabill/internal/errors"
)

// SignPayload computes the hex HMAC-SHA256 signature the processor attaches
// to webhook deliveries.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstructEvent verifies the HMAC-SHA256 signature over the raw payload and
// parses the event. Verification failures are marked ErrInvalidSignature and
// must not be recorded in the processed-event ledger, so a corrected
// redelivery is not blocked.
func ConstructEvent(secret string, payload []byte, signature string) (*Event, error) {
	if secret == "" {
		return nil, ierr.NewError("webhook secret not configured").
			WithHint("Configure the processor webhook secret").
			Mark(ierr.ErrValidation)
	}

	decodedSignature, err := hex.DecodeString(signature)
	if err != nil {
		return nil, ierr.NewError("invalid webhook signature format").
			WithHint("Signature must be a valid hex string").
			Mark(ierr.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expectedMAC := mac.Sum(nil)

	// Constant-time comparison to prevent timing attacks.
	if !hmac.Equal(expectedMAC, decodedSignature) {
		return nil, ierr.NewError("webhook signature verification failed").
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrInvalidSignature)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Webhook payload is not valid JSON").
			Mark(ierr.ErrValidation)
	}
	if event.ID == "" || event.Type == "" {
		return nil, ierr.NewError("webhook event missing id or type").
			Mark(ierr.ErrValidation)
	}

	return &event, nil
}

// Classify normalizes a verified event into an action plus extracted data.
// Event types outside the action table come back with Handled=false; the
// pipeline logs and ignores them.
func Classify(event *Event) (*ClassifiedEvent, error) {
	action, ok := eventActions[event.Type]
	if !ok {
		return &ClassifiedEvent{Handled: false}, nil
	}

	var data EventData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Webhook event data is malformed").
				WithReportableDetails(map[string]interface{}{
					"event_id":   event.ID,
					"event_type": event.Type,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	return &ClassifiedEvent{
		Handled: true,
		Action:  action,
		Data:    data,
	}, nil
}

func (c *Client) ConstructWebhookEvent(payload []byte, signature string) (*Event, error) {
	event, err := ConstructEvent(c.cfg.WebhookSecret, payload, signature)
	if err != nil {
		if ierr.IsInvalidSignature(err) {
			c.logger.Warnw("webhook signature mismatch", "payload_length", len(payload))
		}
		return nil, err
	}
	return event, nil
}

func (c *Client) ClassifyEvent(event *Event) (*ClassifiedEvent, error) {
	return Classify(event)
}
