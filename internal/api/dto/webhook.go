package dto

// WebhookResponse is the body returned to the processor for every delivery
// that should stop redelivery. Duplicate deliveries still get Received=true;
// senders must see success for duplicates or they redeliver forever.
type WebhookResponse struct {
	Received  bool `json:"received"`
	Processed bool `json:"processed"`
	Duplicate bool `json:"duplicate,omitempty"`
}
