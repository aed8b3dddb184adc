package payment

import (
	"context"
	"strings"
)

type WebhookError struct {
	Message string
}

func (e *WebhookError) Error() string { return e.Message }

// ChargeRetriever fetches the authoritative charge state.
type ChargeRetriever interface {
	RetrieveCharge(ctx context.Context, chargeID string, opts RequestOptions) (Response, error)
}

type WebhookResult struct {
	Handled bool           `json:"handled"`
	Event   map[string]any `json:"event"`
	Charge  Response       `json:"charge,omitempty"`
}

// HandleWebhookEvent acts on charge.complete only; the event body is never
// trusted, the charge is re-read from the gateway.
func HandleWebhookEvent(ctx context.Context, event map[string]any, client ChargeRetriever) (WebhookResult, error) {
	if event == nil {
		return WebhookResult{}, &WebhookError{Message: "Omise webhook payload must be an object."}
	}
	if key, _ := event["key"].(string); key != "charge.complete" {
		return WebhookResult{Handled: false, Event: event}, nil
	}

	charge, ok := event["data"].(map[string]any)
	if !ok || charge == nil {
		return WebhookResult{}, &WebhookError{Message: "Omise charge.complete webhook payload is missing charge data."}
	}
	if obj, present := charge["object"]; present && obj != "charge" {
		return WebhookResult{}, &WebhookError{Message: "Omise charge.complete webhook payload did not include a charge object."}
	}
	id, _ := charge["id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return WebhookResult{}, &WebhookError{Message: "Omise charge.complete webhook payload did not include a charge id."}
	}

	fresh, err := client.RetrieveCharge(ctx, id, RequestOptions{})
	if err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Handled: true, Event: event, Charge: fresh}, nil
}
