package paystack

import (
	"encoding/json"
	"strings"
	"time"
)

// WebhookEvent is the gateway's server-to-server notification shape:
// {event, data:{reference, status, amount, paid_at, ...}}.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
	} `json:"data"`
}

// ParseWebhookEvent decodes a verified webhook body.
func ParseWebhookEvent(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// IsChargeEvent reports whether the event carries a charge outcome. Other
// event families (transfers, subscriptions) are acknowledged and ignored.
func (e *WebhookEvent) IsChargeEvent() bool {
	return strings.HasPrefix(e.Event, "charge.")
}

// PaymentStatus maps the event to the common observed-payload form, keeping
// the raw body for audit.
func (e *WebhookEvent) PaymentStatus(rawBody []byte) *PaymentStatus {
	status := &PaymentStatus{
		Reference:   e.Data.Reference,
		Status:      e.Data.Status,
		AmountMinor: e.Data.Amount,
		Currency:    e.Data.Currency,
		Raw:         json.RawMessage(rawBody),
	}
	if e.Data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, e.Data.PaidAt); err == nil {
			status.PaidAt = paidAt
		}
	}
	return status
}
