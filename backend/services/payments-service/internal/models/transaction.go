package models

import (
	"encoding/json"
	"time"
)

// Transaction statuses. Transitions are monotonic: pending may move to
// completed or failed exactly once; terminal states never change again.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is one checkout attempt in the payment ledger. The gateway
// reference is the sole correlation key between the webhook and client
// confirmation paths.
type Transaction struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"user_id"`
	CourseID         int64           `db:"course_id" json:"course_id"`
	GatewayReference string          `db:"gateway_reference" json:"gateway_reference"`
	AmountMinor      int64           `db:"amount_minor" json:"amount_minor"`
	Currency         string          `db:"currency" json:"currency"`
	Status           string          `db:"status" json:"status"`
	GatewayPayload   json.RawMessage `db:"gateway_payload" json:"-"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the transaction has reached an absorbing state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}
