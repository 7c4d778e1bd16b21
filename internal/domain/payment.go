package domain

import "time"

// PaymentOutcome is the terminal result of a single charge attempt.
type PaymentOutcome string

const (
	PaymentSuccess PaymentOutcome = "success"
	PaymentFailed  PaymentOutcome = "failed"
)

// PaymentEntry is one row of the append-only payment history ledger.
// Entries join to subscriptions through the delegated key, not the
// subscription id.
type PaymentEntry struct {
	ID             string         `json:"id"`
	DelegatedKeyID string         `json:"delegatedKeyId"`
	Amount         int64          `json:"amount"` // whole tokens
	TxRef          string         `json:"txRef"`  // empty if the attempt never reached the ledger
	Outcome        PaymentOutcome `json:"outcome"`
	RecordedAt     time.Time      `json:"recordedAt"`
}
