package domain

import (
	"time"

	"github.com/streamgate/backend/pkg/ledger"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	// StatusPendingActivation means the subscription exists but its
	// activating charge (the one that registers the delegated key
	// on-chain) has not confirmed yet.
	StatusPendingActivation Status = "pending_activation"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCancelled         Status = "cancelled" // terminal
)

// Chargeable reports whether a charge attempt against this status is
// allowed at all.
func (s Status) Chargeable() bool {
	return s == StatusPendingActivation || s == StatusActive || s == StatusPastDue
}

// Subscription is a user's recurring billing agreement. The delegated
// private key is deliberately NOT part of this struct; it lives behind
// the key vault so that reading a subscription never yields signing
// capability.
type Subscription struct {
	ID          string `json:"id"`
	UserAddress string `json:"userAddress"` // lower-cased
	PlanID      string `json:"planId"`
	Status      Status `json:"status"`

	// DelegatedKeyID is the address of the limited-spending key the user
	// authorized for this subscription. Payment history joins on it.
	DelegatedKeyID string `json:"delegatedKeyId"` // lower-cased

	// KeyRegistered records whether the delegated key's one-time
	// authorization has been consumed by a confirmed charge. The charge
	// protocol attaches the authorization exactly when this is false.
	KeyRegistered bool `json:"keyRegistered"`

	NextChargeDueAt time.Time `json:"nextChargeDueAt"`

	// One-time signed authorization, kept verbatim until consumed.
	AuthPayload   string `json:"-"`
	AuthSignature string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActivateRequest is the input for creating a subscription.
type ActivateRequest struct {
	UserAddress            string                      `json:"userAddress" validate:"required,startswith=0x"`
	PlanID                 string                      `json:"planId" validate:"required"`
	SubscriptionPrivateKey string                      `json:"subscriptionPrivateKey" validate:"required,startswith=0x"`
	SignedAuthorization    *ledger.SignedAuthorization `json:"signedAuthorization" validate:"required"`
}

// SubscriptionView is what GetSubscription returns: the subscription
// plus its recent payment history, newest first.
type SubscriptionView struct {
	Subscription *Subscription  `json:"subscription"`
	History      []PaymentEntry `json:"history"`
}
