package service

import (
	"context"
	"encoding/json"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/streamgate/backend/internal/domain"
	"github.com/streamgate/backend/pkg/ledger"
)

// historyLimit caps how many payment entries a status query returns.
const historyLimit = 20

// SubscriptionStore is the persistence surface the billing engine needs.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	Get(ctx context.Context, id string) (*domain.Subscription, error)
	FindCurrentByUser(ctx context.Context, userAddress string) (*domain.Subscription, error)
	FindDue(ctx context.Context, now time.Time) ([]*domain.Subscription, error)
	// RecordChargeOutcome must be a no-op when the row is already
	// cancelled, so an in-flight charge can never resurrect a
	// cancelled subscription.
	RecordChargeOutcome(ctx context.Context, id string, status domain.Status, keyRegistered bool, nextDue time.Time) error
	MarkCancelled(ctx context.Context, id string) error
}

// HistoryStore is the append-only payment ledger.
type HistoryStore interface {
	Append(ctx context.Context, entry *domain.PaymentEntry) error
	ListByKey(ctx context.Context, delegatedKeyID string, limit int) ([]domain.PaymentEntry, error)
}

// BillingService owns the subscription lifecycle and the charge
// protocol. All charge executions for one subscription are serialized
// through a per-subscription lock; different subscriptions run freely
// in parallel.
type BillingService struct {
	subs     SubscriptionStore
	history  HistoryStore
	vault    *KeyVault
	ledger   ledger.Client
	catalog  *domain.Catalog
	operator string // recipient of every charge
	validate *validator.Validate

	locks sync.Map // subscription id -> *sync.Mutex
	now   func() time.Time
}

func NewBillingService(subs SubscriptionStore, history HistoryStore, vault *KeyVault, lc ledger.Client, catalog *domain.Catalog, operator string) *BillingService {
	return &BillingService{
		subs:     subs,
		history:  history,
		vault:    vault,
		ledger:   lc,
		catalog:  catalog,
		operator: strings.ToLower(operator),
		validate: validator.New(),
		now:      time.Now,
	}
}

// Activate creates a subscription and runs its first charge inline.
//
// The subscription is persisted, with its due time already pushed one
// interval out, BEFORE the charge is attempted: a sweep pass racing the
// activation never sees the new row as due, and a crash mid-charge
// leaves a recoverable pending_activation row instead of an orphaned
// payment. The inline charge's failure is absorbed into the
// subscription status, so Activate succeeds even when the first charge
// does not.
func (s *BillingService) Activate(ctx context.Context, req domain.ActivateRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", domain.ErrValidation("invalid subscription request: " + err.Error())
	}

	plan, ok := s.catalog.Lookup(req.PlanID)
	if !ok {
		return "", domain.ErrBadRequest("invalid plan id")
	}

	auth := req.SignedAuthorization
	if auth == nil || auth.Authorization.Address == "" || auth.Signature == "" {
		return "", domain.ErrValidation("invalid authorization payload")
	}

	payload, err := json.Marshal(auth.Authorization)
	if err != nil {
		return "", domain.ErrValidation("invalid authorization payload")
	}

	now := s.now()
	sub := &domain.Subscription{
		ID:              uuid.New().String(),
		UserAddress:     strings.ToLower(req.UserAddress),
		PlanID:          plan.ID,
		Status:          domain.StatusPendingActivation,
		DelegatedKeyID:  strings.ToLower(auth.Authorization.Address),
		KeyRegistered:   false,
		NextChargeDueAt: now.Add(time.Duration(plan.IntervalSeconds) * time.Second),
		AuthPayload:     string(payload),
		AuthSignature:   auth.Signature,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return "", domain.ErrInternal("failed to persist subscription", err)
	}
	if err := s.vault.Store(ctx, sub.ID, req.SubscriptionPrivateKey); err != nil {
		return "", domain.ErrInternal("failed to store delegated key", err)
	}

	log.Printf("[Billing] Subscription %s created for %s (plan %s), charging inline", sub.ID, sub.UserAddress, plan.ID)

	if err := s.Charge(ctx, sub.ID); err != nil {
		// Storage-level failure only; billing failures were absorbed.
		return "", domain.ErrInternal("charge bookkeeping failed", err)
	}
	return sub.ID, nil
}

// Charge runs the charge protocol for a subscription regardless of its
// due time. Used for the inline activating charge and manual retries.
func (s *BillingService) Charge(ctx context.Context, subscriptionID string) error {
	return s.charge(ctx, subscriptionID, false)
}

// ChargeDue runs the charge protocol only if the subscription is still
// due once the per-subscription lock is held. Sweep passes use this so
// two overlapping passes charge a subscription at most once.
func (s *BillingService) ChargeDue(ctx context.Context, subscriptionID string) error {
	return s.charge(ctx, subscriptionID, true)
}

func (s *BillingService) charge(ctx context.Context, subscriptionID string, onlyIfDue bool) error {
	unlock := s.lock(subscriptionID)
	defer unlock()

	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || !sub.Status.Chargeable() {
		return nil
	}
	if onlyIfDue && sub.NextChargeDueAt.After(s.now()) {
		// A concurrent run already charged and advanced the due time.
		return nil
	}

	plan, ok := s.catalog.Lookup(sub.PlanID)
	if !ok {
		log.Printf("[Billing] Subscription %s references unknown plan %s, skipping", sub.ID, sub.PlanID)
		return nil
	}

	// The authorization is attached exactly when the delegated key has
	// not yet been registered on-chain. A retry after a failed
	// activating charge therefore re-attaches it, instead of leaving
	// the key unregistered forever.
	activating := !sub.KeyRegistered
	log.Printf("[Billing] Charging subscription %s (plan %s, activating=%v)", sub.ID, plan.ID, activating)

	receipt, err := s.submit(ctx, sub, plan, activating)
	if err != nil || !receipt.Confirmed {
		if err != nil {
			log.Printf("[Billing] Charge failed for %s: %v", sub.ID, err)
		} else {
			log.Printf("[Billing] Charge reverted on-chain for %s (tx %s)", sub.ID, receipt.TxHash)
		}
		return s.recordFailure(ctx, sub, plan, activating)
	}

	return s.recordSuccess(ctx, sub, plan, activating, receipt.TxHash)
}

// submit rebuilds the signer and hands the transfer to the ledger.
func (s *BillingService) submit(ctx context.Context, sub *domain.Subscription, plan domain.Plan, activating bool) (*ledger.Receipt, error) {
	keyHex, err := s.vault.SignerKey(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	var auth *ledger.SignedAuthorization
	if activating {
		var payload ledger.Authorization
		if err := json.Unmarshal([]byte(sub.AuthPayload), &payload); err != nil {
			return nil, err
		}
		auth = &ledger.SignedAuthorization{Authorization: payload, Signature: sub.AuthSignature}
	}

	return s.ledger.SubmitCharge(ctx, ledger.ChargeRequest{
		SignerKeyHex:  keyHex,
		PayerAddress:  sub.UserAddress,
		Recipient:     s.operator,
		Token:         plan.CurrencyAddress,
		AmountMinor:   big.NewInt(plan.AmountMinor()),
		Authorization: auth,
	})
}

func (s *BillingService) recordSuccess(ctx context.Context, sub *domain.Subscription, plan domain.Plan, activating bool, txHash string) error {
	entry := &domain.PaymentEntry{
		ID:             uuid.New().String(),
		DelegatedKeyID: sub.DelegatedKeyID,
		Amount:         plan.Price,
		TxRef:          txHash,
		Outcome:        domain.PaymentSuccess,
		RecordedAt:     s.now(),
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return err
	}

	// The activating charge's interval was already covered when the due
	// time was set at creation; only recurring charges advance it. The
	// advance is computed from the previous due time, not the clock, so
	// processing latency never accumulates drift.
	nextDue := sub.NextChargeDueAt
	if !activating {
		nextDue = nextDue.Add(time.Duration(plan.IntervalSeconds) * time.Second)
	}

	log.Printf("[Billing] Charge confirmed for %s (tx %s), next due %s", sub.ID, txHash, nextDue.Format(time.RFC3339))
	return s.subs.RecordChargeOutcome(ctx, sub.ID, domain.StatusActive, true, nextDue)
}

func (s *BillingService) recordFailure(ctx context.Context, sub *domain.Subscription, plan domain.Plan, activating bool) error {
	entry := &domain.PaymentEntry{
		ID:             uuid.New().String(),
		DelegatedKeyID: sub.DelegatedKeyID,
		Amount:         plan.Price,
		TxRef:          "",
		Outcome:        domain.PaymentFailed,
		RecordedAt:     s.now(),
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return err
	}

	// A failed activating charge stays pending_activation: the key was
	// never registered, and folding it into past_due would hide that. A
	// failed recurring charge goes past_due and is never rescheduled
	// automatically; recovery requires an explicit retry.
	status := domain.StatusPastDue
	if activating {
		status = domain.StatusPendingActivation
	}

	log.Printf("[Billing] Subscription %s marked %s", sub.ID, status)
	return s.subs.RecordChargeOutcome(ctx, sub.ID, status, sub.KeyRegistered, sub.NextChargeDueAt)
}

// GetSubscription returns the user's current subscription and its
// recent payment history, newest first. Returns nil when the user has
// no live subscription.
func (s *BillingService) GetSubscription(ctx context.Context, userAddress string) (*domain.SubscriptionView, error) {
	sub, err := s.subs.FindCurrentByUser(ctx, strings.ToLower(userAddress))
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if sub == nil {
		return nil, nil
	}

	history, err := s.history.ListByKey(ctx, sub.DelegatedKeyID, historyLimit)
	if err != nil {
		return nil, domain.ErrInternal("failed to load payment history", err)
	}
	return &domain.SubscriptionView{Subscription: sub, History: history}, nil
}

// RetryCharge re-runs the charge protocol on demand, regardless of the
// due time, and reports only whether the subscription ended up active.
// Ledger-level detail never leaks past the status.
func (s *BillingService) RetryCharge(ctx context.Context, subscriptionID string) (bool, error) {
	if err := s.Charge(ctx, subscriptionID); err != nil {
		return false, domain.ErrInternal("retry bookkeeping failed", err)
	}

	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		return false, domain.ErrInternal("failed to load subscription", err)
	}
	return sub != nil && sub.Status == domain.StatusActive, nil
}

// Cancel marks a subscription cancelled. Idempotent; cancelling a
// missing or already-cancelled subscription is a no-op. No charge is
// attempted and no history entry is written.
func (s *BillingService) Cancel(ctx context.Context, subscriptionID string) error {
	if err := s.subs.MarkCancelled(ctx, subscriptionID); err != nil {
		return domain.ErrInternal("failed to cancel subscription", err)
	}
	log.Printf("[Billing] Subscription %s cancelled", subscriptionID)
	return nil
}

// lock acquires the per-subscription mutex and returns its release
// function.
func (s *BillingService) lock(subscriptionID string) func() {
	v, _ := s.locks.LoadOrStore(subscriptionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
