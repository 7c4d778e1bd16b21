package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/streamgate/backend/internal/domain"
)

// In-memory store implementations. They back the tests and the
// DATABASE_URL-less dev mode, and mirror the Postgres repositories'
// semantics exactly (conditional charge-outcome writes included).

// MemorySubscriptionStore is an in-memory SubscriptionRepository.
type MemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]*domain.Subscription
}

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[string]*domain.Subscription)}
}

func (s *MemorySubscriptionStore) Create(ctx context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[sub.ID]; exists {
		return fmt.Errorf("subscription %s already exists", sub.ID)
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemorySubscriptionStore) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *MemorySubscriptionStore) FindCurrentByUser(ctx context.Context, userAddress string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Subscription
	for _, sub := range s.subs {
		if sub.UserAddress != userAddress || sub.Status == domain.StatusCancelled {
			continue
		}
		if best == nil || sub.NextChargeDueAt.After(best.NextChargeDueAt) {
			best = sub
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *MemorySubscriptionStore) FindDue(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*domain.Subscription
	for _, sub := range s.subs {
		if sub.Status != domain.StatusActive && sub.Status != domain.StatusPastDue {
			continue
		}
		if sub.NextChargeDueAt.After(now) {
			continue
		}
		cp := *sub
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextChargeDueAt.Before(due[j].NextChargeDueAt)
	})
	return due, nil
}

func (s *MemorySubscriptionStore) RecordChargeOutcome(ctx context.Context, id string, status domain.Status, keyRegistered bool, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok || sub.Status == domain.StatusCancelled {
		return nil
	}
	sub.Status = status
	sub.KeyRegistered = keyRegistered
	sub.NextChargeDueAt = nextDue
	sub.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySubscriptionStore) MarkCancelled(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		sub.Status = domain.StatusCancelled
		sub.UpdatedAt = time.Now()
	}
	return nil
}

// MemoryHistoryStore is an in-memory PaymentHistoryRepository.
type MemoryHistoryStore struct {
	mu      sync.RWMutex
	entries []domain.PaymentEntry
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{}
}

func (s *MemoryHistoryStore) Append(ctx context.Context, entry *domain.PaymentEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryHistoryStore) ListByKey(ctx context.Context, delegatedKeyID string, limit int) ([]domain.PaymentEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PaymentEntry
	for _, e := range s.entries {
		if e.DelegatedKeyID == delegatedKeyID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryKeyStore is an in-memory KeyRepository.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]string)}
}

func (s *MemoryKeyStore) Put(ctx context.Context, subscriptionID, encryptedKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[subscriptionID]; !exists {
		s.keys[subscriptionID] = encryptedKey
	}
	return nil
}

func (s *MemoryKeyStore) Get(ctx context.Context, subscriptionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	encrypted, ok := s.keys[subscriptionID]
	if !ok {
		return "", fmt.Errorf("no key material for subscription %s", subscriptionID)
	}
	return encrypted, nil
}

// MemoryCredentialStore is an in-memory CredentialRepository.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]domain.Credential
	order []string
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]domain.Credential)}
}

func (s *MemoryCredentialStore) Upsert(ctx context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[cred.ID]; !exists {
		s.order = append(s.order, cred.ID)
	}
	s.creds[cred.ID] = *cred
	return nil
}

func (s *MemoryCredentialStore) Get(ctx context.Context, id string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[id]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (s *MemoryCredentialStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}
