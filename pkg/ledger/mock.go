package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// Mock is a scriptable in-memory Client for tests and local development.
// By default every charge confirms.
type Mock struct {
	mu       sync.Mutex
	requests []ChargeRequest
	outcome  func(req ChargeRequest) (*Receipt, error)

	// Gate, when non-nil, is received from before a submission completes.
	// Lets tests hold a charge in flight. Entered, when non-nil, is sent
	// to first, so tests can observe that a charge reached the ledger.
	Gate    chan struct{}
	Entered chan struct{}

	balances map[string]*big.Int
	seq      int
}

// NewMock creates a mock ledger that confirms every charge.
func NewMock() *Mock {
	return &Mock{balances: make(map[string]*big.Int)}
}

// Script replaces the outcome function for subsequent charges.
func (m *Mock) Script(fn func(req ChargeRequest) (*Receipt, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = fn
}

// AlwaysRevert scripts every charge to revert on-chain.
func (m *Mock) AlwaysRevert() {
	m.Script(func(ChargeRequest) (*Receipt, error) {
		return &Receipt{TxHash: "0xdead", Confirmed: false}, nil
	})
}

// AlwaysError scripts every charge to fail before a terminal outcome.
func (m *Mock) AlwaysError(err error) {
	m.Script(func(ChargeRequest) (*Receipt, error) { return nil, err })
}

// AlwaysConfirm restores the default confirming behavior.
func (m *Mock) AlwaysConfirm() {
	m.Script(nil)
}

func (m *Mock) SubmitCharge(ctx context.Context, req ChargeRequest) (*Receipt, error) {
	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.seq++
	seq := m.seq
	fn := m.outcome
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &Receipt{TxHash: fmt.Sprintf("0xmock%04d", seq), Confirmed: true}, nil
}

func (m *Mock) Balance(ctx context.Context, token, address string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[token+"/"+address]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

// SetBalance seeds a balance for Balance queries.
func (m *Mock) SetBalance(token, address string, bal *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[token+"/"+address] = new(big.Int).Set(bal)
}

// Requests returns a copy of every charge request seen so far.
func (m *Mock) Requests() []ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChargeRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
