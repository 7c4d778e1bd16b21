// Package ledger talks to the chain. The billing core treats it as an
// opaque collaborator: submit a signed transfer, get back confirmed,
// reverted, or an error — nothing else leaks through.
package ledger

import (
	"context"
	"math/big"
)

// TokenLimit caps how much of one token the delegated key may spend.
type TokenLimit struct {
	Token string `json:"token"`
	Limit string `json:"limit"` // decimal string, minor units
}

// Authorization grants a delegated key its spending rights. Produced and
// signed client-side; the server never inspects it beyond presence.
type Authorization struct {
	Address string       `json:"address"`
	ChainID uint64       `json:"chainId,omitempty"`
	Type    string       `json:"type"` // p256 | secp256k1 | webAuthn
	Expiry  int64        `json:"expiry,omitempty"`
	Limits  []TokenLimit `json:"limits,omitempty"`
}

// SignedAuthorization pairs an authorization with its signature.
type SignedAuthorization struct {
	Authorization Authorization `json:"authorization"`
	Signature     string        `json:"signature"`
}

// ChargeRequest describes one transfer pulled from a delegated key.
type ChargeRequest struct {
	// SignerKeyHex is the delegated P-256 private key (hex, 0x-prefixed).
	SignerKeyHex string
	// PayerAddress is the account the delegated key spends from.
	PayerAddress string
	// Recipient receives the transfer (the operator account).
	Recipient string
	// Token is the currency contract address.
	Token string
	// AmountMinor is the transfer amount in the token's minor unit.
	AmountMinor *big.Int
	// Authorization, when non-nil, is attached so the chain registers the
	// delegated key and executes the transfer in one submission. Attached
	// exactly once per key lifetime.
	Authorization *SignedAuthorization
}

// Receipt is the terminal outcome of a submitted charge.
type Receipt struct {
	TxHash    string
	Confirmed bool // false means the transaction reverted on-chain
}

// Client submits charges and answers read-only balance queries.
type Client interface {
	// SubmitCharge signs, submits, and waits (bounded) for a terminal
	// outcome. A non-nil error means no terminal chain outcome was
	// reached (transport failure, timeout, bad key material).
	SubmitCharge(ctx context.Context, req ChargeRequest) (*Receipt, error)

	// Balance returns the token balance of an address in minor units.
	Balance(ctx context.Context, token, address string) (*big.Int, error)
}
