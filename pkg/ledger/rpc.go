package ledger

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// 4-byte selectors for the token contract.
	transferSelector  = "a9059cbb" // transfer(address,uint256)
	balanceOfSelector = "70a08231" // balanceOf(address)
)

// RPCConfig configures the JSON-RPC ledger client.
type RPCConfig struct {
	URL      string
	FeePayer string // operator address sponsoring gas for charges

	// ConfirmTimeout bounds the wait for a terminal receipt. Exceeding it
	// is reported as an error, never a hang.
	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	HTTPClient *http.Client
}

// RPCClient implements Client over JSON-RPC 2.0.
type RPCClient struct {
	url            string
	feePayer       string
	confirmTimeout time.Duration
	pollInterval   time.Duration
	http           *http.Client
	nextID         atomic.Int64
}

// NewRPCClient creates a JSON-RPC ledger client.
func NewRPCClient(cfg RPCConfig) *RPCClient {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RPCClient{
		url:            cfg.URL,
		feePayer:       cfg.FeePayer,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		http:           cfg.HTTPClient,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call performs a raw JSON-RPC call. Exposed so the fee-payer relay can
// forward whitelisted methods without re-implementing the transport.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rpc transport: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if out.Error != nil {
		return out.Error
	}
	if result != nil {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("decode rpc result: %w", err)
		}
	}
	return nil
}

// transaction is the structured transaction shape the Tempo RPC accepts.
type transaction struct {
	From             string               `json:"from"`
	FeePayer         string               `json:"feePayer,omitempty"`
	NonceKey         string               `json:"nonceKey"`
	Calls            []call               `json:"calls"`
	KeyAuthorization *SignedAuthorization `json:"keyAuthorization,omitempty"`
}

type call struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

type signedTransaction struct {
	transaction
	Signature string `json:"signature"`
	SigType   string `json:"signatureType"`
}

type receipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

// SubmitCharge builds a transfer from the payer's delegated key to the
// recipient, signs it with the delegated key, submits it, and waits for
// a terminal receipt.
func (c *RPCClient) SubmitCharge(ctx context.Context, req ChargeRequest) (*Receipt, error) {
	key, err := parseP256Key(req.SignerKeyHex)
	if err != nil {
		return nil, fmt.Errorf("delegated key: %w", err)
	}

	tx := transaction{
		From:             strings.ToLower(req.PayerAddress),
		FeePayer:         c.feePayer,
		NonceKey:         "0x0",
		KeyAuthorization: req.Authorization,
		Calls: []call{{
			To:    req.Token,
			Value: "0x0",
			Data:  encodeTransfer(req.Recipient, req.AmountMinor),
		}},
	}

	sig, err := signTransaction(key, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	var txHash string
	err = c.Call(ctx, "tempo_sendTransaction", []interface{}{
		signedTransaction{transaction: tx, Signature: sig, SigType: "p256"},
	}, &txHash)
	if err != nil {
		return nil, fmt.Errorf("submit charge: %w", err)
	}

	return c.waitReceipt(ctx, txHash)
}

// waitReceipt polls for the transaction receipt until the confirmation
// timeout elapses.
func (c *RPCClient) waitReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var rcpt *receipt
		if err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &rcpt); err != nil {
			return nil, fmt.Errorf("poll receipt: %w", err)
		}
		if rcpt != nil && rcpt.Status != "" {
			return &Receipt{
				TxHash:    txHash,
				Confirmed: rcpt.Status == "0x1" || rcpt.Status == "success",
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("confirmation timeout for tx %s", txHash)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Balance queries balanceOf(address) on the token contract.
func (c *RPCClient) Balance(ctx context.Context, token, address string) (*big.Int, error) {
	data := "0x" + balanceOfSelector + padAddress(address)
	var result string
	err := c.Call(ctx, "eth_call", []interface{}{
		map[string]string{"to": token, "data": data},
		"latest",
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("balance query: %w", err)
	}

	bal, ok := new(big.Int).SetString(strings.TrimPrefix(result, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("malformed balance result %q", result)
	}
	return bal, nil
}

// encodeTransfer ABI-encodes transfer(to, amount).
func encodeTransfer(to string, amount *big.Int) string {
	return "0x" + transferSelector + padAddress(to) + fmt.Sprintf("%064x", amount)
}

// padAddress left-pads a 20-byte address to a 32-byte ABI word.
func padAddress(addr string) string {
	hexAddr := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	return strings.Repeat("0", 64-len(hexAddr)) + hexAddr
}

// parseP256Key reconstructs the delegated P-256 signing key from its
// stored hex scalar.
func parseP256Key(keyHex string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("key scalar out of range")
	}

	key := &ecdsa.PrivateKey{D: d}
	key.PublicKey.Curve = curve
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(raw)
	return key, nil
}

// signTransaction signs the SHA-256 digest of the serialized transaction
// and returns the 64-byte r||s signature, hex encoded.
func signTransaction(key *ecdsa.PrivateKey, tx transaction) (string, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(payload)

	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", err
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return "0x" + hex.EncodeToString(sig), nil
}
