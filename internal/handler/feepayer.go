package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
)

// RPCForwarder forwards a raw JSON-RPC call to the chain.
type RPCForwarder interface {
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

// FeePayerHandler relays raw-transaction submissions to the chain RPC
// so the frontend can send gasless transactions sponsored by the
// operator. Only the raw-tx methods are allowed through.
type FeePayerHandler struct {
	rpc RPCForwarder
}

func NewFeePayerHandler(rpc RPCForwarder) *FeePayerHandler {
	return &FeePayerHandler{rpc: rpc}
}

var relayMethods = map[string]bool{
	"eth_signRawTransaction":     true,
	"eth_sendRawTransaction":     true,
	"eth_sendRawTransactionSync": true,
}

type rpcEnvelope struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// Relay handles POST /fee-payer.
func (h *FeePayerHandler) Relay(w http.ResponseWriter, r *http.Request) {
	var env rpcEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		JSON(w, http.StatusBadRequest, map[string]interface{}{
			"jsonrpc": "2.0",
			"error":   map[string]interface{}{"code": -32700, "message": "parse error"},
		})
		return
	}

	if !relayMethods[env.Method] {
		JSON(w, http.StatusBadRequest, map[string]interface{}{
			"jsonrpc": env.JSONRPC,
			"id":      env.ID,
			"error":   map[string]interface{}{"code": -32601, "message": "method not supported: " + env.Method},
		})
		return
	}

	params := make([]interface{}, len(env.Params))
	for i, p := range env.Params {
		params[i] = p
	}

	var result json.RawMessage
	if err := h.rpc.Call(r.Context(), env.Method, params, &result); err != nil {
		log.Printf("[FeePayer] %s failed: %v", env.Method, err)
		JSON(w, http.StatusInternalServerError, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      env.ID,
			"error":   map[string]interface{}{"code": -32603, "message": err.Error()},
		})
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": env.JSONRPC,
		"id":      env.ID,
		"result":  result,
	})
}
