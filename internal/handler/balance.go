package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/streamgate/backend/internal/domain"
	"github.com/streamgate/backend/pkg/ledger"
)

// BalanceHandler serves the read-only account balance path. Separate
// from billing; it only needs the ledger's query side.
type BalanceHandler struct {
	ledger ledger.Client
	token  string
}

func NewBalanceHandler(lc ledger.Client, token string) *BalanceHandler {
	return &BalanceHandler{ledger: lc, token: token}
}

// Get handles GET /balance/{address}.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		Error(w, domain.ErrBadRequest("missing address"))
		return
	}

	bal, err := h.ledger.Balance(r.Context(), h.token, address)
	if err != nil {
		Error(w, domain.ErrInternal("balance query failed", err))
		return
	}
	JSON(w, http.StatusOK, map[string]string{"balance": bal.String()})
}
