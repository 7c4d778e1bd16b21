package handler

import (
	"context"
	"net/http"

	"github.com/streamgate/backend/internal/domain"
)

// CredentialStore is the storage surface the credential endpoints need.
type CredentialStore interface {
	Upsert(ctx context.Context, cred *domain.Credential) error
	Get(ctx context.Context, id string) (*domain.Credential, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// CredentialHandler stores and looks up passkey credentials by opaque
// id. Login-only plumbing; nothing here touches billing.
type CredentialHandler struct {
	store CredentialStore
}

func NewCredentialHandler(store CredentialStore) *CredentialHandler {
	return &CredentialHandler{store: store}
}

// Store handles POST /credentials.
func (h *CredentialHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req domain.StoreCredentialRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if req.ID == "" || req.PublicKey == "" || req.Address == "" {
		Error(w, domain.ErrBadRequest("missing id, publicKey, or address"))
		return
	}

	cred := &domain.Credential{ID: req.ID, PublicKey: req.PublicKey, Address: req.Address}
	if err := h.store.Upsert(r.Context(), cred); err != nil {
		Error(w, domain.ErrInternal("failed to store credential", err))
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Lookup handles GET /credentials. Without an id it lists every stored
// credential id (the login discovery flow); with ?id= it returns that
// credential.
func (h *CredentialHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		ids, err := h.store.ListIDs(r.Context())
		if err != nil {
			Error(w, domain.ErrInternal("failed to list credentials", err))
			return
		}
		if ids == nil {
			ids = []string{}
		}
		JSON(w, http.StatusOK, map[string][]string{"credentialIds": ids})
		return
	}

	cred, err := h.store.Get(r.Context(), id)
	if err != nil {
		Error(w, domain.ErrInternal("failed to load credential", err))
		return
	}
	if cred == nil {
		Error(w, domain.ErrNotFound("credential not found"))
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"publicKey": cred.PublicKey,
		"address":   cred.Address,
	})
}
