package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/streamgate/backend/internal/domain"
	"github.com/streamgate/backend/internal/service"
)

// SubscriptionHandler maps the billing engine onto HTTP.
type SubscriptionHandler struct {
	svc *service.BillingService
}

func NewSubscriptionHandler(svc *service.BillingService) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

// Subscribe handles POST /subscribe.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req domain.ActivateRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	subID, err := h.svc.Activate(r.Context(), req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"subscriptionId": subID,
	})
}

// Get handles GET /my-subscription/{address}.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(chi.URLParam(r, "address"))
	if address == "" {
		Error(w, domain.ErrBadRequest("missing address"))
		return
	}

	view, err := h.svc.GetSubscription(r.Context(), address)
	if err != nil {
		Error(w, err)
		return
	}
	if view == nil {
		JSON(w, http.StatusOK, domain.SubscriptionView{History: []domain.PaymentEntry{}})
		return
	}
	if view.History == nil {
		view.History = []domain.PaymentEntry{}
	}
	JSON(w, http.StatusOK, view)
}

type subscriptionIDRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

// Retry handles POST /retry-payment.
func (h *SubscriptionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	var req subscriptionIDRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if req.SubscriptionID == "" {
		Error(w, domain.ErrBadRequest("missing subscriptionId"))
		return
	}

	active, err := h.svc.RetryCharge(r.Context(), req.SubscriptionID)
	if err != nil {
		Error(w, err)
		return
	}
	if !active {
		Error(w, domain.ErrBadRequest("payment still failing"))
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Cancel handles POST /cancel-subscription.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req subscriptionIDRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if req.SubscriptionID == "" {
		Error(w, domain.ErrBadRequest("missing subscriptionId"))
		return
	}

	if err := h.svc.Cancel(r.Context(), req.SubscriptionID); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
