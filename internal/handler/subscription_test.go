package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/streamgate/backend/internal/domain"
	"github.com/streamgate/backend/internal/repository"
	"github.com/streamgate/backend/internal/service"
	"github.com/streamgate/backend/pkg/crypto"
	"github.com/streamgate/backend/pkg/ledger"
)

const testUser = "0x1111111111111111111111111111111111111111"

func newTestRouter(t *testing.T) (chi.Router, *ledger.Mock) {
	t.Helper()

	enc, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}

	mock := ledger.NewMock()
	vault := service.NewKeyVault(repository.NewMemoryKeyStore(), enc)
	billing := service.NewBillingService(
		repository.NewMemorySubscriptionStore(),
		repository.NewMemoryHistoryStore(),
		vault, mock, domain.DefaultCatalog(),
		"0x00000000000000000000000000000000000000aa",
	)

	h := NewSubscriptionHandler(billing)
	r := chi.NewRouter()
	r.Post("/subscribe", h.Subscribe)
	r.Get("/my-subscription/{address}", h.Get)
	r.Post("/retry-payment", h.Retry)
	r.Post("/cancel-subscription", h.Cancel)
	return r, mock
}

func subscribeBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"userAddress":            testUser,
		"planId":                 "daily_rate",
		"subscriptionPrivateKey": "0x" + strings.Repeat("11", 32),
		"signedAuthorization": map[string]interface{}{
			"authorization": map[string]interface{}{
				"address": "0x2222222222222222222222222222222222222222",
				"type":    "p256",
			},
			"signature": "0xsig",
		},
	})
	return body
}

func doJSON(t *testing.T, r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubscribeEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/subscribe", subscribeBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success        bool   `json:"success"`
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.SubscriptionID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}

	// The new subscription is visible through the status endpoint.
	rec = doJSON(t, r, http.MethodGet, "/my-subscription/"+testUser, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view struct {
		Subscription *domain.Subscription  `json:"subscription"`
		History      []domain.PaymentEntry `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Subscription == nil || view.Subscription.Status != domain.StatusActive {
		t.Errorf("unexpected subscription: %+v", view.Subscription)
	}
	if len(view.History) != 1 {
		t.Errorf("history = %d entries, want 1", len(view.History))
	}
}

func TestSubscribeRejectsBadRequests(t *testing.T) {
	r, mock := newTestRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"userAddress": `},
		{"unknown plan", `{"userAddress":"` + testUser + `","planId":"gold","subscriptionPrivateKey":"0x11","signedAuthorization":{"authorization":{"address":"0x22"},"signature":"0xs"}}`},
		{"missing authorization", `{"userAddress":"` + testUser + `","planId":"daily_rate","subscriptionPrivateKey":"0x11"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/subscribe", []byte(tc.body))
			if rec.Code < 400 || rec.Code >= 500 {
				t.Errorf("status = %d, want 4xx", rec.Code)
			}
		})
	}

	if len(mock.Requests()) != 0 {
		t.Error("a rejected request reached the ledger")
	}
}

func TestMySubscriptionWhenNoneExists(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/my-subscription/"+testUser, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view struct {
		Subscription *domain.Subscription  `json:"subscription"`
		History      []domain.PaymentEntry `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Subscription != nil {
		t.Errorf("subscription = %+v, want null", view.Subscription)
	}
	if view.History == nil || len(view.History) != 0 {
		t.Errorf("history = %v, want empty array", view.History)
	}
}

func TestRetryEndpoint(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.AlwaysRevert()
	rec := doJSON(t, r, http.MethodPost, "/subscribe", subscribeBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe status = %d", rec.Code)
	}
	var created struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	json.NewDecoder(rec.Body).Decode(&created)

	// Still failing: the endpoint reports a generic failure, not
	// ledger detail.
	body, _ := json.Marshal(map[string]string{"subscriptionId": created.SubscriptionID})
	rec = doJSON(t, r, http.MethodPost, "/retry-payment", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	mock.AlwaysConfirm()
	rec = doJSON(t, r, http.MethodPost, "/retry-payment", body)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 after recovery, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCancelEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/subscribe", subscribeBody())
	var created struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	json.NewDecoder(rec.Body).Decode(&created)

	body, _ := json.Marshal(map[string]string{"subscriptionId": created.SubscriptionID})
	for i := 0; i < 2; i++ { // idempotent
		rec = doJSON(t, r, http.MethodPost, "/cancel-subscription", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("cancel #%d status = %d", i+1, rec.Code)
		}
	}

	rec = doJSON(t, r, http.MethodPost, "/cancel-subscription", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d, want 400", rec.Code)
	}
}
