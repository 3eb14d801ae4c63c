package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chasepay/settlement/internal/api/middleware"
	"github.com/chasepay/settlement/internal/idempotency"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler serves merchant-facing inbound payment endpoints.
type PaymentHandler struct {
	svc  *service.PaymentService
	idem *idempotency.Store
}

func NewPaymentHandler(svc *service.PaymentService, idem *idempotency.Store) *PaymentHandler {
	return &PaymentHandler{svc: svc, idem: idem}
}

type createPaymentRequest struct {
	OrderID         string          `json:"order_id"`
	MethodID        string          `json:"method_id"`
	Amount          decimal.Decimal `json:"amount"`
	Rate            decimal.Decimal `json:"rate"`
	BankType        string          `json:"bank_type"`
	CallbackURI     string          `json:"callback_uri"`
	SuccessURI      string          `json:"success_uri"`
	FailURI         string          `json:"fail_uri"`
	LifetimeSeconds int64           `json:"lifetime_seconds"`
}

type paymentResponse struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Credential string          `json:"credential,omitempty"`
	Recipient  string          `json:"recipient,omitempty"`
	BankType   string          `json:"bank_type,omitempty"`
	ExpiredAt  time.Time       `json:"expired_at"`
}

// Create reserves a requisite for an inbound payment. Replays of the
// same order id are served from the idempotency cache when available.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	merchant, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-api-key", "merchant auth required")
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	methodID, err := uuid.Parse(req.MethodID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid method_id")
		return
	}

	if cached, ok := h.idem.CachedResponse(r.Context(), merchant.ID, req.OrderID); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}
	claimed, err := h.idem.Claim(r.Context(), merchant.ID, req.OrderID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if !claimed {
		RespondError(w, r, http.StatusConflict, "conflict", "order is already being processed")
		return
	}

	result, err := h.svc.CreatePayment(r.Context(), service.CreatePaymentParams{
		MerchantID:  merchant.ID,
		MethodID:    methodID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Rate:        req.Rate,
		BankType:    req.BankType,
		CallbackURI: req.CallbackURI,
		SuccessURI:  req.SuccessURI,
		FailURI:     req.FailURI,
		Lifetime:    time.Duration(req.LifetimeSeconds) * time.Second,
	})
	if err != nil {
		h.idem.Release(r.Context(), merchant.ID, req.OrderID)
		RespondDomainError(w, r, err)
		return
	}

	resp := paymentResponse{
		ID:         result.Transaction.ID.String(),
		OrderID:    result.Transaction.OrderID,
		Status:     result.ExternalStatus,
		Amount:     result.Transaction.Amount,
		Credential: result.Credential,
		Recipient:  result.RecipientName,
		BankType:   result.BankType,
		ExpiredAt:  result.Transaction.ExpiredAt,
	}
	if body, err := json.Marshal(resp); err == nil {
		h.idem.CacheResponse(r.Context(), merchant.ID, req.OrderID, body)
	}
	RespondJSON(w, http.StatusCreated, resp)
}

// Get returns the payment with its external status string.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	merchant, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-api-key", "merchant auth required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid payment id")
		return
	}

	tx, external, err := h.svc.GetPayment(r.Context(), merchant.ID, id)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, paymentResponse{
		ID:        tx.ID.String(),
		OrderID:   tx.OrderID,
		Status:    external,
		Amount:    tx.Amount,
		ExpiredAt: tx.ExpiredAt,
	})
}

// Callbacks returns the webhook delivery history of a payment.
func (h *PaymentHandler) Callbacks(w http.ResponseWriter, r *http.Request) {
	merchant, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-api-key", "merchant auth required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid payment id")
		return
	}

	history, err := h.svc.ListCallbacks(r.Context(), merchant.ID, id)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if history == nil {
		history = []models.CallbackHistory{}
	}
	RespondJSON(w, http.StatusOK, history)
}
