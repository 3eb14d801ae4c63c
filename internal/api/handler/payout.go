package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chasepay/settlement/internal/api/middleware"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutHandler serves merchant payout creation/arbitration and the
// trader pull flow.
type PayoutHandler struct {
	svc *service.PayoutService
}

func NewPayoutHandler(svc *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{svc: svc}
}

type createPayoutRequest struct {
	MethodID    string          `json:"method_id"`
	Amount      decimal.Decimal `json:"amount"`
	Rate        decimal.Decimal `json:"rate"`
	Bank        string          `json:"bank"`
	IsCard      bool            `json:"is_card"`
	ExternalRef string          `json:"external_ref"`
}

// Create stores an unassigned payout for traders to pull.
func (h *PayoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	merchant, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-api-key", "merchant auth required")
		return
	}
	var req createPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	methodID, err := uuid.Parse(req.MethodID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid method_id")
		return
	}

	payout, err := h.svc.CreatePayout(r.Context(), service.CreatePayoutParams{
		MerchantID:  merchant.ID,
		MethodID:    methodID,
		Amount:      req.Amount,
		Rate:        req.Rate,
		Bank:        req.Bank,
		IsCard:      req.IsCard,
		ExternalRef: req.ExternalRef,
	})
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, payout)
}

// Available lists payouts the calling trader is eligible to pull.
func (h *PayoutHandler) Available(w http.ResponseWriter, r *http.Request) {
	traderID, ok := middleware.TraderIDFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-trader-id", "trader identity required")
		return
	}
	payouts, err := h.svc.ListAvailable(r.Context(), traderID, 50)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	RespondJSON(w, http.StatusOK, payouts)
}

// Accept assigns the payout to the calling trader and freezes the fiat
// total.
func (h *PayoutHandler) Accept(w http.ResponseWriter, r *http.Request) {
	traderID, ok := middleware.TraderIDFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-trader-id", "trader identity required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid payout id")
		return
	}

	payout, err := h.svc.Accept(r.Context(), traderID, id)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, payout)
}

// Confirm records the trader's claim that the fiat transfer went out.
func (h *PayoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	traderID, ok := middleware.TraderIDFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-trader-id", "trader identity required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid payout id")
		return
	}
	if err := h.svc.Confirm(r.Context(), traderID, id); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "checking"})
}

// Approve completes the payout on merchant acknowledgment.
func (h *PayoutHandler) Approve(w http.ResponseWriter, r *http.Request) {
	merchant, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-api-key", "merchant auth required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid payout id")
		return
	}
	if err := h.svc.Approve(r.Context(), merchant.ID, id); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type rejectPayoutRequest struct {
	Reason string `json:"reason"`
}

// Reject sends an accepted payout back and releases the trader freeze.
func (h *PayoutHandler) Reject(w http.ResponseWriter, r *http.Request) {
	merchant, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-api-key", "merchant auth required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid payout id")
		return
	}
	var req rejectPayoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.svc.Reject(r.Context(), merchant.ID, id, req.Reason); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// Cancel withdraws an unaccepted payout.
func (h *PayoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	merchant, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "missing-api-key", "merchant auth required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid payout id")
		return
	}
	var req rejectPayoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.svc.Cancel(r.Context(), merchant.ID, id, req.Reason); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
