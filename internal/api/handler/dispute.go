package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DisputeHandler serves the dispute lifecycle.
type DisputeHandler struct {
	svc *service.DisputeService
}

func NewDisputeHandler(svc *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{svc: svc}
}

type openDisputeRequest struct {
	Kind          string `json:"kind"`
	TransactionID string `json:"transaction_id,omitempty"`
	PayoutID      string `json:"payout_id,omitempty"`
	Reason        string `json:"reason"`
}

// Open creates a dispute and parks the contested operation.
func (h *DisputeHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	params := service.OpenDisputeParams{Kind: req.Kind, Reason: req.Reason}
	if req.TransactionID != "" {
		id, err := uuid.Parse(req.TransactionID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "validation", "invalid transaction_id")
			return
		}
		params.TransactionID = &id
	}
	if req.PayoutID != "" {
		id, err := uuid.Parse(req.PayoutID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "validation", "invalid payout_id")
			return
		}
		params.PayoutID = &id
	}

	dispute, err := h.svc.Open(r.Context(), params)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, dispute)
}

// Review moves an open dispute into active review.
func (h *DisputeHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid dispute id")
		return
	}
	if err := h.svc.StartReview(r.Context(), id); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": domain.DisputeStatusInProgress})
}

type resolveDisputeRequest struct {
	InFavorOfClaim bool   `json:"in_favor_of_claim"`
	Resolution     string `json:"resolution"`
}

// Resolve closes the dispute and finalizes the contested operation.
func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid dispute id")
		return
	}
	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	if err := h.svc.Resolve(r.Context(), id, req.InFavorOfClaim, req.Resolution); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

type cancelDisputeRequest struct {
	Reason string `json:"reason"`
}

// Cancel withdraws the dispute and resumes the normal flow.
func (h *DisputeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid dispute id")
		return
	}
	var req cancelDisputeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.svc.Cancel(r.Context(), id, req.Reason); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": domain.DisputeStatusCancelled})
}

// Messages returns the dispute's ordered thread.
func (h *DisputeHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "validation", "invalid dispute id")
		return
	}
	messages, err := h.svc.Messages(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, messages)
}
