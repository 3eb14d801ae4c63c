package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/chasepay/settlement/internal/api/problem"
	"github.com/chasepay/settlement/internal/domain"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an RFC 7807 error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondDomainError maps the settlement error taxonomy onto HTTP.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, slug := domainErrorStatus(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		RespondError(w, r, status, slug, "unexpected server error")
		return
	}
	RespondError(w, r, status, slug, err.Error())
}

func domainErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrAmountOutOfRange):
		return http.StatusBadRequest, "amount-out-of-range"
	case errors.Is(err, domain.ErrMethodUnavailable):
		return http.StatusNotFound, "method-unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, domain.ErrNoCapacity):
		return http.StatusConflict, "no-capacity"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict, "already-resolved"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient-balance"
	default:
		return http.StatusInternalServerError, "internal-server-error"
	}
}
