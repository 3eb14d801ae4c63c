package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/chasepay/settlement/internal/api/problem"
	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const merchantContextKey contextKey = "merchant"
const traderContextKey contextKey = "trader_id"

// MerchantAuth resolves the x-api-key header to a merchant through the
// ledger store and injects it into the request context.
func MerchantAuth(store service.QueryStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("x-api-key")
			if token == "" {
				problem.Write(w, r, http.StatusUnauthorized,
					problem.Type("missing-api-key"), "", "x-api-key header is required")
				return
			}
			merchant, err := store.Queries().GetMerchantByToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					problem.Write(w, r, http.StatusUnauthorized,
						problem.Type("invalid-api-key"), "", "unknown api key")
					return
				}
				zap.L().Error("merchant auth lookup failed", zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError,
					problem.Type("internal-server-error"), "", "merchant lookup failed")
				return
			}
			if merchant.Disabled {
				problem.Write(w, r, http.StatusForbidden,
					problem.Type("merchant-disabled"), "", "merchant is disabled")
				return
			}
			ctx := context.WithValue(r.Context(), merchantContextKey, merchant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MerchantFromContext returns the authenticated merchant.
func MerchantFromContext(ctx context.Context) (models.Merchant, bool) {
	m, ok := ctx.Value(merchantContextKey).(models.Merchant)
	return m, ok
}

// TraderIdentity reads the trader id the upstream gateway attaches to
// trader-facing requests. Session handling lives outside this service.
func TraderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Trader-ID")
		if raw == "" {
			problem.Write(w, r, http.StatusUnauthorized,
				problem.Type("missing-trader-id"), "", "X-Trader-ID header is required")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			problem.Write(w, r, http.StatusUnauthorized,
				problem.Type("invalid-trader-id"), "", "X-Trader-ID must be a uuid")
			return
		}
		ctx := context.WithValue(r.Context(), traderContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraderIDFromContext returns the trader id attached by TraderIdentity.
func TraderIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(traderContextKey).(uuid.UUID)
	return id, ok
}
