package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chasepay/settlement/internal/api"
	"github.com/chasepay/settlement/internal/idempotency"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/repository/memstore"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "merchant-token-1"

type apiFixture struct {
	srv      *httptest.Server
	store    *memstore.Store
	merchant models.Merchant
	method   models.Method
	trader   models.Trader
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	st := memstore.New()

	merchant := models.Merchant{ID: uuid.New(), Name: "acme", Token: testAPIKey}
	method := models.Method{
		ID:        uuid.New(),
		Code:      "c2c-rub",
		Type:      "c2c",
		Currency:  "RUB",
		MinPayin:  dec("100"),
		MaxPayin:  dec("100000"),
		MinPayout: dec("100"),
		MaxPayout: dec("100000"),
		Enabled:   true,
	}
	trader := models.Trader{
		ID:                     uuid.New(),
		Name:                   "trader-one",
		TrafficEnabled:         true,
		TrustBalance:           dec("1000"),
		FiatBalance:            dec("100000"),
		MaxSimultaneousPayouts: 5,
	}
	requisite := models.Requisite{
		ID:            uuid.New(),
		TraderID:      trader.ID,
		MethodType:    "c2c",
		BankType:      "Sberbank",
		CardNumber:    "4276160012345678",
		RecipientName: "IVAN I.",
		IsActive:      true,
		UpdatedAt:     time.Now().Add(-time.Hour),
	}
	st.PutMerchant(merchant)
	st.PutMethod(method)
	st.PutMerchantMethod(models.MerchantMethod{MerchantID: merchant.ID, MethodID: method.ID, IsEnabled: true})
	st.PutTrader(trader)
	st.PutRequisite(requisite)
	st.PutTraderMerchant(models.TraderMerchant{
		TraderID:          trader.ID,
		MerchantID:        merchant.ID,
		MethodID:          method.ID,
		FeeIn:             dec("2"),
		FeeOut:            dec("1"),
		IsMerchantEnabled: true,
		IsFeeInEnabled:    true,
		IsFeeOutEnabled:   true,
	})

	callbacks := service.NewCallbackDispatcher(st, time.Second)
	payments := service.NewPaymentService(st, callbacks, decimal.Zero, 30*time.Minute)
	payouts := service.NewPayoutService(st, 24*time.Hour, 30*time.Minute)
	disputes := service.NewDisputeService(st, callbacks)
	idem := idempotency.NewStore(nil, 0)

	router := api.NewRouter(nil, nil, st, payments, payouts, disputes, idem, zap.NewNop(), 1000, 1000)
	srv := httptest.NewServer(router.Routes())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, store: st, merchant: merchant, method: method, trader: trader}
}

func (f *apiFixture) do(t *testing.T, method, path string, headers map[string]string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func merchantHeaders() map[string]string {
	return map[string]string{"x-api-key": testAPIKey}
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthEndpoints(t *testing.T) {
	f := setupAPI(t)

	resp := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupAPI(t)
	resp := f.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreatePayment_RequiresAPIKey(t *testing.T) {
	f := setupAPI(t)

	resp := f.do(t, http.MethodPost, "/v1/payments", nil, map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/payments",
		map[string]string{"x-api-key": "wrong"}, map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreatePayment_EndToEnd(t *testing.T) {
	f := setupAPI(t)

	body := map[string]any{
		"order_id":  "order-1",
		"method_id": f.method.ID.String(),
		"amount":    "5000",
		"rate":      "90",
	}
	resp := f.do(t, http.MethodPost, "/v1/payments", merchantHeaders(), body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID         string `json:"id"`
		OrderID    string `json:"order_id"`
		Status     string `json:"status"`
		Credential string `json:"credential"`
	}
	decodeJSON(t, resp, &created)
	assert.Equal(t, "order-1", created.OrderID)
	assert.Equal(t, "new", created.Status)
	assert.Equal(t, "4276********5678", created.Credential)

	// The payment is readable back under the same merchant.
	resp = f.do(t, http.MethodGet, "/v1/payments/"+created.ID, merchantHeaders(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Replaying the order id conflicts.
	resp = f.do(t, http.MethodPost, "/v1/payments", merchantHeaders(), body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Callback history starts empty.
	resp = f.do(t, http.MethodGet, "/v1/payments/"+created.ID+"/callbacks", merchantHeaders(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []map[string]any
	decodeJSON(t, resp, &history)
	assert.Empty(t, history)
}

func TestCreatePayment_DomainErrorsMapped(t *testing.T) {
	f := setupAPI(t)

	// Below the method minimum.
	resp := f.do(t, http.MethodPost, "/v1/payments", merchantHeaders(), map[string]any{
		"order_id":  "order-low",
		"method_id": f.method.ID.String(),
		"amount":    "1",
		"rate":      "90",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/problem+json")

	// Unknown method.
	resp = f.do(t, http.MethodPost, "/v1/payments", merchantHeaders(), map[string]any{
		"order_id":  "order-nm",
		"method_id": uuid.NewString(),
		"amount":    "5000",
		"rate":      "90",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPayoutLifecycleOverHTTP(t *testing.T) {
	f := setupAPI(t)

	resp := f.do(t, http.MethodPost, "/v1/payouts", merchantHeaders(), map[string]any{
		"method_id": f.method.ID.String(),
		"amount":    "9000",
		"rate":      "90",
		"bank":      "Sberbank",
		"is_card":   true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &created)

	traderHeaders := map[string]string{"X-Trader-ID": f.trader.ID.String()}

	// The payout shows up in the trader feed.
	resp = f.do(t, http.MethodGet, "/v1/payouts/available", traderHeaders, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var available []map[string]any
	decodeJSON(t, resp, &available)
	require.Len(t, available, 1)

	// Pull, confirm, approve.
	resp = f.do(t, http.MethodPost, "/v1/payouts/"+created.ID+"/accept", traderHeaders, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/payouts/"+created.ID+"/confirm", traderHeaders, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/payouts/"+created.ID+"/approve", merchantHeaders(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTraderRoutes_RequireIdentity(t *testing.T) {
	f := setupAPI(t)

	resp := f.do(t, http.MethodGet, "/v1/payouts/available", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/payouts/available",
		map[string]string{"X-Trader-ID": "not-a-uuid"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisputeFlowOverHTTP(t *testing.T) {
	f := setupAPI(t)

	// Reserve a deal first.
	resp := f.do(t, http.MethodPost, "/v1/payments", merchantHeaders(), map[string]any{
		"order_id":  "order-1",
		"method_id": f.method.ID.String(),
		"amount":    "5000",
		"rate":      "90",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var payment struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &payment)

	resp = f.do(t, http.MethodPost, "/v1/disputes", merchantHeaders(), map[string]any{
		"kind":           "DEAL",
		"transaction_id": payment.ID,
		"reason":         "client claims payment sent",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var dispute struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeJSON(t, resp, &dispute)
	assert.Equal(t, "OPEN", dispute.Status)

	resp = f.do(t, http.MethodPost, "/v1/disputes/"+dispute.ID+"/resolve", merchantHeaders(), map[string]any{
		"in_favor_of_claim": true,
		"resolution":        "receipt verified",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A second resolve is rejected.
	resp = f.do(t, http.MethodPost, "/v1/disputes/"+dispute.ID+"/resolve", merchantHeaders(), map[string]any{
		"in_favor_of_claim": false,
		"resolution":        "never mind",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The thread records both system events.
	resp = f.do(t, http.MethodGet, "/v1/disputes/"+dispute.ID+"/messages", merchantHeaders(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var messages []map[string]any
	decodeJSON(t, resp, &messages)
	assert.Len(t, messages, 2)
}
