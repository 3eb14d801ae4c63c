package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/observability"
	"github.com/chasepay/settlement/internal/partner"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCallbackResponseBytes = 4 << 10

// CallbackDispatcher delivers status-change webhooks. Delivery is
// fire-and-forget relative to the settlement operation that triggered
// it: every attempt is appended to CallbackHistory and failures are
// logged, never surfaced to the caller. There is no dedup: a repeat
// dispatch produces a new history row.
type CallbackDispatcher struct {
	store  QueryStore
	client *http.Client
}

// NewCallbackDispatcher builds a dispatcher with a bounded-timeout
// HTTP client.
func NewCallbackDispatcher(store QueryStore, timeout time.Duration) *CallbackDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CallbackDispatcher{
		store:  store,
		client: &http.Client{Timeout: timeout},
	}
}

// genericPayload is the default webhook body. Amount is emitted as a
// bare JSON number.
type genericPayload struct {
	ID     string      `json:"id"`
	Amount json.Number `json:"amount"`
	Status string      `json:"status"`
}

// wellbitPayload is the partner-specific variant, signed over its
// canonical serialization.
type wellbitPayload struct {
	Callback      string      `json:"callback"`
	PaymentID     string      `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	Amount        json.Number `json:"amount"`
}

// Dispatch sends the transaction's current status to its configured
// URLs: callbackUri always, successUri on READY, failUri on
// CANCELED/EXPIRED. It never returns an error.
func (d *CallbackDispatcher) Dispatch(ctx context.Context, tx models.Transaction) {
	urls := callbackURLs(tx)
	if len(urls) == 0 {
		return
	}

	merchant, err := d.store.Queries().GetMerchant(ctx, tx.MerchantID)
	if err != nil {
		zap.L().Warn("callback merchant lookup failed",
			zap.String("transaction_id", tx.ID.String()), zap.Error(err))
	}

	external := partner.MapStatus(tx.Status)
	amount := json.Number(tx.Amount.String())

	var payload any = genericPayload{ID: tx.OrderID, Amount: amount, Status: external}
	headers := map[string]string{}
	if merchant.Wellbit {
		p := wellbitPayload{
			Callback:      "payment",
			PaymentID:     tx.OrderID,
			PaymentStatus: external,
			Amount:        amount,
		}
		token, err := partner.Sign(merchant.PrivateKey, p)
		if err != nil {
			zap.L().Error("callback signing failed",
				zap.String("transaction_id", tx.ID.String()), zap.Error(err))
			return
		}
		payload = p
		headers["x-api-key"] = merchant.PublicKey
		headers["x-api-token"] = token
	}

	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("callback payload marshal failed",
			zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		return
	}

	for _, url := range urls {
		d.deliver(ctx, tx.ID, url, body, headers)
	}
}

func callbackURLs(tx models.Transaction) []string {
	var urls []string
	switch tx.Status {
	case domain.TxStatusReady:
		if tx.SuccessURI != "" {
			urls = append(urls, tx.SuccessURI)
		}
	case domain.TxStatusCanceled, domain.TxStatusExpired:
		if tx.FailURI != "" {
			urls = append(urls, tx.FailURI)
		}
	}
	if tx.CallbackURI != "" {
		urls = append(urls, tx.CallbackURI)
	}
	return urls
}

func (d *CallbackDispatcher) deliver(ctx context.Context, txID uuid.UUID, url string, body []byte, headers map[string]string) {
	h := models.CallbackHistory{
		ID:            uuid.New(),
		TransactionID: txID,
		URL:           url,
		Payload:       json.RawMessage(bytes.Clone(body)),
	}

	resp, err := d.post(ctx, url, body, headers)
	if err != nil {
		msg := err.Error()
		h.Error = &msg
		observability.IncrementCallbackDelivery("error")
		zap.L().Warn("callback delivery failed",
			zap.String("transaction_id", txID.String()), zap.String("url", url), zap.Error(err))
	} else {
		h.StatusCode = &resp.status
		h.Response = &resp.body
		observability.IncrementCallbackDelivery("sent")
	}

	if err := d.store.Queries().AppendCallbackHistory(ctx, h); err != nil {
		zap.L().Error("callback history append failed",
			zap.String("transaction_id", txID.String()), zap.String("url", url), zap.Error(err))
	}
}

type deliveryResponse struct {
	status int
	body   string
}

func (d *CallbackDispatcher) post(ctx context.Context, url string, body []byte, headers map[string]string) (*deliveryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCallbackResponseBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		raw = nil
	}
	return &deliveryResponse{status: resp.StatusCode, body: string(raw)}, nil
}
