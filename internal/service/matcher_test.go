package service_test

import (
	. "github.com/chasepay/settlement/internal/service"

	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) matcherService() *MatcherService {
	callbacks := NewCallbackDispatcher(f.store, time.Second)
	return NewMatcherService(f.store, callbacks, 50)
}

func (f *fixture) putSberNotification(amount string) models.Notification {
	n := models.Notification{
		ID:          uuid.New(),
		DeviceID:    f.device.ID,
		PackageName: "ru.sberbankmobile",
		Title:       "Сбербанк",
		Message:     "Перевод " + amount + " р от Ivan P.",
		CreatedAt:   time.Now(),
	}
	f.store.PutNotification(n)
	return n
}

func TestMatcher_UniqueMatchSettles(t *testing.T) {
	f := newFixture()
	payments := f.paymentService()
	matcher := f.matcherService()
	ctx := context.Background()

	res, err := payments.CreatePayment(ctx, f.createParams("order-1", "1000", "95"))
	require.NoError(t, err)
	notification := f.putSberNotification("1000")

	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Matched)

	tx, err := f.store.Queries().GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusReady, tx.Status)
	require.NotNil(t, tx.MatchedNotificationID)
	assert.Equal(t, notification.ID, *tx.MatchedNotificationID)
	assert.NotNil(t, tx.AcceptedAt)

	// Freeze burned, commission credited as profit.
	trader, err := f.store.Queries().GetTrader(ctx, f.trader.ID)
	require.NoError(t, err)
	assert.True(t, trader.FrozenUsdt.IsZero())
	assert.Equal(t, "989.473685", trader.TrustBalance.String())
}

func TestMatcher_Idempotent(t *testing.T) {
	f := newFixture()
	payments := f.paymentService()
	matcher := f.matcherService()
	ctx := context.Background()

	_, err := payments.CreatePayment(ctx, f.createParams("order-1", "1000", "95"))
	require.NoError(t, err)
	f.putSberNotification("1000")

	_, err = matcher.Tick(ctx)
	require.NoError(t, err)

	// A second pass over the same notification does nothing: it is
	// already processed.
	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Scanned)

	trader, err := f.store.Queries().GetTrader(ctx, f.trader.ID)
	require.NoError(t, err)
	assert.Equal(t, "989.473685", trader.TrustBalance.String())
}

func TestMatcher_AmbiguousLeftUnprocessed(t *testing.T) {
	f := newFixture()
	payments := f.paymentService()
	matcher := f.matcherService()
	ctx := context.Background()

	// Two live deals at 1000 and 1001 with tolerance 2: one incoming
	// 1000 notification matches both.
	wide := f.method
	wide.Tolerance = dec("2")
	f.store.PutMethod(wide)

	res1, err := payments.CreatePayment(ctx, f.createParams("order-1", "1000", "95"))
	require.NoError(t, err)
	res2, err := payments.CreatePayment(ctx, f.createParams("order-2", "1001", "95"))
	require.NoError(t, err)

	n := f.putSberNotification("1000")

	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ambiguous)
	assert.Zero(t, stats.Matched)

	// Notification stays unprocessed and neither deal moved.
	pending, err := f.store.Queries().ListUnprocessedNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, n.ID, pending[0].Notification.ID)

	tx1, _ := f.store.Queries().GetTransaction(ctx, res1.Transaction.ID)
	tx2, _ := f.store.Queries().GetTransaction(ctx, res2.Transaction.ID)
	assert.Equal(t, domain.TxStatusInProgress, tx1.Status)
	assert.Equal(t, domain.TxStatusInProgress, tx2.Status)
}

func TestMatcher_NoMatchLeftUnprocessed(t *testing.T) {
	f := newFixture()
	payments := f.paymentService()
	matcher := f.matcherService()
	ctx := context.Background()

	_, err := payments.CreatePayment(ctx, f.createParams("order-1", "1000", "95"))
	require.NoError(t, err)

	// Evidence amount does not match any live deal.
	f.putSberNotification("777")

	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NoMatch)

	pending, err := f.store.Queries().ListUnprocessedNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMatcher_NoEvidenceDiscarded(t *testing.T) {
	f := newFixture()
	matcher := f.matcherService()
	ctx := context.Background()

	f.store.PutNotification(models.Notification{
		ID:          uuid.New(),
		DeviceID:    f.device.ID,
		PackageName: "com.whatsapp",
		Title:       "New message",
		Message:     "see you at 7",
		CreatedAt:   time.Now(),
	})

	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Discarded)

	pending, err := f.store.Queries().ListUnprocessedNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMatcher_BankMismatchNoMatch(t *testing.T) {
	f := newFixture()
	payments := f.paymentService()
	matcher := f.matcherService()
	ctx := context.Background()

	// Deal sits on a Sberbank requisite but the evidence names Tinkoff.
	_, err := payments.CreatePayment(ctx, f.createParams("order-1", "1000", "95"))
	require.NoError(t, err)

	f.store.PutNotification(models.Notification{
		ID:          uuid.New(),
		DeviceID:    f.device.ID,
		PackageName: "com.idamob.tinkoff.android",
		Title:       "Тинькофф",
		Message:     "Пополнение, 1000 руб.",
		CreatedAt:   time.Now(),
	})

	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NoMatch)
}

func TestMatcher_ToleranceWindow(t *testing.T) {
	f := newFixture()
	payments := f.paymentService()
	matcher := f.matcherService()
	ctx := context.Background()

	window := f.method
	window.Tolerance = dec("1")
	f.store.PutMethod(window)

	res, err := payments.CreatePayment(ctx, f.createParams("order-1", "1000", "95"))
	require.NoError(t, err)

	// 999 is within the one-unit window of 1000.
	f.putSberNotification("999")

	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)

	tx, err := f.store.Queries().GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusReady, tx.Status)
}

func TestMatcher_FullPaymentCycle(t *testing.T) {
	f := newFixture()
	payments := f.paymentService()
	matcher := f.matcherService()
	ctx := context.Background()

	rel := models.TraderMerchant{
		TraderID:          f.trader.ID,
		MerchantID:        f.merchant.ID,
		MethodID:          f.method.ID,
		FeeIn:             dec("1.5"),
		FeeOut:            dec("1"),
		IsMerchantEnabled: true,
		IsFeeInEnabled:    true,
		IsFeeOutEnabled:   true,
	}
	f.store.PutTraderMerchant(rel)

	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	params := f.createParams("order-cycle", "5000", "90")
	params.SuccessURI = srv.URL + "/success"
	params.CallbackURI = srv.URL + "/callback"
	res, err := payments.CreatePayment(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, "4276********5678", res.Credential)
	assert.Equal(t, "55.555555", res.Transaction.FrozenUsdtAmount.String())
	assert.Equal(t, "0.833333", res.Transaction.CalculatedCommission.String())
	assert.Equal(t, "56.388888", res.Transaction.TotalRequired().String())

	f.putSberNotification("5000")
	stats, err := matcher.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)

	tx, err := f.store.Queries().GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusReady, tx.Status)

	// The freeze is burned and the commission credited back.
	trader, err := f.store.Queries().GetTrader(ctx, f.trader.ID)
	require.NoError(t, err)
	assert.Equal(t, "944.444445", trader.TrustBalance.String())

	// One delivery per configured URL, recorded in history.
	assert.Equal(t, 1, hits["/success"])
	assert.Equal(t, 1, hits["/callback"])
	history, err := f.store.Queries().ListCallbackHistory(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
