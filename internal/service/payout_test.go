package service_test

import (
	. "github.com/chasepay/settlement/internal/service"

	"context"
	"sync"
	"testing"
	"time"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) payoutService() *PayoutService {
	return NewPayoutService(f.store, 24*time.Hour, 30*time.Minute)
}

func (f *fixture) createPayout(t *testing.T, svc *PayoutService, amount, rate string) models.Payout {
	t.Helper()
	payout, err := svc.CreatePayout(context.Background(), CreatePayoutParams{
		MerchantID: f.merchant.ID,
		MethodID:   f.method.ID,
		Amount:     dec(amount),
		Rate:       dec(rate),
		Bank:       "Sberbank",
		IsCard:     true,
	})
	require.NoError(t, err)
	return payout
}

func TestCreatePayout(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()

	payout := f.createPayout(t, svc, "9000", "90")
	assert.Equal(t, domain.PayoutStatusCreated, payout.Status)
	assert.Nil(t, payout.TraderID)
	assert.Equal(t, "100", payout.AmountUsdt.String())
	assert.Equal(t, "100", payout.TotalUsdt.String())
	assert.True(t, payout.ExpireAt.After(time.Now()))
}

func TestCreatePayout_Bounds(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()

	_, err := svc.CreatePayout(ctx, CreatePayoutParams{
		MerchantID: f.merchant.ID,
		MethodID:   f.method.ID,
		Amount:     dec("50"),
		Rate:       dec("90"),
	})
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	_, err = svc.CreatePayout(ctx, CreatePayoutParams{
		MerchantID: f.merchant.ID,
		MethodID:   f.method.ID,
		Amount:     dec("9000"),
		Rate:       dec("0"),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckEligibility_AllClausesHold(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	payout := f.createPayout(t, svc, "9000", "90")

	e, err := svc.CheckEligibility(context.Background(), f.trader.ID, payout)
	require.NoError(t, err)
	assert.True(t, e.Eligible())
	assert.Empty(t, e.Reasons())
}

func TestCheckEligibility_ClauseByClause(t *testing.T) {
	ctx := context.Background()

	t.Run("capacity", func(t *testing.T) {
		f := newFixture()
		limited := f.trader
		limited.MaxSimultaneousPayouts = 0
		f.store.PutTrader(limited)

		svc := f.payoutService()
		payout := f.createPayout(t, svc, "9000", "90")
		e, err := svc.CheckEligibility(ctx, f.trader.ID, payout)
		require.NoError(t, err)
		assert.False(t, e.Capacity)
		assert.True(t, e.Balance)
		assert.Contains(t, e.Reasons(), "max simultaneous payouts reached")
	})

	t.Run("balance", func(t *testing.T) {
		f := newFixture()
		broke := f.trader
		broke.FiatBalance = dec("10")
		f.store.PutTrader(broke)

		svc := f.payoutService()
		payout := f.createPayout(t, svc, "9000", "90")
		e, err := svc.CheckEligibility(ctx, f.trader.ID, payout)
		require.NoError(t, err)
		assert.False(t, e.Balance)
		assert.True(t, e.Capacity)
	})

	t.Run("filter bank mismatch", func(t *testing.T) {
		f := newFixture()
		f.store.PutPayoutFilter(models.PayoutFilter{
			TraderID: f.trader.ID,
			Banks:    []string{"Tinkoff"},
		})

		svc := f.payoutService()
		payout := f.createPayout(t, svc, "9000", "90")
		e, err := svc.CheckEligibility(ctx, f.trader.ID, payout)
		require.NoError(t, err)
		assert.False(t, e.Filter)
	})

	t.Run("filter traffic type", func(t *testing.T) {
		f := newFixture()
		f.store.PutPayoutFilter(models.PayoutFilter{
			TraderID:     f.trader.ID,
			TrafficTypes: []string{"sbp"},
		})

		svc := f.payoutService()
		// IsCard payout is c2c traffic, which the filter excludes.
		payout := f.createPayout(t, svc, "9000", "90")
		e, err := svc.CheckEligibility(ctx, f.trader.ID, payout)
		require.NoError(t, err)
		assert.False(t, e.Filter)
	})

	t.Run("blacklist", func(t *testing.T) {
		f := newFixture()
		svc := f.payoutService()
		payout := f.createPayout(t, svc, "9000", "90")
		f.store.BlacklistPayout(f.trader.ID, f.merchant.ID, payout.ID)

		e, err := svc.CheckEligibility(ctx, f.trader.ID, payout)
		require.NoError(t, err)
		assert.False(t, e.NotBlacklisted)
	})

	t.Run("merchant relation", func(t *testing.T) {
		f := newFixture()
		stranger := models.Trader{
			ID:                     uuid.New(),
			Name:                   "unrelated",
			TrafficEnabled:         true,
			FiatBalance:            dec("100000"),
			MaxSimultaneousPayouts: 5,
		}
		f.store.PutTrader(stranger)

		svc := f.payoutService()
		payout := f.createPayout(t, svc, "9000", "90")
		e, err := svc.CheckEligibility(ctx, stranger.ID, payout)
		require.NoError(t, err)
		assert.False(t, e.MerchantRelation)
		assert.False(t, e.Eligible())
	})

	t.Run("banned trader fails everything", func(t *testing.T) {
		f := newFixture()
		banned := f.trader
		banned.Banned = true
		f.store.PutTrader(banned)

		svc := f.payoutService()
		payout := f.createPayout(t, svc, "9000", "90")
		e, err := svc.CheckEligibility(ctx, f.trader.ID, payout)
		require.NoError(t, err)
		assert.False(t, e.Eligible())
		assert.Len(t, e.Reasons(), 5)
	})
}

func TestAccept_FreezesFiat(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()
	payout := f.createPayout(t, svc, "9000", "90")

	accepted, err := svc.Accept(ctx, f.trader.ID, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusActive, accepted.Status)
	require.NotNil(t, accepted.TraderID)
	assert.Equal(t, f.trader.ID, *accepted.TraderID)
	assert.NotNil(t, accepted.AcceptedAt)

	trader, err := f.store.Queries().GetTrader(ctx, f.trader.ID)
	require.NoError(t, err)
	assert.Equal(t, "91000", trader.FiatBalance.String())
	assert.Equal(t, "9000", trader.FrozenFiat.String())
}

func TestAccept_Race(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()
	payout := f.createPayout(t, svc, "9000", "90")

	second, _ := f.addTrader("1000", "Sberbank", time.Now())
	funded := second
	funded.FiatBalance = dec("100000")
	funded.MaxSimultaneousPayouts = 5
	f.store.PutTrader(funded)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, traderID := range []uuid.UUID{f.trader.ID, second.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = svc.Accept(ctx, id, payout.ID)
		}(i, traderID)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	assert.Equal(t, 1, won)
}

func TestAccept_Expired(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()
	payout := f.createPayout(t, svc, "9000", "90")

	svc.WithNow(func() time.Time { return payout.ExpireAt.Add(time.Minute) })
	_, err := svc.Accept(ctx, f.trader.ID, payout.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConfirmApprove_FullCycle(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()
	payout := f.createPayout(t, svc, "9000", "90")

	_, err := svc.Accept(ctx, f.trader.ID, payout.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Confirm(ctx, f.trader.ID, payout.ID))
	got, err := f.store.Queries().GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusChecking, got.Status)

	require.NoError(t, svc.Approve(ctx, f.merchant.ID, payout.ID))
	got, err = f.store.Queries().GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, got.Status)
	assert.NotNil(t, got.ConfirmedAt)

	// Fiat freeze burned, settlement equivalent credited.
	trader, err := f.store.Queries().GetTrader(ctx, f.trader.ID)
	require.NoError(t, err)
	assert.Equal(t, "91000", trader.FiatBalance.String())
	assert.True(t, trader.FrozenFiat.IsZero())
	assert.Equal(t, "1100", trader.TrustBalance.String())
}

func TestConfirm_WrongTrader(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()
	payout := f.createPayout(t, svc, "9000", "90")

	_, err := svc.Accept(ctx, f.trader.ID, payout.ID)
	require.NoError(t, err)

	err = svc.Confirm(ctx, uuid.New(), payout.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReject_ReleasesFiat(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()
	payout := f.createPayout(t, svc, "9000", "90")

	_, err := svc.Accept(ctx, f.trader.ID, payout.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, f.trader.ID, payout.ID))

	require.NoError(t, svc.Reject(ctx, f.merchant.ID, payout.ID, "receipt mismatch"))

	got, err := f.store.Queries().GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusRejected, got.Status)
	assert.Equal(t, "receipt mismatch", got.CancelReason)

	trader, err := f.store.Queries().GetTrader(ctx, f.trader.ID)
	require.NoError(t, err)
	assert.Equal(t, "100000", trader.FiatBalance.String())
	assert.True(t, trader.FrozenFiat.IsZero())
}

func TestCancel_OnlyUnaccepted(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()

	payout := f.createPayout(t, svc, "9000", "90")
	require.NoError(t, svc.Cancel(ctx, f.merchant.ID, payout.ID, "merchant withdrew"))

	got, err := f.store.Queries().GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCancelled, got.Status)

	// Once accepted, cancel no longer applies.
	second := f.createPayout(t, svc, "8000", "90")
	_, err = svc.Accept(ctx, f.trader.ID, second.ID)
	require.NoError(t, err)
	err = svc.Cancel(ctx, f.merchant.ID, second.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestListAvailable_FiltersByEligibility(t *testing.T) {
	f := newFixture()
	svc := f.payoutService()
	ctx := context.Background()

	visible := f.createPayout(t, svc, "9000", "90")
	hidden := f.createPayout(t, svc, "8000", "90")
	f.store.BlacklistPayout(f.trader.ID, f.merchant.ID, hidden.ID)

	available, err := svc.ListAvailable(ctx, f.trader.ID, 50)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, visible.ID, available[0].ID)
}
