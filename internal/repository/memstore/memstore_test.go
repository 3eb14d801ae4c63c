package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTx_RollsBackOnError(t *testing.T) {
	st := New()
	trader := models.Trader{ID: uuid.New(), TrustBalance: decimal.NewFromInt(100)}
	st.PutTrader(trader)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.RunInTx(ctx, func(q service.Queries) error {
		n, err := q.FreezeTraderSettlement(ctx, trader.ID, decimal.NewFromInt(40))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The freeze never happened.
	got, err := st.Queries().GetTrader(ctx, trader.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.TrustBalance.String())
	assert.True(t, got.FrozenUsdt.IsZero())
}

func TestFreezeTraderSettlement_Guarded(t *testing.T) {
	st := New()
	trader := models.Trader{ID: uuid.New(), TrustBalance: decimal.NewFromInt(10)}
	st.PutTrader(trader)
	ctx := context.Background()

	// Insufficient balance leaves the row untouched and reports zero
	// rows, exactly like the conditional UPDATE.
	n, err := st.Queries().FreezeTraderSettlement(ctx, trader.ID, decimal.NewFromInt(11))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.Queries().FreezeTraderSettlement(ctx, trader.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := st.Queries().GetTrader(ctx, trader.ID)
	require.NoError(t, err)
	assert.True(t, got.TrustBalance.IsZero())
	assert.Equal(t, "10", got.FrozenUsdt.String())
}

func TestUpdateTransactionStatus_FromStatusGuard(t *testing.T) {
	st := New()
	ctx := context.Background()
	tx := models.Transaction{
		ID:         uuid.New(),
		MerchantID: uuid.New(),
		OrderID:    "o-1",
		Type:       "IN",
		Status:     "IN_PROGRESS",
	}
	require.NoError(t, st.Queries().CreateTransaction(ctx, tx))

	// Wrong from-status matches nothing.
	n, err := st.Queries().UpdateTransactionStatus(ctx, service.UpdateTransactionStatusParams{
		ID:           tx.ID,
		Status:       "EXPIRED",
		FromStatuses: []string{"CREATED"},
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.Queries().UpdateTransactionStatus(ctx, service.UpdateTransactionStatusParams{
		ID:           tx.ID,
		Status:       "EXPIRED",
		FromStatuses: []string{"CREATED", "IN_PROGRESS"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
