package partner

import (
	"testing"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStatus(t *testing.T) {
	assert.Equal(t, "new", MapStatus(domain.TxStatusCreated))
	assert.Equal(t, "new", MapStatus(domain.TxStatusInProgress))
	assert.Equal(t, "complete", MapStatus(domain.TxStatusReady))
	assert.Equal(t, "cancel", MapStatus(domain.TxStatusCanceled))
	assert.Equal(t, "cancel", MapStatus(domain.TxStatusExpired))
	assert.Equal(t, "appeal", MapStatus(domain.TxStatusDispute))
}

func TestMapStatus_TotalOverUnknown(t *testing.T) {
	// Future or garbage statuses degrade to the most conservative
	// partner value instead of failing.
	assert.Equal(t, "new", MapStatus("SOMETHING_NEW"))
	assert.Equal(t, "new", MapStatus(""))
}

func TestInvertStatus(t *testing.T) {
	got, err := InvertStatus("complete")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusReady, got)

	// Both CANCELED and EXPIRED collapse to "cancel"; the inverse picks
	// CANCELED by convention.
	got, err = InvertStatus("cancel")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCanceled, got)

	got, err = InvertStatus("new")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusInProgress, got)
}

func TestInvertStatus_Unknown(t *testing.T) {
	_, err := InvertStatus("refund")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRoundTrip_MappableStatuses(t *testing.T) {
	// Statuses with an unambiguous partner image survive the round
	// trip.
	for _, s := range []string{domain.TxStatusReady, domain.TxStatusDispute} {
		back, err := InvertStatus(MapStatus(s))
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}
