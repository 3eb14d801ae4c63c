package service

import (
	"testing"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, IsTerminalTxStatus(domain.TxStatusReady))
	assert.True(t, IsTerminalTxStatus(domain.TxStatusCanceled))
	assert.True(t, IsTerminalTxStatus(domain.TxStatusExpired))
	assert.False(t, IsTerminalTxStatus(domain.TxStatusInProgress))
	assert.False(t, IsTerminalTxStatus(domain.TxStatusDispute))

	assert.True(t, IsTerminalPayoutStatus(domain.PayoutStatusCompleted))
	assert.True(t, IsTerminalPayoutStatus(domain.PayoutStatusRejected))
	assert.True(t, IsTerminalPayoutStatus(domain.PayoutStatusCancelled))
	assert.False(t, IsTerminalPayoutStatus(domain.PayoutStatusActive))
	assert.False(t, IsTerminalPayoutStatus(domain.PayoutStatusDispute))

	assert.True(t, IsTerminalDisputeStatus(domain.DisputeStatusResolvedSuccess))
	assert.True(t, IsTerminalDisputeStatus(domain.DisputeStatusResolvedFail))
	assert.True(t, IsTerminalDisputeStatus(domain.DisputeStatusCancelled))
	assert.False(t, IsTerminalDisputeStatus(domain.DisputeStatusOpen))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(txTransitions, domain.TxStatusInProgress, domain.TxStatusReady))
	assert.True(t, canTransition(txTransitions, domain.TxStatusDispute, domain.TxStatusInProgress))
	assert.False(t, canTransition(txTransitions, domain.TxStatusReady, domain.TxStatusInProgress))
	assert.False(t, canTransition(txTransitions, domain.TxStatusExpired, domain.TxStatusReady))

	assert.True(t, canTransition(payoutTransitions, domain.PayoutStatusChecking, domain.PayoutStatusCompleted))
	assert.False(t, canTransition(payoutTransitions, domain.PayoutStatusCreated, domain.PayoutStatusCompleted))
}

func TestRequireUpdated(t *testing.T) {
	assert.NoError(t, requireUpdated(1, "anything"))
	assert.ErrorIs(t, requireUpdated(0, "guarded update"), domain.ErrConflict)
}
