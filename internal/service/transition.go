package service

import (
	"fmt"

	"github.com/chasepay/settlement/internal/domain"
)

// Allowed status transitions. A status absent from the outer map is
// terminal.
var txTransitions = map[string]map[string]struct{}{
	domain.TxStatusCreated: {
		domain.TxStatusInProgress: {},
		domain.TxStatusCanceled:   {},
		domain.TxStatusExpired:    {},
		domain.TxStatusDispute:    {},
	},
	domain.TxStatusInProgress: {
		domain.TxStatusReady:    {},
		domain.TxStatusCanceled: {},
		domain.TxStatusExpired:  {},
		domain.TxStatusDispute:  {},
	},
	domain.TxStatusDispute: {
		domain.TxStatusReady:      {},
		domain.TxStatusCanceled:   {},
		domain.TxStatusInProgress: {},
	},
}

var payoutTransitions = map[string]map[string]struct{}{
	domain.PayoutStatusCreated: {
		domain.PayoutStatusActive:    {},
		domain.PayoutStatusCancelled: {},
		domain.PayoutStatusExpired:   {},
	},
	domain.PayoutStatusActive: {
		domain.PayoutStatusChecking: {},
		domain.PayoutStatusRejected: {},
		domain.PayoutStatusExpired:  {},
		domain.PayoutStatusDispute:  {},
		domain.PayoutStatusTrash:    {},
	},
	domain.PayoutStatusChecking: {
		domain.PayoutStatusCompleted: {},
		domain.PayoutStatusRejected:  {},
		domain.PayoutStatusDispute:   {},
	},
	domain.PayoutStatusDispute: {
		domain.PayoutStatusCompleted: {},
		domain.PayoutStatusRejected:  {},
		domain.PayoutStatusChecking:  {},
	},
}

var disputeTransitions = map[string]map[string]struct{}{
	domain.DisputeStatusOpen: {
		domain.DisputeStatusInProgress:      {},
		domain.DisputeStatusResolvedSuccess: {},
		domain.DisputeStatusResolvedFail:    {},
		domain.DisputeStatusCancelled:       {},
	},
	domain.DisputeStatusInProgress: {
		domain.DisputeStatusResolvedSuccess: {},
		domain.DisputeStatusResolvedFail:    {},
		domain.DisputeStatusCancelled:       {},
	},
}

func canTransition(table map[string]map[string]struct{}, from, to string) bool {
	next, ok := table[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminalTxStatus reports whether a transaction status admits no
// further transitions.
func IsTerminalTxStatus(s string) bool {
	_, ok := txTransitions[s]
	return !ok
}

// IsTerminalPayoutStatus reports whether a payout status is final.
func IsTerminalPayoutStatus(s string) bool {
	_, ok := payoutTransitions[s]
	return !ok
}

// IsTerminalDisputeStatus reports whether a dispute status is final.
func IsTerminalDisputeStatus(s string) bool {
	_, ok := disputeTransitions[s]
	return !ok
}

// requireUpdated turns a zero-rows guarded update into a conflict. The
// row either vanished or left the expected state between read and
// commit.
func requireUpdated(n int64, op string) error {
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	}
	return nil
}
