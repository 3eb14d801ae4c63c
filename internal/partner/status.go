// Package partner translates between the platform's internal status
// vocabulary and partner-specific integrations (currently Wellbit), and
// signs partner payloads.
package partner

import (
	"fmt"

	"github.com/chasepay/settlement/internal/domain"
)

// Wellbit status vocabulary.
const (
	WellbitStatusNew        = "new"
	WellbitStatusComplete   = "complete"
	WellbitStatusCancel     = "cancel"
	WellbitStatusChargeback = "chargeback"
	WellbitStatusAppeal     = "appeal"
)

var toWellbit = map[string]string{
	domain.TxStatusCreated:    WellbitStatusNew,
	domain.TxStatusInProgress: WellbitStatusNew,
	domain.TxStatusReady:      WellbitStatusComplete,
	domain.TxStatusCanceled:   WellbitStatusCancel,
	domain.TxStatusExpired:    WellbitStatusCancel,
	domain.TxStatusDispute:    WellbitStatusAppeal,
}

// Inverse mapping is intentionally lossy: both CANCELED and EXPIRED map
// to "cancel", which inverts to CANCELED by convention, and "new"
// inverts to the pending-like IN_PROGRESS.
var fromWellbit = map[string]string{
	WellbitStatusNew:      domain.TxStatusInProgress,
	WellbitStatusComplete: domain.TxStatusReady,
	WellbitStatusCancel:   domain.TxStatusCanceled,
	WellbitStatusAppeal:   domain.TxStatusDispute,
}

// MapStatus converts an internal transaction status to the Wellbit
// vocabulary. Total over the internal enum: unknown or future statuses
// fall back to the most conservative value, "new".
func MapStatus(internal string) string {
	if ext, ok := toWellbit[internal]; ok {
		return ext
	}
	return WellbitStatusNew
}

// InvertStatus converts a Wellbit status back to the internal enum. The
// inverse is partial and fails explicitly on unknown partner strings.
func InvertStatus(external string) (string, error) {
	if internal, ok := fromWellbit[external]; ok {
		return internal, nil
	}
	return "", fmt.Errorf("%w: unknown partner status %q", domain.ErrValidation, external)
}
