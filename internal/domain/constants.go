package domain

// Transaction (inbound deal) statuses. READY, CANCELED and EXPIRED are
// terminal; a transaction parked in DISPUTE leaves it only through a
// dispute resolution.
const (
	TxStatusCreated    = "CREATED"
	TxStatusInProgress = "IN_PROGRESS"
	TxStatusReady      = "READY"
	TxStatusCanceled   = "CANCELED"
	TxStatusExpired    = "EXPIRED"
	TxStatusDispute    = "DISPUTE"
)

// Payout (outbound withdrawal) statuses.
const (
	PayoutStatusCreated   = "CREATED"
	PayoutStatusActive    = "ACTIVE"
	PayoutStatusChecking  = "CHECKING"
	PayoutStatusCompleted = "COMPLETED"
	PayoutStatusDispute   = "DISPUTE"
	PayoutStatusExpired   = "EXPIRED"
	PayoutStatusRejected  = "REJECTED"
	PayoutStatusTrash     = "TRASH"
	PayoutStatusCancelled = "CANCELLED"
)

// Dispute statuses.
const (
	DisputeStatusOpen            = "OPEN"
	DisputeStatusInProgress      = "IN_PROGRESS"
	DisputeStatusResolvedSuccess = "RESOLVED_SUCCESS"
	DisputeStatusResolvedFail    = "RESOLVED_FAIL"
	DisputeStatusCancelled       = "CANCELLED"
)

// Dispute kinds.
const (
	DisputeKindDeal       = "DEAL"
	DisputeKindWithdrawal = "WITHDRAWAL"
)

// Transaction direction.
const (
	TxTypeIn  = "IN"
	TxTypeOut = "OUT"
)

// Method/traffic types supported by requisites and payout filters.
const (
	MethodTypeC2C = "c2c"
	MethodTypeSBP = "sbp"
)

// SystemSettingKkkPercent is the system-settings key holding the platform
// markup percent applied to the market rate during freezing.
const SystemSettingKkkPercent = "kkk_percent"
