package service

import (
	"context"
	"time"

	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Queries is the ledger-store contract required by the settlement core.
// Every method is individually atomic; composite flows run inside
// QueryStore.RunInTx. Mutating methods return the affected row count so
// callers can re-verify preconditions at commit time instead of trusting
// an earlier read.
type Queries interface {
	// Merchants, methods, settings.
	GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, error)
	GetMerchantByToken(ctx context.Context, token string) (models.Merchant, error)
	GetMethod(ctx context.Context, id uuid.UUID) (models.Method, error)
	GetMerchantMethod(ctx context.Context, merchantID, methodID uuid.UUID) (models.MerchantMethod, error)
	GetTraderMerchant(ctx context.Context, traderID, merchantID, methodID uuid.UUID) (models.TraderMerchant, error)
	ListMerchantTraderIDs(ctx context.Context, merchantID, methodID uuid.UUID) ([]uuid.UUID, error)
	HasPayoutRelation(ctx context.Context, traderID, merchantID uuid.UUID) (bool, error)
	GetSystemSetting(ctx context.Context, key string) (string, error)

	// Traders and balance movements. Each movement is a guarded update:
	// zero rows means the precondition (sufficient available or frozen
	// balance) did not hold.
	GetTrader(ctx context.Context, id uuid.UUID) (models.Trader, error)
	FreezeTraderSettlement(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error)
	ReleaseTraderSettlement(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error)
	SettleTraderSettlement(ctx context.Context, traderID uuid.UUID, frozen, profit decimal.Decimal) (int64, error)
	FreezeTraderFiat(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error)
	ReleaseTraderFiat(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error)
	SettleTraderPayout(ctx context.Context, traderID uuid.UUID, frozenFiat, creditUsdt decimal.Decimal) (int64, error)

	// Requisites.
	ListCandidateRequisites(ctx context.Context, arg ListCandidateRequisitesParams) ([]models.RequisiteCandidate, error)
	TouchRequisite(ctx context.Context, id uuid.UUID) error
	CountRequisiteActiveTransactions(ctx context.Context, requisiteID uuid.UUID) (int64, error)
	SumRequisiteActiveTransactions(ctx context.Context, requisiteID uuid.UUID) (decimal.Decimal, error)
	RequisiteHasActiveAmount(ctx context.Context, requisiteID uuid.UUID, amount decimal.Decimal) (bool, error)

	// Transactions.
	CreateTransaction(ctx context.Context, tx models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	GetTransactionByOrderID(ctx context.Context, merchantID uuid.UUID, orderID string) (models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error)
	MarkTransactionMatched(ctx context.Context, arg MarkTransactionMatchedParams) (int64, error)
	ListMatchableTransactions(ctx context.Context, traderID uuid.UUID) ([]models.MatchCandidate, error)
	ListExpiredTransactions(ctx context.Context, now time.Time, limit int32) ([]models.Transaction, error)

	// Payouts.
	CreatePayout(ctx context.Context, p models.Payout) error
	GetPayout(ctx context.Context, id uuid.UUID) (models.Payout, error)
	UpdatePayoutStatus(ctx context.Context, arg UpdatePayoutStatusParams) (int64, error)
	AssignPayout(ctx context.Context, arg AssignPayoutParams) (int64, error)
	CountTraderActivePayouts(ctx context.Context, traderID uuid.UUID) (int64, error)
	ListUnassignedPayouts(ctx context.Context, limit int32) ([]models.Payout, error)
	GetPayoutFilter(ctx context.Context, traderID uuid.UUID) (models.PayoutFilter, error)
	IsPayoutBlacklisted(ctx context.Context, traderID, merchantID, payoutID uuid.UUID) (bool, error)

	// Notifications.
	ListUnprocessedNotifications(ctx context.Context, limit int32) ([]models.NotificationWithDevice, error)
	MarkNotificationProcessed(ctx context.Context, id uuid.UUID) (int64, error)

	// Callback history (append-only).
	AppendCallbackHistory(ctx context.Context, h models.CallbackHistory) error
	ListCallbackHistory(ctx context.Context, transactionID uuid.UUID) ([]models.CallbackHistory, error)

	// Disputes.
	CreateDispute(ctx context.Context, d models.Dispute) error
	GetDispute(ctx context.Context, id uuid.UUID) (models.Dispute, error)
	UpdateDisputeStatus(ctx context.Context, arg UpdateDisputeStatusParams) (int64, error)
	AppendDisputeMessage(ctx context.Context, m models.DisputeMessage) error
	ListDisputeMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error)
}

// QueryStore provides query access plus transaction scoping, the shape
// the postgres store and the in-memory test store both satisfy.
type QueryStore interface {
	Queries() Queries
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}

// ListCandidateRequisitesParams narrows the candidate pool. An empty
// BankType matches any bank (fallback widening). TraderIDs, when
// non-empty, restricts to traders connected to the requesting merchant.
type ListCandidateRequisitesParams struct {
	MethodType string
	BankType   string
	TraderIDs  []uuid.UUID
}

// UpdateTransactionStatusParams is a conditional status write: when
// FromStatuses is non-empty the update only applies while the current
// status is one of them.
type UpdateTransactionStatusParams struct {
	ID           uuid.UUID
	Status       string
	FromStatuses []string
	AcceptedAt   *time.Time
}

// MarkTransactionMatchedParams transitions an IN_PROGRESS transaction to
// READY and records the matched notification in a single check-and-set.
type MarkTransactionMatchedParams struct {
	ID             uuid.UUID
	NotificationID uuid.UUID
	AcceptedAt     time.Time
}

// UpdatePayoutStatusParams mirrors UpdateTransactionStatusParams for
// payouts.
type UpdatePayoutStatusParams struct {
	ID           uuid.UUID
	Status       string
	FromStatuses []string
	CancelReason string
	ConfirmedAt  *time.Time
}

// AssignPayoutParams claims a CREATED, unassigned payout for a trader.
type AssignPayoutParams struct {
	ID       uuid.UUID
	TraderID uuid.UUID
	ExpireAt time.Time
}

// UpdateDisputeStatusParams is a conditional dispute status write.
type UpdateDisputeStatusParams struct {
	ID           uuid.UUID
	Status       string
	FromStatuses []string
	Resolution   string
	ResolvedAt   *time.Time
}
