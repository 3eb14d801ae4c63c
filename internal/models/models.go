package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trader supplies bank-account capacity and settles deals. Balances are
// denominated in the settlement asset (USDT) plus a fiat balance used for
// outbound payouts. Frozen amounts never exceed what was moved out of the
// available balance at reservation time.
type Trader struct {
	ID                     uuid.UUID       `json:"id"`
	Name                   string          `json:"name"`
	Email                  string          `json:"email"`
	Banned                 bool            `json:"banned"`
	TrafficEnabled         bool            `json:"traffic_enabled"`
	TrustBalance           decimal.Decimal `json:"trust_balance"`
	FrozenUsdt             decimal.Decimal `json:"frozen_usdt"`
	FiatBalance            decimal.Decimal `json:"fiat_balance"`
	FrozenFiat             decimal.Decimal `json:"frozen_fiat"`
	MinAmountPerRequisite  decimal.Decimal `json:"min_amount_per_requisite"`
	MaxAmountPerRequisite  decimal.Decimal `json:"max_amount_per_requisite"`
	MaxSimultaneousPayouts int             `json:"max_simultaneous_payouts"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Requisite is a trader-owned bank card/account descriptor used to
// receive incoming payments. Requisites are archived when retired and
// never hard-deleted while referenced by a transaction.
type Requisite struct {
	ID             uuid.UUID       `json:"id"`
	TraderID       uuid.UUID       `json:"trader_id"`
	DeviceID       *uuid.UUID      `json:"device_id,omitempty"`
	MethodType     string          `json:"method_type"`
	BankType       string          `json:"bank_type"`
	CardNumber     string          `json:"card_number"`
	RecipientName  string          `json:"recipient_name"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	DailyLimit     decimal.Decimal `json:"daily_limit"`
	MonthlyLimit   decimal.Decimal `json:"monthly_limit"`
	OperationLimit int             `json:"operation_limit"`
	SumLimit       decimal.Decimal `json:"sum_limit"`
	IsArchived     bool            `json:"is_archived"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RequisiteCandidate is a requisite joined with its owning trader, as
// returned by the candidate-pool query ordered by updatedAt ascending.
type RequisiteCandidate struct {
	Requisite Requisite
	Trader    Trader
}

// Transaction is an inbound deal. Amount and rate are fiat-denominated;
// FrozenUsdtAmount/CalculatedCommission are the settlement-asset freeze
// applied against the assigned trader.
type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	MerchantID            uuid.UUID       `json:"merchant_id"`
	MethodID              uuid.UUID       `json:"method_id"`
	TraderID              *uuid.UUID      `json:"trader_id,omitempty"`
	RequisiteID           *uuid.UUID      `json:"requisite_id,omitempty"`
	OrderID               string          `json:"order_id"`
	Type                  string          `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	Rate                  decimal.Decimal `json:"rate"`
	AdjustedRate          decimal.Decimal `json:"adjusted_rate"`
	FrozenUsdtAmount      decimal.Decimal `json:"frozen_usdt_amount"`
	CalculatedCommission  decimal.Decimal `json:"calculated_commission"`
	Status                string          `json:"status"`
	AssetOrBank           string          `json:"asset_or_bank"`
	CallbackURI           string          `json:"callback_uri"`
	SuccessURI            string          `json:"success_uri"`
	FailURI               string          `json:"fail_uri"`
	MatchedNotificationID *uuid.UUID      `json:"matched_notification_id,omitempty"`
	ExpiredAt             time.Time       `json:"expired_at"`
	AcceptedAt            *time.Time      `json:"accepted_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TotalRequired is the settlement amount held against the trader for
// this transaction: principal freeze plus commission.
func (t Transaction) TotalRequired() decimal.Decimal {
	return t.FrozenUsdtAmount.Add(t.CalculatedCommission)
}

// MatchCandidate is a transaction eligible for notification matching,
// carrying the amount tolerance of its method.
type MatchCandidate struct {
	Transaction Transaction
	Tolerance   decimal.Decimal
}

// Payout mirrors Transaction in the outbound direction. TraderID stays
// nil until a trader pulls the payout.
type Payout struct {
	ID           uuid.UUID       `json:"id"`
	MerchantID   uuid.UUID       `json:"merchant_id"`
	TraderID     *uuid.UUID      `json:"trader_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	AmountUsdt   decimal.Decimal `json:"amount_usdt"`
	Total        decimal.Decimal `json:"total"`
	TotalUsdt    decimal.Decimal `json:"total_usdt"`
	Rate         decimal.Decimal `json:"rate"`
	Status       string          `json:"status"`
	Bank         string          `json:"bank"`
	IsCard       bool            `json:"is_card"`
	ExternalRef  string          `json:"external_ref"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	ExpireAt     time.Time       `json:"expire_at"`
	AcceptedAt   *time.Time      `json:"accepted_at,omitempty"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Device is a trader-owned phone capturing bank notifications.
type Device struct {
	ID        uuid.UUID `json:"id"`
	TraderID  uuid.UUID `json:"trader_id"`
	Name      string    `json:"name"`
	IsOnline  bool      `json:"is_online"`
	IsWorking bool      `json:"is_working"`
}

// Notification is raw payment evidence captured on a trader device.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	DeviceID    uuid.UUID `json:"device_id"`
	PackageName string    `json:"package_name"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	IsProcessed bool      `json:"is_processed"`
	CreatedAt   time.Time `json:"created_at"`
}

// NotificationWithDevice joins a notification with its device's trader,
// the ownership scope the matcher searches within.
type NotificationWithDevice struct {
	Notification Notification
	TraderID     uuid.UUID
}

// Dispute is a contested deal or withdrawal. Terminal statuses are
// final; resolution writes back to the referenced transaction/payout.
type Dispute struct {
	ID            uuid.UUID  `json:"id"`
	Kind          string     `json:"kind"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	PayoutID      *uuid.UUID `json:"payout_id,omitempty"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason"`
	Resolution    string     `json:"resolution,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DisputeMessage is one entry in a dispute's ordered message thread.
type DisputeMessage struct {
	ID         uuid.UUID `json:"id"`
	DisputeID  uuid.UUID `json:"dispute_id"`
	SenderType string    `json:"sender_type"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// CallbackHistory is an append-only record of one outbound webhook
// attempt. Rows are never mutated after insert.
type CallbackHistory struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	URL           string          `json:"url"`
	Payload       json.RawMessage `json:"payload"`
	Response      *string         `json:"response,omitempty"`
	StatusCode    *int            `json:"status_code,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Merchant submits deals and payouts. Public/private keys sign the
// partner-specific webhook variant.
type Merchant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Token      string    `json:"-"`
	PublicKey  string    `json:"-"`
	PrivateKey string    `json:"-"`
	Wellbit    bool      `json:"wellbit"`
	Disabled   bool      `json:"disabled"`
}

// Method is a payment rail (c2c card transfer, SBP, ...). Tolerance is
// the fiat amount window used when matching bank evidence.
type Method struct {
	ID        uuid.UUID       `json:"id"`
	Code      string          `json:"code"`
	Type      string          `json:"type"`
	Currency  string          `json:"currency"`
	MinPayin  decimal.Decimal `json:"min_payin"`
	MaxPayin  decimal.Decimal `json:"max_payin"`
	MinPayout decimal.Decimal `json:"min_payout"`
	MaxPayout decimal.Decimal `json:"max_payout"`
	Tolerance decimal.Decimal `json:"tolerance"`
	Enabled   bool            `json:"enabled"`
}

// MerchantMethod enables a method for a merchant.
type MerchantMethod struct {
	MerchantID uuid.UUID `json:"merchant_id"`
	MethodID   uuid.UUID `json:"method_id"`
	IsEnabled  bool      `json:"is_enabled"`
}

// TraderMerchant is the per-(trader, merchant, method) relation carrying
// commission rates and traffic switches.
type TraderMerchant struct {
	TraderID         uuid.UUID       `json:"trader_id"`
	MerchantID       uuid.UUID       `json:"merchant_id"`
	MethodID         uuid.UUID       `json:"method_id"`
	FeeIn            decimal.Decimal `json:"fee_in"`
	FeeOut           decimal.Decimal `json:"fee_out"`
	IsMerchantEnabled bool           `json:"is_merchant_enabled"`
	IsFeeInEnabled   bool            `json:"is_fee_in_enabled"`
	IsFeeOutEnabled  bool            `json:"is_fee_out_enabled"`
}

// PayoutFilter restricts which payout traffic a trader pulls.
// Empty slices mean no restriction.
type PayoutFilter struct {
	TraderID     uuid.UUID `json:"trader_id"`
	TrafficTypes []string  `json:"traffic_types"`
	Banks        []string  `json:"banks"`
}
