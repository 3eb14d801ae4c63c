package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/observability"
	"github.com/chasepay/settlement/internal/partner"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// errCandidateSkipped aborts a reservation attempt on one candidate so
// the selection loop can move to the next. Never escapes CreatePayment.
var errCandidateSkipped = errors.New("candidate skipped")

// PaymentService owns inbound deal creation: requisite selection,
// freezing, and expiry of stale deals.
type PaymentService struct {
	store      QueryStore
	callbacks  *CallbackDispatcher
	defaultKkk decimal.Decimal
	lifetime   time.Duration
	now        func() time.Time
}

// NewPaymentService constructs the service. defaultKkk is used when the
// system-settings markup key is absent; lifetime is the default deal
// lifetime when the request does not carry one.
func NewPaymentService(store QueryStore, callbacks *CallbackDispatcher, defaultKkk decimal.Decimal, lifetime time.Duration) *PaymentService {
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	return &PaymentService{
		store:      store,
		callbacks:  callbacks,
		defaultKkk: defaultKkk,
		lifetime:   lifetime,
		now:        time.Now,
	}
}

// WithNow overrides the service clock for tests.
func (s *PaymentService) WithNow(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// CreatePaymentParams is an inbound payment request.
type CreatePaymentParams struct {
	MerchantID  uuid.UUID
	MethodID    uuid.UUID
	OrderID     string
	Amount      decimal.Decimal
	Rate        decimal.Decimal
	BankType    string
	CallbackURI string
	SuccessURI  string
	FailURI     string
	Lifetime    time.Duration
}

// PaymentResult is the creation response: the stored transaction plus
// the requisite-derived payment credential.
type PaymentResult struct {
	Transaction    models.Transaction
	Credential     string
	RecipientName  string
	BankType       string
	ExternalStatus string
}

// CreatePayment selects a requisite and reserves it, freezing the
// trader's settlement balance in the same storage transaction. The pool
// is walked oldest-served-first and the first candidate passing every
// filter wins (first-fit). When no candidate matches the exact bank
// type the search is retried bank-agnostic before NO_CAPACITY.
func (s *PaymentService) CreatePayment(ctx context.Context, p CreatePaymentParams) (PaymentResult, error) {
	if err := s.validateCreate(p); err != nil {
		observability.IncrementReservation("validation")
		return PaymentResult{}, err
	}
	q := s.store.Queries()

	merchant, err := q.GetMerchant(ctx, p.MerchantID)
	if err != nil {
		return PaymentResult{}, err
	}
	if merchant.Disabled {
		return PaymentResult{}, fmt.Errorf("merchant disabled: %w", domain.ErrMethodUnavailable)
	}

	method, err := q.GetMethod(ctx, p.MethodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return PaymentResult{}, fmt.Errorf("method %s: %w", p.MethodID, domain.ErrMethodUnavailable)
		}
		return PaymentResult{}, err
	}
	mm, err := q.GetMerchantMethod(ctx, p.MerchantID, p.MethodID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return PaymentResult{}, err
	}
	if err != nil || !method.Enabled || !mm.IsEnabled {
		return PaymentResult{}, fmt.Errorf("method %s not enabled for merchant: %w", p.MethodID, domain.ErrMethodUnavailable)
	}
	if p.Amount.LessThan(method.MinPayin) || (method.MaxPayin.Sign() > 0 && p.Amount.GreaterThan(method.MaxPayin)) {
		return PaymentResult{}, fmt.Errorf("amount %s outside method bounds [%s, %s]: %w",
			p.Amount, method.MinPayin, method.MaxPayin, domain.ErrAmountOutOfRange)
	}

	if _, err := q.GetTransactionByOrderID(ctx, p.MerchantID, p.OrderID); err == nil {
		observability.IncrementReservation("conflict")
		return PaymentResult{}, fmt.Errorf("order %q already exists: %w", p.OrderID, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return PaymentResult{}, err
	}

	kkk, err := s.kkkPercent(ctx, q)
	if err != nil {
		return PaymentResult{}, err
	}
	traderIDs, err := q.ListMerchantTraderIDs(ctx, p.MerchantID, p.MethodID)
	if err != nil {
		return PaymentResult{}, err
	}
	if len(traderIDs) == 0 {
		observability.IncrementReservation("no_capacity")
		return PaymentResult{}, fmt.Errorf("no traders connected to merchant: %w", domain.ErrNoCapacity)
	}

	tx, requisite, err := s.reserve(ctx, reserveParams{
		create:     p,
		method:     method,
		kkkPercent: kkk,
		traderIDs:  traderIDs,
		bankType:   p.BankType,
	})
	if errors.Is(err, domain.ErrNoCapacity) && p.BankType != "" {
		// Fallback widening: retry ignoring bank type before giving up.
		tx, requisite, err = s.reserve(ctx, reserveParams{
			create:     p,
			method:     method,
			kkkPercent: kkk,
			traderIDs:  traderIDs,
			bankType:   "",
		})
	}
	if err != nil {
		if errors.Is(err, domain.ErrNoCapacity) {
			observability.IncrementReservation("no_capacity")
		}
		return PaymentResult{}, err
	}

	observability.IncrementReservation("reserved")
	zap.L().Info("payment reserved",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("order_id", tx.OrderID),
		zap.String("requisite_id", requisite.ID.String()),
		zap.String("frozen", tx.TotalRequired().String()))

	return PaymentResult{
		Transaction:    tx,
		Credential:     MaskCredential(requisite.MethodType, requisite.CardNumber),
		RecipientName:  requisite.RecipientName,
		BankType:       requisite.BankType,
		ExternalStatus: partner.MapStatus(tx.Status),
	}, nil
}

func (s *PaymentService) validateCreate(p CreatePaymentParams) error {
	if p.OrderID == "" {
		return fmt.Errorf("order id is required: %w", domain.ErrValidation)
	}
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}
	if p.Rate.Sign() <= 0 {
		return fmt.Errorf("rate must be positive: %w", domain.ErrValidation)
	}
	return nil
}

func (s *PaymentService) kkkPercent(ctx context.Context, q Queries) (decimal.Decimal, error) {
	raw, err := q.GetSystemSetting(ctx, domain.SystemSettingKkkPercent)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.defaultKkk, nil
		}
		return decimal.Decimal{}, err
	}
	kkk, err := decimal.NewFromString(raw)
	if err != nil {
		zap.L().Warn("malformed markup setting, using default",
			zap.String("value", raw), zap.Error(err))
		return s.defaultKkk, nil
	}
	return kkk, nil
}

type reserveParams struct {
	create     CreatePaymentParams
	method     models.Method
	kkkPercent decimal.Decimal
	traderIDs  []uuid.UUID
	bankType   string
}

func (s *PaymentService) reserve(ctx context.Context, rp reserveParams) (models.Transaction, models.Requisite, error) {
	q := s.store.Queries()
	pool, err := q.ListCandidateRequisites(ctx, ListCandidateRequisitesParams{
		MethodType: rp.method.Type,
		BankType:   rp.bankType,
		TraderIDs:  rp.traderIDs,
	})
	if err != nil {
		return models.Transaction{}, models.Requisite{}, err
	}

	p := rp.create
	for _, c := range pool {
		r, t := c.Requisite, c.Trader
		if p.Amount.LessThan(r.MinAmount) || (r.MaxAmount.Sign() > 0 && p.Amount.GreaterThan(r.MaxAmount)) {
			continue
		}
		if p.Amount.LessThan(t.MinAmountPerRequisite) ||
			(t.MaxAmountPerRequisite.Sign() > 0 && p.Amount.GreaterThan(t.MaxAmountPerRequisite)) {
			continue
		}

		tm, err := q.GetTraderMerchant(ctx, t.ID, p.MerchantID, p.MethodID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return models.Transaction{}, models.Requisite{}, err
		}
		if !tm.IsMerchantEnabled || !tm.IsFeeInEnabled {
			continue
		}

		freezing, err := CalculateFreezing(p.Amount, p.Rate, rp.kkkPercent, tm.FeeIn)
		if err != nil {
			return models.Transaction{}, models.Requisite{}, err
		}
		if t.TrustBalance.LessThan(freezing.TotalRequired) {
			continue
		}

		tx, err := s.tryReserve(ctx, p, r, freezing)
		if errors.Is(err, errCandidateSkipped) {
			continue
		}
		if err != nil {
			return models.Transaction{}, models.Requisite{}, err
		}
		return tx, r, nil
	}
	return models.Transaction{}, models.Requisite{},
		fmt.Errorf("no eligible requisite for amount %s: %w", p.Amount, domain.ErrNoCapacity)
}

// tryReserve performs the atomic reservation against one candidate.
// Every precondition that can change between the pool read and now is
// re-verified inside the transaction; any miss rolls the whole attempt
// back and the caller moves on.
func (s *PaymentService) tryReserve(ctx context.Context, p CreatePaymentParams, r models.Requisite, freezing FreezingParams) (models.Transaction, error) {
	lifetime := p.Lifetime
	if lifetime <= 0 {
		lifetime = s.lifetime
	}
	now := s.now()
	traderID := r.TraderID
	requisiteID := r.ID
	tx := models.Transaction{
		ID:                   uuid.New(),
		MerchantID:           p.MerchantID,
		MethodID:             p.MethodID,
		TraderID:             &traderID,
		RequisiteID:          &requisiteID,
		OrderID:              p.OrderID,
		Type:                 domain.TxTypeIn,
		Amount:               p.Amount,
		Rate:                 p.Rate,
		AdjustedRate:         freezing.AdjustedRate,
		FrozenUsdtAmount:     freezing.FrozenUsdtAmount,
		CalculatedCommission: freezing.CalculatedCommission,
		Status:               domain.TxStatusInProgress,
		AssetOrBank:          r.BankType,
		CallbackURI:          p.CallbackURI,
		SuccessURI:           p.SuccessURI,
		FailURI:              p.FailURI,
		ExpiredAt:            now.Add(lifetime),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.store.RunInTx(ctx, func(q Queries) error {
		dup, err := q.RequisiteHasActiveAmount(ctx, r.ID, p.Amount)
		if err != nil {
			return err
		}
		if dup {
			// Two live deals with the same amount on one requisite
			// would make bank evidence ambiguous.
			return errCandidateSkipped
		}
		if r.OperationLimit > 0 {
			count, err := q.CountRequisiteActiveTransactions(ctx, r.ID)
			if err != nil {
				return err
			}
			if count >= int64(r.OperationLimit) {
				return errCandidateSkipped
			}
		}
		if r.SumLimit.Sign() > 0 {
			sum, err := q.SumRequisiteActiveTransactions(ctx, r.ID)
			if err != nil {
				return err
			}
			if sum.Add(p.Amount).GreaterThan(r.SumLimit) {
				return errCandidateSkipped
			}
		}

		n, err := q.FreezeTraderSettlement(ctx, r.TraderID, freezing.TotalRequired)
		if err != nil {
			return err
		}
		if n == 0 {
			return errCandidateSkipped
		}
		if err := q.TouchRequisite(ctx, r.ID); err != nil {
			return err
		}
		return q.CreateTransaction(ctx, tx)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

// GetPayment returns a merchant's transaction with its external status.
func (s *PaymentService) GetPayment(ctx context.Context, merchantID, id uuid.UUID) (models.Transaction, string, error) {
	tx, err := s.store.Queries().GetTransaction(ctx, id)
	if err != nil {
		return models.Transaction{}, "", err
	}
	if tx.MerchantID != merchantID {
		return models.Transaction{}, "", fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return tx, partner.MapStatus(tx.Status), nil
}

// ListCallbacks returns the delivery history of a merchant's
// transaction.
func (s *PaymentService) ListCallbacks(ctx context.Context, merchantID, id uuid.UUID) ([]models.CallbackHistory, error) {
	tx, err := s.store.Queries().GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.MerchantID != merchantID {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return s.store.Queries().ListCallbackHistory(ctx, id)
}

// ExpireStale moves deals past their lifetime to EXPIRED and releases
// the freeze. Each deal is its own transaction, so one conflict does
// not stall the batch. Fail callbacks go out after each commit.
func (s *PaymentService) ExpireStale(ctx context.Context, limit int32) (int, error) {
	now := s.now()
	stale, err := s.store.Queries().ListExpiredTransactions(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, tx := range stale {
		err := s.store.RunInTx(ctx, func(q Queries) error {
			n, err := q.UpdateTransactionStatus(ctx, UpdateTransactionStatusParams{
				ID:           tx.ID,
				Status:       domain.TxStatusExpired,
				FromStatuses: []string{domain.TxStatusCreated, domain.TxStatusInProgress},
			})
			if err != nil {
				return err
			}
			if err := requireUpdated(n, "expire transaction"); err != nil {
				return err
			}
			if tx.TraderID != nil && tx.TotalRequired().Sign() > 0 {
				n, err := q.ReleaseTraderSettlement(ctx, *tx.TraderID, tx.TotalRequired())
				if err != nil {
					return err
				}
				if err := requireUpdated(n, "release expired freeze"); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Settled or canceled since the list was read.
				continue
			}
			return expired, err
		}
		expired++
		tx.Status = domain.TxStatusExpired
		s.callbacks.Dispatch(ctx, tx)
	}
	if expired > 0 {
		zap.L().Info("expired stale transactions", zap.Int("count", expired))
	}
	return expired, nil
}

// MaskCredential masks a card number to its first and last four digits.
// Non-card credentials (SBP phone numbers) pass through unchanged.
func MaskCredential(methodType, credential string) string {
	if methodType != domain.MethodTypeC2C {
		return credential
	}
	digits := strings.ReplaceAll(credential, " ", "")
	if len(digits) < 8 {
		return credential
	}
	return digits[:4] + strings.Repeat("*", len(digits)-8) + digits[len(digits)-4:]
}
