package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayoutService owns the outbound withdrawal flow. Payouts are
// trader-pull: merchants create them unassigned, traders poll the
// eligible set and accept.
type PayoutService struct {
	store     QueryStore
	lifetime  time.Duration
	acceptTTL time.Duration
	now       func() time.Time
}

// NewPayoutService constructs the service. lifetime bounds how long an
// unaccepted payout stays pullable; acceptTTL is the completion window
// granted to the accepting trader.
func NewPayoutService(store QueryStore, lifetime, acceptTTL time.Duration) *PayoutService {
	if lifetime <= 0 {
		lifetime = 2 * time.Hour
	}
	if acceptTTL <= 0 {
		acceptTTL = 30 * time.Minute
	}
	return &PayoutService{
		store:     store,
		lifetime:  lifetime,
		acceptTTL: acceptTTL,
		now:       time.Now,
	}
}

// WithNow overrides the service clock for tests.
func (s *PayoutService) WithNow(now func() time.Time) *PayoutService {
	s.now = now
	return s
}

// CreatePayoutParams is a merchant withdrawal request.
type CreatePayoutParams struct {
	MerchantID  uuid.UUID
	MethodID    uuid.UUID
	Amount      decimal.Decimal
	Rate        decimal.Decimal
	Bank        string
	IsCard      bool
	ExternalRef string
}

// CreatePayout validates and stores an unassigned payout.
func (s *PayoutService) CreatePayout(ctx context.Context, p CreatePayoutParams) (models.Payout, error) {
	if p.Amount.Sign() <= 0 {
		return models.Payout{}, fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}
	if p.Rate.Sign() <= 0 {
		return models.Payout{}, fmt.Errorf("rate must be positive: %w", domain.ErrValidation)
	}
	q := s.store.Queries()

	merchant, err := q.GetMerchant(ctx, p.MerchantID)
	if err != nil {
		return models.Payout{}, err
	}
	if merchant.Disabled {
		return models.Payout{}, fmt.Errorf("merchant disabled: %w", domain.ErrMethodUnavailable)
	}
	method, err := q.GetMethod(ctx, p.MethodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return models.Payout{}, fmt.Errorf("method %s: %w", p.MethodID, domain.ErrMethodUnavailable)
		}
		return models.Payout{}, err
	}
	if !method.Enabled {
		return models.Payout{}, fmt.Errorf("method %s disabled: %w", p.MethodID, domain.ErrMethodUnavailable)
	}
	if p.Amount.LessThan(method.MinPayout) || (method.MaxPayout.Sign() > 0 && p.Amount.GreaterThan(method.MaxPayout)) {
		return models.Payout{}, fmt.Errorf("amount %s outside payout bounds [%s, %s]: %w",
			p.Amount, method.MinPayout, method.MaxPayout, domain.ErrAmountOutOfRange)
	}

	now := s.now()
	amountUsdt := domain.TruncateSettlement(p.Amount.Div(p.Rate))
	payout := models.Payout{
		ID:          uuid.New(),
		MerchantID:  p.MerchantID,
		Amount:      p.Amount,
		AmountUsdt:  amountUsdt,
		Total:       p.Amount,
		TotalUsdt:   amountUsdt,
		Rate:        p.Rate,
		Status:      domain.PayoutStatusCreated,
		Bank:        p.Bank,
		IsCard:      p.IsCard,
		ExternalRef: p.ExternalRef,
		ExpireAt:    now.Add(s.lifetime),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.CreatePayout(ctx, payout); err != nil {
		return models.Payout{}, err
	}
	return payout, nil
}

// Eligibility is the per-clause result of the trader-pull predicate.
// Each clause is independently reported so support can see exactly why
// a payout is not offered to a trader.
type Eligibility struct {
	Capacity         bool
	Balance          bool
	Filter           bool
	NotBlacklisted   bool
	MerchantRelation bool
}

// Eligible reports whether every clause holds.
func (e Eligibility) Eligible() bool {
	return e.Capacity && e.Balance && e.Filter && e.NotBlacklisted && e.MerchantRelation
}

// Reasons names the failing clauses.
func (e Eligibility) Reasons() []string {
	var r []string
	if !e.Capacity {
		r = append(r, "max simultaneous payouts reached")
	}
	if !e.Balance {
		r = append(r, "insufficient fiat balance")
	}
	if !e.Filter {
		r = append(r, "traffic or bank filter mismatch")
	}
	if !e.NotBlacklisted {
		r = append(r, "blacklisted for merchant or payout")
	}
	if !e.MerchantRelation {
		r = append(r, "no enabled merchant relation")
	}
	return r
}

// CheckEligibility evaluates every clause of the pull predicate for one
// (trader, payout) pair. All clauses are always evaluated; the caller
// gets the complete picture, not the first failure.
func (s *PayoutService) CheckEligibility(ctx context.Context, traderID uuid.UUID, payout models.Payout) (Eligibility, error) {
	return s.checkEligibility(ctx, s.store.Queries(), traderID, payout)
}

func (s *PayoutService) checkEligibility(ctx context.Context, q Queries, traderID uuid.UUID, payout models.Payout) (Eligibility, error) {
	var e Eligibility

	trader, err := q.GetTrader(ctx, traderID)
	if err != nil {
		return e, err
	}
	if trader.Banned {
		return e, nil
	}

	active, err := q.CountTraderActivePayouts(ctx, traderID)
	if err != nil {
		return e, err
	}
	e.Capacity = active < int64(trader.MaxSimultaneousPayouts)
	e.Balance = trader.FiatBalance.GreaterThanOrEqual(payout.Total)

	filter, err := q.GetPayoutFilter(ctx, traderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return e, err
	}
	// A missing filter row means no restriction.
	e.Filter = err != nil || filterAllows(filter, payout)

	blacklisted, err := q.IsPayoutBlacklisted(ctx, traderID, payout.MerchantID, payout.ID)
	if err != nil {
		return e, err
	}
	e.NotBlacklisted = !blacklisted

	related, err := q.HasPayoutRelation(ctx, traderID, payout.MerchantID)
	if err != nil {
		return e, err
	}
	e.MerchantRelation = related
	return e, nil
}

func filterAllows(f models.PayoutFilter, p models.Payout) bool {
	traffic := domain.MethodTypeSBP
	if p.IsCard {
		traffic = domain.MethodTypeC2C
	}
	if len(f.TrafficTypes) > 0 && !containsFold(f.TrafficTypes, traffic) {
		return false
	}
	if len(f.Banks) > 0 && !containsFold(f.Banks, p.Bank) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// ListAvailable returns the unassigned payouts the trader is eligible
// to pull right now.
func (s *PayoutService) ListAvailable(ctx context.Context, traderID uuid.UUID, limit int32) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	pending, err := s.store.Queries().ListUnassignedPayouts(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []models.Payout
	for _, p := range pending {
		e, err := s.CheckEligibility(ctx, traderID, p)
		if err != nil {
			return nil, err
		}
		if e.Eligible() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Accept assigns the payout to the trader and freezes the fiat total,
// re-checking eligibility inside the transaction. A lost race on the
// assignment guard returns ErrConflict.
func (s *PayoutService) Accept(ctx context.Context, traderID, payoutID uuid.UUID) (models.Payout, error) {
	var accepted models.Payout
	err := s.store.RunInTx(ctx, func(q Queries) error {
		payout, err := q.GetPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if payout.Status != domain.PayoutStatusCreated || payout.TraderID != nil {
			return fmt.Errorf("payout %s already taken: %w", payoutID, domain.ErrConflict)
		}
		if !payout.ExpireAt.After(s.now()) {
			return fmt.Errorf("payout %s expired: %w", payoutID, domain.ErrConflict)
		}

		e, err := s.checkEligibility(ctx, q, traderID, payout)
		if err != nil {
			return err
		}
		if !e.Eligible() {
			return fmt.Errorf("trader not eligible (%s): %w",
				strings.Join(e.Reasons(), "; "), domain.ErrNoCapacity)
		}

		n, err := q.AssignPayout(ctx, AssignPayoutParams{
			ID:       payoutID,
			TraderID: traderID,
			ExpireAt: s.now().Add(s.acceptTTL),
		})
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "assign payout"); err != nil {
			return err
		}

		n, err = q.FreezeTraderFiat(ctx, traderID, payout.Total)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("freeze payout fiat: %w", domain.ErrInsufficientBalance)
		}

		accepted, err = q.GetPayout(ctx, payoutID)
		return err
	})
	if err != nil {
		return models.Payout{}, err
	}
	zap.L().Info("payout accepted",
		zap.String("payout_id", payoutID.String()),
		zap.String("trader_id", traderID.String()))
	return accepted, nil
}

// Confirm is the trader stating the fiat transfer was sent: ACTIVE ->
// CHECKING, pending merchant approval.
func (s *PayoutService) Confirm(ctx context.Context, traderID, payoutID uuid.UUID) error {
	payout, err := s.store.Queries().GetPayout(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout.TraderID == nil || *payout.TraderID != traderID {
		return fmt.Errorf("payout %s: %w", payoutID, domain.ErrNotFound)
	}
	n, err := s.store.Queries().UpdatePayoutStatus(ctx, UpdatePayoutStatusParams{
		ID:           payoutID,
		Status:       domain.PayoutStatusChecking,
		FromStatuses: []string{domain.PayoutStatusActive},
	})
	if err != nil {
		return err
	}
	return requireUpdated(n, "confirm payout")
}

// Approve is the merchant acknowledging receipt: CHECKING -> COMPLETED,
// burning the fiat freeze and crediting the settlement equivalent.
func (s *PayoutService) Approve(ctx context.Context, merchantID, payoutID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		payout, err := q.GetPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if payout.MerchantID != merchantID {
			return fmt.Errorf("payout %s: %w", payoutID, domain.ErrNotFound)
		}
		if payout.TraderID == nil {
			return fmt.Errorf("payout %s unassigned: %w", payoutID, domain.ErrConflict)
		}

		now := s.now()
		n, err := q.UpdatePayoutStatus(ctx, UpdatePayoutStatusParams{
			ID:           payoutID,
			Status:       domain.PayoutStatusCompleted,
			FromStatuses: []string{domain.PayoutStatusChecking},
			ConfirmedAt:  &now,
		})
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "complete payout"); err != nil {
			return err
		}

		n, err = q.SettleTraderPayout(ctx, *payout.TraderID, payout.Total, payout.TotalUsdt)
		if err != nil {
			return err
		}
		return requireUpdated(n, "settle payout balance")
	})
}

// Reject sends an accepted payout back: ACTIVE/CHECKING -> REJECTED,
// releasing the trader's fiat freeze.
func (s *PayoutService) Reject(ctx context.Context, merchantID, payoutID uuid.UUID, reason string) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		payout, err := q.GetPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if payout.MerchantID != merchantID {
			return fmt.Errorf("payout %s: %w", payoutID, domain.ErrNotFound)
		}

		n, err := q.UpdatePayoutStatus(ctx, UpdatePayoutStatusParams{
			ID:           payoutID,
			Status:       domain.PayoutStatusRejected,
			FromStatuses: []string{domain.PayoutStatusActive, domain.PayoutStatusChecking},
			CancelReason: reason,
		})
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "reject payout"); err != nil {
			return err
		}

		if payout.TraderID == nil {
			return nil
		}
		n, err = q.ReleaseTraderFiat(ctx, *payout.TraderID, payout.Total)
		if err != nil {
			return err
		}
		return requireUpdated(n, "release payout fiat")
	})
}

// Cancel withdraws an unaccepted payout: CREATED -> CANCELLED. Nothing
// was frozen, so nothing moves.
func (s *PayoutService) Cancel(ctx context.Context, merchantID, payoutID uuid.UUID, reason string) error {
	payout, err := s.store.Queries().GetPayout(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout.MerchantID != merchantID {
		return fmt.Errorf("payout %s: %w", payoutID, domain.ErrNotFound)
	}
	n, err := s.store.Queries().UpdatePayoutStatus(ctx, UpdatePayoutStatusParams{
		ID:           payoutID,
		Status:       domain.PayoutStatusCancelled,
		FromStatuses: []string{domain.PayoutStatusCreated},
		CancelReason: reason,
	})
	if err != nil {
		return err
	}
	return requireUpdated(n, "cancel payout")
}
