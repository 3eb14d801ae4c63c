// Package memstore is an in-memory implementation of the settlement
// store contract. It exists for tests and local runs without postgres:
// every method mirrors the SQL semantics of the repository package,
// including the guarded-update row counts and the snapshot rollback of
// RunInTx. A single mutex serializes all access, so transaction bodies
// observe the same one-writer-at-a-time behavior the guarded SQL
// updates give the real store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type merchantMethodKey struct {
	MerchantID uuid.UUID
	MethodID   uuid.UUID
}

type traderMerchantKey struct {
	TraderID   uuid.UUID
	MerchantID uuid.UUID
	MethodID   uuid.UUID
}

type blacklistEntry struct {
	TraderID   uuid.UUID
	MerchantID uuid.UUID
	PayoutID   uuid.UUID
}

type state struct {
	merchants       map[uuid.UUID]models.Merchant
	methods         map[uuid.UUID]models.Method
	merchantMethods map[merchantMethodKey]models.MerchantMethod
	traderMerchants map[traderMerchantKey]models.TraderMerchant
	systemSettings  map[string]string
	traders         map[uuid.UUID]models.Trader
	requisites      map[uuid.UUID]models.Requisite
	devices         map[uuid.UUID]models.Device
	transactions    map[uuid.UUID]models.Transaction
	payouts         map[uuid.UUID]models.Payout
	notifications   map[uuid.UUID]models.Notification
	disputes        map[uuid.UUID]models.Dispute
	disputeMessages []models.DisputeMessage
	callbackHistory []models.CallbackHistory
	payoutFilters   map[uuid.UUID]models.PayoutFilter
	payoutBlacklist []blacklistEntry
}

func newState() *state {
	return &state{
		merchants:       map[uuid.UUID]models.Merchant{},
		methods:         map[uuid.UUID]models.Method{},
		merchantMethods: map[merchantMethodKey]models.MerchantMethod{},
		traderMerchants: map[traderMerchantKey]models.TraderMerchant{},
		systemSettings:  map[string]string{},
		traders:         map[uuid.UUID]models.Trader{},
		requisites:      map[uuid.UUID]models.Requisite{},
		devices:         map[uuid.UUID]models.Device{},
		transactions:    map[uuid.UUID]models.Transaction{},
		payouts:         map[uuid.UUID]models.Payout{},
		notifications:   map[uuid.UUID]models.Notification{},
		disputes:        map[uuid.UUID]models.Dispute{},
		payoutFilters:   map[uuid.UUID]models.PayoutFilter{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.merchants {
		c.merchants[k] = v
	}
	for k, v := range st.methods {
		c.methods[k] = v
	}
	for k, v := range st.merchantMethods {
		c.merchantMethods[k] = v
	}
	for k, v := range st.traderMerchants {
		c.traderMerchants[k] = v
	}
	for k, v := range st.systemSettings {
		c.systemSettings[k] = v
	}
	for k, v := range st.traders {
		c.traders[k] = v
	}
	for k, v := range st.requisites {
		c.requisites[k] = v
	}
	for k, v := range st.devices {
		c.devices[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.payouts {
		c.payouts[k] = v
	}
	for k, v := range st.notifications {
		c.notifications[k] = v
	}
	for k, v := range st.disputes {
		c.disputes[k] = v
	}
	for k, v := range st.payoutFilters {
		c.payoutFilters[k] = v
	}
	c.disputeMessages = append([]models.DisputeMessage(nil), st.disputeMessages...)
	c.callbackHistory = append([]models.CallbackHistory(nil), st.callbackHistory...)
	c.payoutBlacklist = append([]blacklistEntry(nil), st.payoutBlacklist...)
	return c
}

// Store is the in-memory QueryStore.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetNow overrides the store clock. Tests use this to pin timestamps.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

// Queries returns the query surface outside a transaction. Each call
// takes the store lock for its duration.
func (s *Store) Queries() service.Queries { return &queries{s: s} }

// RunInTx runs fn against a snapshot-guarded view: the whole body holds
// the store lock, and an error restores the pre-transaction state.
func (s *Store) RunInTx(ctx context.Context, fn func(q service.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&queries{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Seed helpers. These write directly, bypassing query semantics.

func (s *Store) PutMerchant(m models.Merchant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.merchants[m.ID] = m
}

func (s *Store) PutMethod(m models.Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.methods[m.ID] = m
}

func (s *Store) PutMerchantMethod(mm models.MerchantMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.merchantMethods[merchantMethodKey{mm.MerchantID, mm.MethodID}] = mm
}

func (s *Store) PutTraderMerchant(tm models.TraderMerchant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.traderMerchants[traderMerchantKey{tm.TraderID, tm.MerchantID, tm.MethodID}] = tm
}

func (s *Store) PutSystemSetting(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.systemSettings[key] = value
}

func (s *Store) PutTrader(t models.Trader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.traders[t.ID] = t
}

func (s *Store) PutRequisite(r models.Requisite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.requisites[r.ID] = r
}

func (s *Store) PutDevice(d models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.devices[d.ID] = d
}

func (s *Store) PutNotification(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.notifications[n.ID] = n
}

func (s *Store) PutPayoutFilter(f models.PayoutFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.payoutFilters[f.TraderID] = f
}

func (s *Store) BlacklistPayout(traderID, merchantID, payoutID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.payoutBlacklist = append(s.st.payoutBlacklist, blacklistEntry{traderID, merchantID, payoutID})
}

type queries struct {
	s    *Store
	inTx bool
}

func (q *queries) lock() func() {
	if q.inTx {
		return func() {}
	}
	q.s.mu.Lock()
	return q.s.mu.Unlock
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
}

// Merchants, methods, settings.

func (q *queries) GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, error) {
	defer q.lock()()
	m, ok := q.s.st.merchants[id]
	if !ok {
		return models.Merchant{}, notFound("get merchant")
	}
	return m, nil
}

func (q *queries) GetMerchantByToken(ctx context.Context, token string) (models.Merchant, error) {
	defer q.lock()()
	for _, m := range q.s.st.merchants {
		if m.Token == token {
			return m, nil
		}
	}
	return models.Merchant{}, notFound("get merchant by token")
}

func (q *queries) GetMethod(ctx context.Context, id uuid.UUID) (models.Method, error) {
	defer q.lock()()
	m, ok := q.s.st.methods[id]
	if !ok {
		return models.Method{}, notFound("get method")
	}
	return m, nil
}

func (q *queries) GetMerchantMethod(ctx context.Context, merchantID, methodID uuid.UUID) (models.MerchantMethod, error) {
	defer q.lock()()
	mm, ok := q.s.st.merchantMethods[merchantMethodKey{merchantID, methodID}]
	if !ok {
		return models.MerchantMethod{}, notFound("get merchant method")
	}
	return mm, nil
}

func (q *queries) GetTraderMerchant(ctx context.Context, traderID, merchantID, methodID uuid.UUID) (models.TraderMerchant, error) {
	defer q.lock()()
	tm, ok := q.s.st.traderMerchants[traderMerchantKey{traderID, merchantID, methodID}]
	if !ok {
		return models.TraderMerchant{}, notFound("get trader merchant")
	}
	return tm, nil
}

func (q *queries) ListMerchantTraderIDs(ctx context.Context, merchantID, methodID uuid.UUID) ([]uuid.UUID, error) {
	defer q.lock()()
	var ids []uuid.UUID
	for k, tm := range q.s.st.traderMerchants {
		if k.MerchantID == merchantID && k.MethodID == methodID && tm.IsMerchantEnabled && tm.IsFeeInEnabled {
			ids = append(ids, k.TraderID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (q *queries) HasPayoutRelation(ctx context.Context, traderID, merchantID uuid.UUID) (bool, error) {
	defer q.lock()()
	for k, tm := range q.s.st.traderMerchants {
		if k.TraderID == traderID && k.MerchantID == merchantID && tm.IsMerchantEnabled && tm.IsFeeOutEnabled {
			return true, nil
		}
	}
	return false, nil
}

func (q *queries) GetSystemSetting(ctx context.Context, key string) (string, error) {
	defer q.lock()()
	v, ok := q.s.st.systemSettings[key]
	if !ok {
		return "", notFound("get system setting")
	}
	return v, nil
}

// Traders and balance movements.

func (q *queries) GetTrader(ctx context.Context, id uuid.UUID) (models.Trader, error) {
	defer q.lock()()
	t, ok := q.s.st.traders[id]
	if !ok {
		return models.Trader{}, notFound("get trader")
	}
	return t, nil
}

func (q *queries) FreezeTraderSettlement(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.traders[traderID]
	if !ok || t.TrustBalance.LessThan(amount) {
		return 0, nil
	}
	t.TrustBalance = t.TrustBalance.Sub(amount)
	t.FrozenUsdt = t.FrozenUsdt.Add(amount)
	t.UpdatedAt = q.s.now()
	q.s.st.traders[traderID] = t
	return 1, nil
}

func (q *queries) ReleaseTraderSettlement(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.traders[traderID]
	if !ok || t.FrozenUsdt.LessThan(amount) {
		return 0, nil
	}
	t.FrozenUsdt = t.FrozenUsdt.Sub(amount)
	t.TrustBalance = t.TrustBalance.Add(amount)
	t.UpdatedAt = q.s.now()
	q.s.st.traders[traderID] = t
	return 1, nil
}

func (q *queries) SettleTraderSettlement(ctx context.Context, traderID uuid.UUID, frozen, profit decimal.Decimal) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.traders[traderID]
	if !ok || t.FrozenUsdt.LessThan(frozen) {
		return 0, nil
	}
	t.FrozenUsdt = t.FrozenUsdt.Sub(frozen)
	t.TrustBalance = t.TrustBalance.Add(profit)
	t.UpdatedAt = q.s.now()
	q.s.st.traders[traderID] = t
	return 1, nil
}

func (q *queries) FreezeTraderFiat(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.traders[traderID]
	if !ok || t.FiatBalance.LessThan(amount) {
		return 0, nil
	}
	t.FiatBalance = t.FiatBalance.Sub(amount)
	t.FrozenFiat = t.FrozenFiat.Add(amount)
	t.UpdatedAt = q.s.now()
	q.s.st.traders[traderID] = t
	return 1, nil
}

func (q *queries) ReleaseTraderFiat(ctx context.Context, traderID uuid.UUID, amount decimal.Decimal) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.traders[traderID]
	if !ok || t.FrozenFiat.LessThan(amount) {
		return 0, nil
	}
	t.FrozenFiat = t.FrozenFiat.Sub(amount)
	t.FiatBalance = t.FiatBalance.Add(amount)
	t.UpdatedAt = q.s.now()
	q.s.st.traders[traderID] = t
	return 1, nil
}

func (q *queries) SettleTraderPayout(ctx context.Context, traderID uuid.UUID, frozenFiat, creditUsdt decimal.Decimal) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.traders[traderID]
	if !ok || t.FrozenFiat.LessThan(frozenFiat) {
		return 0, nil
	}
	t.FrozenFiat = t.FrozenFiat.Sub(frozenFiat)
	t.TrustBalance = t.TrustBalance.Add(creditUsdt)
	t.UpdatedAt = q.s.now()
	q.s.st.traders[traderID] = t
	return 1, nil
}

// Requisites.

func (q *queries) ListCandidateRequisites(ctx context.Context, arg service.ListCandidateRequisitesParams) ([]models.RequisiteCandidate, error) {
	defer q.lock()()
	var out []models.RequisiteCandidate
	for _, r := range q.s.st.requisites {
		if r.IsArchived || !r.IsActive || r.MethodType != arg.MethodType {
			continue
		}
		if arg.BankType != "" && r.BankType != arg.BankType {
			continue
		}
		t, ok := q.s.st.traders[r.TraderID]
		if !ok || t.Banned || !t.TrafficEnabled {
			continue
		}
		if r.DeviceID != nil {
			d, ok := q.s.st.devices[*r.DeviceID]
			if !ok || !d.IsWorking || !d.IsOnline {
				continue
			}
		}
		if len(arg.TraderIDs) > 0 && !containsID(arg.TraderIDs, r.TraderID) {
			continue
		}
		out = append(out, models.RequisiteCandidate{Requisite: r, Trader: t})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Requisite, out[j].Requisite
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (q *queries) TouchRequisite(ctx context.Context, id uuid.UUID) error {
	defer q.lock()()
	r, ok := q.s.st.requisites[id]
	if !ok {
		return notFound("touch requisite")
	}
	r.UpdatedAt = q.s.now()
	q.s.st.requisites[id] = r
	return nil
}

func (q *queries) CountRequisiteActiveTransactions(ctx context.Context, requisiteID uuid.UUID) (int64, error) {
	defer q.lock()()
	var count int64
	for _, t := range q.s.st.transactions {
		if t.RequisiteID != nil && *t.RequisiteID == requisiteID && t.Type == domain.TxTypeIn &&
			(t.Status == domain.TxStatusInProgress || t.Status == domain.TxStatusReady) {
			count++
		}
	}
	return count, nil
}

func (q *queries) SumRequisiteActiveTransactions(ctx context.Context, requisiteID uuid.UUID) (decimal.Decimal, error) {
	defer q.lock()()
	sum := decimal.Zero
	for _, t := range q.s.st.transactions {
		if t.RequisiteID != nil && *t.RequisiteID == requisiteID && t.Type == domain.TxTypeIn &&
			(t.Status == domain.TxStatusInProgress || t.Status == domain.TxStatusReady) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (q *queries) RequisiteHasActiveAmount(ctx context.Context, requisiteID uuid.UUID, amount decimal.Decimal) (bool, error) {
	defer q.lock()()
	for _, t := range q.s.st.transactions {
		if t.RequisiteID != nil && *t.RequisiteID == requisiteID && t.Type == domain.TxTypeIn &&
			(t.Status == domain.TxStatusCreated || t.Status == domain.TxStatusInProgress) &&
			t.Amount.Equal(amount) {
			return true, nil
		}
	}
	return false, nil
}

// Transactions.

func (q *queries) CreateTransaction(ctx context.Context, tx models.Transaction) error {
	defer q.lock()()
	now := q.s.now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	q.s.st.transactions[tx.ID] = tx
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	defer q.lock()()
	t, ok := q.s.st.transactions[id]
	if !ok {
		return models.Transaction{}, notFound("get transaction")
	}
	return t, nil
}

func (q *queries) GetTransactionByOrderID(ctx context.Context, merchantID uuid.UUID, orderID string) (models.Transaction, error) {
	defer q.lock()()
	for _, t := range q.s.st.transactions {
		if t.MerchantID == merchantID && t.OrderID == orderID {
			return t, nil
		}
	}
	return models.Transaction{}, notFound("get transaction by order id")
}

func (q *queries) UpdateTransactionStatus(ctx context.Context, arg service.UpdateTransactionStatusParams) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.transactions[arg.ID]
	if !ok || !statusAllowed(t.Status, arg.FromStatuses) {
		return 0, nil
	}
	t.Status = arg.Status
	if arg.AcceptedAt != nil {
		t.AcceptedAt = arg.AcceptedAt
	}
	t.UpdatedAt = q.s.now()
	q.s.st.transactions[arg.ID] = t
	return 1, nil
}

func (q *queries) MarkTransactionMatched(ctx context.Context, arg service.MarkTransactionMatchedParams) (int64, error) {
	defer q.lock()()
	t, ok := q.s.st.transactions[arg.ID]
	if !ok || t.Status != domain.TxStatusInProgress {
		return 0, nil
	}
	t.Status = domain.TxStatusReady
	nid := arg.NotificationID
	t.MatchedNotificationID = &nid
	at := arg.AcceptedAt
	t.AcceptedAt = &at
	t.UpdatedAt = q.s.now()
	q.s.st.transactions[arg.ID] = t
	return 1, nil
}

func (q *queries) ListMatchableTransactions(ctx context.Context, traderID uuid.UUID) ([]models.MatchCandidate, error) {
	defer q.lock()()
	var out []models.MatchCandidate
	for _, t := range q.s.st.transactions {
		if t.TraderID == nil || *t.TraderID != traderID || t.Type != domain.TxTypeIn || t.Status != domain.TxStatusInProgress {
			continue
		}
		m, ok := q.s.st.methods[t.MethodID]
		if !ok {
			continue
		}
		out = append(out, models.MatchCandidate{Transaction: t, Tolerance: m.Tolerance})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Transaction, out[j].Transaction
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (q *queries) ListExpiredTransactions(ctx context.Context, now time.Time, limit int32) ([]models.Transaction, error) {
	defer q.lock()()
	var out []models.Transaction
	for _, t := range q.s.st.transactions {
		if t.Type != domain.TxTypeIn {
			continue
		}
		if t.Status != domain.TxStatusCreated && t.Status != domain.TxStatusInProgress {
			continue
		}
		if !t.ExpiredAt.Before(now) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiredAt.Before(out[j].ExpiredAt) })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Payouts.

func (q *queries) CreatePayout(ctx context.Context, p models.Payout) error {
	defer q.lock()()
	now := q.s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	q.s.st.payouts[p.ID] = p
	return nil
}

func (q *queries) GetPayout(ctx context.Context, id uuid.UUID) (models.Payout, error) {
	defer q.lock()()
	p, ok := q.s.st.payouts[id]
	if !ok {
		return models.Payout{}, notFound("get payout")
	}
	return p, nil
}

func (q *queries) UpdatePayoutStatus(ctx context.Context, arg service.UpdatePayoutStatusParams) (int64, error) {
	defer q.lock()()
	p, ok := q.s.st.payouts[arg.ID]
	if !ok || !statusAllowed(p.Status, arg.FromStatuses) {
		return 0, nil
	}
	p.Status = arg.Status
	if arg.CancelReason != "" {
		p.CancelReason = arg.CancelReason
	}
	if arg.ConfirmedAt != nil {
		p.ConfirmedAt = arg.ConfirmedAt
	}
	p.UpdatedAt = q.s.now()
	q.s.st.payouts[arg.ID] = p
	return 1, nil
}

func (q *queries) AssignPayout(ctx context.Context, arg service.AssignPayoutParams) (int64, error) {
	defer q.lock()()
	p, ok := q.s.st.payouts[arg.ID]
	if !ok || p.Status != domain.PayoutStatusCreated || p.TraderID != nil {
		return 0, nil
	}
	tid := arg.TraderID
	now := q.s.now()
	p.TraderID = &tid
	p.Status = domain.PayoutStatusActive
	p.AcceptedAt = &now
	p.ExpireAt = arg.ExpireAt
	p.UpdatedAt = now
	q.s.st.payouts[arg.ID] = p
	return 1, nil
}

func (q *queries) CountTraderActivePayouts(ctx context.Context, traderID uuid.UUID) (int64, error) {
	defer q.lock()()
	var count int64
	for _, p := range q.s.st.payouts {
		if p.TraderID == nil || *p.TraderID != traderID {
			continue
		}
		switch p.Status {
		case domain.PayoutStatusCreated, domain.PayoutStatusActive, domain.PayoutStatusChecking:
			count++
		}
	}
	return count, nil
}

func (q *queries) ListUnassignedPayouts(ctx context.Context, limit int32) ([]models.Payout, error) {
	defer q.lock()()
	now := q.s.now()
	var out []models.Payout
	for _, p := range q.s.st.payouts {
		if p.Status == domain.PayoutStatusCreated && p.TraderID == nil && p.ExpireAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *queries) GetPayoutFilter(ctx context.Context, traderID uuid.UUID) (models.PayoutFilter, error) {
	defer q.lock()()
	f, ok := q.s.st.payoutFilters[traderID]
	if !ok {
		return models.PayoutFilter{}, notFound("get payout filter")
	}
	return f, nil
}

func (q *queries) IsPayoutBlacklisted(ctx context.Context, traderID, merchantID, payoutID uuid.UUID) (bool, error) {
	defer q.lock()()
	for _, e := range q.s.st.payoutBlacklist {
		if e.TraderID == traderID && (e.MerchantID == merchantID || e.PayoutID == payoutID) {
			return true, nil
		}
	}
	return false, nil
}

// Notifications.

func (q *queries) ListUnprocessedNotifications(ctx context.Context, limit int32) ([]models.NotificationWithDevice, error) {
	defer q.lock()()
	var out []models.NotificationWithDevice
	for _, n := range q.s.st.notifications {
		if n.IsProcessed {
			continue
		}
		d, ok := q.s.st.devices[n.DeviceID]
		if !ok {
			continue
		}
		out = append(out, models.NotificationWithDevice{Notification: n, TraderID: d.TraderID})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Notification, out[j].Notification
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *queries) MarkNotificationProcessed(ctx context.Context, id uuid.UUID) (int64, error) {
	defer q.lock()()
	n, ok := q.s.st.notifications[id]
	if !ok || n.IsProcessed {
		return 0, nil
	}
	n.IsProcessed = true
	q.s.st.notifications[id] = n
	return 1, nil
}

// Callback history.

func (q *queries) AppendCallbackHistory(ctx context.Context, h models.CallbackHistory) error {
	defer q.lock()()
	h.CreatedAt = q.s.now()
	q.s.st.callbackHistory = append(q.s.st.callbackHistory, h)
	return nil
}

func (q *queries) ListCallbackHistory(ctx context.Context, transactionID uuid.UUID) ([]models.CallbackHistory, error) {
	defer q.lock()()
	var out []models.CallbackHistory
	for _, h := range q.s.st.callbackHistory {
		if h.TransactionID == transactionID {
			out = append(out, h)
		}
	}
	return out, nil
}

// Disputes.

func (q *queries) CreateDispute(ctx context.Context, d models.Dispute) error {
	defer q.lock()()
	now := q.s.now()
	d.CreatedAt = now
	d.UpdatedAt = now
	q.s.st.disputes[d.ID] = d
	return nil
}

func (q *queries) GetDispute(ctx context.Context, id uuid.UUID) (models.Dispute, error) {
	defer q.lock()()
	d, ok := q.s.st.disputes[id]
	if !ok {
		return models.Dispute{}, notFound("get dispute")
	}
	return d, nil
}

func (q *queries) UpdateDisputeStatus(ctx context.Context, arg service.UpdateDisputeStatusParams) (int64, error) {
	defer q.lock()()
	d, ok := q.s.st.disputes[arg.ID]
	if !ok || !statusAllowed(d.Status, arg.FromStatuses) {
		return 0, nil
	}
	d.Status = arg.Status
	if arg.Resolution != "" {
		d.Resolution = arg.Resolution
	}
	if arg.ResolvedAt != nil {
		d.ResolvedAt = arg.ResolvedAt
	}
	d.UpdatedAt = q.s.now()
	q.s.st.disputes[arg.ID] = d
	return 1, nil
}

func (q *queries) AppendDisputeMessage(ctx context.Context, m models.DisputeMessage) error {
	defer q.lock()()
	m.CreatedAt = q.s.now()
	q.s.st.disputeMessages = append(q.s.st.disputeMessages, m)
	return nil
}

func (q *queries) ListDisputeMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	defer q.lock()()
	var out []models.DisputeMessage
	for _, m := range q.s.st.disputeMessages {
		if m.DisputeID == disputeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func statusAllowed(current string, from []string) bool {
	if len(from) == 0 {
		return true
	}
	for _, s := range from {
		if s == current {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
