package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chasepay/settlement/internal/bankparse"
	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MatcherService reconciles captured bank notifications against the
// trader's live inbound deals. One Tick is one reconciliation pass.
type MatcherService struct {
	store     QueryStore
	callbacks *CallbackDispatcher
	batchSize int32
	now       func() time.Time
}

// NewMatcherService constructs the matcher.
func NewMatcherService(store QueryStore, callbacks *CallbackDispatcher, batchSize int32) *MatcherService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &MatcherService{
		store:     store,
		callbacks: callbacks,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// WithNow overrides the service clock for tests.
func (s *MatcherService) WithNow(now func() time.Time) *MatcherService {
	s.now = now
	return s
}

// TickStats summarizes one reconciliation pass.
type TickStats struct {
	Scanned   int
	Matched   int
	Ambiguous int
	NoMatch   int
	Discarded int
}

// Tick processes one batch of unprocessed notifications, oldest first.
// A notification with no extractable evidence is discarded (marked
// processed). A unique amount match settles the deal in one storage
// transaction; no match or an ambiguous match leaves the notification
// unprocessed for a later tick, never mutating transaction state.
func (s *MatcherService) Tick(ctx context.Context) (TickStats, error) {
	var stats TickStats
	batch, err := s.store.Queries().ListUnprocessedNotifications(ctx, s.batchSize)
	if err != nil {
		return stats, err
	}

	for _, n := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++
		outcome, err := s.processOne(ctx, n)
		if err != nil {
			zap.L().Error("notification processing failed",
				zap.String("notification_id", n.Notification.ID.String()), zap.Error(err))
			continue
		}
		observability.IncrementMatcherEvent(outcome)
		switch outcome {
		case "matched":
			stats.Matched++
		case "ambiguous":
			stats.Ambiguous++
		case "no_match":
			stats.NoMatch++
		case "discarded":
			stats.Discarded++
		}
	}
	return stats, nil
}

func (s *MatcherService) processOne(ctx context.Context, n models.NotificationWithDevice) (string, error) {
	ev := bankparse.Extract(n.Notification.PackageName, n.Notification.Title, n.Notification.Message)
	if !ev.HasAmounts() {
		// Nothing to reconcile; retrying the same bytes later cannot
		// produce evidence either.
		if _, err := s.store.Queries().MarkNotificationProcessed(ctx, n.Notification.ID); err != nil {
			return "", err
		}
		return "discarded", nil
	}

	candidates, err := s.store.Queries().ListMatchableTransactions(ctx, n.TraderID)
	if err != nil {
		return "", err
	}

	var matches []models.MatchCandidate
	for _, c := range candidates {
		if !bankCompatible(c.Transaction.AssetOrBank, ev.Bank) {
			continue
		}
		if amountMatches(c, ev) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return "no_match", nil
	case 1:
	default:
		zap.L().Warn("ambiguous notification match",
			zap.String("notification_id", n.Notification.ID.String()),
			zap.Int("matches", len(matches)))
		return "ambiguous", nil
	}

	tx := matches[0].Transaction
	if err := s.settle(ctx, tx, n.Notification.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another tick settled it first; the notification stays
			// unprocessed and re-matches (or not) next pass.
			return "no_match", nil
		}
		return "", err
	}

	tx.Status = domain.TxStatusReady
	s.callbacks.Dispatch(ctx, tx)
	return "matched", nil
}

// settle performs the match as a single check-and-set transaction: the
// deal moves IN_PROGRESS -> READY, the notification flips processed,
// and the freeze is burned with the commission credited. Any guard
// failing rolls the whole settlement back.
func (s *MatcherService) settle(ctx context.Context, tx models.Transaction, notificationID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		n, err := q.MarkTransactionMatched(ctx, MarkTransactionMatchedParams{
			ID:             tx.ID,
			NotificationID: notificationID,
			AcceptedAt:     s.now(),
		})
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "match transaction"); err != nil {
			return err
		}

		n, err = q.MarkNotificationProcessed(ctx, notificationID)
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "consume notification"); err != nil {
			return err
		}

		if tx.TraderID == nil {
			return nil
		}
		n, err = q.SettleTraderSettlement(ctx, *tx.TraderID, tx.TotalRequired(), tx.CalculatedCommission)
		if err != nil {
			return err
		}
		return requireUpdated(n, "settle trader balance")
	})
}

func bankCompatible(assetOrBank, evidenceBank string) bool {
	if assetOrBank == "" || evidenceBank == "" {
		return true
	}
	return strings.EqualFold(assetOrBank, evidenceBank)
}

func amountMatches(c models.MatchCandidate, ev bankparse.Evidence) bool {
	for _, a := range ev.Amounts {
		diff := c.Transaction.Amount.Sub(a).Abs()
		if diff.LessThanOrEqual(c.Tolerance) {
			return true
		}
	}
	return false
}
