package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chasepay/settlement/internal/domain"
	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const systemSender = "system"

// DisputeService is the dispute state machine. Resolution is the only
// writer of the referenced transaction/payout terminal status and of
// the associated balance movement; every transition appends a
// system-authored message to the dispute thread.
type DisputeService struct {
	store     QueryStore
	callbacks *CallbackDispatcher
	now       func() time.Time
}

// NewDisputeService constructs the service.
func NewDisputeService(store QueryStore, callbacks *CallbackDispatcher) *DisputeService {
	return &DisputeService{store: store, callbacks: callbacks, now: time.Now}
}

// WithNow overrides the service clock for tests.
func (s *DisputeService) WithNow(now func() time.Time) *DisputeService {
	s.now = now
	return s
}

// OpenDisputeParams opens a dispute over a live deal or an accepted
// payout.
type OpenDisputeParams struct {
	Kind          string
	TransactionID *uuid.UUID
	PayoutID      *uuid.UUID
	Reason        string
}

// Open creates the dispute and parks the disputed operation in DISPUTE
// so it cannot settle or expire while contested.
func (s *DisputeService) Open(ctx context.Context, p OpenDisputeParams) (models.Dispute, error) {
	switch p.Kind {
	case domain.DisputeKindDeal:
		if p.TransactionID == nil {
			return models.Dispute{}, fmt.Errorf("deal dispute requires a transaction: %w", domain.ErrValidation)
		}
	case domain.DisputeKindWithdrawal:
		if p.PayoutID == nil {
			return models.Dispute{}, fmt.Errorf("withdrawal dispute requires a payout: %w", domain.ErrValidation)
		}
	default:
		return models.Dispute{}, fmt.Errorf("unknown dispute kind %q: %w", p.Kind, domain.ErrValidation)
	}

	dispute := models.Dispute{
		ID:            uuid.New(),
		Kind:          p.Kind,
		TransactionID: p.TransactionID,
		PayoutID:      p.PayoutID,
		Status:        domain.DisputeStatusOpen,
		Reason:        p.Reason,
	}

	err := s.store.RunInTx(ctx, func(q Queries) error {
		if p.Kind == domain.DisputeKindDeal {
			n, err := q.UpdateTransactionStatus(ctx, UpdateTransactionStatusParams{
				ID:           *p.TransactionID,
				Status:       domain.TxStatusDispute,
				FromStatuses: []string{domain.TxStatusCreated, domain.TxStatusInProgress},
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("transaction not disputable: %w", domain.ErrAlreadyResolved)
			}
		} else {
			n, err := q.UpdatePayoutStatus(ctx, UpdatePayoutStatusParams{
				ID:           *p.PayoutID,
				Status:       domain.PayoutStatusDispute,
				FromStatuses: []string{domain.PayoutStatusActive, domain.PayoutStatusChecking},
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("payout not disputable: %w", domain.ErrAlreadyResolved)
			}
		}
		if err := q.CreateDispute(ctx, dispute); err != nil {
			return err
		}
		return s.appendSystemMessage(ctx, q, dispute.ID, "dispute opened: "+p.Reason)
	})
	if err != nil {
		return models.Dispute{}, err
	}

	observability.IncrementDisputeTransition(domain.DisputeStatusOpen)
	zap.L().Info("dispute opened",
		zap.String("dispute_id", dispute.ID.String()), zap.String("kind", p.Kind))
	return dispute, nil
}

// StartReview moves an OPEN dispute under active review.
func (s *DisputeService) StartReview(ctx context.Context, id uuid.UUID) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		dispute, err := q.GetDispute(ctx, id)
		if err != nil {
			return err
		}
		if IsTerminalDisputeStatus(dispute.Status) {
			return fmt.Errorf("dispute %s: %w", id, domain.ErrAlreadyResolved)
		}
		n, err := q.UpdateDisputeStatus(ctx, UpdateDisputeStatusParams{
			ID:           id,
			Status:       domain.DisputeStatusInProgress,
			FromStatuses: []string{domain.DisputeStatusOpen},
		})
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "start dispute review"); err != nil {
			return err
		}
		observability.IncrementDisputeTransition(domain.DisputeStatusInProgress)
		return s.appendSystemMessage(ctx, q, id, "dispute taken into review")
	})
}

// Resolve closes the dispute. inFavorOfClaim true means the contested
// claim stands: a deal settles as READY, a payout completes. False
// rejects the underlying operation and releases its freeze without
// crediting completion. A terminal dispute rejects re-resolution with
// ErrAlreadyResolved, leaving the referenced operation untouched.
func (s *DisputeService) Resolve(ctx context.Context, id uuid.UUID, inFavorOfClaim bool, resolution string) error {
	target := domain.DisputeStatusResolvedFail
	if inFavorOfClaim {
		target = domain.DisputeStatusResolvedSuccess
	}

	var settled *models.Transaction
	err := s.store.RunInTx(ctx, func(q Queries) error {
		dispute, err := q.GetDispute(ctx, id)
		if err != nil {
			return err
		}
		if IsTerminalDisputeStatus(dispute.Status) {
			return fmt.Errorf("dispute %s: %w", id, domain.ErrAlreadyResolved)
		}

		now := s.now()
		n, err := q.UpdateDisputeStatus(ctx, UpdateDisputeStatusParams{
			ID:           id,
			Status:       target,
			FromStatuses: []string{domain.DisputeStatusOpen, domain.DisputeStatusInProgress},
			Resolution:   resolution,
			ResolvedAt:   &now,
		})
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "resolve dispute"); err != nil {
			return err
		}

		switch dispute.Kind {
		case domain.DisputeKindDeal:
			tx, err := s.resolveDeal(ctx, q, dispute, inFavorOfClaim, now)
			if err != nil {
				return err
			}
			settled = &tx
		case domain.DisputeKindWithdrawal:
			if err := s.resolveWithdrawal(ctx, q, dispute, inFavorOfClaim, now); err != nil {
				return err
			}
		}
		return s.appendSystemMessage(ctx, q, id, "dispute resolved: "+resolution)
	})
	if err != nil {
		return err
	}

	observability.IncrementDisputeTransition(target)
	if settled != nil {
		s.callbacks.Dispatch(ctx, *settled)
	}
	return nil
}

// resolveDeal finalizes the disputed transaction. In favor of the claim
// the payment counts as received: READY plus the settle movement.
// Against the claim the deal cancels and the freeze returns.
func (s *DisputeService) resolveDeal(ctx context.Context, q Queries, dispute models.Dispute, inFavorOfClaim bool, now time.Time) (models.Transaction, error) {
	tx, err := q.GetTransaction(ctx, *dispute.TransactionID)
	if err != nil {
		return models.Transaction{}, err
	}

	status := domain.TxStatusCanceled
	if inFavorOfClaim {
		status = domain.TxStatusReady
	}
	n, err := q.UpdateTransactionStatus(ctx, UpdateTransactionStatusParams{
		ID:           tx.ID,
		Status:       status,
		FromStatuses: []string{domain.TxStatusDispute},
		AcceptedAt:   &now,
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if err := requireUpdated(n, "finalize disputed transaction"); err != nil {
		return models.Transaction{}, err
	}

	if tx.TraderID != nil && tx.TotalRequired().Sign() > 0 {
		if inFavorOfClaim {
			n, err = q.SettleTraderSettlement(ctx, *tx.TraderID, tx.TotalRequired(), tx.CalculatedCommission)
		} else {
			n, err = q.ReleaseTraderSettlement(ctx, *tx.TraderID, tx.TotalRequired())
		}
		if err != nil {
			return models.Transaction{}, err
		}
		if err := requireUpdated(n, "move disputed freeze"); err != nil {
			return models.Transaction{}, err
		}
	}
	tx.Status = status
	return tx, nil
}

func (s *DisputeService) resolveWithdrawal(ctx context.Context, q Queries, dispute models.Dispute, inFavorOfClaim bool, now time.Time) error {
	payout, err := q.GetPayout(ctx, *dispute.PayoutID)
	if err != nil {
		return err
	}

	status := domain.PayoutStatusRejected
	if inFavorOfClaim {
		status = domain.PayoutStatusCompleted
	}
	n, err := q.UpdatePayoutStatus(ctx, UpdatePayoutStatusParams{
		ID:           payout.ID,
		Status:       status,
		FromStatuses: []string{domain.PayoutStatusDispute},
		ConfirmedAt:  &now,
	})
	if err != nil {
		return err
	}
	if err := requireUpdated(n, "finalize disputed payout"); err != nil {
		return err
	}

	if payout.TraderID == nil {
		return nil
	}
	if inFavorOfClaim {
		n, err = q.SettleTraderPayout(ctx, *payout.TraderID, payout.Total, payout.TotalUsdt)
	} else {
		n, err = q.ReleaseTraderFiat(ctx, *payout.TraderID, payout.Total)
	}
	if err != nil {
		return err
	}
	return requireUpdated(n, "move disputed payout freeze")
}

// Cancel withdraws the dispute and un-parks the referenced operation so
// the normal flow resumes.
func (s *DisputeService) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	err := s.store.RunInTx(ctx, func(q Queries) error {
		dispute, err := q.GetDispute(ctx, id)
		if err != nil {
			return err
		}
		if IsTerminalDisputeStatus(dispute.Status) {
			return fmt.Errorf("dispute %s: %w", id, domain.ErrAlreadyResolved)
		}
		n, err := q.UpdateDisputeStatus(ctx, UpdateDisputeStatusParams{
			ID:           id,
			Status:       domain.DisputeStatusCancelled,
			FromStatuses: []string{domain.DisputeStatusOpen, domain.DisputeStatusInProgress},
		})
		if err != nil {
			return err
		}
		if err := requireUpdated(n, "cancel dispute"); err != nil {
			return err
		}

		if dispute.Kind == domain.DisputeKindDeal && dispute.TransactionID != nil {
			n, err = q.UpdateTransactionStatus(ctx, UpdateTransactionStatusParams{
				ID:           *dispute.TransactionID,
				Status:       domain.TxStatusInProgress,
				FromStatuses: []string{domain.TxStatusDispute},
			})
			if err != nil {
				return err
			}
			if err := requireUpdated(n, "unpark disputed transaction"); err != nil {
				return err
			}
		}
		if dispute.Kind == domain.DisputeKindWithdrawal && dispute.PayoutID != nil {
			n, err = q.UpdatePayoutStatus(ctx, UpdatePayoutStatusParams{
				ID:           *dispute.PayoutID,
				Status:       domain.PayoutStatusChecking,
				FromStatuses: []string{domain.PayoutStatusDispute},
			})
			if err != nil {
				return err
			}
			if err := requireUpdated(n, "unpark disputed payout"); err != nil {
				return err
			}
		}
		return s.appendSystemMessage(ctx, q, id, "dispute cancelled: "+reason)
	})
	if err != nil {
		return err
	}
	observability.IncrementDisputeTransition(domain.DisputeStatusCancelled)
	return nil
}

// Messages returns the dispute's ordered thread.
func (s *DisputeService) Messages(ctx context.Context, id uuid.UUID) ([]models.DisputeMessage, error) {
	if _, err := s.store.Queries().GetDispute(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Queries().ListDisputeMessages(ctx, id)
}

func (s *DisputeService) appendSystemMessage(ctx context.Context, q Queries, disputeID uuid.UUID, text string) error {
	return q.AppendDisputeMessage(ctx, models.DisputeMessage{
		ID:         uuid.New(),
		DisputeID:  disputeID,
		SenderType: systemSender,
		Message:    text,
	})
}
