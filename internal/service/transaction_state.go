package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
)

// A transaction only ever leaves pending; settled rows are immutable.
var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusCompleted: {},
		domain.TxStatusFailed:    {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusFailed:    {},
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

type transition struct {
	next              string
	failureReason     string
	railTransactionID string
	actorID           *uuid.UUID
	action            string
	metadata          any
}

// transitionTransactionState moves a pending row to its final status under a
// row lock and audits the change. It reports false when the row had already
// left pending, which lets concurrent resolvers back off.
func transitionTransactionState(ctx context.Context, qtx *repository.Queries, audit *AuditService, transactionID uuid.UUID, t transition) (bool, error) {
	currentState, err := qtx.GetTransactionStatusForUpdate(ctx, transactionID)
	if err != nil {
		return false, fmt.Errorf("get current transaction state: %w", err)
	}

	if currentState == t.next {
		return false, nil
	}
	if !canTransition(currentState, t.next) {
		if currentState != domain.TxStatusPending {
			return false, nil
		}
		return false, fmt.Errorf("invalid transaction state transition: %s -> %s", currentState, t.next)
	}

	rows, err := qtx.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
		ID:                transactionID,
		Status:            t.next,
		FailureReason:     t.failureReason,
		RailTransactionID: t.railTransactionID,
	})
	if err != nil {
		return false, fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return false, err
	}

	if err := audit.Write(ctx, qtx, "transaction", transactionID, t.actorID, t.action, currentState, t.next, t.metadata); err != nil {
		return false, err
	}
	return true, nil
}
