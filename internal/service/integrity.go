package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"go.uber.org/zap"
)

// IntegrityService verifies that every balance equals its completed credits
// minus all debits, pending debits included.
type IntegrityService struct {
	store QueryStore
}

func NewIntegrityService(store QueryStore) *IntegrityService {
	return &IntegrityService{store: store}
}

// Run reports drifted accounts. Drift is logged and counted, never corrected:
// a human decides whether the balance or the history is wrong.
func (s *IntegrityService) Run(ctx context.Context) ([]models.AccountDrift, error) {
	drift, err := s.store.Queries().ListAccountDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("run ledger drift query: %w", err)
	}

	if len(drift) == 0 {
		zap.L().Info("ledger balanced")
		return drift, nil
	}

	for _, row := range drift {
		observability.IncrementLedgerImbalance("integrity")
		zap.L().Error("CRITICAL: balance disagrees with transaction history",
			zap.String("account_id", row.AccountID.String()),
			zap.Int64("balance", row.Balance),
			zap.Int64("ledger_net", row.LedgerNet),
			zap.Int64("difference", row.Difference),
		)
	}
	return drift, nil
}
