package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RemoteBalances is the rail's view of an account balance.
type RemoteBalances interface {
	Balance(ctx context.Context, accountNumber string) (int64, error)
}

// AccountLister pages through every account id.
type AccountLister interface {
	ListAccountIDs(ctx context.Context, after uuid.UUID, limit int32) ([]uuid.UUID, error)
}

type ReconcileConfig struct {
	// Sandbox disables reconciliation; the sandbox rail has no authoritative balances.
	Sandbox bool
	// Tolerance is the drift, in kobo, below which no warning is logged.
	Tolerance int64
	PageSize  int32
}

// Reconcile result values.
const (
	ReconcileSkipped     = "skipped"
	ReconcileInSync      = "in_sync"
	ReconcileOverwritten = "overwritten"
	ReconcileFailed      = "failed"
)

type ReconcileResult struct {
	AccountID     uuid.UUID           `json:"account_id"`
	AccountNumber string              `json:"account_number"`
	Result        string              `json:"result"`
	Local         int64               `json:"local"`
	Remote        int64               `json:"remote"`
	Drift         int64               `json:"drift"`
	Adjustment    *models.Transaction `json:"adjustment,omitempty"`
}

type ReconcileSummary struct {
	Checked     int `json:"checked"`
	InSync      int `json:"in_sync"`
	Overwritten int `json:"overwritten"`
	Failed      int `json:"failed"`
}

// BalanceReconciler makes the rail's balance authoritative for an account.
// The overwrite is recorded as a reconciliation transaction so the
// integrity check keeps holding afterwards.
type BalanceReconciler struct {
	ledger   *repository.Ledger
	accounts AccountLister
	remote   RemoteBalances
	audit    *AuditService
	cfg      ReconcileConfig
}

func NewBalanceReconciler(ledger *repository.Ledger, accounts AccountLister, remote RemoteBalances, audit *AuditService, cfg ReconcileConfig) *BalanceReconciler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &BalanceReconciler{ledger: ledger, accounts: accounts, remote: remote, audit: audit, cfg: cfg}
}

func (r *BalanceReconciler) Reconcile(ctx context.Context, accountID uuid.UUID) (*ReconcileResult, error) {
	acc, err := r.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	res := &ReconcileResult{AccountID: acc.ID, AccountNumber: acc.AccountNumber, Local: acc.Balance}
	if r.cfg.Sandbox {
		res.Result = ReconcileSkipped
		res.Remote = acc.Balance
		observability.IncrementReconciliation(ReconcileSkipped)
		return res, nil
	}

	remote, err := r.remote.Balance(ctx, acc.AccountNumber)
	if err != nil {
		observability.IncrementReconciliation(ReconcileFailed)
		zap.L().Warn("remote balance fetch failed", zap.String("account_number", acc.AccountNumber), zap.Error(err))
		return nil, err
	}
	if remote < 0 {
		observability.IncrementReconciliation(ReconcileFailed)
		return nil, domain.NewError(domain.CodeRailRejected, "banking partner reported a negative balance", nil)
	}
	res.Remote = remote
	res.Drift = remote - acc.Balance

	if abs(res.Drift) > r.cfg.Tolerance {
		zap.L().Warn("balance drift beyond tolerance",
			zap.String("account_id", acc.ID.String()),
			zap.Int64("local", acc.Balance),
			zap.Int64("remote", remote),
			zap.Int64("drift", res.Drift),
		)
	}

	prev, adjustment, err := r.ledger.OverwriteBalance(ctx, acc.ID, remote,
		"recon-"+uuid.NewString(), fmt.Sprintf("Balance reconciliation %s", time.Now().UTC().Format(time.RFC3339)))
	if err != nil {
		observability.IncrementReconciliation(ReconcileFailed)
		return nil, err
	}
	// The balance may have moved between the read above and the locked overwrite.
	res.Local = prev
	res.Drift = remote - prev

	if adjustment == nil {
		res.Result = ReconcileInSync
		observability.IncrementReconciliation(ReconcileInSync)
		return res, nil
	}

	res.Result = ReconcileOverwritten
	res.Adjustment = adjustment
	observability.IncrementReconciliation(ReconcileOverwritten)
	err = r.ledger.Store().RunInTx(ctx, func(q *repository.Queries) error {
		return r.audit.Write(ctx, q, "account", acc.ID, nil, "balance_reconciled",
			fmt.Sprint(prev), fmt.Sprint(remote), map[string]any{"adjustment_reference": adjustment.Reference, "drift": res.Drift})
	})
	if err != nil {
		zap.L().Error("reconciliation audit write failed", zap.String("account_id", acc.ID.String()), zap.Error(err))
	}
	zap.L().Info("balance overwritten from rail",
		zap.String("account_id", acc.ID.String()),
		zap.Int64("previous", prev),
		zap.Int64("remote", remote),
	)
	return res, nil
}

// ReconcileAll walks every account. One account failing does not stop the run.
func (r *BalanceReconciler) ReconcileAll(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	if r.cfg.Sandbox {
		return summary, nil
	}

	after := uuid.Nil
	for {
		ids, err := r.accounts.ListAccountIDs(ctx, after, r.cfg.PageSize)
		if err != nil {
			return summary, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Checked++
			res, err := r.Reconcile(ctx, id)
			switch {
			case err != nil:
				summary.Failed++
				if errors.Is(err, context.Canceled) {
					return summary, err
				}
			case res.Result == ReconcileOverwritten:
				summary.Overwritten++
			default:
				summary.InSync++
			}
		}
		if len(ids) < int(r.cfg.PageSize) {
			return summary, nil
		}
		after = ids[len(ids)-1]
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
