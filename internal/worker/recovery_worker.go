package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

// PendingResolver settles one stuck pending debit.
type PendingResolver interface {
	ResolvePending(ctx context.Context, debit *models.Transaction) error
}

// RecoveryWorker settles external transfers left pending by a crash or an
// unreachable rail. Safe for concurrent instances: claiming uses
// FOR UPDATE SKIP LOCKED and pushes updated_at forward.
type RecoveryWorker struct {
	store        service.QueryStore
	resolver     PendingResolver
	pollInterval time.Duration
	staleAfter   time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
	now          func() time.Time
}

func NewRecoveryWorker(store service.QueryStore, resolver PendingResolver) *RecoveryWorker {
	return &RecoveryWorker{
		store:        store,
		resolver:     resolver,
		pollInterval: 30 * time.Second,
		staleAfter:   5 * time.Minute,
		batchSize:    20,
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
}

func (w *RecoveryWorker) WithPollInterval(interval time.Duration) *RecoveryWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithStaleAfter sets how long a debit must sit untouched before recovery
// claims it. Keep it above the rail timeout plus status retries.
func (w *RecoveryWorker) WithStaleAfter(d time.Duration) *RecoveryWorker {
	if d > 0 {
		w.staleAfter = d
	}
	return w
}

func (w *RecoveryWorker) WithBatchSize(size int32) *RecoveryWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or ctx is canceled.
func (w *RecoveryWorker) Start(ctx context.Context) {
	zap.L().Info("recovery worker starting",
		zap.Duration("interval", w.pollInterval),
		zap.Duration("stale_after", w.staleAfter),
		zap.Int32("batch", w.batchSize),
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("recovery worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("recovery worker stop signal received")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				zap.L().Error("recovery batch failed", zap.Error(err))
			}
		}
	}
}

func (w *RecoveryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *RecoveryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce claims one batch and resolves it. It returns how many claimed
// debits left the pending state.
func (w *RecoveryWorker) ProcessOnce(ctx context.Context) (int, error) {
	if n, err := w.store.Queries().CountPendingTransactions(ctx); err == nil {
		observability.SetPendingTransactions(n)
	}

	claimed, err := w.claim(ctx)
	if err != nil {
		observability.IncrementWorkerRun("recovery", "failed")
		return 0, err
	}

	settled := 0
	for i := range claimed {
		debit := &claimed[i]
		if err := w.resolver.ResolvePending(ctx, debit); err != nil {
			zap.L().Warn("pending transfer not resolved", zap.String("reference", debit.Reference), zap.Error(err))
			continue
		}
		after, err := w.store.Queries().GetTransactionByReference(ctx, debit.Reference)
		if err == nil && after.Status != domain.TxStatusPending {
			settled++
		}
	}
	if len(claimed) > 0 {
		zap.L().Info("recovery batch done", zap.Int("claimed", len(claimed)), zap.Int("settled", settled))
	}
	observability.IncrementWorkerRun("recovery", "success")
	return settled, nil
}

// claim locks a batch of stale debits, touches them so other instances skip
// them for another staleAfter, and releases the locks before any rail call.
func (w *RecoveryWorker) claim(ctx context.Context) ([]models.Transaction, error) {
	var claimed []models.Transaction
	err := w.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.ListStalePendingDebits(ctx, w.now().Add(-w.staleAfter), w.batchSize)
		if err != nil {
			return fmt.Errorf("list stale pending debits: %w", err)
		}
		for _, row := range rows {
			if err := q.TouchTransaction(ctx, row.ID); err != nil {
				return fmt.Errorf("touch transaction: %w", err)
			}
		}
		claimed = rows
		return nil
	})
	return claimed, err
}

func (w *RecoveryWorker) String() string {
	return fmt.Sprintf("RecoveryWorker(interval=%v, stale_after=%v, batch=%d)", w.pollInterval, w.staleAfter, w.batchSize)
}
