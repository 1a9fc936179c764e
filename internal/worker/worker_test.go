package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/cache"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/ayo6706/wallet-ledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completingResolver marks every debit it sees completed.
type completingResolver struct {
	mu    sync.Mutex
	store *repository.Store
	seen  []string
}

func (r *completingResolver) ResolvePending(ctx context.Context, debit *models.Transaction) error {
	r.mu.Lock()
	r.seen = append(r.seen, debit.Reference)
	r.mu.Unlock()
	_, err := r.store.Queries().UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
		ID:     debit.ID,
		Status: domain.TxStatusCompleted,
	})
	return err
}

func seedPending(t *testing.T, ledger *repository.Ledger, acc *models.Account, ref string) {
	t.Helper()
	require.NoError(t, ledger.RecordTransaction(context.Background(), &models.Transaction{
		AccountID: acc.ID,
		Reference: ref,
		Direction: domain.DirectionDebit,
		Amount:    1_000,
		Category:  domain.CategoryExternalOut,
		Status:    domain.TxStatusPending,
	}))
}

func TestRecoveryWorkerClaimsOnlyStaleDebits(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	store := repository.NewStore(pool)
	ledger := repository.NewLedger(store, cache.NewMemory(), time.Minute)
	acc := dbtest.SeedAccount(t, pool, "1000000001", 2, 100_000)

	seedPending(t, ledger, acc, "stale-1")
	seedPending(t, ledger, acc, "fresh-1")
	_, err := pool.Exec(ctx, `UPDATE transactions SET updated_at = NOW() - INTERVAL '10 minutes' WHERE reference = 'stale-1'`)
	require.NoError(t, err)

	resolver := &completingResolver{store: store}
	w := NewRecoveryWorker(store, resolver).WithStaleAfter(5 * time.Minute)

	settled, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, []string{"stale-1"}, resolver.seen)

	settled, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled)
}

// stuckResolver leaves debits pending, as when the rail still reports them in flight.
type stuckResolver struct{ calls int }

func (r *stuckResolver) ResolvePending(context.Context, *models.Transaction) error {
	r.calls++
	return nil
}

func TestRecoveryWorkerBacksOffClaimedDebits(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	store := repository.NewStore(pool)
	ledger := repository.NewLedger(store, nil, time.Minute)
	acc := dbtest.SeedAccount(t, pool, "1000000001", 2, 100_000)

	seedPending(t, ledger, acc, "stuck-1")
	_, err := pool.Exec(ctx, `UPDATE transactions SET updated_at = NOW() - INTERVAL '10 minutes'`)
	require.NoError(t, err)

	resolver := &stuckResolver{}
	w := NewRecoveryWorker(store, resolver).WithStaleAfter(5 * time.Minute)

	_, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	_, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls, "claimed debit is touched and skipped until stale again")
}

func TestRecoveryWorkerStopIsIdempotent(t *testing.T) {
	w := NewRecoveryWorker(nil, &stuckResolver{}).WithPollInterval(time.Hour)
	stop := w.Run(context.Background())
	stop()
	stop()
	assert.Contains(t, w.String(), "interval=1h0m0s")
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	integrity := service.NewIntegrityService(nil)

	_, err := NewScheduler(ScheduleConfig{IntegritySpec: "not a spec"}, nil, integrity)
	require.Error(t, err)

	s, err := NewScheduler(ScheduleConfig{IntegritySpec: "@every 1h"}, nil, integrity)
	require.NoError(t, err)
	s.Start()
	<-s.Stop().Done()
}
