package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/cache"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/policy"
	"github.com/ayo6706/wallet-ledger/internal/rail"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/testutil/dbtest"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testBankCode = "999001"

// scriptedRail answers from per-test functions and records every call.
type scriptedRail struct {
	mu          sync.Mutex
	transfer    func(req rail.TransferRequest) (*rail.TransferResponse, error)
	status      func(reference string) (*rail.StatusResult, error)
	balance     func(accountNumber string) (int64, error)
	transfers   []rail.TransferRequest
	statusCalls int
}

func (r *scriptedRail) Transfer(_ context.Context, req rail.TransferRequest) (*rail.TransferResponse, error) {
	r.mu.Lock()
	r.transfers = append(r.transfers, req)
	r.mu.Unlock()
	if r.transfer == nil {
		return &rail.TransferResponse{Status: rail.StatusSuccess, TransactionID: "RAIL-" + req.Reference}, nil
	}
	return r.transfer(req)
}

func (r *scriptedRail) TransactionStatus(_ context.Context, reference string) (*rail.StatusResult, error) {
	r.mu.Lock()
	r.statusCalls++
	r.mu.Unlock()
	if r.status == nil {
		return &rail.StatusResult{State: rail.TxNotFound}, nil
	}
	return r.status(reference)
}

func (r *scriptedRail) Balance(_ context.Context, accountNumber string) (int64, error) {
	if r.balance == nil {
		return 0, domain.ErrRailUnavailable
	}
	return r.balance(accountNumber)
}

func (r *scriptedRail) CreateVirtualAccount(_ context.Context, req rail.VirtualAccountRequest) (*rail.VirtualAccount, error) {
	return &rail.VirtualAccount{AccountNumber: "9900000001", Reference: req.Reference}, nil
}

func (r *scriptedRail) transferCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

// recordingPublisher collects published event types.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	pool      *pgxpool.Pool
	store     *repository.Store
	ledger    *repository.Ledger
	guard     *idempotency.Guard
	rail      *scriptedRail
	publisher *recordingPublisher
	audit     *AuditService
	transfers *TransferOrchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool := dbtest.Setup(t)
	c := cache.NewMemory()
	store := repository.NewStore(pool)
	ledger := repository.NewLedger(store, c, time.Minute)
	guard := idempotency.NewGuard(store.Queries(), c, time.Hour, 2*time.Second)
	r := &scriptedRail{}
	pub := &recordingPublisher{}
	audit := NewAuditService()
	limits := NewLimitService(store, policy.NewEvaluator(policy.DefaultRules()), time.UTC)

	orch := NewTransferOrchestrator(ledger, guard, limits, r, pub, audit, TransferConfig{
		LocalBankCode: testBankCode,
		StatusRetries: 2,
		StatusBackoff: time.Millisecond,
	})
	orch.sleep = func(context.Context, time.Duration) error { return nil }

	return &fixture{
		pool:      pool,
		store:     store,
		ledger:    ledger,
		guard:     guard,
		rail:      r,
		publisher: pub,
		audit:     audit,
		transfers: orch,
	}
}

func (f *fixture) statusOf(t *testing.T, reference string) string {
	t.Helper()
	tx, err := f.store.Queries().GetTransactionByReference(context.Background(), reference)
	if err != nil {
		t.Fatalf("read %s: %v", reference, err)
	}
	return tx.Status
}

func (f *fixture) exists(reference string) bool {
	_, err := f.store.Queries().GetTransactionByReference(context.Background(), reference)
	return err == nil
}

func (f *fixture) countAudit(t *testing.T, action string) int {
	t.Helper()
	var n int
	if err := f.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM audit_log WHERE action = $1`, action).Scan(&n); err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return n
}
