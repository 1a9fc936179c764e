// Package idempotency answers whether an operation identified by a
// caller-supplied reference has already been committed. The transactions
// reference unique constraint is the only arbiter; the cache only shortcuts
// lookups of settled outcomes.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/cache"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("reference not found")

// Reader reads committed transactions by reference.
type Reader interface {
	GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
}

// Reservation is the outcome of Reserve. Existing is set when another call
// already committed the reference; it is never pending.
type Reservation struct {
	IsNew    bool
	Existing *models.Transaction
}

type Guard struct {
	reader      Reader
	cache       cache.Cache
	ttl         time.Duration
	waitTimeout time.Duration
	pollEvery   time.Duration
}

// NewGuard builds a guard. c may be nil.
func NewGuard(reader Reader, c cache.Cache, ttl, waitTimeout time.Duration) *Guard {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &Guard{
		reader:      reader,
		cache:       c,
		ttl:         ttl,
		waitTimeout: waitTimeout,
		pollEvery:   50 * time.Millisecond,
	}
}

// Lookup returns the committed transaction for reference, or ErrNotFound.
func (g *Guard) Lookup(ctx context.Context, reference string) (*models.Transaction, error) {
	var cached models.Transaction
	err := cache.GetJSON(ctx, g.cache, cacheKey(reference), &cached)
	if err == nil {
		observability.IncrementIdempotencyEvent("cache_hit")
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		zap.L().Warn("idempotency cache lookup failed", zap.String("reference", reference), zap.Error(err))
	}

	tx, err := g.reader.GetTransactionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup reference: %w", err)
	}
	if tx.Status != domain.TxStatusPending {
		g.Remember(ctx, tx)
	}
	return tx, nil
}

// Reserve runs apply unless reference is already committed. apply must insert
// a row carrying reference inside its own database transaction; if it loses a
// race on the unique constraint the winner's settled result is returned
// instead, exactly as a sequential retry would see it.
func (g *Guard) Reserve(ctx context.Context, reference string, apply func(ctx context.Context) error) (Reservation, error) {
	existing, err := g.Lookup(ctx, reference)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay")
		settled, err := g.settle(ctx, reference, existing)
		if err != nil {
			return Reservation{}, err
		}
		return Reservation{Existing: settled}, nil
	case !errors.Is(err, ErrNotFound):
		return Reservation{}, domain.NewError(domain.CodeLedgerIntegrity, "idempotency lookup failed", err)
	}

	if err := apply(ctx); err != nil {
		if !errors.Is(err, domain.ErrDuplicateReference) {
			return Reservation{}, err
		}
		observability.IncrementIdempotencyEvent("race_lost")
		winner, err := g.Await(ctx, reference)
		if err != nil {
			return Reservation{}, err
		}
		return Reservation{Existing: winner}, nil
	}

	observability.IncrementIdempotencyEvent("reserved")
	return Reservation{IsNew: true}, nil
}

// Await polls until reference is no longer pending. It gives up with
// ErrDuplicateOperation after the wait timeout; the operation is still in
// flight and the caller may retry later.
func (g *Guard) Await(ctx context.Context, reference string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, g.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollEvery)
	defer ticker.Stop()
	for {
		tx, err := g.Lookup(ctx, reference)
		switch {
		case err == nil && tx.Status != domain.TxStatusPending:
			return tx, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			if ctx.Err() != nil {
				return nil, domain.ErrDuplicateOperation
			}
			return nil, domain.NewError(domain.CodeLedgerIntegrity, "idempotency lookup failed", err)
		}

		select {
		case <-ctx.Done():
			observability.IncrementIdempotencyEvent("wait_timeout")
			return nil, domain.ErrDuplicateOperation
		case <-ticker.C:
		}
	}
}

// Remember caches a settled outcome. Pending rows are never cached.
func (g *Guard) Remember(ctx context.Context, tx *models.Transaction) {
	if tx == nil || tx.Status == domain.TxStatusPending {
		return
	}
	if err := cache.SetJSON(ctx, g.cache, cacheKey(tx.Reference), tx, g.ttl); err != nil {
		zap.L().Warn("idempotency cache set failed", zap.String("reference", tx.Reference), zap.Error(err))
	}
}

func (g *Guard) settle(ctx context.Context, reference string, tx *models.Transaction) (*models.Transaction, error) {
	if tx.Status != domain.TxStatusPending {
		return tx, nil
	}
	return g.Await(ctx, reference)
}

func cacheKey(reference string) string {
	return cache.Key("txref", reference)
}
