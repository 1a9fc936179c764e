package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/cache"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the local, authoritative record of wallet balances and history.
// Every balance mutation goes through Apply, which pairs the conditional
// balance update with the transaction row inside one database transaction.
type Ledger struct {
	store *Store
	cache cache.Cache
	ttl   time.Duration
}

// NewLedger builds a ledger. c may be nil, in which case snapshots are always read from Postgres.
func NewLedger(store *Store, c cache.Cache, snapshotTTL time.Duration) *Ledger {
	return &Ledger{store: store, cache: c, ttl: snapshotTTL}
}

// Store exposes transaction scoping for multi-leg operations.
func (l *Ledger) Store() *Store {
	return l.store
}

// GetAccount reads the account straight from Postgres. Use this for any decision about money.
func (l *Ledger) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acc, err := l.store.Queries().GetAccount(ctx, id)
	return acc, mapAccountErr(err)
}

func (l *Ledger) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	acc, err := l.store.Queries().GetAccountByNumber(ctx, accountNumber)
	return acc, mapAccountErr(err)
}

// AccountSnapshot is a read-through cached view for display. It may lag a
// write by at most the time between commit and invalidation.
func (l *Ledger) AccountSnapshot(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	key := cache.Key("account", id.String())
	var acc models.Account
	if err := cache.GetJSON(ctx, l.cache, key, &acc); err == nil {
		return &acc, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		zap.L().Warn("account snapshot cache read failed", zap.Error(err))
	}

	fresh, err := l.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, l.cache, key, fresh, l.ttl); err != nil {
		zap.L().Warn("account snapshot cache write failed", zap.Error(err))
	}
	return fresh, nil
}

// Invalidate drops cached snapshots after a balance write.
func (l *Ledger) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if l.cache == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cache.Key("account", id.String()))
	}
	if err := l.cache.Delete(ctx, keys...); err != nil {
		zap.L().Warn("account snapshot invalidation failed", zap.Error(err))
	}
}

// AdjustBalance applies delta with a conditional update, rejecting results
// below zero, and returns the new balance. q must be transactional and the
// same transaction must insert the row that explains delta, as Apply does;
// otherwise the balance drifts from its history.
func (l *Ledger) AdjustBalance(ctx context.Context, q *Queries, id uuid.UUID, delta int64) (int64, error) {
	return adjust(ctx, q, id, delta)
}

// RecordTransaction applies tx's balance effect and inserts it atomically.
func (l *Ledger) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	err := l.store.RunInTx(ctx, func(q *Queries) error {
		return l.Apply(ctx, q, tx)
	})
	if err != nil {
		return asLedgerError(err)
	}
	l.Invalidate(ctx, tx.AccountID)
	return nil
}

// Apply moves the balance and records tx using q, which must be transactional.
// A debit is applied even while pending: the funds are reserved at insert time.
func (l *Ledger) Apply(ctx context.Context, q *Queries, tx *models.Transaction) error {
	if tx.Amount <= 0 {
		return domain.Validationf("amount must be positive")
	}
	var delta int64
	switch tx.Direction {
	case domain.DirectionCredit:
		delta = tx.Amount
	case domain.DirectionDebit:
		delta = -tx.Amount
	default:
		return domain.Validationf("unknown direction %q", tx.Direction)
	}

	balance, err := l.AdjustBalance(ctx, q, tx.AccountID, delta)
	if err != nil {
		return err
	}

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.ClientReference == "" {
		tx.ClientReference = tx.Reference
	}
	if tx.Channel == "" {
		tx.Channel = domain.ChannelTransfer
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}
	tx.BalanceAfter = balance

	if err := q.InsertTransaction(ctx, tx); err != nil {
		if IsUniqueViolation(err) {
			return domain.NewError(domain.CodeDuplicateReference, "reference already used", err)
		}
		return domain.NewError(domain.CodeLedgerIntegrity, "record transaction failed", err)
	}
	return nil
}

// OverwriteBalance sets the balance to target and records the difference as a
// reconciliation adjustment so the history still explains the balance.
// It returns the previous balance and the adjustment row (nil when nothing changed).
func (l *Ledger) OverwriteBalance(ctx context.Context, id uuid.UUID, target int64, reference, narration string) (int64, *models.Transaction, error) {
	if target < 0 {
		return 0, nil, domain.NewError(domain.CodeLedgerIntegrity, "refusing to set a negative balance", nil)
	}

	var prev int64
	var adjustment *models.Transaction
	err := l.store.RunInTx(ctx, func(q *Queries) error {
		acc, err := q.GetAccountForUpdate(ctx, id)
		if err != nil {
			return mapAccountErr(err)
		}
		prev = acc.Balance
		delta := target - prev
		if delta == 0 {
			return nil
		}

		tx := &models.Transaction{
			AccountID: id,
			Reference: reference,
			Direction: domain.DirectionCredit,
			Amount:    delta,
			Category:  domain.CategoryReconciliation,
			Narration: narration,
			Status:    domain.TxStatusCompleted,
		}
		if delta < 0 {
			tx.Direction = domain.DirectionDebit
			tx.Amount = -delta
		}
		if err := l.Apply(ctx, q, tx); err != nil {
			return err
		}
		adjustment = tx
		return nil
	})
	if err != nil {
		return 0, nil, asLedgerError(err)
	}
	if adjustment != nil {
		l.Invalidate(ctx, id)
	}
	return prev, adjustment, nil
}

func adjust(ctx context.Context, q *Queries, id uuid.UUID, delta int64) (int64, error) {
	balance, err := q.AdjustBalance(ctx, id, delta)
	if err == nil {
		return balance, nil
	}
	if !IsNoRows(err) {
		return 0, domain.NewError(domain.CodeLedgerIntegrity, "adjust balance failed", err)
	}

	exists, existsErr := q.AccountExists(ctx, id)
	if existsErr != nil {
		return 0, domain.NewError(domain.CodeLedgerIntegrity, "adjust balance failed", existsErr)
	}
	if !exists {
		return 0, domain.ErrAccountNotFound
	}
	return 0, domain.ErrInsufficientFunds
}

func mapAccountErr(err error) error {
	if err == nil {
		return nil
	}
	if IsNoRows(err) {
		return domain.ErrAccountNotFound
	}
	return domain.NewError(domain.CodeLedgerIntegrity, "read account failed", err)
}

// asLedgerError keeps taxonomy errors and wraps everything else (begin, commit) as an integrity failure.
func asLedgerError(err error) error {
	if domain.CodeOf(err) != "" {
		return err
	}
	return domain.NewError(domain.CodeLedgerIntegrity, "ledger write failed", err)
}
