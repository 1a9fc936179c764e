package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds the SQL used inside ledger transactions.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const accountColumns = `id, user_id, account_number, account_name, balance, tier, pin_hash, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var tier int16
	if err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.AccountName, &a.Balance, &tier, &a.PINHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Tier = int(tier)
	return &a, nil
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber))
}

func (q *Queries) AccountExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// AdjustBalance applies delta in a single conditional statement. It returns
// pgx.ErrNoRows when the account is missing or the result would be negative.
func (q *Queries) AdjustBalance(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`, delta, id).Scan(&balance)
	return balance, err
}

func (q *Queries) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO transactions (
			id, account_id, reference, client_reference, direction, amount, category, channel,
			counterparty_name, counterparty_account, counterparty_bank, narration, session_id,
			balance_after, status, failure_reason, rail_transaction_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`,
		tx.ID, tx.AccountID, tx.Reference, tx.ClientReference, tx.Direction, tx.Amount, tx.Category, tx.Channel,
		tx.CounterpartyName, tx.CounterpartyAccount, tx.CounterpartyBank, tx.Narration, tx.SessionID,
		tx.BalanceAfter, tx.Status, tx.FailureReason, tx.RailTransactionID,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
}

const transactionColumns = `id, account_id, reference, client_reference, direction, amount, category, channel,
	counterparty_name, counterparty_account, counterparty_bank, narration, session_id,
	balance_after, status, failure_reason, rail_transaction_id, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.AccountID, &t.Reference, &t.ClientReference, &t.Direction, &t.Amount, &t.Category, &t.Channel,
		&t.CounterpartyName, &t.CounterpartyAccount, &t.CounterpartyBank, &t.Narration, &t.SessionID,
		&t.BalanceAfter, &t.Status, &t.FailureReason, &t.RailTransactionID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *Queries) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
}

func (q *Queries) GetTransactionStatusForUpdate(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	return status, err
}

type UpdateTransactionStatusParams struct {
	ID                uuid.UUID
	Status            string
	FailureReason     string
	RailTransactionID string
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET status = $1,
		    failure_reason = CASE WHEN $2 = '' THEN failure_reason ELSE $2 END,
		    rail_transaction_id = CASE WHEN $3 = '' THEN rail_transaction_id ELSE $3 END,
		    updated_at = NOW()
		WHERE id = $4
	`, arg.Status, arg.FailureReason, arg.RailTransactionID, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SumDailyTotal sums amounts moved in direction since the start of the day.
// Debits count while pending because the funds already left the balance.
// Refunds and reconciliation adjustments are not customer activity and are excluded.
func (q *Queries) SumDailyTotal(ctx context.Context, accountID uuid.UUID, direction string, since time.Time) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::BIGINT
		FROM transactions
		WHERE account_id = $1
		  AND direction = $2
		  AND created_at >= $3
		  AND status IN ('pending', 'completed')
		  AND category NOT IN ('refund', 'reconciliation', 'opening_balance')
	`, accountID, direction, since).Scan(&total)
	return total, err
}

// ListStalePendingDebits returns pending debits untouched since olderThan,
// skipping rows another worker is resolving.
func (q *Queries) ListStalePendingDebits(ctx context.Context, olderThan time.Time, limit int32) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending' AND direction = 'debit' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (q *Queries) TouchTransaction(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE transactions SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (q *Queries) CountPendingTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE status = 'pending'`).Scan(&n)
	return n, err
}

const mappingColumns = `id, owner_account_id, external_account_number, reference, status, used_at, created_at, updated_at`

func scanMapping(row pgx.Row) (*models.VirtualAccountMapping, error) {
	var m models.VirtualAccountMapping
	if err := row.Scan(&m.ID, &m.OwnerAccountID, &m.ExternalAccountNumber, &m.Reference, &m.Status, &m.UsedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (q *Queries) GetActiveMappingForUpdate(ctx context.Context, externalAccountNumber string) (*models.VirtualAccountMapping, error) {
	return scanMapping(q.db.QueryRow(ctx, `
		SELECT `+mappingColumns+`
		FROM virtual_account_mappings
		WHERE external_account_number = $1 AND status = 'active'
		FOR UPDATE
	`, externalAccountNumber))
}

func (q *Queries) MarkMappingUsed(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE virtual_account_mappings
		SET status = 'used', used_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata)
	return err
}

// ListAccountDrift returns accounts whose balance differs from
// completed credits minus every debit row (a failed debit is always paired
// with a completed refund credit).
func (q *Queries) ListAccountDrift(ctx context.Context) ([]models.AccountDrift, error) {
	rows, err := q.db.Query(ctx, `
		SELECT a.id, a.balance, COALESCE(SUM(
			CASE
				WHEN t.direction = 'credit' AND t.status = 'completed' THEN t.amount
				WHEN t.direction = 'debit' THEN -t.amount
				ELSE 0
			END), 0)::BIGINT AS ledger_net
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		GROUP BY a.id, a.balance
		HAVING a.balance <> COALESCE(SUM(
			CASE
				WHEN t.direction = 'credit' AND t.status = 'completed' THEN t.amount
				WHEN t.direction = 'debit' THEN -t.amount
				ELSE 0
			END), 0)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AccountDrift
	for rows.Next() {
		var d models.AccountDrift
		if err := rows.Scan(&d.AccountID, &d.Balance, &d.LedgerNet); err != nil {
			return nil, fmt.Errorf("scan account drift: %w", err)
		}
		d.Difference = d.Balance - d.LedgerNet
		out = append(out, d)
	}
	return out, rows.Err()
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
