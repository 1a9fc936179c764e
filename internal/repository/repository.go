package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository covers records that are not money: users, account metadata,
// payment settings, virtual account mappings and statements.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = "user"
	}
	query := `INSERT INTO users (id, username, email, role, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`
	err := r.db.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, email, role, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateAccount inserts an account with a zero balance. Opening balances are
// credited through the ledger so they appear in the history.
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, account_number, account_name, balance, tier)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING balance, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, account.ID, account.UserID, account.AccountNumber, account.AccountName, account.Tier).
		Scan(&account.Balance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *Repository) SetPINHash(ctx context.Context, accountID uuid.UUID, hash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET pin_hash = $1, updated_at = NOW() WHERE id = $2`, hash, accountID)
	if err != nil {
		return fmt.Errorf("failed to set pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ListAccountIDs pages through accounts ordered by id, starting after the given id.
func (r *Repository) ListAccountIDs(ctx context.Context, after uuid.UUID, limit int32) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM accounts WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) GetTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// GetPaymentSettings returns pgx.ErrNoRows (wrapped) when the account never saved settings.
func (r *Repository) GetPaymentSettings(ctx context.Context, accountID uuid.UUID) (*models.PaymentSettings, error) {
	return getPaymentSettings(ctx, r.db, accountID)
}

func getPaymentSettings(ctx context.Context, db DBTX, accountID uuid.UUID) (*models.PaymentSettings, error) {
	s := &models.PaymentSettings{}
	err := db.QueryRow(ctx, `
		SELECT account_id, daily_limit_kobo, single_transaction_limit_kobo, block_international, block_gambling,
		       block_ecommerce, enable_online_payments, enable_contactless, require_pin_above_kobo, updated_at
		FROM payment_settings
		WHERE account_id = $1
	`, accountID).Scan(
		&s.AccountID, &s.DailyLimitKobo, &s.SingleTransactionLimitKobo, &s.BlockInternational, &s.BlockGambling,
		&s.BlockEcommerce, &s.EnableOnlinePayments, &s.EnableContactless, &s.RequirePINAboveKobo, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}
	return s, nil
}

// GetPaymentSettings reads settings inside a ledger transaction.
func (q *Queries) GetPaymentSettings(ctx context.Context, accountID uuid.UUID) (*models.PaymentSettings, error) {
	return getPaymentSettings(ctx, q.db, accountID)
}

func (r *Repository) UpsertPaymentSettings(ctx context.Context, s *models.PaymentSettings) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_settings (
			account_id, daily_limit_kobo, single_transaction_limit_kobo, block_international, block_gambling,
			block_ecommerce, enable_online_payments, enable_contactless, require_pin_above_kobo, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			daily_limit_kobo = EXCLUDED.daily_limit_kobo,
			single_transaction_limit_kobo = EXCLUDED.single_transaction_limit_kobo,
			block_international = EXCLUDED.block_international,
			block_gambling = EXCLUDED.block_gambling,
			block_ecommerce = EXCLUDED.block_ecommerce,
			enable_online_payments = EXCLUDED.enable_online_payments,
			enable_contactless = EXCLUDED.enable_contactless,
			require_pin_above_kobo = EXCLUDED.require_pin_above_kobo,
			updated_at = NOW()
		RETURNING updated_at
	`, s.AccountID, s.DailyLimitKobo, s.SingleTransactionLimitKobo, s.BlockInternational, s.BlockGambling,
		s.BlockEcommerce, s.EnableOnlinePayments, s.EnableContactless, s.RequirePINAboveKobo).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payment settings: %w", err)
	}
	return nil
}

func (r *Repository) CreateMapping(ctx context.Context, m *models.VirtualAccountMapping) error {
	if m.Status == "" {
		m.Status = "active"
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO virtual_account_mappings (id, owner_account_id, external_account_number, reference, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, m.ID, m.OwnerAccountID, m.ExternalAccountNumber, m.Reference, m.Status).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create virtual account mapping: %w", err)
	}
	return nil
}

func (r *Repository) ListMappings(ctx context.Context, ownerAccountID uuid.UUID) ([]models.VirtualAccountMapping, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+mappingColumns+`
		FROM virtual_account_mappings
		WHERE owner_account_id = $1
		ORDER BY created_at DESC
	`, ownerAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list virtual account mappings: %w", err)
	}
	defer rows.Close()

	out := []models.VirtualAccountMapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan virtual account mapping: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
