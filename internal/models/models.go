package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a wallet. Balance is in kobo and only changes through the ledger.
type Account struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	Balance       int64     `json:"balance"`
	Tier          int       `json:"tier"`
	PINHash       string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Transaction struct {
	ID                  uuid.UUID `json:"id"`
	AccountID           uuid.UUID `json:"account_id"`
	Reference           string    `json:"reference"`
	ClientReference     string    `json:"client_reference"`
	Direction           string    `json:"direction"`
	Amount              int64     `json:"amount"`
	Category            string    `json:"category"`
	Channel             string    `json:"channel"`
	CounterpartyName    string    `json:"counterparty_name"`
	CounterpartyAccount string    `json:"counterparty_account"`
	CounterpartyBank    string    `json:"counterparty_bank"`
	Narration           string    `json:"narration"`
	SessionID           string    `json:"session_id,omitempty"`
	BalanceAfter        int64     `json:"balance_after"`
	Status              string    `json:"status"`
	FailureReason       string    `json:"failure_reason,omitempty"`
	RailTransactionID   string    `json:"rail_transaction_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type VirtualAccountMapping struct {
	ID                    uuid.UUID  `json:"id"`
	OwnerAccountID        uuid.UUID  `json:"owner_account_id"`
	ExternalAccountNumber string     `json:"external_account_number"`
	Reference             string     `json:"reference"`
	Status                string     `json:"status"`
	UsedAt                *time.Time `json:"used_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// PaymentSettings are per-account restrictions layered over the tier limits.
// Zero limits mean "use the tier limit".
type PaymentSettings struct {
	AccountID                  uuid.UUID `json:"account_id"`
	DailyLimitKobo             int64     `json:"daily_limit_kobo"`
	SingleTransactionLimitKobo int64     `json:"single_transaction_limit_kobo"`
	BlockInternational         bool      `json:"block_international"`
	BlockGambling              bool      `json:"block_gambling"`
	BlockEcommerce             bool      `json:"block_ecommerce"`
	EnableOnlinePayments       bool      `json:"enable_online_payments"`
	EnableContactless          bool      `json:"enable_contactless"`
	RequirePINAboveKobo        int64     `json:"require_pin_above_kobo"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// DefaultPaymentSettings is what an account gets before it saves any settings.
func DefaultPaymentSettings(accountID uuid.UUID) PaymentSettings {
	return PaymentSettings{
		AccountID:            accountID,
		EnableOnlinePayments: true,
		EnableContactless:    true,
	}
}

// AccountDrift is an account whose balance disagrees with its transaction history.
type AccountDrift struct {
	AccountID  uuid.UUID `json:"account_id"`
	Balance    int64     `json:"balance"`
	LedgerNet  int64     `json:"ledger_net"`
	Difference int64     `json:"difference"`
}
