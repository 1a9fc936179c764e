package service

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/rail"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const accountNumberAttempts = 3

type AccountService struct {
	repo   *repository.Repository
	ledger *repository.Ledger
	rail   rail.Rail
}

func NewAccountService(repo *repository.Repository, ledger *repository.Ledger, r rail.Rail) *AccountService {
	return &AccountService{
		repo:   repo,
		ledger: ledger,
		rail:   r,
	}
}

// GetBalance returns the cached snapshot; money decisions never use it.
func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.ledger.AccountSnapshot(ctx, accountID)
}

func (s *AccountService) GetStatement(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]models.Transaction, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	offset := (page - 1) * pageSize
	return s.repo.GetTransactions(ctx, accountID, pageSize, offset)
}

// CreateAccount opens a wallet. A non-zero opening balance is credited
// through the ledger so the history explains it.
func (s *AccountService) CreateAccount(ctx context.Context, userID uuid.UUID, accountName string, tier int, openingBalance int64) (*models.Account, error) {
	if tier == 0 {
		tier = domain.MinTier
	}
	if tier < domain.MinTier || tier > domain.MaxTier {
		return nil, domain.Validationf("tier must be between %d and %d", domain.MinTier, domain.MaxTier)
	}
	if openingBalance < 0 {
		return nil, domain.Validationf("opening balance cannot be negative")
	}

	account := &models.Account{
		ID:          uuid.New(),
		UserID:      userID,
		AccountName: accountName,
		Tier:        tier,
	}
	var err error
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		account.AccountNumber = newAccountNumber()
		err = s.repo.CreateAccount(ctx, account)
		if err == nil || !repository.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if openingBalance > 0 {
		opening := &models.Transaction{
			AccountID: account.ID,
			Reference: "open-" + account.ID.String(),
			Direction: domain.DirectionCredit,
			Amount:    openingBalance,
			Category:  domain.CategoryOpeningBalance,
			Narration: "Opening balance",
			Status:    domain.TxStatusCompleted,
		}
		if err := s.ledger.RecordTransaction(ctx, opening); err != nil {
			return nil, err
		}
		account.Balance = opening.BalanceAfter
	}
	return account, nil
}

func (s *AccountService) GetSettings(ctx context.Context, accountID uuid.UUID) (*models.PaymentSettings, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	settings, err := s.repo.GetPaymentSettings(ctx, accountID)
	if err != nil {
		if repository.IsNoRows(err) {
			d := models.DefaultPaymentSettings(accountID)
			return &d, nil
		}
		return nil, err
	}
	return settings, nil
}

func (s *AccountService) UpdateSettings(ctx context.Context, settings *models.PaymentSettings) error {
	if settings.DailyLimitKobo < 0 || settings.SingleTransactionLimitKobo < 0 || settings.RequirePINAboveKobo < 0 {
		return domain.Validationf("limits cannot be negative")
	}
	if _, err := s.ledger.GetAccount(ctx, settings.AccountID); err != nil {
		return err
	}
	return s.repo.UpsertPaymentSettings(ctx, settings)
}

// SetPIN stores a bcrypt hash of a 4 to 6 digit PIN.
func (s *AccountService) SetPIN(ctx context.Context, accountID uuid.UUID, pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return domain.Validationf("pin must be 4 to 6 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return domain.Validationf("pin must be 4 to 6 digits")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	return s.repo.SetPINHash(ctx, accountID, string(hash))
}

// ProvisionVirtualAccount asks the rail for a collection account number and
// maps it to the wallet. amount is in kobo; zero accepts any amount.
func (s *AccountService) ProvisionVirtualAccount(ctx context.Context, accountID uuid.UUID, amount int64) (*models.VirtualAccountMapping, error) {
	if amount < 0 {
		return nil, domain.Validationf("amount cannot be negative")
	}
	acc, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	req := rail.VirtualAccountRequest{
		Reference:        "va-" + uuid.NewString(),
		MerchantName:     acc.AccountName,
		AmountValidation: "A0",
	}
	if amount > 0 {
		req.Amount = domain.NewMoney(amount, domain.CurrencyNGN).ToDecimal().StringFixed(2)
		req.AmountValidation = "A4"
	}
	va, err := s.rail.CreateVirtualAccount(ctx, req)
	if err != nil {
		return nil, err
	}

	mapping := &models.VirtualAccountMapping{
		ID:                    uuid.New(),
		OwnerAccountID:        acc.ID,
		ExternalAccountNumber: va.AccountNumber,
		Reference:             nonEmpty(va.Reference, req.Reference),
		Status:                domain.MappingStatusActive,
	}
	if err := s.repo.CreateMapping(ctx, mapping); err != nil {
		if repository.IsUniqueViolation(err) {
			zap.L().Error("rail issued an account number that is already mapped", zap.String("external_account_number", va.AccountNumber))
			return nil, domain.NewError(domain.CodeLedgerIntegrity, "virtual account already mapped", err)
		}
		return nil, err
	}
	zap.L().Info("virtual account provisioned",
		zap.String("account_id", acc.ID.String()),
		zap.String("external_account_number", mapping.ExternalAccountNumber),
	)
	return mapping, nil
}

func (s *AccountService) ListVirtualAccounts(ctx context.Context, accountID uuid.UUID) ([]models.VirtualAccountMapping, error) {
	return s.repo.ListMappings(ctx, accountID)
}

func newAccountNumber() string {
	return fmt.Sprintf("%010d", rand.Int63n(9_000_000_000)+1_000_000_000)
}
