package service

import (
	"context"
	"testing"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/testutil/dbtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAccountService(f *fixture) (*AccountService, *repository.Repository) {
	repo := repository.NewRepository(f.pool)
	return NewAccountService(repo, f.ledger, f.rail), repo
}

func TestCreateAccountRecordsOpeningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, repo := newAccountService(f)

	user := &models.User{ID: uuid.New(), Username: "ayo", Email: "ayo@example.com"}
	require.NoError(t, repo.CreateUser(ctx, user))

	acc, err := svc.CreateAccount(ctx, user.ID, "Ayo Bello", 0, 250_000)
	require.NoError(t, err)
	assert.Len(t, acc.AccountNumber, 10)
	assert.Equal(t, domain.MinTier, acc.Tier)
	assert.Equal(t, int64(250_000), dbtest.Balance(t, f.pool, acc.ID))

	statement, err := svc.GetStatement(ctx, acc.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, statement, 1)
	assert.Equal(t, domain.CategoryOpeningBalance, statement[0].Category)

	_, err = svc.CreateAccount(ctx, user.ID, "Bad", 9, 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestPaymentSettingsDefaultsAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAccountService(f)
	acc := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)

	got, err := svc.GetSettings(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.EnableOnlinePayments)
	assert.Zero(t, got.DailyLimitKobo)

	got.DailyLimitKobo = 1_000_000
	got.BlockGambling = true
	require.NoError(t, svc.UpdateSettings(ctx, got))

	again, err := svc.GetSettings(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), again.DailyLimitKobo)
	assert.True(t, again.BlockGambling)

	got.SingleTransactionLimitKobo = -1
	require.ErrorIs(t, svc.UpdateSettings(ctx, got), domain.ErrValidation)

	_, err = svc.GetSettings(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSetPIN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAccountService(f)
	acc := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)

	for _, bad := range []string{"12", "1234567", "12a4"} {
		require.ErrorIs(t, svc.SetPIN(ctx, acc.ID, bad), domain.ErrValidation, bad)
	}
	require.NoError(t, svc.SetPIN(ctx, acc.ID, "4321"))

	stored, err := f.ledger.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PINHash), []byte("4321")))

	require.ErrorIs(t, svc.SetPIN(ctx, uuid.New(), "4321"), domain.ErrAccountNotFound)
}

func TestProvisionVirtualAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAccountService(f)
	acc := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)

	m, err := svc.ProvisionVirtualAccount(ctx, acc.ID, 500_000)
	require.NoError(t, err)
	assert.Equal(t, "9900000001", m.ExternalAccountNumber)
	assert.Equal(t, domain.MappingStatusActive, m.Status)

	list, err := svc.ListVirtualAccounts(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// The scripted rail hands out the same number again; an active duplicate is refused.
	_, err = svc.ProvisionVirtualAccount(ctx, acc.ID, 0)
	require.ErrorIs(t, err, domain.ErrLedgerIntegrity)
}

func TestLimitCheckIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := dbtest.SeedAccount(t, f.pool, "1000000001", 1, 10_000_000)
	limits := NewLimitService(f.store, f.transfers.limits.evaluator, nil)

	d, err := limits.Check(ctx, DebitProposal{AccountID: acc.ID, Amount: 5_000_000})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limits.Check(ctx, DebitProposal{AccountID: acc.ID, Amount: 5_000_001})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.NotEmpty(t, d.Reason)

	d, err = limits.Check(ctx, DebitProposal{AccountID: acc.ID, Amount: 1_000, Description: "sportybet top up"})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "gambling is only blocked when the setting is on")

	_, err = limits.Check(ctx, DebitProposal{AccountID: uuid.New(), Amount: 1_000})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, int64(10_000_000), dbtest.Balance(t, f.pool, acc.ID))
}
