package repository

import (
	"context"
	"testing"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/testutil/dbtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserAndAccount(t *testing.T) {
	pool := dbtest.Setup(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	userID := uuid.New()
	user := &models.User{
		ID:       userID,
		Username: "testuser_" + userID.String()[:8],
		Email:    "test_" + userID.String()[:8] + "@example.com",
	}
	require.NoError(t, repo.CreateUser(ctx, user))

	dbUser, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "user", dbUser.Role)

	account := &models.Account{
		ID:            uuid.New(),
		UserID:        user.ID,
		AccountNumber: "0123456789",
		AccountName:   "Ada Obi",
		Tier:          2,
	}
	require.NoError(t, repo.CreateAccount(ctx, account))
	assert.Equal(t, int64(0), account.Balance)

	got, err := New(pool).GetAccountByNumber(ctx, "0123456789")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, 2, got.Tier)

	require.NoError(t, repo.SetPINHash(ctx, account.ID, "hash"))
	require.ErrorIs(t, repo.SetPINHash(ctx, uuid.New(), "hash"), domain.ErrAccountNotFound)
}

func TestPaymentSettingsUpsert(t *testing.T) {
	pool := dbtest.Setup(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	acc := dbtest.SeedAccount(t, pool, "1000000001", 1, 0)

	_, err := repo.GetPaymentSettings(ctx, acc.ID)
	require.True(t, IsNoRows(err))

	s := models.DefaultPaymentSettings(acc.ID)
	s.DailyLimitKobo = 1_000_000
	s.BlockGambling = true
	require.NoError(t, repo.UpsertPaymentSettings(ctx, &s))

	s.DailyLimitKobo = 2_000_000
	require.NoError(t, repo.UpsertPaymentSettings(ctx, &s))

	got, err := repo.GetPaymentSettings(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), got.DailyLimitKobo)
	assert.True(t, got.BlockGambling)
	assert.True(t, got.EnableOnlinePayments)
}

func TestMappingsAndStatements(t *testing.T) {
	pool := dbtest.Setup(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	acc := dbtest.SeedAccount(t, pool, "1000000002", 1, 5_000)

	m := &models.VirtualAccountMapping{
		ID:                    uuid.New(),
		OwnerAccountID:        acc.ID,
		ExternalAccountNumber: "9900000001",
		Reference:             "va-1",
	}
	require.NoError(t, repo.CreateMapping(ctx, m))

	dup := *m
	dup.ID = uuid.New()
	dup.Reference = "va-2"
	require.Error(t, repo.CreateMapping(ctx, &dup), "only one active mapping per external number")

	list, err := repo.ListMappings(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.MappingStatusActive, list[0].Status)

	txs, err := repo.GetTransactions(ctx, acc.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.CategoryOpeningBalance, txs[0].Category)

	ids, err := repo.ListAccountIDs(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{acc.ID}, ids)
}
