package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/testutil/dbtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHMACKey = "webhook-secret"

func newProcessor(t *testing.T, f *fixture, policy MappingPolicy) *InboundCreditProcessor {
	t.Helper()
	return NewInboundCreditProcessor(f.ledger, f.guard, f.publisher, f.audit, policy, testHMACKey, false)
}

func seedMapping(t *testing.T, f *fixture, owner *models.Account, external string) *models.VirtualAccountMapping {
	t.Helper()
	m := &models.VirtualAccountMapping{
		ID:                    uuid.New(),
		OwnerAccountID:        owner.ID,
		ExternalAccountNumber: external,
		Reference:             "va-" + uuid.NewString(),
	}
	require.NoError(t, repository.NewRepository(f.pool).CreateMapping(context.Background(), m))
	return m
}

func creditBody(t *testing.T, p InboundCreditPayload) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	return body, SignPayload(testHMACKey, body)
}

func TestInboundCreditAppliedOnceUnderRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)
	seedMapping(t, f, owner, "9900000001")
	p := newProcessor(t, f, MappingOneShot)

	body, sig := creditBody(t, InboundCreditPayload{
		AccountNumber: "9900000001",
		Amount:        "1500.50",
		SenderName:    "Chidi Okeke",
		SenderAccount: "0011223344",
		SenderBank:    "GTBank",
		Reference:     "rail-in-1",
		SessionID:     "000013240101120000123456789012",
	})

	first, err := p.Process(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, InboundCredited, first.Status)
	assert.Equal(t, int64(150_050), first.Transaction.Amount)

	for i := 0; i < 3; i++ {
		res, err := p.Process(ctx, body, sig)
		require.NoError(t, err)
		assert.Equal(t, InboundDuplicate, res.Status)
	}

	assert.Equal(t, int64(150_050), dbtest.Balance(t, f.pool, owner.ID))
	assert.Equal(t, []string{"wallet.credit.received"}, f.publisher.types())
	assert.Equal(t, 1, f.countAudit(t, "consumed"))
}

func TestInboundCreditConcurrentRedeliveryCreditsOnce(t *testing.T) {
	f := newFixture(t)
	owner := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)
	seedMapping(t, f, owner, "9900000005")
	p := newProcessor(t, f, MappingReusable)
	body, sig := creditBody(t, InboundCreditPayload{AccountNumber: "9900000005", Amount: "300", Reference: "rail-race"})

	const n = 10
	var wg sync.WaitGroup
	results := make([]*InboundCreditResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Process(context.Background(), body, sig)
		}(i)
	}
	wg.Wait()

	credited := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		switch results[i].Status {
		case InboundCredited:
			credited++
		default:
			assert.Equal(t, InboundDuplicate, results[i].Status)
		}
	}
	assert.Equal(t, 1, credited)
	assert.Equal(t, int64(30_000), dbtest.Balance(t, f.pool, owner.ID))
	assert.Equal(t, []string{"wallet.credit.received"}, f.publisher.types())
}

func TestInboundCreditReferenceHeldByTransferFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)
	sender := dbtest.SeedAccount(t, f.pool, "1000000002", 2, 50_000)
	m := seedMapping(t, f, owner, "9900000006")
	p := newProcessor(t, f, MappingOneShot)

	_, err := f.transfers.Transfer(ctx, TransferRequest{
		SenderAccountID:    sender.ID,
		DestinationAccount: owner.AccountNumber,
		Amount:             1_000,
		Reference:          "clash-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1_000), dbtest.Balance(t, f.pool, owner.ID))

	body, sig := creditBody(t, InboundCreditPayload{AccountNumber: "9900000006", Amount: "200", Reference: "clash-1"})
	for i := 0; i < 2; i++ {
		res, err := p.Process(ctx, body, sig)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.Equal(t, domain.CodeLedgerIntegrity, domain.CodeOf(err))
	}

	assert.Equal(t, int64(1_000), dbtest.Balance(t, f.pool, owner.ID))
	mappings, err := repository.NewRepository(f.pool).ListMappings(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, m.ID, mappings[0].ID)
	assert.Equal(t, domain.MappingStatusActive, mappings[0].Status)
}

func TestInboundCreditOneShotMappingDropsSecondDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)
	seedMapping(t, f, owner, "9900000002")
	p := newProcessor(t, f, MappingOneShot)

	body, sig := creditBody(t, InboundCreditPayload{AccountNumber: "9900000002", Amount: "100", Reference: "rail-a"})
	res, err := p.Process(ctx, body, sig)
	require.NoError(t, err)
	require.Equal(t, InboundCredited, res.Status)

	body, sig = creditBody(t, InboundCreditPayload{AccountNumber: "9900000002", Amount: "100", Reference: "rail-b"})
	res, err = p.Process(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, InboundDropped, res.Status)
	assert.Equal(t, int64(10_000), dbtest.Balance(t, f.pool, owner.ID))
}

func TestInboundCreditReusableMappingAcceptsRepeatDeposits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)
	seedMapping(t, f, owner, "9900000003")
	p := newProcessor(t, f, MappingReusable)

	for _, ref := range []string{"rail-1", "rail-2"} {
		body, sig := creditBody(t, InboundCreditPayload{AccountNumber: "9900000003", Amount: "250", Reference: ref})
		res, err := p.Process(ctx, body, sig)
		require.NoError(t, err)
		assert.Equal(t, InboundCredited, res.Status)
	}
	assert.Equal(t, int64(50_000), dbtest.Balance(t, f.pool, owner.ID))
}

func TestInboundCreditRejectsAndDrops(t *testing.T) {
	f := newFixture(t)
	owner := dbtest.SeedAccount(t, f.pool, "1000000001", 2, 0)
	seedMapping(t, f, owner, "9900000004")
	p := newProcessor(t, f, MappingOneShot)

	cases := []struct {
		name       string
		body       string
		sign       bool
		wantErr    error
		wantStatus string
	}{
		{name: "bad_signature", body: `{"accountNumber":"9900000004","amount":"10","reference":"x1"}`, wantErr: domain.ErrInvalidSignature},
		{name: "malformed", body: `{"accountNumber":`, sign: true, wantErr: domain.ErrValidation},
		{name: "zero_amount", body: `{"accountNumber":"9900000004","amount":"0","reference":"x2"}`, sign: true, wantErr: domain.ErrValidation},
		{name: "sub_kobo", body: `{"accountNumber":"9900000004","amount":"1.001","reference":"x3"}`, sign: true, wantErr: domain.ErrValidation},
		{name: "unknown_account", body: `{"accountNumber":"5555555555","amount":"10","reference":"x4"}`, sign: true, wantStatus: InboundDropped},
		{name: "initial_credit_request", body: `{"accountNumber":"9900000004","initialCreditRequest":true}`, sign: true, wantStatus: InboundAcknowledged},
		{name: "unknown_fields_ignored", body: `{"accountNumber":"9900000004","amount":10,"reference":"x5","channel":"NIP"}`, sign: true, wantStatus: InboundCredited},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			sig := "sha256=deadbeef"
			if tc.sign {
				sig = SignPayload(testHMACKey, []byte(tc.body))
			}
			res, err := p.Process(context.Background(), []byte(tc.body), sig)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, res.Status)
		})
	}
	assert.Equal(t, int64(1_000), dbtest.Balance(t, f.pool, owner.ID))
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"reference":"r"}`)
	p := &InboundCreditProcessor{hmacKey: []byte(testHMACKey)}
	assert.True(t, p.verifyHMAC(body, SignPayload(testHMACKey, body)))
	assert.False(t, p.verifyHMAC(body, SignPayload("other", body)))
	assert.False(t, p.verifyHMAC(body, ""))

	assert.False(t, (&InboundCreditProcessor{}).verifyHMAC(body, "sha256="))
	assert.True(t, (&InboundCreditProcessor{skipSig: true}).verifyHMAC(body, ""))
}

func TestParseMappingPolicy(t *testing.T) {
	got, err := ParseMappingPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MappingOneShot, got)

	got, err = ParseMappingPolicy("Reusable")
	require.NoError(t, err)
	assert.Equal(t, MappingReusable, got)

	_, err = ParseMappingPolicy("forever")
	require.Error(t, err)
}
