package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/api"
	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/api/problem"
	"github.com/ayo6706/wallet-ledger/internal/cache"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/policy"
	"github.com/ayo6706/wallet-ledger/internal/rail"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/ayo6706/wallet-ledger/internal/testutil/dblock"
	"github.com/ayo6706/wallet-ledger/internal/testutil/dbtest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "wallet-ledger-test"
	testJWTAudience = "wallet-api-test"
	testHMACKey     = "test-hmac-key"
	testBankCode    = "999001"
)

func TestMain(m *testing.M) {
	release := dblock.Acquire()
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	code := m.Run()
	release()
	os.Exit(code)
}

type testAPI struct {
	pool    *pgxpool.Pool
	sandbox *rail.Sandbox
	handler http.Handler
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	pool := dbtest.Setup(t)

	c := cache.NewMemory()
	store := repository.NewStore(pool)
	repo := repository.NewRepository(pool)
	ledger := repository.NewLedger(store, c, time.Minute)
	guard := idempotency.NewGuard(store.Queries(), c, time.Hour, 2*time.Second)
	sandbox := rail.NewSandbox()
	publisher := &notify.EventProducerFallback{}
	audit := service.NewAuditService()
	limits := service.NewLimitService(store, policy.NewEvaluator(policy.DefaultRules()), time.UTC)

	svc := api.Services{
		Accounts: service.NewAccountService(repo, ledger, sandbox),
		Limits:   limits,
		Transfers: service.NewTransferOrchestrator(ledger, guard, limits, sandbox, publisher, audit, service.TransferConfig{
			LocalBankCode: testBankCode,
			StatusRetries: 0,
			StatusBackoff: time.Millisecond,
		}),
		Inbound:    service.NewInboundCreditProcessor(ledger, guard, publisher, audit, service.MappingOneShot, testHMACKey, false),
		Reconciler: service.NewBalanceReconciler(ledger, repo, sandbox, audit, service.ReconcileConfig{}),
		Integrity:  service.NewIntegrityService(store),
	}
	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		WebhookHMACKey:     testHMACKey,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
	}
	router := api.NewRouter(cfg, zap.NewNop(), pool, repo, ledger, nil, svc)
	return &testAPI{pool: pool, sandbox: sandbox, handler: router.Routes()}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func generateTestToken(userID uuid.UUID) string {
	return generateTokenWithRole(userID, domain.RoleUser)
}

func generateTokenWithRole(userID uuid.UUID, role string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID.String(),
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString(middleware.JWTSecret())
	return tokenString
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) problem.Details {
	t.Helper()
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p problem.Details
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)

	rr := a.do(t, http.MethodGet, "/v1/accounts/"+uuid.NewString(), "", nil, "X-Trace-ID", "trace-123")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	p := decodeProblem(t, rr)
	assert.Equal(t, problem.Type("auth/authorization-header-required"), p.Type)
	assert.Equal(t, "auth/authorization-header-required", p.Code)
	assert.Equal(t, http.StatusUnauthorized, p.Status)
	assert.Equal(t, "trace-123", p.RequestID)
	assert.Equal(t, "trace-123", rr.Header().Get("X-Trace-ID"))
}

func TestCreateUserAndLogin(t *testing.T) {
	a := setupAPI(t)

	rr := a.do(t, http.MethodPost, "/v1/users", "", map[string]string{"username": "ada", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var user models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, domain.RoleUser, user.Role)

	rr = a.do(t, http.MethodPost, "/v1/users", "", map[string]string{"username": "ada", "email": "ada@example.com"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/users", "", map[string]any{"username": "eve", "email": "eve@example.com", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown fields such as role are refused")

	rr = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"user_id": user.ID.String()})
	require.Equal(t, http.StatusOK, rr.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	// The issued token carries issuer and audience and is accepted by the auth middleware.
	rr = a.do(t, http.MethodGet, "/v1/accounts/"+uuid.NewString(), login.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"user_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateAccountRequiresAdmin(t *testing.T) {
	a := setupAPI(t)
	owner := dbtest.SeedAccount(t, a.pool, "1000000001", 1, 0)

	body := map[string]any{"user_id": owner.UserID.String(), "account_name": "Ada Obi", "tier": 2, "opening_balance": 500_000}

	rr := a.do(t, http.MethodPost, "/v1/accounts", generateTestToken(owner.UserID), body)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/accounts", generateTokenWithRole(uuid.New(), domain.RoleAdmin), body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var acc models.Account
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &acc))
	assert.Equal(t, 2, acc.Tier)
	assert.Equal(t, int64(500_000), dbtest.Balance(t, a.pool, acc.ID))

	body["tier"] = 7
	rr = a.do(t, http.MethodPost, "/v1/accounts", generateTokenWithRole(uuid.New(), domain.RoleAdmin), body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(domain.CodeValidation), decodeProblem(t, rr).Code)
}

func TestGetAccountOwnerAdminAndForbidden(t *testing.T) {
	a := setupAPI(t)
	acc := dbtest.SeedAccount(t, a.pool, "1000000001", 1, 12_345)
	other := dbtest.SeedAccount(t, a.pool, "1000000002", 1, 0)

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "owner", token: generateTestToken(acc.UserID), status: http.StatusOK},
		{name: "admin", token: generateTokenWithRole(uuid.New(), domain.RoleAdmin), status: http.StatusOK},
		{name: "other_user", token: generateTestToken(other.UserID), status: http.StatusForbidden},
		{name: "garbage_token", token: "not-a-jwt", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rr := a.do(t, http.MethodGet, "/v1/accounts/"+acc.ID.String(), tc.token, nil)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			if tc.status == http.StatusOK {
				var got models.Account
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
				assert.Equal(t, int64(12_345), got.Balance)
				assert.NotContains(t, rr.Body.String(), "pin")
			}
		})
	}

	rr := a.do(t, http.MethodGet, "/v1/accounts/not-a-uuid", generateTestToken(acc.UserID), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetStatementPagination(t *testing.T) {
	a := setupAPI(t)
	sender := dbtest.SeedAccount(t, a.pool, "1000000001", 2, 1_000_000)
	dbtest.SeedAccount(t, a.pool, "1000000002", 2, 0)
	token := generateTestToken(sender.UserID)

	for i := 0; i < 3; i++ {
		rr := a.do(t, http.MethodPost, "/v1/transfers", token, map[string]any{
			"sender_account_id":   sender.ID.String(),
			"destination_account": "1000000002",
			"amount":              1_000,
			"reference":           fmt.Sprintf("stmt-%d", i),
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := a.do(t, http.MethodGet, "/v1/accounts/"+sender.ID.String()+"/transactions?page=1&page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page1 []models.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page1))
	require.Len(t, page1, 2)
	assert.Equal(t, "stmt-2", page1[0].Reference)

	rr = a.do(t, http.MethodGet, "/v1/accounts/"+sender.ID.String()+"/transactions?page=2&page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page2 []models.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page2))
	// stmt-0 and the opening balance credit.
	require.Len(t, page2, 2)
}

func TestTransferInternalCreatedThenReplayed(t *testing.T) {
	a := setupAPI(t)
	sender := dbtest.SeedAccount(t, a.pool, "1000000001", 2, 100_000)
	recipient := dbtest.SeedAccount(t, a.pool, "1000000002", 2, 0)
	token := generateTestToken(sender.UserID)

	body := map[string]any{
		"sender_account_id":   sender.ID.String(),
		"destination_account": "1000000002",
		"amount":              40_000,
		"narration":           "rent",
	}

	rr := a.do(t, http.MethodPost, "/v1/transfers", token, body, "Idempotency-Key", "rent-oct")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var first service.TransferResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	assert.Equal(t, "rent-oct", first.Reference)
	assert.Equal(t, domain.TransferCompleted, first.State)
	assert.Equal(t, service.KindInternal, first.Kind)
	assert.False(t, first.Replayed)

	rr = a.do(t, http.MethodPost, "/v1/transfers", token, body, "Idempotency-Key", "rent-oct")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var second service.TransferResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	assert.Equal(t, int64(60_000), dbtest.Balance(t, a.pool, sender.ID))
	assert.Equal(t, int64(40_000), dbtest.Balance(t, a.pool, recipient.ID))

	body["reference"] = "something-else"
	rr = a.do(t, http.MethodPost, "/v1/transfers", token, body, "Idempotency-Key", "rent-oct")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, http.MethodGet, "/v1/transfers/rent-oct", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = a.do(t, http.MethodGet, "/v1/transfers/rent-oct", generateTestToken(recipient.UserID), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "other users cannot probe references")
	rr = a.do(t, http.MethodGet, "/v1/transfers/rent-oct", generateTokenWithRole(uuid.New(), domain.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTransferRejections(t *testing.T) {
	a := setupAPI(t)
	sender := dbtest.SeedAccount(t, a.pool, "1000000001", 1, 10_000)
	other := dbtest.SeedAccount(t, a.pool, "1000000002", 1, 0)

	cases := []struct {
		name   string
		token  string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "insufficient_funds",
			token:  generateTestToken(sender.UserID),
			body:   map[string]any{"sender_account_id": sender.ID.String(), "destination_account": "1000000002", "amount": 20_000, "reference": "r-1"},
			status: http.StatusUnprocessableEntity,
			code:   string(domain.CodeInsufficientFunds),
		},
		{
			name:   "not_owner",
			token:  generateTestToken(other.UserID),
			body:   map[string]any{"sender_account_id": sender.ID.String(), "destination_account": "1000000002", "amount": 1_000, "reference": "r-2"},
			status: http.StatusForbidden,
			code:   "auth/insufficient-permissions",
		},
		{
			name:   "missing_reference",
			token:  generateTestToken(sender.UserID),
			body:   map[string]any{"sender_account_id": sender.ID.String(), "destination_account": "1000000002", "amount": 1_000},
			status: http.StatusBadRequest,
			code:   string(domain.CodeValidation),
		},
		{
			name:   "over_tier_single_limit",
			token:  generateTestToken(sender.UserID),
			body:   map[string]any{"sender_account_id": sender.ID.String(), "destination_account": "1000000002", "amount": 6_000_000, "reference": "r-3"},
			status: http.StatusUnprocessableEntity,
			code:   string(domain.CodePolicyRejected),
		},
		{
			name:   "unknown_local_recipient",
			token:  generateTestToken(sender.UserID),
			body:   map[string]any{"sender_account_id": sender.ID.String(), "destination_account": "1999999999", "amount": 1_000, "reference": "r-4"},
			status: http.StatusNotFound,
			code:   string(domain.CodeAccountNotFound),
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rr := a.do(t, http.MethodPost, "/v1/transfers", tc.token, tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, decodeProblem(t, rr).Code)
		})
	}
	assert.Equal(t, int64(10_000), dbtest.Balance(t, a.pool, sender.ID))
}

func TestTransferRefundedAnswersBadGateway(t *testing.T) {
	a := setupAPI(t)
	a.sandbox.FailureRate = 1
	sender := dbtest.SeedAccount(t, a.pool, "1000000001", 2, 50_000)
	token := generateTestToken(sender.UserID)

	body := map[string]any{
		"sender_account_id":     sender.ID.String(),
		"destination_account":   "0123456789",
		"destination_bank_code": "058",
		"destination_name":      "Chidi Okeke",
		"amount":                20_000,
		"reference":             "ext-1",
	}
	for i := 0; i < 2; i++ {
		rr := a.do(t, http.MethodPost, "/v1/transfers", token, body)
		require.Equal(t, http.StatusBadGateway, rr.Code, rr.Body.String())
		p := decodeProblem(t, rr)
		assert.Equal(t, "transfer_failed", p.Code)
		assert.NotEmpty(t, p.Detail)
	}
	assert.Equal(t, int64(50_000), dbtest.Balance(t, a.pool, sender.ID))

	rr := a.do(t, http.MethodGet, "/v1/transfers/ext-1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res service.TransferResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, domain.TransferRefunded, res.State)
}

func TestSettingsPINAndLimitCheck(t *testing.T) {
	a := setupAPI(t)
	acc := dbtest.SeedAccount(t, a.pool, "1000000001", 2, 1_000_000)
	token := generateTestToken(acc.UserID)
	base := "/v1/accounts/" + acc.ID.String()

	rr := a.do(t, http.MethodGet, base+"/settings", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, http.MethodPut, base+"/settings", token, map[string]any{"single_transaction_limit_kobo": 10_000, "block_gambling": true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPost, base+"/limits/check", token, map[string]any{"amount": 20_000})
	require.Equal(t, http.StatusOK, rr.Code)
	var decision policy.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Rule)

	rr = a.do(t, http.MethodPost, base+"/limits/check", token, map[string]any{"amount": 5_000, "description": "BET9JA top up"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)

	rr = a.do(t, http.MethodPost, base+"/limits/check", token, map[string]any{"amount": 5_000})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(1_000_000), dbtest.Balance(t, a.pool, acc.ID), "a limit check never moves money")

	rr = a.do(t, http.MethodPut, base+"/pin", generateTokenWithRole(uuid.New(), domain.RoleAdmin), map[string]string{"pin": "1234"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = a.do(t, http.MethodPut, base+"/pin", token, map[string]string{"pin": "12a4"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = a.do(t, http.MethodPut, base+"/pin", token, map[string]string{"pin": "1234"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestWebhookSignatureAndCredit(t *testing.T) {
	a := setupAPI(t)
	acc := dbtest.SeedAccount(t, a.pool, "1000000001", 2, 0)
	token := generateTestToken(acc.UserID)

	rr := a.do(t, http.MethodPost, "/v1/accounts/"+acc.ID.String()+"/virtual-accounts", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var mapping models.VirtualAccountMapping
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mapping))
	require.NotEmpty(t, mapping.ExternalAccountNumber)

	payload := []byte(fmt.Sprintf(`{"accountNumber":%q,"amount":"1500.00","senderName":"Bola","reference":"dep-1","sessionId":"S1"}`, mapping.ExternalAccountNumber))

	rr = a.do(t, http.MethodPost, "/v1/webhooks/inbound-credit", "", payload, "X-Webhook-Signature", "sha256=deadbeef")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(domain.CodeInvalidSignature), decodeProblem(t, rr).Code)

	signature := service.SignPayload(testHMACKey, payload)
	rr = a.do(t, http.MethodPost, "/v1/webhooks/inbound-credit", "", payload, "X-Webhook-Signature", signature)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res service.InboundCreditResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, service.InboundCredited, res.Status)
	assert.Equal(t, int64(150_000), dbtest.Balance(t, a.pool, acc.ID))

	rr = a.do(t, http.MethodPost, "/v1/webhooks/inbound-credit", "", payload, "X-Webhook-Signature", signature)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, service.InboundDuplicate, res.Status)
	assert.Equal(t, int64(150_000), dbtest.Balance(t, a.pool, acc.ID))

	rr = a.do(t, http.MethodGet, "/v1/accounts/"+acc.ID.String()+"/virtual-accounts", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var mappings []models.VirtualAccountMapping
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mappings))
	require.Len(t, mappings, 1)
	assert.Equal(t, domain.MappingStatusUsed, mappings[0].Status)
}

func TestAdminReconcileAndIntegrity(t *testing.T) {
	a := setupAPI(t)
	acc := dbtest.SeedAccount(t, a.pool, "1000000001", 2, 100_000)
	admin := generateTokenWithRole(uuid.New(), domain.RoleAdmin)

	rr := a.do(t, http.MethodPost, "/v1/accounts/"+acc.ID.String()+"/reconcile", generateTestToken(acc.UserID), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	a.sandbox.SetBalance("1000000001", 90_000)
	rr = a.do(t, http.MethodPost, "/v1/accounts/"+acc.ID.String()+"/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res service.ReconcileResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, service.ReconcileOverwritten, res.Result)
	assert.Equal(t, int64(90_000), dbtest.Balance(t, a.pool, acc.ID))

	rr = a.do(t, http.MethodGet, "/v1/admin/integrity", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var report struct {
		Balanced bool `json:"balanced"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.True(t, report.Balanced, "reconciliation adjustments keep history consistent")
}

func TestHealthMetricsAndDocs(t *testing.T) {
	a := setupAPI(t)

	rr := a.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, http.MethodGet, "/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/v1/webhooks/inbound-credit")

	rr = a.do(t, http.MethodGet, "/docs/index.html", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReadyReportsDatabaseOutage(t *testing.T) {
	a := setupAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
