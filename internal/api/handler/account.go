package handler

import (
	"net/http"
	"strconv"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AccountHandler struct {
	svc      *service.AccountService
	accounts AccountReader
	limits   *service.LimitService
}

func NewAccountHandler(svc *service.AccountService, accounts AccountReader, limits *service.LimitService) *AccountHandler {
	return &AccountHandler{svc: svc, accounts: accounts, limits: limits}
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, _, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}

	snapshot, err := h.svc.GetBalance(r.Context(), account.ID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

func (h *AccountHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	account, _, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	txs, err := h.svc.GetStatement(r.Context(), account.ID, page, pageSize)
	if err != nil {
		zap.L().Error("get statement failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/statement-read-failed", "Failed to get statement")
		return
	}
	RespondJSON(w, http.StatusOK, txs)
}

// CreateAccount is admin-only: opening balances are money entering the system.
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         string `json:"user_id"`
		AccountName    string `json:"account_name"`
		Tier           int    `json:"tier"`
		OpeningBalance int64  `json:"opening_balance"`
	}
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), userID, req.AccountName, req.Tier, req.OpeningBalance)
	if err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	account, _, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}
	settings, err := h.svc.GetSettings(r.Context(), account.ID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	DailyLimitKobo             int64 `json:"daily_limit_kobo"`
	SingleTransactionLimitKobo int64 `json:"single_transaction_limit_kobo"`
	BlockInternational         bool  `json:"block_international"`
	BlockGambling              bool  `json:"block_gambling"`
	BlockEcommerce             bool  `json:"block_ecommerce"`
	EnableOnlinePayments       *bool `json:"enable_online_payments"`
	EnableContactless          *bool `json:"enable_contactless"`
	RequirePINAboveKobo        int64 `json:"require_pin_above_kobo"`
}

// UpdateSettings replaces the settings document. Omitted channel toggles stay enabled.
func (h *AccountHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	account, _, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}
	var req settingsRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	settings := models.DefaultPaymentSettings(account.ID)
	settings.DailyLimitKobo = req.DailyLimitKobo
	settings.SingleTransactionLimitKobo = req.SingleTransactionLimitKobo
	settings.BlockInternational = req.BlockInternational
	settings.BlockGambling = req.BlockGambling
	settings.BlockEcommerce = req.BlockEcommerce
	settings.RequirePINAboveKobo = req.RequirePINAboveKobo
	if req.EnableOnlinePayments != nil {
		settings.EnableOnlinePayments = *req.EnableOnlinePayments
	}
	if req.EnableContactless != nil {
		settings.EnableContactless = *req.EnableContactless
	}

	if err := h.svc.UpdateSettings(r.Context(), &settings); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, settings)
}

// SetPIN is owner-only; an admin cannot set a customer's PIN.
func (h *AccountHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	account, actorID, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}
	if account.UserID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if err := h.svc.SetPIN(r.Context(), account.ID, req.PIN); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckLimits evaluates a proposed debit without moving money.
func (h *AccountHandler) CheckLimits(w http.ResponseWriter, r *http.Request) {
	account, _, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}
	var req struct {
		Amount       int64  `json:"amount"`
		Counterparty string `json:"counterparty"`
		Description  string `json:"description"`
		Channel      string `json:"channel"`
	}
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	decision, err := h.limits.Check(r.Context(), service.DebitProposal{
		AccountID:    account.ID,
		Amount:       req.Amount,
		Counterparty: req.Counterparty,
		Description:  req.Description,
		Channel:      req.Channel,
	})
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, decision)
}

func (h *AccountHandler) ProvisionVirtualAccount(w http.ResponseWriter, r *http.Request) {
	account, _, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
			return
		}
	}

	mapping, err := h.svc.ProvisionVirtualAccount(r.Context(), account.ID, req.Amount)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, mapping)
}

func (h *AccountHandler) ListVirtualAccounts(w http.ResponseWriter, r *http.Request) {
	account, _, ok := authorizeAccount(w, r, h.accounts)
	if !ok {
		return
	}
	mappings, err := h.svc.ListVirtualAccounts(r.Context(), account.ID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, mappings)
}
