package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type TransferHandler struct {
	svc      *service.TransferOrchestrator
	accounts AccountReader
}

func NewTransferHandler(svc *service.TransferOrchestrator, accounts AccountReader) *TransferHandler {
	return &TransferHandler{svc: svc, accounts: accounts}
}

type transferRequest struct {
	SenderAccountID     string `json:"sender_account_id"`
	DestinationAccount  string `json:"destination_account"`
	DestinationBankCode string `json:"destination_bank_code"`
	DestinationName     string `json:"destination_name"`
	Amount              int64  `json:"amount"`
	Reference           string `json:"reference"`
	Narration           string `json:"narration"`
	Channel             string `json:"channel"`
	PIN                 string `json:"pin"`
}

// CreateTransfer moves money out of one of the caller's accounts. The client
// reference doubles as the idempotency key: it comes from the body or, when
// absent, from the Idempotency-Key header. A replay answers 200 with the
// original outcome; a refunded transfer answers 502 on every call.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	reference := strings.TrimSpace(req.Reference)
	if header := strings.TrimSpace(r.Header.Get("Idempotency-Key")); header != "" {
		if reference != "" && reference != header {
			RespondError(w, r, http.StatusBadRequest, string(domain.CodeValidation), "reference and Idempotency-Key disagree")
			return
		}
		reference = header
	}

	senderID, err := uuid.Parse(req.SenderAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid sender_account_id")
		return
	}
	sender, err := h.accounts.GetAccount(r.Context(), senderID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if sender.UserID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	result, err := h.svc.Transfer(r.Context(), service.TransferRequest{
		SenderAccountID:     senderID,
		DestinationAccount:  req.DestinationAccount,
		DestinationBankCode: req.DestinationBankCode,
		DestinationName:     req.DestinationName,
		Amount:              req.Amount,
		Reference:           reference,
		Narration:           req.Narration,
		Channel:             req.Channel,
		PIN:                 req.PIN,
	})
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	respondTransfer(w, r, result)
}

func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	result, err := h.svc.GetTransfer(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if !isAdmin {
		account, err := h.accounts.GetAccount(r.Context(), result.Transaction.AccountID)
		if err != nil {
			RespondDomainError(w, r, err)
			return
		}
		// Not-found rather than forbidden so references cannot be probed.
		if account.UserID != actorID {
			RespondDomainError(w, r, domain.ErrTransferNotFound)
			return
		}
	}
	RespondJSON(w, http.StatusOK, result)
}

func respondTransfer(w http.ResponseWriter, r *http.Request, result *service.TransferResult) {
	if result.State == domain.TransferRefunded {
		reason := result.FailureReason
		if reason == "" {
			reason = "transfer failed and was refunded"
		}
		RespondError(w, r, http.StatusBadGateway, "transfer_failed", reason)
		return
	}
	status := http.StatusCreated
	if result.State == domain.TransferRailSubmitted {
		status = http.StatusAccepted
	} else if result.Replayed {
		status = http.StatusOK
	}
	RespondJSON(w, status, result)
}
