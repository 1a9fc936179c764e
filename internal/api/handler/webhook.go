package handler

import (
	"io"
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives inbound credit notifications from the banking rail.
type WebhookHandler struct {
	processor *service.InboundCreditProcessor
}

func NewWebhookHandler(processor *service.InboundCreditProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// InboundCredit handles POST /v1/webhooks/inbound-credit. The raw body is
// passed through untouched because the signature covers the exact bytes.
// Duplicates and unmatched deposits still answer 200 so the rail stops
// redelivering.
func (h *WebhookHandler) InboundCredit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	result, err := h.processor.Process(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
