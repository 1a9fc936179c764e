package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ReconcileHandler exposes operator-triggered reconciliation and the ledger integrity check.
type ReconcileHandler struct {
	reconciler *service.BalanceReconciler
	integrity  *service.IntegrityService
}

func NewReconcileHandler(reconciler *service.BalanceReconciler, integrity *service.IntegrityService) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, integrity: integrity}
}

func (h *ReconcileHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}
	result, err := h.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

func (h *ReconcileHandler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reconciler.ReconcileAll(r.Context())
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}

func (h *ReconcileHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.integrity.Run(r.Context())
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"balanced": len(drifts) == 0,
		"drift":    drifts,
	})
}
