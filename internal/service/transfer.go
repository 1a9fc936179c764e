package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/rail"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	KindInternal = "internal"
	KindExternal = "external"

	maxNarrationLength = 140
)

// TransferConfig tunes the orchestrator.
type TransferConfig struct {
	// LocalBankCode identifies this wallet; transfers to it (or with no bank
	// code) stay on the local ledger when the account exists here.
	LocalBankCode string
	// PoolAccount is the rail-side source account; empty uses the sender's number.
	PoolAccount   string
	StatusRetries int
	StatusBackoff time.Duration
}

type TransferRequest struct {
	SenderAccountID     uuid.UUID
	DestinationAccount  string
	DestinationBankCode string
	DestinationName     string
	Amount              int64
	Reference           string
	Narration           string
	Channel             string
	PIN                 string
}

// TransferResult is what a caller sees, identically on first call and on replay.
type TransferResult struct {
	Reference         string               `json:"reference"`
	Kind              string               `json:"kind"`
	State             domain.TransferState `json:"state"`
	Amount            int64                `json:"amount"`
	RailTransactionID string               `json:"rail_transaction_id,omitempty"`
	FailureReason     string               `json:"failure_reason,omitempty"`
	Replayed          bool                 `json:"replayed"`
	Transaction       *models.Transaction  `json:"transaction"`
}

// TransferOrchestrator drives a transfer from validation to a final state.
// Once the debit is committed the transfer runs to completion or refund,
// independent of the caller's context. The one exception is a transfer the
// rail still reports as processing, which stays pending for RecoveryWorker.
type TransferOrchestrator struct {
	ledger    *repository.Ledger
	guard     *idempotency.Guard
	limits    *LimitService
	rail      rail.Rail
	publisher notify.Publisher
	audit     *AuditService
	cfg       TransferConfig
	sleep     func(context.Context, time.Duration) error
}

func NewTransferOrchestrator(ledger *repository.Ledger, guard *idempotency.Guard, limits *LimitService, r rail.Rail, publisher notify.Publisher, audit *AuditService, cfg TransferConfig) *TransferOrchestrator {
	if cfg.StatusBackoff <= 0 {
		cfg.StatusBackoff = time.Second
	}
	if cfg.StatusRetries < 0 {
		cfg.StatusRetries = 0
	}
	return &TransferOrchestrator{
		ledger:    ledger,
		guard:     guard,
		limits:    limits,
		rail:      r,
		publisher: publisher,
		audit:     audit,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

func (o *TransferOrchestrator) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := validateTransfer(&req); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("reference", req.Reference), zap.String("sender", req.SenderAccountID.String()))

	// A settled prior outcome is returned before any other check.
	if prior, err := o.guard.Lookup(ctx, req.Reference); err == nil {
		return o.replay(ctx, req, prior)
	} else if !errors.Is(err, idempotency.ErrNotFound) {
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "idempotency lookup failed", err)
	}

	sender, err := o.ledger.GetAccount(ctx, req.SenderAccountID)
	if err != nil {
		return nil, err
	}
	recipient, err := o.resolveRecipient(ctx, req)
	if err != nil {
		return nil, err
	}
	if recipient != nil && recipient.ID == sender.ID {
		return nil, domain.Validationf("cannot transfer to the same account")
	}
	kind := KindExternal
	if recipient != nil {
		kind = KindInternal
	}

	if err := o.checkPIN(ctx, sender, req); err != nil {
		return nil, err
	}

	debit := o.debitLeg(sender, recipient, req)
	var credit *models.Transaction
	res, err := o.guard.Reserve(ctx, req.Reference, func(ctx context.Context) error {
		var err error
		credit, err = o.reserve(ctx, sender, recipient, debit, req)
		return err
	})
	if err != nil {
		if domain.CodeOf(err) == domain.CodePolicyRejected || errors.Is(err, domain.ErrInsufficientFunds) {
			observability.IncrementTransfer(kind, "rejected")
		}
		return nil, err
	}
	if !res.IsNew {
		return o.replay(ctx, req, res.Existing)
	}

	if kind == KindInternal {
		o.ledger.Invalidate(ctx, sender.ID, recipient.ID)
		o.guard.Remember(ctx, debit)
		observability.IncrementTransfer(kind, "completed")
		log.Info("internal transfer completed", zap.Int64("amount", debit.Amount))
		notify.Send(ctx, o.publisher, notify.FromTransaction(notify.EventDebitCompleted, debit))
		notify.Send(ctx, o.publisher, notify.FromTransaction(notify.EventCreditReceived, credit))
		return resultFrom(debit, false), nil
	}

	o.ledger.Invalidate(ctx, sender.ID)
	// The debit is committed: no caller cancellation from here on.
	settled, err := o.submitExternal(context.WithoutCancel(ctx), sender, debit, req)
	if err != nil {
		return nil, err
	}
	return resultFrom(settled, false), nil
}

// GetTransfer returns the recorded outcome of reference.
func (o *TransferOrchestrator) GetTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	tx, err := o.guard.Lookup(ctx, reference)
	if err != nil {
		if errors.Is(err, idempotency.ErrNotFound) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "transfer lookup failed", err)
	}
	if tx.Direction != domain.DirectionDebit || !isTransferCategory(tx.Category) {
		return nil, domain.ErrTransferNotFound
	}
	return resultFrom(tx, false), nil
}

func (o *TransferOrchestrator) replay(ctx context.Context, req TransferRequest, prior *models.Transaction) (*TransferResult, error) {
	if prior.AccountID != req.SenderAccountID || prior.Direction != domain.DirectionDebit || !isTransferCategory(prior.Category) {
		return nil, domain.ErrDuplicateReference
	}
	if prior.Status == domain.TxStatusPending {
		settled, err := o.guard.Await(ctx, req.Reference)
		if err != nil {
			return nil, err
		}
		prior = settled
	}
	if prior.Amount != req.Amount {
		zap.L().Warn("transfer replay with different amount",
			zap.String("reference", req.Reference),
			zap.Int64("original", prior.Amount),
			zap.Int64("requested", req.Amount),
		)
	}
	observability.IncrementTransfer(kindOf(prior), "replayed")
	return resultFrom(prior, true), nil
}

func (o *TransferOrchestrator) resolveRecipient(ctx context.Context, req TransferRequest) (*models.Account, error) {
	local := req.DestinationBankCode == "" || req.DestinationBankCode == o.cfg.LocalBankCode
	if !local {
		return nil, nil
	}
	acc, err := o.ledger.GetAccountByNumber(ctx, req.DestinationAccount)
	if err == nil {
		return acc, nil
	}
	if errors.Is(err, domain.ErrAccountNotFound) {
		if req.DestinationBankCode == "" {
			return nil, domain.NewError(domain.CodeAccountNotFound, "recipient account not found", nil)
		}
		// Same bank code but not a wallet account: the rail delivers it.
		return nil, nil
	}
	return nil, err
}

func (o *TransferOrchestrator) checkPIN(ctx context.Context, sender *models.Account, req TransferRequest) error {
	settings, err := loadSettings(ctx, o.ledger.Store().Queries(), sender.ID)
	if err != nil {
		return domain.NewError(domain.CodeLedgerIntegrity, "read payment settings failed", err)
	}
	threshold := settings.RequirePINAboveKobo
	if threshold <= 0 || req.Amount <= threshold {
		return nil
	}
	if req.PIN == "" || sender.PINHash == "" {
		observability.IncrementPolicyRejection("pin_required")
		return domain.Rejected(fmt.Sprintf("Transaction PIN required for amounts above %s.", domain.FormatNaira(threshold)))
	}
	if bcrypt.CompareHashAndPassword([]byte(sender.PINHash), []byte(req.PIN)) != nil {
		observability.IncrementPolicyRejection("pin_invalid")
		return domain.Rejected("Invalid transaction PIN.")
	}
	return nil
}

func (o *TransferOrchestrator) debitLeg(sender, recipient *models.Account, req TransferRequest) *models.Transaction {
	tx := &models.Transaction{
		AccountID:           sender.ID,
		Reference:           req.Reference,
		ClientReference:     req.Reference,
		Direction:           domain.DirectionDebit,
		Amount:              req.Amount,
		Category:            domain.CategoryExternalOut,
		Channel:             req.Channel,
		CounterpartyName:    req.DestinationName,
		CounterpartyAccount: req.DestinationAccount,
		CounterpartyBank:    req.DestinationBankCode,
		Narration:           req.Narration,
		Status:              domain.TxStatusPending,
	}
	if recipient != nil {
		tx.Category = domain.CategoryTransferOut
		tx.CounterpartyName = recipient.AccountName
		tx.CounterpartyBank = o.cfg.LocalBankCode
		tx.Status = domain.TxStatusCompleted
	}
	return tx
}

// reserve commits the local side of the transfer: policy checks and every
// ledger leg in one database transaction, with the involved account rows
// locked so concurrent transfers see each other's totals.
func (o *TransferOrchestrator) reserve(ctx context.Context, sender, recipient *models.Account, debit *models.Transaction, req TransferRequest) (*models.Transaction, error) {
	var credit *models.Transaction
	err := o.ledger.Store().RunInTx(ctx, func(q *repository.Queries) error {
		ids := []uuid.UUID{sender.ID}
		if recipient != nil {
			ids = append(ids, recipient.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		locked := make(map[uuid.UUID]*models.Account, len(ids))
		for _, id := range ids {
			acc, err := q.GetAccountForUpdate(ctx, id)
			if err != nil {
				if repository.IsNoRows(err) {
					return domain.ErrAccountNotFound
				}
				return fmt.Errorf("lock account: %w", err)
			}
			locked[id] = acc
		}

		// A concurrent call with this reference may have committed while we waited for the lock.
		if _, err := q.GetTransactionByReference(ctx, req.Reference); err == nil {
			return domain.ErrDuplicateReference
		} else if !repository.IsNoRows(err) {
			return fmt.Errorf("check reference: %w", err)
		}

		d, err := o.limits.evaluateDebit(ctx, q, locked[sender.ID], DebitProposal{
			AccountID:    sender.ID,
			Amount:       req.Amount,
			Counterparty: debit.CounterpartyName + " " + req.DestinationAccount,
			Description:  req.Narration,
			Channel:      req.Channel,
		})
		if err != nil {
			return err
		}
		if !d.Allowed {
			return rejectionError(d)
		}

		if recipient != nil {
			d, err := o.limits.evaluateReceive(ctx, q, locked[recipient.ID], req.Amount)
			if err != nil {
				return err
			}
			if !d.Allowed {
				return rejectionError(d)
			}
		}

		if err := o.ledger.Apply(ctx, q, debit); err != nil {
			return err
		}
		if recipient == nil {
			return nil
		}

		credit = &models.Transaction{
			AccountID:           recipient.ID,
			Reference:           domain.CreditLegReference(req.Reference),
			ClientReference:     req.Reference,
			Direction:           domain.DirectionCredit,
			Amount:              req.Amount,
			Category:            domain.CategoryTransferIn,
			Channel:             req.Channel,
			CounterpartyName:    sender.AccountName,
			CounterpartyAccount: sender.AccountNumber,
			CounterpartyBank:    o.cfg.LocalBankCode,
			Narration:           req.Narration,
			Status:              domain.TxStatusCompleted,
		}
		return o.ledger.Apply(ctx, q, credit)
	})
	if err != nil {
		if domain.CodeOf(err) != "" {
			return nil, err
		}
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "transfer could not be recorded", err)
	}
	return credit, nil
}

// submitExternal calls the rail for a pending debit and settles it.
func (o *TransferOrchestrator) submitExternal(ctx context.Context, sender *models.Account, debit *models.Transaction, req TransferRequest) (*models.Transaction, error) {
	source := o.cfg.PoolAccount
	if source == "" {
		source = sender.AccountNumber
	}
	resp, err := o.rail.Transfer(ctx, rail.TransferRequest{
		SourceAccount:       source,
		DestinationAccount:  req.DestinationAccount,
		DestinationBankCode: req.DestinationBankCode,
		AmountMinorUnits:    req.Amount,
		Reference:           req.Reference,
		Narration:           req.Narration,
	})

	var out outcome
	switch {
	case err == nil:
		out = outcome{succeeded: true, railTransactionID: resp.TransactionID}
	case errors.Is(err, domain.ErrRailRejected):
		out = outcome{reason: domain.MessageOf(err)}
	default:
		out = o.queryUntilResolved(ctx, req.Reference, err)
	}
	return o.settle(ctx, debit, out)
}

type outcome struct {
	succeeded         bool
	railTransactionID string
	reason            string
	unresolved        bool
	// inFlight means the rail answered and still reports the transfer as
	// processing. The debit stays pending for the recovery worker.
	inFlight bool
}

// queryUntilResolved asks the rail what happened after an ambiguous failure.
// A confirmed success completes the transfer and a transfer the rail last
// reported as in flight is left pending. Everything else refunds.
func (o *TransferOrchestrator) queryUntilResolved(ctx context.Context, reference string, cause error) outcome {
	log := zap.L().With(zap.String("reference", reference))
	inFlight := false
	for attempt := 1; attempt <= o.cfg.StatusRetries; attempt++ {
		if err := o.sleep(ctx, o.cfg.StatusBackoff*time.Duration(attempt)); err != nil {
			break
		}
		res, err := o.rail.TransactionStatus(ctx, reference)
		if err != nil {
			inFlight = false
			log.Warn("rail status query failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		switch res.State {
		case rail.TxSucceeded:
			return outcome{succeeded: true, railTransactionID: res.TransactionID}
		case rail.TxFailed:
			return outcome{reason: nonEmpty(res.Message, domain.ErrRailRejected.Message)}
		case rail.TxNotFound:
			return outcome{reason: domain.MessageOf(cause)}
		case rail.TxPending:
			inFlight = true
		}
	}
	if inFlight {
		return outcome{inFlight: true}
	}
	return outcome{reason: domain.MessageOf(cause), unresolved: true}
}

func (o *TransferOrchestrator) settle(ctx context.Context, debit *models.Transaction, out outcome) (*models.Transaction, error) {
	if out.succeeded {
		return o.complete(ctx, debit, out.railTransactionID)
	}
	if out.inFlight {
		zap.L().Warn("rail reports transfer in flight; left pending for recovery",
			zap.String("reference", debit.Reference),
			zap.Int64("amount", debit.Amount),
		)
		observability.IncrementTransfer(KindExternal, "in_flight")
		return o.reload(ctx, debit.Reference)
	}
	if out.unresolved {
		zap.L().Warn("rail outcome unresolved; refunding",
			zap.String("reference", debit.Reference),
			zap.Int64("amount", debit.Amount),
		)
	}
	return o.refund(ctx, debit, out.reason)
}

func (o *TransferOrchestrator) complete(ctx context.Context, debit *models.Transaction, railTransactionID string) (*models.Transaction, error) {
	var applied bool
	err := o.ledger.Store().RunInTx(ctx, func(q *repository.Queries) error {
		var err error
		applied, err = transitionTransactionState(ctx, q, o.audit, debit.ID, transition{
			next:              domain.TxStatusCompleted,
			railTransactionID: railTransactionID,
			action:            "rail_confirmed",
			metadata:          map[string]string{"rail_transaction_id": railTransactionID},
		})
		return err
	})
	if err != nil {
		zap.L().Error("failed to record rail success; left pending for recovery",
			zap.String("reference", debit.Reference), zap.Error(err))
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "transfer outcome could not be recorded", err)
	}

	final, err := o.reload(ctx, debit.Reference)
	if err != nil {
		return nil, err
	}
	if !applied {
		if final.Status != domain.TxStatusCompleted {
			zap.L().Error("rail confirmed a transfer that was already refunded",
				zap.String("reference", debit.Reference), zap.String("status", final.Status))
		}
		return final, nil
	}

	o.guard.Remember(ctx, final)
	observability.IncrementTransfer(KindExternal, "completed")
	zap.L().Info("external transfer completed", zap.String("reference", debit.Reference), zap.Int64("amount", debit.Amount))
	notify.Send(ctx, o.publisher, notify.FromTransaction(notify.EventDebitCompleted, final))
	return final, nil
}

// refund fails the pending debit and credits the amount back in one
// transaction. The refund row's unique reference and the pending check under
// the row lock make a repeated refund a no-op.
func (o *TransferOrchestrator) refund(ctx context.Context, debit *models.Transaction, reason string) (*models.Transaction, error) {
	reason = truncate(nonEmpty(reason, domain.ErrRailUnavailable.Message), 200)
	var refundTx *models.Transaction
	err := o.ledger.Store().RunInTx(ctx, func(q *repository.Queries) error {
		refundTx = nil
		applied, err := transitionTransactionState(ctx, q, o.audit, debit.ID, transition{
			next:          domain.TxStatusFailed,
			failureReason: reason,
			action:        "refunded",
			metadata:      map[string]any{"amount": debit.Amount, "reason": reason},
		})
		if err != nil || !applied {
			return err
		}
		refundTx = &models.Transaction{
			AccountID:           debit.AccountID,
			Reference:           domain.RefundReference(debit.Reference),
			ClientReference:     debit.ClientReference,
			Direction:           domain.DirectionCredit,
			Amount:              debit.Amount,
			Category:            domain.CategoryRefund,
			Channel:             debit.Channel,
			CounterpartyName:    debit.CounterpartyName,
			CounterpartyAccount: debit.CounterpartyAccount,
			CounterpartyBank:    debit.CounterpartyBank,
			Narration:           "Reversal: " + reason,
			Status:              domain.TxStatusCompleted,
		}
		return o.ledger.Apply(ctx, q, refundTx)
	})
	if err != nil {
		zap.L().Error("refund failed; left pending for recovery",
			zap.String("reference", debit.Reference), zap.Error(err))
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "transfer outcome could not be recorded", err)
	}

	final, err := o.reload(ctx, debit.Reference)
	if err != nil {
		return nil, err
	}
	if refundTx == nil {
		return final, nil
	}

	o.ledger.Invalidate(ctx, debit.AccountID)
	o.guard.Remember(ctx, final)
	observability.IncrementTransfer(KindExternal, "refunded")
	zap.L().Info("external transfer refunded",
		zap.String("reference", debit.Reference),
		zap.Int64("amount", debit.Amount),
		zap.String("reason", reason),
	)
	notify.Send(ctx, o.publisher, notify.FromTransaction(notify.EventTransferRefunded, refundTx))
	return final, nil
}

// ResolvePending settles a debit left pending by an interrupted transfer,
// using the rail's own record. A transfer the rail still reports as in flight
// is left for a later pass.
func (o *TransferOrchestrator) ResolvePending(ctx context.Context, debit *models.Transaction) error {
	res, err := o.rail.TransactionStatus(ctx, debit.Reference)
	if err != nil {
		return fmt.Errorf("query rail status: %w", err)
	}

	switch res.State {
	case rail.TxSucceeded:
		_, err = o.complete(ctx, debit, res.TransactionID)
	case rail.TxFailed:
		_, err = o.refund(ctx, debit, nonEmpty(res.Message, domain.ErrRailRejected.Message))
	case rail.TxNotFound:
		_, err = o.refund(ctx, debit, "transfer not received by banking partner")
	default:
		return nil
	}
	return err
}

func (o *TransferOrchestrator) reload(ctx context.Context, reference string) (*models.Transaction, error) {
	tx, err := o.ledger.Store().Queries().GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "read transfer failed", err)
	}
	return tx, nil
}

func validateTransfer(req *TransferRequest) error {
	if err := domain.ValidateClientReference(req.Reference); err != nil {
		return err
	}
	if req.SenderAccountID == uuid.Nil {
		return domain.Validationf("sender account is required")
	}
	if req.Amount <= 0 {
		return domain.Validationf("amount must be positive")
	}
	req.DestinationAccount = strings.TrimSpace(req.DestinationAccount)
	if req.DestinationAccount == "" {
		return domain.Validationf("destination account is required")
	}
	req.DestinationBankCode = strings.TrimSpace(req.DestinationBankCode)
	if req.Channel == "" {
		req.Channel = domain.ChannelTransfer
	}
	if !domain.IsValidChannel(req.Channel) {
		return domain.Validationf("unknown channel %q", req.Channel)
	}
	if len(req.Narration) > maxNarrationLength {
		return domain.Validationf("narration must be at most %d characters", maxNarrationLength)
	}
	return nil
}

func resultFrom(tx *models.Transaction, replayed bool) *TransferResult {
	res := &TransferResult{
		Reference:         tx.Reference,
		Kind:              kindOf(tx),
		Amount:            tx.Amount,
		RailTransactionID: tx.RailTransactionID,
		FailureReason:     tx.FailureReason,
		Replayed:          replayed,
		Transaction:       tx,
	}
	switch tx.Status {
	case domain.TxStatusCompleted:
		res.State = domain.TransferCompleted
	case domain.TxStatusFailed:
		res.State = domain.TransferRefunded
	default:
		res.State = domain.TransferRailSubmitted
	}
	return res
}

func kindOf(tx *models.Transaction) string {
	if tx.Category == domain.CategoryTransferOut {
		return KindInternal
	}
	return KindExternal
}

func isTransferCategory(category string) bool {
	return category == domain.CategoryTransferOut || category == domain.CategoryExternalOut
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
