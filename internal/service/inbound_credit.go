package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"go.uber.org/zap"
)

// MappingPolicy says what happens to a virtual account mapping after it
// receives a credit.
type MappingPolicy string

const (
	// MappingOneShot consumes the mapping on its first credit.
	MappingOneShot MappingPolicy = "one_shot"
	// MappingReusable keeps the mapping active for further deposits.
	MappingReusable MappingPolicy = "reusable"
)

func ParseMappingPolicy(raw string) (MappingPolicy, error) {
	switch MappingPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MappingOneShot:
		return MappingOneShot, nil
	case MappingReusable:
		return MappingReusable, nil
	default:
		return "", fmt.Errorf("unknown virtual account policy %q", raw)
	}
}

// Inbound credit outcomes.
const (
	InboundCredited     = "credited"
	InboundDuplicate    = "duplicate"
	InboundDropped      = "dropped"
	InboundAcknowledged = "acknowledged"
	InboundConflict     = "conflict"
)

// InboundCreditPayload is the rail's notification of money received into a
// virtual account. Fields the rail adds later are ignored.
type InboundCreditPayload struct {
	AccountNumber        string      `json:"accountNumber"`
	Amount               json.Number `json:"amount"`
	SenderName           string      `json:"senderName"`
	SenderAccount        string      `json:"senderAccount"`
	SenderBank           string      `json:"senderBank"`
	Reference            string      `json:"reference"`
	SessionID            string      `json:"sessionId"`
	Narration            string      `json:"narration,omitempty"`
	Timestamp            string      `json:"timestamp,omitempty"`
	InitialCreditRequest bool        `json:"initialCreditRequest,omitempty"`
}

type InboundCreditResult struct {
	Status      string              `json:"status"`
	Message     string              `json:"message"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// InboundCreditProcessor applies rail deposit notifications exactly once.
type InboundCreditProcessor struct {
	ledger    *repository.Ledger
	guard     *idempotency.Guard
	publisher notify.Publisher
	audit     *AuditService
	policy    MappingPolicy
	hmacKey   []byte
	skipSig   bool
}

func NewInboundCreditProcessor(ledger *repository.Ledger, guard *idempotency.Guard, publisher notify.Publisher, audit *AuditService, policy MappingPolicy, hmacKey string, skipSignature bool) *InboundCreditProcessor {
	if policy == "" {
		policy = MappingOneShot
	}
	return &InboundCreditProcessor{
		ledger:    ledger,
		guard:     guard,
		publisher: publisher,
		audit:     audit,
		policy:    policy,
		hmacKey:   []byte(hmacKey),
		skipSig:   skipSignature,
	}
}

// errAlreadyApplied aborts the credit transaction when the reference exists.
var errAlreadyApplied = errors.New("inbound credit already applied")

// Process verifies, decodes and applies one notification. A notification for
// an account with no active mapping is dropped without error, since retrying
// cannot make it creditable.
func (p *InboundCreditProcessor) Process(ctx context.Context, body []byte, signature string) (*InboundCreditResult, error) {
	if !p.verifyHMAC(body, signature) {
		observability.IncrementInboundCredit("invalid_signature")
		return nil, domain.ErrInvalidSignature
	}

	var payload InboundCreditPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&payload); err != nil {
		return nil, domain.Validationf("invalid payload")
	}
	payload.AccountNumber = strings.TrimSpace(payload.AccountNumber)
	payload.Reference = strings.TrimSpace(payload.Reference)

	if payload.InitialCreditRequest {
		observability.IncrementInboundCredit(InboundAcknowledged)
		zap.L().Info("initial credit request acknowledged", zap.String("account_number", payload.AccountNumber))
		return &InboundCreditResult{Status: InboundAcknowledged, Message: "initial credit request acknowledged"}, nil
	}

	amount, err := validateInbound(payload)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("reference", payload.Reference), zap.String("account_number", payload.AccountNumber))

	if prior, err := p.guard.Lookup(ctx, payload.Reference); err == nil {
		return p.duplicate(prior, amount)
	} else if !errors.Is(err, idempotency.ErrNotFound) {
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "idempotency lookup failed", err)
	}

	var credit *models.Transaction
	err = p.ledger.Store().RunInTx(ctx, func(q *repository.Queries) error {
		mapping, err := q.GetActiveMappingForUpdate(ctx, payload.AccountNumber)
		if err != nil {
			if !repository.IsNoRows(err) {
				return fmt.Errorf("get mapping: %w", err)
			}
			// A consumed one-shot mapping still recognises its own redelivery.
			if _, err := q.GetTransactionByReference(ctx, payload.Reference); err == nil {
				return errAlreadyApplied
			}
			return domain.ErrMappingNotFound
		}

		credit = &models.Transaction{
			AccountID:           mapping.OwnerAccountID,
			Reference:           payload.Reference,
			ClientReference:     payload.Reference,
			Direction:           domain.DirectionCredit,
			Amount:              amount,
			Category:            domain.CategoryInboundCredit,
			Channel:             domain.ChannelTransfer,
			CounterpartyName:    truncate(payload.SenderName, 128),
			CounterpartyAccount: truncate(payload.SenderAccount, 32),
			CounterpartyBank:    truncate(payload.SenderBank, 64),
			Narration:           truncate(payload.Narration, 140),
			SessionID:           truncate(payload.SessionID, 128),
			Status:              domain.TxStatusCompleted,
		}
		if err := p.ledger.Apply(ctx, q, credit); err != nil {
			if errors.Is(err, domain.ErrDuplicateReference) {
				return errAlreadyApplied
			}
			return err
		}

		if p.policy == MappingOneShot {
			rows, err := q.MarkMappingUsed(ctx, mapping.ID)
			if err != nil {
				return fmt.Errorf("mark mapping used: %w", err)
			}
			if err := requireExactlyOne(rows, "mark mapping used"); err != nil {
				return err
			}
			if err := p.audit.Write(ctx, q, "virtual_account_mapping", mapping.ID, nil, "consumed",
				domain.MappingStatusActive, domain.MappingStatusUsed, map[string]string{"reference": payload.Reference}); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyApplied):
		prior, lookupErr := p.guard.Lookup(ctx, payload.Reference)
		if lookupErr != nil {
			return nil, domain.NewError(domain.CodeLedgerIntegrity, "idempotency lookup failed", lookupErr)
		}
		return p.duplicate(prior, amount)
	case errors.Is(err, domain.ErrMappingNotFound):
		observability.IncrementInboundCredit(InboundDropped)
		log.Warn("inbound credit dropped: no active virtual account mapping", zap.Int64("amount", amount))
		return &InboundCreditResult{Status: InboundDropped, Message: "no active virtual account mapping"}, nil
	case err != nil:
		log.Error("inbound credit failed", zap.Error(err))
		if domain.CodeOf(err) != "" {
			return nil, err
		}
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "credit could not be recorded", err)
	}

	p.ledger.Invalidate(ctx, credit.AccountID)
	p.guard.Remember(ctx, credit)
	observability.IncrementInboundCredit(InboundCredited)
	log.Info("inbound credit applied", zap.Int64("amount", amount), zap.String("account_id", credit.AccountID.String()))
	notify.Send(ctx, p.publisher, notify.FromTransaction(notify.EventCreditReceived, credit))
	return &InboundCreditResult{Status: InboundCredited, Message: "credit applied", Transaction: credit}, nil
}

// duplicate answers a redelivered notification. A reference already held by
// a transaction that is not an inbound credit means the deposit was never
// recorded, so it fails loudly and the rail keeps redelivering.
func (p *InboundCreditProcessor) duplicate(prior *models.Transaction, amount int64) (*InboundCreditResult, error) {
	if prior.Category != domain.CategoryInboundCredit {
		observability.IncrementInboundCredit(InboundConflict)
		zap.L().Error("inbound credit reference collides with another transaction; deposit not recorded",
			zap.String("reference", prior.Reference),
			zap.String("category", prior.Category),
			zap.String("account_id", prior.AccountID.String()),
			zap.Int64("notified_amount", amount),
		)
		return nil, domain.NewError(domain.CodeLedgerIntegrity, "inbound reference already used by another transaction", nil)
	}

	observability.IncrementInboundCredit(InboundDuplicate)
	if prior.Amount != amount {
		zap.L().Warn("inbound credit redelivered with a different amount",
			zap.String("reference", prior.Reference),
			zap.Int64("recorded_amount", prior.Amount),
			zap.Int64("notified_amount", amount),
		)
	}
	return &InboundCreditResult{Status: InboundDuplicate, Message: "credit already applied", Transaction: prior}, nil
}

func validateInbound(p InboundCreditPayload) (int64, error) {
	if p.AccountNumber == "" {
		return 0, domain.Validationf("accountNumber is required")
	}
	if err := domain.ValidateClientReference(p.Reference); err != nil {
		return 0, err
	}
	amount, err := domain.ParseMajorUnits(p.Amount.String())
	if err != nil {
		return 0, domain.Validationf("invalid amount")
	}
	if amount <= 0 {
		return 0, domain.Validationf("amount must be positive")
	}
	return amount, nil
}

// verifyHMAC checks an "sha256=<hex>" signature over the raw body.
func (p *InboundCreditProcessor) verifyHMAC(payload []byte, signature string) bool {
	if p.skipSig {
		return true
	}
	if len(p.hmacKey) == 0 {
		return false
	}

	h := hmac.New(sha256.New, p.hmacKey)
	h.Write(payload)
	expectedSig := "sha256=" + hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expectedSig))
}

// SignPayload computes the signature header value for body.
func SignPayload(key string, body []byte) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
