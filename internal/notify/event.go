package notify

import (
	"context"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Routing keys on the wallet events exchange.
const (
	EventDebitCompleted   = "wallet.debit.completed"
	EventCreditReceived   = "wallet.credit.received"
	EventTransferRefunded = "wallet.transfer.refunded"
)

const publishTimeout = 5 * time.Second

// Event is the payload consumers receive. Amounts are kobo.
type Event struct {
	Type         string    `json:"type"`
	AccountID    uuid.UUID `json:"account_id"`
	Reference    string    `json:"reference"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Counterparty string    `json:"counterparty,omitempty"`
	Narration    string    `json:"narration,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// FromTransaction builds an event of kind eventType for tx.
func FromTransaction(eventType string, tx *models.Transaction) Event {
	return Event{
		Type:         eventType,
		AccountID:    tx.AccountID,
		Reference:    tx.Reference,
		Amount:       tx.Amount,
		BalanceAfter: tx.BalanceAfter,
		Counterparty: tx.CounterpartyName,
		Narration:    tx.Narration,
		Timestamp:    time.Now().UTC(),
	}
}

// Send publishes e and swallows failures: the ledger is already committed and
// a lost notification must never undo it.
func Send(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, e); err != nil {
		observability.IncrementNotification(e.Type, "failed")
		zap.L().Warn("notification publish failed",
			zap.String("event", e.Type),
			zap.String("reference", e.Reference),
			zap.Error(err),
		)
		return
	}
	observability.IncrementNotification(e.Type, "published")
}
