package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/policy"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
)

// LimitService evaluates proposed movements against the account's tier,
// today's totals and its payment settings.
type LimitService struct {
	store     QueryStore
	evaluator *policy.Evaluator
	loc       *time.Location
	now       func() time.Time
}

func NewLimitService(store QueryStore, evaluator *policy.Evaluator, loc *time.Location) *LimitService {
	if loc == nil {
		loc = time.UTC
	}
	return &LimitService{store: store, evaluator: evaluator, loc: loc, now: time.Now}
}

// DebitProposal is a debit the caller wants checked.
type DebitProposal struct {
	AccountID    uuid.UUID
	Amount       int64
	Counterparty string
	Description  string
	Channel      string
}

// Check is a read-only evaluation. Transfers re-evaluate at commit time.
func (s *LimitService) Check(ctx context.Context, p DebitProposal) (policy.Decision, error) {
	if p.Amount <= 0 {
		return policy.Decision{}, domain.Validationf("amount must be positive")
	}
	if p.Channel == "" {
		p.Channel = domain.ChannelTransfer
	}
	if !domain.IsValidChannel(p.Channel) {
		return policy.Decision{}, domain.Validationf("unknown channel %q", p.Channel)
	}

	q := s.store.Queries()
	acc, err := q.GetAccount(ctx, p.AccountID)
	if err != nil {
		if repository.IsNoRows(err) {
			return policy.Decision{}, domain.ErrAccountNotFound
		}
		return policy.Decision{}, fmt.Errorf("get account: %w", err)
	}
	return s.evaluateDebit(ctx, q, acc, p)
}

// evaluateDebit reads today's debit total through q, which inside a
// transaction holding the account lock gives a race-free answer.
func (s *LimitService) evaluateDebit(ctx context.Context, q *repository.Queries, acc *models.Account, p DebitProposal) (policy.Decision, error) {
	settings, err := loadSettings(ctx, q, acc.ID)
	if err != nil {
		return policy.Decision{}, err
	}
	total, err := q.SumDailyTotal(ctx, acc.ID, domain.DirectionDebit, s.startOfDay())
	if err != nil {
		return policy.Decision{}, fmt.Errorf("sum daily debits: %w", err)
	}

	d := s.evaluator.Evaluate(policy.Input{
		Tier:         acc.Tier,
		Amount:       p.Amount,
		Direction:    domain.DirectionDebit,
		Counterparty: p.Counterparty,
		Description:  p.Description,
		Channel:      p.Channel,
		Settings:     settings,
		DailyTotal:   total,
	})
	return d, nil
}

func (s *LimitService) evaluateReceive(ctx context.Context, q *repository.Queries, acc *models.Account, amount int64) (policy.Decision, error) {
	total, err := q.SumDailyTotal(ctx, acc.ID, domain.DirectionCredit, s.startOfDay())
	if err != nil {
		return policy.Decision{}, fmt.Errorf("sum daily credits: %w", err)
	}
	return s.evaluator.Evaluate(policy.Input{
		Tier:       acc.Tier,
		Amount:     amount,
		Direction:  domain.DirectionCredit,
		DailyTotal: total,
	}), nil
}

func (s *LimitService) startOfDay() time.Time {
	return policy.StartOfDay(s.now(), s.loc)
}

func loadSettings(ctx context.Context, q *repository.Queries, accountID uuid.UUID) (models.PaymentSettings, error) {
	settings, err := q.GetPaymentSettings(ctx, accountID)
	if err != nil {
		if repository.IsNoRows(err) {
			return models.DefaultPaymentSettings(accountID), nil
		}
		return models.PaymentSettings{}, err
	}
	return *settings, nil
}

func rejectionError(d policy.Decision) error {
	observability.IncrementPolicyRejection(d.Rule)
	return domain.Rejected(d.Reason)
}
