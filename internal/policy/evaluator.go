// Package policy decides whether a proposed movement of money is allowed.
// Evaluation is pure: callers read daily totals inside the transaction that
// commits the movement and pass them in.
package policy

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
)

// Rule names reported on rejection.
const (
	RuleSingleLimit        = "single_transaction_limit"
	RuleDailyLimit         = "daily_limit"
	RuleDailyReceiveLimit  = "daily_receive_limit"
	RuleBlockGambling      = "block_gambling"
	RuleBlockInternational = "block_international"
	RuleBlockEcommerce     = "block_ecommerce"
	RuleOnlineDisabled     = "online_payments_disabled"
	RuleContactless        = "contactless_disabled"
)

// Input describes one side of a proposed movement.
type Input struct {
	Tier         int
	Amount       int64
	Direction    string
	Counterparty string
	Description  string
	Channel      string
	Settings     models.PaymentSettings
	// DailyTotal is today's debits for a debit, or today's credits for a credit.
	DailyTotal int64
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func reject(rule, format string, args ...any) Decision {
	return Decision{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

type Evaluator struct {
	rules Rules
}

func NewEvaluator(rules Rules) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate applies the rules in order; the first failure wins. Credits are
// only checked against the receive cap.
func (e *Evaluator) Evaluate(in Input) Decision {
	limits := e.rules.TierLimitsFor(in.Tier)

	if in.Direction == domain.DirectionCredit {
		if exceeds(in.DailyTotal, in.Amount, limits.DailyReceive) {
			return reject(RuleDailyReceiveLimit,
				"Recipient's daily receive limit exceeded. Maximum daily limit is %s.", domain.FormatNaira(limits.DailyReceive))
		}
		return allow()
	}

	single := effective(limits.SingleTransaction, in.Settings.SingleTransactionLimitKobo)
	if single > 0 && in.Amount > single {
		return reject(RuleSingleLimit,
			"Amount exceeds your single transaction limit of %s.", domain.FormatNaira(single))
	}

	daily := effective(limits.DailyDebit, in.Settings.DailyLimitKobo)
	if exceeds(in.DailyTotal, in.Amount, daily) {
		return reject(RuleDailyLimit,
			"Daily transfer limit exceeded. You can send up to %s per day.", domain.FormatNaira(daily))
	}

	text := normalize(in.Counterparty + " " + in.Description)
	blocks := []struct {
		enabled  bool
		category string
		rule     string
		label    string
	}{
		{in.Settings.BlockGambling, CategoryGambling, RuleBlockGambling, "Gambling"},
		{in.Settings.BlockInternational, CategoryInternational, RuleBlockInternational, "International"},
		{in.Settings.BlockEcommerce, CategoryEcommerce, RuleBlockEcommerce, "E-commerce"},
	}
	for _, b := range blocks {
		if !b.enabled {
			continue
		}
		if term, ok := matchAny(text, e.rules.Keywords[b.category]); ok {
			return reject(b.rule, "%s payments are blocked on this account (matched %q).", b.label, term)
		}
	}

	switch in.Channel {
	case domain.ChannelOnline:
		if !in.Settings.EnableOnlinePayments {
			return reject(RuleOnlineDisabled, "Online payments are disabled on this account.")
		}
	case domain.ChannelContactless:
		if !in.Settings.EnableContactless {
			return reject(RuleContactless, "Contactless payments are disabled on this account.")
		}
	}
	return allow()
}

// effective is the lower of the tier limit and a positive account setting.
func effective(tierLimit, setting int64) int64 {
	switch {
	case setting <= 0:
		return tierLimit
	case tierLimit <= 0:
		return setting
	default:
		return min(tierLimit, setting)
	}
}

func exceeds(total, amount, limit int64) bool {
	if limit <= 0 {
		return false
	}
	return total+amount > limit
}

// normalize lowercases text and reduces it to space-separated tokens with a
// leading and trailing space so whole-token matches are a substring search.
func normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ") + " "
}

func matchAny(normalized string, terms []string) (string, bool) {
	for _, term := range terms {
		t := strings.TrimSpace(normalize(term))
		if t == "" {
			continue
		}
		if strings.Contains(normalized, " "+t+" ") {
			return term, true
		}
	}
	return "", false
}
