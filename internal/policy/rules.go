package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"gopkg.in/yaml.v3"
)

// TierLimits are per-tier ceilings in kobo. Zero means unlimited.
type TierLimits struct {
	SingleTransaction int64 `yaml:"single_transaction"`
	DailyDebit        int64 `yaml:"daily_debit"`
	DailyReceive      int64 `yaml:"daily_receive"`
}

const (
	CategoryGambling      = "gambling"
	CategoryInternational = "international"
	CategoryEcommerce     = "ecommerce"
)

// Rules is the limit table and keyword block lists.
type Rules struct {
	Tiers    map[int]TierLimits  `yaml:"tiers"`
	Keywords map[string][]string `yaml:"keywords"`
}

// DefaultRules returns the built-in tier table and keyword lists.
func DefaultRules() Rules {
	return Rules{
		Tiers: map[int]TierLimits{
			1: {SingleTransaction: 5_000_000, DailyDebit: 5_000_000, DailyReceive: 20_000_000},
			2: {SingleTransaction: 20_000_000, DailyDebit: 50_000_000, DailyReceive: 500_000_000},
			3: {SingleTransaction: 100_000_000, DailyDebit: 500_000_000},
			4: {},
		},
		Keywords: map[string][]string{
			CategoryGambling: {
				"bet", "betting", "casino", "bet9ja", "sportybet", "betking", "1xbet", "nairabet",
				"lottery", "lotto", "poker", "jackpot", "gamble",
			},
			CategoryInternational: {
				"international", "swift", "forex", "wire transfer", "abroad", "overseas", "usd", "gbp", "eur",
			},
			CategoryEcommerce: {
				"jumia", "konga", "amazon", "aliexpress", "ebay", "temu", "checkout", "online store",
			},
		},
	}
}

// LoadFile reads a YAML document and layers it over DefaultRules. Tiers and
// keyword categories present in the file replace the defaults wholesale.
func LoadFile(path string) (Rules, error) {
	rules := DefaultRules()
	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read limits file: %w", err)
	}

	var override Rules
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return rules, fmt.Errorf("parse limits file: %w", err)
	}

	for tier, limits := range override.Tiers {
		if tier < domain.MinTier || tier > domain.MaxTier {
			return rules, fmt.Errorf("limits file: tier %d out of range", tier)
		}
		if limits.SingleTransaction < 0 || limits.DailyDebit < 0 || limits.DailyReceive < 0 {
			return rules, fmt.Errorf("limits file: tier %d has a negative limit", tier)
		}
		rules.Tiers[tier] = limits
	}
	for category, terms := range override.Keywords {
		switch category {
		case CategoryGambling, CategoryInternational, CategoryEcommerce:
			rules.Keywords[category] = terms
		default:
			return rules, fmt.Errorf("limits file: unknown keyword category %q", category)
		}
	}
	return rules, nil
}

// TierLimitsFor falls back to tier 1 for unknown tiers.
func (r Rules) TierLimitsFor(tier int) TierLimits {
	if limits, ok := r.Tiers[tier]; ok {
		return limits
	}
	return r.Tiers[domain.MinTier]
}

// StartOfDay returns midnight of now's calendar day in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
