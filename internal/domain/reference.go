package domain

import "strings"

const (
	creditLegSuffix = "-credit"
	refundSuffix    = "-refund"

	MaxReferenceLength = 64
)

// CreditLegReference is the reference of the recipient leg of an internal transfer.
func CreditLegReference(ref string) string {
	return ref + creditLegSuffix
}

// RefundReference is the reference of the compensating credit for a failed transfer.
func RefundReference(ref string) string {
	return ref + refundSuffix
}

// ValidateClientReference rejects references that are empty, too long, or
// could collide with a derived leg reference.
func ValidateClientReference(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return Validationf("reference is required")
	}
	if ref != strings.TrimSpace(ref) {
		return Validationf("reference must not have surrounding whitespace")
	}
	if len(ref) > MaxReferenceLength {
		return Validationf("reference must be at most %d characters", MaxReferenceLength)
	}
	if strings.HasSuffix(ref, creditLegSuffix) || strings.HasSuffix(ref, refundSuffix) {
		return Validationf("reference must not end with %q or %q", creditLegSuffix, refundSuffix)
	}
	return nil
}
