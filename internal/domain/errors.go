package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-checkable failure reason.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodePolicyRejected     Code = "policy_rejected"
	CodeInsufficientFunds  Code = "insufficient_funds"
	CodeDuplicateOperation Code = "duplicate_operation"
	CodeRailUnavailable    Code = "rail_unavailable"
	CodeRailTimeout        Code = "rail_timeout"
	CodeRailRejected       Code = "rail_rejected"
	CodeLedgerIntegrity    Code = "ledger_integrity_error"
	CodeAccountNotFound    Code = "account_not_found"
	CodeDuplicateReference Code = "duplicate_reference"
	CodeMappingNotFound    Code = "mapping_not_found"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeTransferNotFound   Code = "transfer_not_found"
)

// Error pairs a reason code with a message that is safe to show to callers.
// Err keeps the underlying cause for logs and never reaches the client.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation         = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrPolicyRejected     = &Error{Code: CodePolicyRejected, Message: "transaction not allowed"}
	ErrInsufficientFunds  = &Error{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrDuplicateOperation = &Error{Code: CodeDuplicateOperation, Message: "operation already in progress"}
	ErrRailUnavailable    = &Error{Code: CodeRailUnavailable, Message: "banking partner unavailable"}
	ErrRailTimeout        = &Error{Code: CodeRailTimeout, Message: "banking partner timed out"}
	ErrRailRejected       = &Error{Code: CodeRailRejected, Message: "banking partner rejected the transfer"}
	ErrLedgerIntegrity    = &Error{Code: CodeLedgerIntegrity, Message: "ledger write failed"}
	ErrAccountNotFound    = &Error{Code: CodeAccountNotFound, Message: "account not found"}
	ErrDuplicateReference = &Error{Code: CodeDuplicateReference, Message: "reference already used"}
	ErrMappingNotFound    = &Error{Code: CodeMappingNotFound, Message: "no active virtual account mapping"}
	ErrInvalidSignature   = &Error{Code: CodeInvalidSignature, Message: "invalid signature"}
	ErrTransferNotFound   = &Error{Code: CodeTransferNotFound, Message: "transfer not found"}
)

// NewError builds an Error with a custom message.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Rejected builds a PolicyRejected error carrying the evaluator's reason.
func Rejected(reason string) *Error {
	return &Error{Code: CodePolicyRejected, Message: reason}
}

// CodeOf extracts the reason code, or "" for errors outside the taxonomy.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// MessageOf returns the caller-safe message of a taxonomy error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// IsRailFailure reports whether err came from talking to the banking rail.
func IsRailFailure(err error) bool {
	switch CodeOf(err) {
	case CodeRailUnavailable, CodeRailTimeout, CodeRailRejected:
		return true
	default:
		return false
	}
}
