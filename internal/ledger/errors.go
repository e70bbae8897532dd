package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("call not found")
	ErrValidation         = errors.New("validation failed")
	ErrInvariantViolation = errors.New("exclusion invariant violated")
	ErrPersistence        = errors.New("persistence failure")
)

// Invariant violation codes, returned to callers so "nothing to do" can be
// told apart from "not allowed".
const (
	CodeNotManual       = "not_manual"
	CodeNotExcluded     = "not_excluded"
	CodeAlreadyExcluded = "already_excluded"
	CodeLedgerMismatch  = "ledger_mismatch"
)

// ValidationError names the input field that was rejected
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvariantViolation is returned when a request would break the
// manual/auto exclusion rules.
type InvariantViolation struct {
	Code    string
	CallID  int64
	Message string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("call %d: %s (%s)", e.CallID, e.Message, e.Code)
}

func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

func violation(code string, callID int64, format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Code: code, CallID: callID, Message: fmt.Sprintf(format, args...)}
}

// isDomainError reports errors that are returned to callers as-is rather
// than reported as a persistence failure.
func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrInvariantViolation)
}
