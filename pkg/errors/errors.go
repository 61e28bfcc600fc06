// Package errors provides common, reusable error values and helpers.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrValidation                  = errors.New("validation failed")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInsufficientFundsAtApproval = errors.New("insufficient funds at approval")
	ErrAccountNotFound             = errors.New("account not found")
	ErrAccountAlreadyExists        = errors.New("account already exists")
	ErrWalletNotFound              = errors.New("crypto wallet not found")
	ErrTransactionNotFound         = errors.New("transaction not found")
	ErrTransactionFinalized        = errors.New("transaction already in terminal status")
	ErrWireNotFound                = errors.New("wire transfer not found")
	ErrIllegalTransition           = errors.New("illegal status transition")
	ErrTransferBlocked             = errors.New("transfer blocked")
	ErrTradingBlocked              = errors.New("trading blocked")
	ErrPriceUnavailable            = errors.New("price not available")
	ErrForbidden                   = errors.New("forbidden")
	ErrDuplicateRequest            = errors.New("duplicate request")

	// OTP errors
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrOTPExpired          = errors.New("otp expired or not found")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPCooldown         = errors.New("otp resend cooldown active")
	ErrOTPScopeMismatch    = errors.New("otp was issued for a different operation")

	// ErrTimeout is returned when a bounded step ran out of time. Retryable.
	ErrTimeout = errors.New("operation timed out")
	// ErrConflict is returned when the store aborted a transaction due to a
	// concurrent writer. Retryable.
	ErrConflict = errors.New("concurrent update conflict")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PolicyError is an admin-imposed block. Reason is shown to the user.
type PolicyError struct {
	Kind   error
	Reason string
}

func (e *PolicyError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Reason)
}

func (e *PolicyError) Unwrap() error { return e.Kind }

// TransferBlocked returns a policy error for disabled wire transfers.
func TransferBlocked(reason string) error {
	return &PolicyError{Kind: ErrTransferBlocked, Reason: reason}
}

// TradingBlocked returns a policy error for disabled buy or sell.
func TradingBlocked(reason string) error {
	return &PolicyError{Kind: ErrTradingBlocked, Reason: reason}
}

// BlockReason extracts the admin reason from a policy error.
func BlockReason(err error) string {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

// IsRetryable reports whether the caller may safely retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}

// FromContext maps a context failure onto ErrTimeout so callers see a
// retryable error instead of a raw context error.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is and As are re-exported so callers need only one errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
