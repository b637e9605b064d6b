// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories that mirror how the engine reacts
// to each failure:
//   - General errors (1-99): Unknown and general errors
//   - Data errors (100-199): insufficient bars, invalid OHLC rows, unsorted or
//     duplicate timestamps. Fatal: a run aborts before the bar loop starts.
//   - Bias violations (200-299): lookahead reads and symbol-existence
//     violations. Fatal and never downgraded.
//   - Fill errors (300-399): non-positive sizing or insufficient capital.
//     Recovered locally by skipping the signal.
//   - Cost model errors (400-499): unknown liquidity tier. Recovered with the
//     default tier and a warning.
//   - Config errors (500-599): invalid or missing symbol configuration.
//     Recovered with the default configuration.
//   - Validation errors (600-699): bad split parameters, sample too small.
//   - Engine errors (700-799): run preparation and provider failures.
//   - Store errors (800-899): result persistence failures.
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidOHLC, "high below low")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeInsufficientBars, "need %d bars, have %d", want, have)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to persist trades", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeLookaheadRead) { ... }
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	var b *BiasViolationError
	if errors.As(err, &b) {
		return b.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsFatal reports whether the error must surface to the caller instead of
// being recovered with a fallback.
func IsFatal(err error) bool {
	return IsFatalCode(GetCode(err))
}

// InsufficientDataError represents an error when there is not enough data
// for a calculation (e.g., indicator calculations requiring a minimum period).
type InsufficientDataError struct {
	Required int    // Minimum data points required
	Actual   int    // Actual data points available
	Symbol   string // Optional: symbol context
	Message  string // Human-readable message
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(required, actual int, symbol, message string) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Symbol:   symbol,
		Message:  message,
	}
}

// NewInsufficientDataErrorf creates a new InsufficientDataError with a formatted message.
func NewInsufficientDataErrorf(required, actual int, symbol, format string, args ...any) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Symbol:   symbol,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return e.Message
}

// IsInsufficientDataError checks if an error is an InsufficientDataError.
// It uses errors.As to check the error chain.
func IsInsufficientDataError(err error) bool {
	var insufficientErr *InsufficientDataError

	return errors.As(err, &insufficientErr)
}

// BiasViolationError represents an attempt to use information that was not
// available at decision time: reading bars beyond the current index, or
// trading a symbol before its first listed date. It always carries enough
// context to locate the offending access.
type BiasViolationError struct {
	Code          ErrorCode // ErrCodeLookaheadRead or ErrCodeSymbolNotYetListed
	Symbol        string
	AsOfIndex     int       // bar index the decision was made at
	OffendingIdx  int       // index that was illegally accessed (lookahead)
	AsOfTime      time.Time // decision time (symbol existence)
	FirstListedAt time.Time // symbol first trading date (symbol existence)
	Message       string
}

// Error implements the error interface.
func (e *BiasViolationError) Error() string {
	return fmt.Sprintf("[%d] bias violation: %s", e.Code, e.Message)
}

// NewLookaheadError creates a BiasViolationError for a read past the decision bar.
func NewLookaheadError(symbol string, asOfIndex, offendingIdx int) *BiasViolationError {
	return &BiasViolationError{
		Code:         ErrCodeLookaheadRead,
		Symbol:       symbol,
		AsOfIndex:    asOfIndex,
		OffendingIdx: offendingIdx,
		Message:      fmt.Sprintf("read of bar %d from decision bar %d (symbol %s)", offendingIdx, asOfIndex, symbol),
	}
}

// NewSymbolExistenceError creates a BiasViolationError for trading a symbol
// before its validated first trading date.
func NewSymbolExistenceError(symbol string, asOf, firstListed time.Time) *BiasViolationError {
	return &BiasViolationError{
		Code:          ErrCodeSymbolNotYetListed,
		Symbol:        symbol,
		AsOfTime:      asOf,
		FirstListedAt: firstListed,
		Message: fmt.Sprintf("symbol %s first listed %s, tested as of %s",
			symbol, firstListed.Format("2006-01-02"), asOf.Format("2006-01-02")),
	}
}

// IsBiasViolation checks if an error is a BiasViolationError anywhere in the chain.
func IsBiasViolation(err error) bool {
	var biasErr *BiasViolationError

	return errors.As(err, &biasErr)
}
