// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrStaleQuote        = errors.New("stale quote")
	ErrMarketClosed      = errors.New("market is closed")
	ErrDatabaseError     = errors.New("database error")
)

// Is reports whether any error in err's chain matches target.
// Re-exported so callers need only this package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// ConfigError represents an invalid configuration value. Fatal for the
// tick it occurs in; surfaced to the operator.
type ConfigError struct {
	Field   string
	Value   any
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value any, message string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// FundsError represents a fill that would drive cash negative. The
// guardrail layer should make this unreachable; seeing one indicates a
// sizing bug and the fill is rejected, not retried.
type FundsError struct {
	PositionID string
	Required   float64
	Available  float64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("insufficient funds for position %s: need %.2f, have %.2f",
		e.PositionID, e.Required, e.Available)
}

func (e *FundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// TransientError wraps a retryable failure from a broker or market-data
// adapter. The orchestrator retries with bounded backoff; domain services
// never see it.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new TransientError.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{OrderID: orderID, Symbol: symbol, Action: action, Reason: reason, Err: err}
}
