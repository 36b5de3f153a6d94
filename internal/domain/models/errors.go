package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMarketData = errors.New("invalid market data")
	ErrNoEligibleModel   = errors.New("no eligible model")
	ErrValidation        = errors.New("validation failed")
	ErrInvocationFailed  = errors.New("model invocation failed")
	ErrNoMarketData      = errors.New("no market data available")
	ErrNotConfigured     = errors.New("not configured")
)

// InvalidMarketDataError aborts a cycle before any source is queried.
type InvalidMarketDataError struct {
	Field  string
	Reason string
}

func (e *InvalidMarketDataError) Error() string {
	return fmt.Sprintf("invalid market data: %s %s", e.Field, e.Reason)
}

func (e *InvalidMarketDataError) Is(target error) bool { return target == ErrInvalidMarketData }

// NoEligibleModelError means every catalog entry failed a hard constraint.
type NoEligibleModelError struct {
	Criteria RoutingCriteria
	// Rejections maps model id to the first constraint it failed.
	Rejections map[string]string
}

func (e *NoEligibleModelError) Error() string {
	return fmt.Sprintf("no eligible model for task %s (min capability %s, region %s, %d rejected)",
		e.Criteria.TaskType, e.Criteria.MinCapability, e.Criteria.Region, len(e.Rejections))
}

func (e *NoEligibleModelError) Is(target error) bool { return target == ErrNoEligibleModel }

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
