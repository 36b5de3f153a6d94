package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"FinScout/internal/domain/models"
)

// AppError is an error with an HTTP status and a stable code.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", message, http.StatusBadRequest)
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", message, http.StatusNotFound)
}

func UnprocessableError(code, message string) *AppError {
	return NewAppError(code, "", message, http.StatusUnprocessableEntity)
}

func ServiceUnavailableError(message string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", "", message, http.StatusServiceUnavailable)
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

// FromDomainError maps engine errors onto HTTP semantics: bad input is 400,
// an infeasible routing request is 422, a failed upstream call is 502.
func FromDomainError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var invalid *models.InvalidMarketDataError
	if errors.As(err, &invalid) {
		return NewAppError("ERR_INVALID_MARKET_DATA", invalid.Field, invalid.Error(), http.StatusBadRequest).WithError(err)
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return NewAppError("ERR_VALIDATION", verr.Field, verr.Error(), http.StatusBadRequest).WithError(err)
	}
	var noModel *models.NoEligibleModelError
	if errors.As(err, &noModel) {
		e := UnprocessableError("ERR_NO_ELIGIBLE_MODEL", "no model satisfies the routing criteria").WithError(err)
		if len(noModel.Rejections) > 0 {
			e.WithParam("rejections", noModel.Rejections)
		}
		return e
	}

	switch {
	case errors.Is(err, models.ErrInvocationFailed):
		return NewAppError("ERR_INVOCATION_FAILED", "", err.Error(), http.StatusBadGateway).WithError(err)
	case errors.Is(err, models.ErrNoMarketData):
		return ServiceUnavailableError("no market data available yet").WithError(err)
	case errors.Is(err, models.ErrNotConfigured):
		return ServiceUnavailableError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewAppError("ERR_TIMEOUT", "", "request timed out", http.StatusGatewayTimeout).WithError(err)
	}
	return InternalError("something went wrong").WithError(err)
}
