package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/medflow/medflow-stock/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("resource conflict")
	ErrInternal     = errors.New("internal server error")
	ErrValidation   = errors.New("validation error")
	ErrTokenInvalid = errors.New("invalid token")

	// Stock engine kinds
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidMovementState = errors.New("invalid movement state")
	ErrInconsistentBatch    = errors.New("inconsistent batch")
	ErrConfigurationMissing = errors.New("configuration missing")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		MessageKey: "errors.unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		Params:     map[string]string{"reason": message},
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		MessageKey: "errors.token_invalid",
		StatusCode: http.StatusUnauthorized,
	}
}

// InsufficientStock reports a decrement that would drive a stock row negative.
func InsufficientStock(warehouse string, lotID int64, available, requested int) *AppError {
	params := map[string]string{
		"warehouse": warehouse,
		"lot":       fmt.Sprint(lotID),
		"available": fmt.Sprint(available),
		"requested": fmt.Sprint(requested),
	}
	return &AppError{
		Err:  ErrInsufficientStock,
		Code: "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient stock in %s for lot %d: available %d, requested %d",
			warehouse, lotID, available, requested),
		MessageKey: "errors.insufficient_stock",
		Params:     params,
		StatusCode: http.StatusConflict,
		Details:    params,
	}
}

// InsufficientSupply reports that all lots of a supply together cannot cover a request.
func InsufficientSupply(warehouse string, supplyID int64, available, requested int) *AppError {
	params := map[string]string{
		"warehouse": warehouse,
		"supply":    fmt.Sprint(supplyID),
		"available": fmt.Sprint(available),
		"requested": fmt.Sprint(requested),
	}
	return &AppError{
		Err:  ErrInsufficientStock,
		Code: "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient stock in %s for supply %d: available %d, requested %d",
			warehouse, supplyID, available, requested),
		MessageKey: "errors.insufficient_supply",
		Params:     params,
		StatusCode: http.StatusConflict,
		Details:    params,
	}
}

// InvalidMovementState reports an operation against a movement whose state does not permit it.
func InvalidMovementState(movementID int64, state, operation string) *AppError {
	params := map[string]string{
		"movement":  fmt.Sprint(movementID),
		"state":     state,
		"operation": operation,
	}
	return &AppError{
		Err:        ErrInvalidMovementState,
		Code:       "INVALID_MOVEMENT_STATE",
		Message:    fmt.Sprintf("movement %d in state %s does not allow %s", movementID, state, operation),
		MessageKey: "errors.invalid_movement_state",
		Params:     params,
		StatusCode: http.StatusConflict,
		Details:    params,
	}
}

// InconsistentBatch reports a lot-group line that is inactive or missing.
func InconsistentBatch(code string, reason string) *AppError {
	params := map[string]string{"code": code, "reason": reason}
	return &AppError{
		Err:        ErrInconsistentBatch,
		Code:       "INCONSISTENT_BATCH",
		Message:    fmt.Sprintf("lot group %s is inconsistent: %s", code, reason),
		MessageKey: "errors.inconsistent_batch",
		Params:     params,
		StatusCode: http.StatusConflict,
		Details:    params,
	}
}

// ConfigurationMissing reports absent percentages, destinations or warehouse kinds.
func ConfigurationMissing(what string) *AppError {
	return &AppError{
		Err:        ErrConfigurationMissing,
		Code:       "CONFIGURATION_MISSING",
		Message:    what,
		MessageKey: "errors.configuration_missing",
		Params:     map[string]string{"what": what},
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
