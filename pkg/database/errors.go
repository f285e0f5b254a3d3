package database

import (
	"net/http"
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/medflow-stock/pkg/errors"
)

// PostgreSQL error codes the stock engine reacts to
const (
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeLockNotAvailable    = "55P03"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case codeCheckViolation:
		return mapCheckConstraint(pqErr)

	case codeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case codeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	case codeLockNotAvailable:
		return errors.Wrap(err, "LOCK_TIMEOUT", "stock row is busy, retry the operation", http.StatusServiceUnavailable)

	default:
		return nil
	}
}

// MapError returns the AppError for a PostgreSQL error, or err unchanged
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation, optionally on a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Wrap(errors.ErrInsufficientStock, "INSUFFICIENT_STOCK",
			"stock quantity cannot become negative", http.StatusConflict)

	case strings.Contains(constraint, "state_valid"):
		return errors.Validation(map[string]string{
			"state": "must be one of: pending, dispatched, en_route, delivered, received, cancelled",
		})

	case strings.Contains(constraint, "warehouse_kind_valid"):
		return errors.ConfigurationMissing("unsupported warehouse kind")

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lot_groups"):
		return "a lot group with this code already exists"
	case strings.Contains(constraint, "lots_supply_batch"):
		return "a lot with this batch number already exists for the hospital"
	default:
		return "a record with these values already exists"
	}
}
