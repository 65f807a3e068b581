// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"strings"

	"memberdir/internal/models"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// writeError converts a driver error from an insert, update or delete into a
// RemoteWriteError that keeps the store's own diagnostics.
func writeError(op string, err error) *models.RemoteWriteError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &models.RemoteWriteError{
			Op:      op,
			Message: pgErr.Message,
			Code:    pgErr.Code,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
			Err:     err,
		}
	}

	out := &models.RemoteWriteError{Op: op, Message: err.Error(), Err: err}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueConstraintError(err):
		out.Code = pgerrcode.UniqueViolation
	case errors.Is(err, gorm.ErrForeignKeyViolated) || isForeignKeyError(err):
		out.Code = pgerrcode.ForeignKeyViolation
	}
	return out
}

func noRowsError(op string) *models.RemoteWriteError {
	return &models.RemoteWriteError{
		Op:      op,
		Message: "No rows updated. Profile may not exist or you may not have permission.",
		Code:    models.CodeNoRows,
	}
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, pgerrcode.UniqueViolation)
}

func isForeignKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint")
}

// IsUniqueViolation reports whether err is a rejected duplicate insert.
func IsUniqueViolation(err error) bool {
	var writeErr *models.RemoteWriteError
	if errors.As(err, &writeErr) {
		return writeErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

// IsNoRows reports whether a write matched no rows.
func IsNoRows(err error) bool {
	var writeErr *models.RemoteWriteError
	if errors.As(err, &writeErr) {
		return writeErr.Code == models.CodeNoRows
	}
	return false
}
