package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes shared by handlers and clients.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeAuth         = "AUTH_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRemoteRead   = "REMOTE_READ_ERROR"
	CodeRemoteWrite  = "REMOTE_WRITE_ERROR"
	// CodeNoRows marks an update that matched no profile.
	CodeNoRows = "NO_ROWS"
)

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

// NewAuthError wraps a failure reported by the passwordless auth flow. The
// message is shown to the member as-is.
func NewAuthError(message string) *AppError {
	return &AppError{
		Code:    CodeAuth,
		Message: message,
	}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// ErrNotOwner is returned when a member tries to edit or delete a profile that
// is not theirs. It is raised before any remote call.
var ErrNotOwner = NewForbiddenError("You can only modify your own profile")

// RemoteReadError is a failed list fetch. It is logged and counted but never
// shown to the member; the affected list renders empty.
type RemoteReadError struct {
	Op  string
	Err error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteReadError) Unwrap() error {
	return e.Err
}

// RemoteWriteError is a rejected insert, update or delete. Message, Code,
// Details and Hint are the store's own diagnostics and are surfaced verbatim.
type RemoteWriteError struct {
	Op      string
	Message string
	Code    string
	Details string
	Hint    string
	Err     error
}

func (e *RemoteWriteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteWriteError) Unwrap() error {
	return e.Err
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	var writeErr *RemoteWriteError
	switch {
	case errors.As(err, &writeErr):
		response = ErrorResponse{
			Error:   writeErr.Message,
			Code:    CodeRemoteWrite,
			Details: writeErr.Details,
			Hint:    writeErr.Hint,
		}
		if writeErr.Code != "" {
			response.Code = writeErr.Code
		}
	case errors.As(err, &appErr):
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
	default:
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
