package internal

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeForbidden   ErrorType = "FORBIDDEN"
	ErrorTypeRateLimited ErrorType = "RATE_LIMITED"
	ErrorTypeExternal    ErrorType = "EXTERNAL_ERROR"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeFileTooLarge    ErrorCode = "FILE_TOO_LARGE"
	ErrCodeUnsupportedType ErrorCode = "UNSUPPORTED_FILE_TYPE"
	ErrCodeContentMismatch ErrorCode = "FILE_CONTENT_MISMATCH"
	ErrCodeInvalidDraft    ErrorCode = "INVALID_DRAFT"
	ErrCodeEmptyInput      ErrorCode = "EMPTY_INPUT"

	ErrCodePendingApproval ErrorCode = "PENDING_APPROVAL"
	ErrCodeAccessDenied    ErrorCode = "ACCESS_DENIED"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeAITransient ErrorCode = "AI_TRANSIENT"
	ErrCodeAIPermanent ErrorCode = "AI_PERMANENT"

	ErrCodeWriteFailed      ErrorCode = "WRITE_FAILED"
	ErrCodeReceiptNotFound  ErrorCode = "RECEIPT_NOT_FOUND"
	ErrCodeNotOwner         ErrorCode = "NOT_OWNER"
	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeBlobUploadFailed ErrorCode = "BLOB_UPLOAD_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// RateLimitDetails tells the caller how long to back off.
type RateLimitDetails struct {
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewRateLimitError(retryAfterSeconds int) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       ErrCodeRateLimitExceeded,
		Message:    fmt.Sprintf("too many requests, please wait %d seconds", retryAfterSeconds),
		StatusCode: http.StatusTooManyRequests,
		Details:    RateLimitDetails{RetryAfterSeconds: retryAfterSeconds},
	}
}

func NewAITransientError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeAITransient,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewAIPermanentError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeAIPermanent,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

func NewInternalError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// AsAppError unwraps err into an *AppError, or wraps it as an internal error
// so transport always has a renderable shape.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("internal error", ErrCodeWriteFailed).WithCause(err)
}

// IsTransient reports whether err is a retryable AI failure.
func IsTransient(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeAITransient
	}
	return false
}
