package domain

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInvalidMnemonic  = "INVALID_MNEMONIC"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeGone             = "GONE"
	CodeForbidden        = "FORBIDDEN"
	CodeDecryptionFailed = "DECRYPTION_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

// AppError is an error surfaced to a trusted caller. Two AppErrors match under
// errors.Is when their codes are equal, so call sites can compare against the
// Err* values regardless of message.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidMnemonic  = &AppError{Code: CodeInvalidMnemonic, Message: "invalid BIP-39 mnemonic phrase", Status: http.StatusBadRequest}
	ErrValidation       = &AppError{Code: CodeValidation, Message: "validation failed", Status: http.StatusUnprocessableEntity}
	ErrNotFound         = &AppError{Code: CodeNotFound, Message: "not found", Status: http.StatusNotFound}
	ErrGone             = &AppError{Code: CodeGone, Message: "gone", Status: http.StatusGone}
	ErrForbidden        = &AppError{Code: CodeForbidden, Message: "insufficient permissions", Status: http.StatusForbidden}
	ErrDecryptionFailed = &AppError{Code: CodeDecryptionFailed, Message: "decryption failed", Status: http.StatusInternalServerError}
	ErrInternal         = &AppError{Code: CodeInternal, Message: "internal error", Status: http.StatusInternalServerError}
)

func ValidationError(message string) error {
	return &AppError{Code: CodeValidation, Message: message, Status: http.StatusUnprocessableEntity}
}

func NotFoundError(resource string) error {
	return &AppError{Code: CodeNotFound, Message: resource + " not found", Status: http.StatusNotFound}
}

func GoneError(message string) error {
	return &AppError{Code: CodeGone, Message: message, Status: http.StatusGone}
}

func InternalError(err error) error {
	return &AppError{Code: CodeInternal, Message: "internal error", Status: http.StatusInternalServerError, Err: err}
}

func ForbiddenError(message string) error {
	return &AppError{Code: CodeForbidden, Message: message, Status: http.StatusForbidden}
}
