// Package errors provides unified error handling with string error codes.
// Codes double as metric labels and as the reason logged for failed turns.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an AppError.
type Code string

// Error codes.
const (
	CodeUnknown             Code = "UNKNOWN"
	CodeInternal            Code = "INTERNAL"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeEmptyInput          Code = "EMPTY_INPUT"
	CodeUnsupportedFormat   Code = "UNSUPPORTED_FORMAT"
	CodeDecodeFailed        Code = "DECODE_FAILED"
	CodeTranscriptionFailed Code = "TRANSCRIPTION_FAILED"
	CodeDialogueFailed      Code = "DIALOGUE_FAILED"
	CodeSynthesisFailed     Code = "SYNTHESIS_FAILED"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeSpoolFailed         Code = "SPOOL_FAILED"
	CodeConfigMissing       Code = "CONFIG_MISSING"
	CodeConfigInvalid       Code = "CONFIG_INVALID"
)

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code Code) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// UserMessage returns the text that may be shown to a client. Only AppError
// messages are considered safe; anything else collapses to a generic string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return "internal error"
}

// IsUpstream reports whether the error came from one of the remote services.
func IsUpstream(err error) bool {
	switch CodeOf(err) {
	case CodeTranscriptionFailed, CodeDialogueFailed, CodeSynthesisFailed, CodeUpstreamUnavailable:
		return true
	default:
		return false
	}
}
