package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeEmptyBody   ErrorType = "empty_body"
	ErrorTypeFilename    ErrorType = "filename"
	ErrorTypeFilesystem  ErrorType = "filesystem"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// ErrFilenameExtractionFailed is matched by errors.Is for any filename error.
// A filename that cannot be decoded is rejected, never replaced by a default.
var ErrFilenameExtractionFailed = stderrors.New("filename extraction failed")

// Error represents a download error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets every filename error match ErrFilenameExtractionFailed
func (e *Error) Is(target error) bool {
	return target == ErrFilenameExtractionFailed && e.Type == ErrorTypeFilename
}

// New creates a typed error
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
}

// Filename builds a filename extraction error
func Filename(err error, raw string) *Error {
	return &Error{
		Type:    ErrorTypeFilename,
		Message: fmt.Sprintf("cannot use filename %q", raw),
		Err:     err,
	}
}

// FromStatus classifies a non-200 HTTP status code
func FromStatus(code int) *Error {
	t := ErrorTypeUnknown
	switch {
	case code == http.StatusTooManyRequests:
		t = ErrorTypeRateLimit
	case code == http.StatusNotFound:
		t = ErrorTypeNotFound
	case code >= 500:
		t = ErrorTypeServerError
	}
	return &Error{Type: t, Message: http.StatusText(code), Code: code}
}

// IsRetryableStatusCode reports whether a request answered with code is
// worth repeating unchanged
func IsRetryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// TypeOf returns the error type of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}
