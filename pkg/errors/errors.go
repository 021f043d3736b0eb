package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown        ErrorCode = "UNKNOWN"
	ErrInternal       ErrorCode = "INTERNAL"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	ErrCancelled      ErrorCode = "CANCELLED"

	// Configuration errors. Non-fatal: callers fall back to defaults.
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Rule errors
	ErrRuleInvalid ErrorCode = "RULE_INVALID"
	ErrDiscovery   ErrorCode = "DISCOVERY"

	// Secret and key errors
	ErrPassphraseMismatch ErrorCode = "PASSPHRASE_MISMATCH"
	ErrPassphraseEmpty    ErrorCode = "PASSPHRASE_EMPTY"
	ErrKeyFile            ErrorCode = "KEY_FILE"
	ErrKeyDerivation      ErrorCode = "KEY_DERIVATION"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"

	// Staging, archiving and storage errors
	ErrIO            ErrorCode = "IO"
	ErrArchiveFormat ErrorCode = "ARCHIVE_FORMAT"
	ErrParity        ErrorCode = "PARITY"
	ErrDestination   ErrorCode = "DESTINATION"
)

// KeystashError represents a structured error with code and details
type KeystashError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *KeystashError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *KeystashError) Unwrap() error {
	return e.Wrapped
}

// Is matches another KeystashError by code
func (e *KeystashError) Is(target error) bool {
	var targetErr *KeystashError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new KeystashError with the given code and message
func New(code ErrorCode, message string) *KeystashError {
	return &KeystashError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new KeystashError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *KeystashError {
	return &KeystashError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a KeystashError. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &KeystashError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message. A nil err yields nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &KeystashError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *KeystashError) WithDetail(key string, value interface{}) *KeystashError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var ksErr *KeystashError
	if errors.As(err, &ksErr) {
		return ksErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a KeystashError
func GetErrorCode(err error) ErrorCode {
	var ksErr *KeystashError
	if errors.As(err, &ksErr) {
		return ksErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a KeystashError
func GetErrorDetails(err error) map[string]interface{} {
	var ksErr *KeystashError
	if errors.As(err, &ksErr) {
		return ksErr.Details
	}
	return nil
}
