// Package errors provides structured error types for rjs.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the resolver, installer, and CLI
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes correspond to the failure categories a package install can hit:
// malformed input, registry/network failures, and on-disk problems.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidRange, "invalid range %q for %s", rng, name)
//	if errors.Is(err, errors.ErrCodeInvalidRange) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes, grouped by the stage of an install that produces them.
const (
	// NetworkError covers transport failures talking to the registry:
	// timeouts, connection resets, 5xx responses.
	ErrCodeNetwork Code = "NETWORK_ERROR"

	// RegistryError covers well-formed-but-unexpected registry responses,
	// e.g. a 404 for a package name.
	ErrCodeRegistry Code = "REGISTRY_ERROR"

	// DecodeError covers failures parsing a registry document or a
	// package.json/lockfile on disk.
	ErrCodeDecode Code = "DECODE_ERROR"

	// NoMatchingVersion means no published version satisfies a requested
	// range.
	ErrCodeNoMatchingVersion Code = "NO_MATCHING_VERSION"

	// InvalidRange means a dependency range string could not be parsed.
	ErrCodeInvalidRange Code = "INVALID_RANGE"

	// ExtractError covers tarball extraction failures (corrupt archive,
	// zip-slip path, unsupported entry type).
	ErrCodeExtract Code = "EXTRACT_ERROR"

	// IoError covers filesystem failures unrelated to parsing: permission
	// denied, disk full, directory creation failure.
	ErrCodeIO Code = "IO_ERROR"

	// LockfileError covers a lockfile that can't be loaded or replayed
	// against the current manifest.
	ErrCodeLockfile Code = "LOCKFILE_ERROR"

	// InvalidInput covers malformed package specs and other user input.
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// InvalidPackage means a package name failed validation.
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"

	// Internal covers unexpected internal failures.
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
