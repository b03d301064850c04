// Package zerr defines the structured error taxonomy shared by every
// zeroipc component.
// Author: momentics <momentics@gmail.com>
package zerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code enumerates the named error kinds from the wire-format and
// construction contract. Data-plane outcomes (Full, Empty, Timeout,
// AlreadySet) are deliberately absent: those surface as plain
// bool/(T, bool) returns, never as errors.
type Code int

const (
	CodeUnknown Code = iota
	CodeNameTooLong
	CodeNameExists
	CodeNameNotFound
	CodeBadMagic
	CodeBadVersion
	CodeTableFull
	CodeTooLarge
	CodeCapacityRequired
	CodeDtypeRequired
	CodeSizeMismatch
	CodeOverflow
	CodeComputationFailed
)

func (c Code) String() string {
	switch c {
	case CodeNameTooLong:
		return "NameTooLong"
	case CodeNameExists:
		return "NameExists"
	case CodeNameNotFound:
		return "NameNotFound"
	case CodeBadMagic:
		return "BadMagic"
	case CodeBadVersion:
		return "BadVersion"
	case CodeTableFull:
		return "TableFull"
	case CodeTooLarge:
		return "TooLarge"
	case CodeCapacityRequired:
		return "CapacityRequired"
	case CodeDtypeRequired:
		return "DtypeRequired"
	case CodeSizeMismatch:
		return "SizeMismatch"
	case CodeOverflow:
		return "Overflow"
	case CodeComputationFailed:
		return "ComputationFailed"
	default:
		return "Unknown"
	}
}

// Error is a structured error carrying a Code and free-form Context,
// mirroring the teacher's api.Error contract.
type Error struct {
	Code    Code
	Message string
	Context map[string]any
	cause   error
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (context: %+v)", e.Code, e.Message, e.Context)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches by Code so callers can do errors.Is(err, zerr.New(zerr.CodeNameExists, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a structured error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Context: make(map[string]any)}
}

// Wrap attaches code/message context to an underlying cause (typically a
// syscall or mmap error), using pkg/errors to preserve the cause chain.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
		cause:   errors.Wrap(cause, message),
	}
}

// WithContext attaches a key/value pair and returns the same error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
