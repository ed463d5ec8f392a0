package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// FetchFailure - a tracker or version-control call failed; fatal to the project build
	ErrorTypeFetch ErrorType = iota
	// ParseAmbiguity - a log line did not match the expected shape; recovered locally
	ErrorTypeParse
	// UnresolvableBug - no fix commit or inconsistent tracker data; the bug is excluded
	ErrorTypeUnresolvableBug
	// UnknownRelease - a tracker version has no git tag; the reference is dropped
	ErrorTypeUnknownRelease
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig
	// Storage errors - dataset persistence failures
	ErrorTypeStorage
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - recovered locally, processing continues
	SeverityLow Severity = iota
	// SeverityMedium - the current item is skipped
	SeverityMedium
	// SeverityHigh - the current project build stops
	SeverityHigh
	// SeverityCritical - the whole run stops
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop the current project build
func (e *Error) IsFatal() bool {
	return e.Severity >= SeverityHigh
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

// String returns the upper-case name of the error type
func (t ErrorType) String() string {
	return typeString(t)
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeFetch:
		return "FETCH"
	case ErrorTypeParse:
		return "PARSE"
	case ErrorTypeUnresolvableBug:
		return "UNRESOLVABLE_BUG"
	case ErrorTypeUnknownRelease:
		return "UNKNOWN_RELEASE"
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeStorage:
		return "STORAGE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Sentinels for errors.Is matching by type.
var (
	ErrFetch           = &Error{Type: ErrorTypeFetch}
	ErrParse           = &Error{Type: ErrorTypeParse}
	ErrUnresolvableBug = &Error{Type: ErrorTypeUnresolvableBug}
	ErrUnknownRelease  = &Error{Type: ErrorTypeUnknownRelease}
	ErrConfig          = &Error{Type: ErrorTypeConfig}
	ErrStorage         = &Error{Type: ErrorTypeStorage}
)

// FetchFailure wraps a failed tracker or version-control call
func FetchFailure(err error, message string) *Error {
	return Wrap(err, ErrorTypeFetch, SeverityHigh, message)
}

// FetchFailuref wraps a failed tracker or version-control call with formatting
func FetchFailuref(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFetch, SeverityHigh, fmt.Sprintf(format, args...))
}

// ParseAmbiguityf reports a malformed input line
func ParseAmbiguityf(format string, args ...interface{}) *Error {
	return New(ErrorTypeParse, SeverityLow, fmt.Sprintf(format, args...))
}

// UnresolvableBugf reports a bug excluded from the dataset
func UnresolvableBugf(format string, args ...interface{}) *Error {
	return New(ErrorTypeUnresolvableBug, SeverityMedium, fmt.Sprintf(format, args...))
}

// UnknownReleasef reports a version reference without a matching release
func UnknownReleasef(format string, args ...interface{}) *Error {
	return New(ErrorTypeUnknownRelease, SeverityLow, fmt.Sprintf(format, args...))
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// StorageError wraps a persistence error
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityHigh, message)
}

// IsFatal checks if an error is fatal to the current project build
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}

	return true
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	var e *Error
	if err != nil && stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}
