package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the kind of error
type ErrorType string

const (
	ErrTypeDataLoad        ErrorType = "DATA_LOAD"
	ErrTypeSchemaDetection ErrorType = "SCHEMA_DETECTION"
	ErrTypeValidation      ErrorType = "VALIDATION"
	ErrTypeInterpolation   ErrorType = "INTERPOLATION"
	ErrTypeCalculus        ErrorType = "CALCULUS"
	ErrTypeConfig          ErrorType = "CONFIG"
	ErrTypePlugin          ErrorType = "PLUGIN"
	ErrTypeNotFound        ErrorType = "NOT_FOUND"
)

// Sentinel causes, matchable with errors.Is through an AppError
var (
	ErrUnsupportedMethod = stderrors.New("unsupported method")
	ErrMethodUnavailable = stderrors.New("method unavailable")
	ErrInsufficientData  = stderrors.New("insufficient data")
	ErrLengthMismatch    = stderrors.New("length mismatch")
	ErrIncompatibleUnits = stderrors.New("incompatible units")
	ErrNotImplemented    = stderrors.New("not implemented")
)

// AppError represents an application-specific error. Code is short and
// machine-stable; Context carries structured specifics for callers.
type AppError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Type, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode sets the machine-stable code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the kind of the first AppError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsType reports whether err wraps an AppError of the given kind
func IsType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// Helper functions for common error types

// NewDataLoadError creates a loader error
func NewDataLoadError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDataLoad, message, cause).WithCode("data_load_failed")
}

// NewSchemaDetectionError creates a schema detection error
func NewSchemaDetectionError(code, message string) *AppError {
	return NewAppError(ErrTypeSchemaDetection, message, nil).WithCode(code)
}

// NewAppValidationError creates a validation error for config/schema mismatches
func NewAppValidationError(code, message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil).WithCode(code)
}

// NewInterpolationError creates an interpolation error
func NewInterpolationError(code, message string, cause error) *AppError {
	return NewAppError(ErrTypeInterpolation, message, cause).WithCode(code)
}

// NewCalculusError creates a calculus error
func NewCalculusError(code, message string, cause error) *AppError {
	return NewAppError(ErrTypeCalculus, message, cause).WithCode(code)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause).WithCode("invalid_config")
}

// NewPluginError creates a plugin error
func NewPluginError(message string, cause error) *AppError {
	return NewAppError(ErrTypePlugin, message, cause).WithCode("plugin_error")
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil).
		WithCode("not_found").
		WithContext(resource+"_id", id)
}

// UnsupportedMethod builds the CONFIG error for an unknown method name
func UnsupportedMethod(operation, method string, supported []string) *AppError {
	return NewAppError(ErrTypeConfig,
		fmt.Sprintf("unsupported %s method %q", operation, method), ErrUnsupportedMethod).
		WithCode("unsupported_method").
		WithContext("method", method).
		WithContext("supported", supported)
}

// InvalidParameter builds the CONFIG error for an out-of-range option
func InvalidParameter(operation, name string, value interface{}, reason string) *AppError {
	return NewAppError(ErrTypeConfig,
		fmt.Sprintf("invalid %s parameter %s: %s", operation, name, reason), nil).
		WithCode("invalid_parameter").
		WithContext("parameter", name).
		WithContext("value", value)
}

// MethodUnavailable builds the error raised when a capability is missing
func MethodUnavailable(method, capability string) *AppError {
	return NewInterpolationError("method_unavailable",
		fmt.Sprintf("method %q is unavailable: %s backend not present", method, capability),
		ErrMethodUnavailable).
		WithContext("method", method).
		WithContext("capability", capability)
}

// InsufficientData builds the error for methods that need more valid points
func InsufficientData(errType ErrorType, method string, have, need int) *AppError {
	return NewAppError(errType,
		fmt.Sprintf("method %q needs at least %d valid points, got %d", method, need, have),
		ErrInsufficientData).
		WithCode("insufficient_data").
		WithContext("method", method).
		WithContext("valid_points", have).
		WithContext("required_points", need)
}

// LengthMismatch builds the error for arrays that must share a length
func LengthMismatch(errType ErrorType, what string, lengths map[string]int) *AppError {
	e := NewAppError(errType, fmt.Sprintf("%s: array lengths differ", what), ErrLengthMismatch).
		WithCode("length_mismatch")
	for k, v := range lengths {
		e.WithContext(k, v)
	}
	return e
}
