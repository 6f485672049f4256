package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type for parstream packages.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Temporary indicates the condition may clear on its own.
	Temporary bool `json:"temporary"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same code.
// This lets sentinel AppErrors be matched with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Temporary: IsTemporaryCode(code),
	}
}

// --- Constructors ---

// InvalidConfig creates an AppError for a configuration field that failed validation.
func InvalidConfig(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid configuration: %s", reason),
		Details: details,
	}
}

// Validation creates an AppError for a struct that failed tag validation.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidConfig, Message: message}
}

// InvalidInput creates an AppError for an invalid argument.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	}
}

// FragmentClosed creates an AppError for an operation on a terminated fragment.
func FragmentClosed(op string, seq uint64) *AppError {
	return &AppError{
		Code: ErrCodeFragmentClosed, Message: fmt.Sprintf("%s on terminated fragment %d", op, seq),
		Details: map[string]any{"operation": op, "fragment": seq},
	}
}

// StreamClosed creates an AppError for a write after termination.
func StreamClosed(op string) *AppError {
	return &AppError{
		Code: ErrCodeStreamClosed, Message: fmt.Sprintf("%s after termination", op),
		Details: map[string]any{"operation": op},
	}
}

// AdmissionRejected creates an AppError for a request larger than the gate capacity.
func AdmissionRejected(gate string, weight, capacity int64) *AppError {
	return &AppError{
		Code:    ErrCodeAdmissionRejected,
		Message: fmt.Sprintf("weight %d exceeds capacity %d of gate %s", weight, capacity, gate),
		Details: map[string]any{"gate": gate, "weight": weight, "capacity": capacity},
	}
}

// AdmissionTimeout creates an AppError for an abandoned admission wait.
func AdmissionTimeout(gate string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeAdmissionTimeout, Message: fmt.Sprintf("gave up waiting for gate %s", gate),
		Temporary: true, Details: map[string]any{"gate": gate}, Cause: cause,
	}
}

// Internal creates an AppError for an unexpected internal failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred", Cause: cause,
	}
}

// --- Inspection helpers ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is, or wraps, an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Wrap converts any error into an AppError. AppErrors pass through,
// anything else becomes an internal error with err as its cause.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}
