package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Configuration errors
const (
	// ErrCodeInvalidConfig indicates a configuration value is missing or out of range.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInvalidInput indicates an argument passed to an operation is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Stream contract errors
const (
	// ErrCodeFragmentClosed indicates a fragment was used after it finished or errored.
	ErrCodeFragmentClosed ErrorCode = "FRAGMENT_CLOSED"
	// ErrCodeStreamClosed indicates a channel or stream was written after termination.
	ErrCodeStreamClosed ErrorCode = "STREAM_CLOSED"
)

// Admission errors
const (
	// ErrCodeAdmissionRejected indicates a request can never be admitted by the gate.
	ErrCodeAdmissionRejected ErrorCode = "ADMISSION_REJECTED"
	// ErrCodeAdmissionTimeout indicates the caller gave up waiting for admission.
	ErrCodeAdmissionTimeout ErrorCode = "ADMISSION_TIMEOUT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// temporaryCodes lists failures that may succeed when attempted again.
var temporaryCodes = map[ErrorCode]bool{
	ErrCodeAdmissionTimeout: true,
}

// IsTemporaryCode returns true if the code describes a transient condition.
func IsTemporaryCode(code ErrorCode) bool {
	return temporaryCodes[code]
}
