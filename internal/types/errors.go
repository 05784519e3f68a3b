package types

import "errors"

// Sentinel errors for capture and session operations. Callers match these
// with errors.Is; lower layers wrap them with context.
var (
	// ErrDeviceUnavailable indicates the platform audio endpoint is missing or busy.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrSourceNotFound indicates the capture target process is not running.
	ErrSourceNotFound = errors.New("capture target not running")
	// ErrPermissionDenied indicates the OS denied capture access.
	ErrPermissionDenied = errors.New("audio capture permission denied")
	// ErrConnectionLost indicates the voice session dropped mid-capture.
	ErrConnectionLost = errors.New("voice connection lost")
	// ErrEncode indicates malformed input or an unsupported sample layout.
	ErrEncode = errors.New("encode failed")
	// ErrAlreadyCapturing indicates a duplicate start request.
	ErrAlreadyCapturing = errors.New("already capturing")
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "recording.format")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}
