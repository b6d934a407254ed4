package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeProcessing   ErrorType = "processing"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"

	// Detection pipeline failures
	ErrorTypeDecode                ErrorType = "decode"
	ErrorTypeUnsupportedModelShape ErrorType = "unsupported_model_shape"
	ErrorTypeScoring               ErrorType = "scoring"
	ErrorTypeDispatch              ErrorType = "dispatch"
)

// Stage names the step of the detection lifecycle an error belongs to
type Stage string

const (
	StageUploaded        Stage = "uploaded"
	StageDecoded         Stage = "decoded"
	StageNormalized      Stage = "normalized"
	StageScored          Stage = "scored"
	StageDecided         Stage = "decided"
	StageNotifyAttempted Stage = "notify_attempted"
	StageNotifySkipped   Stage = "notify_skipped"
	StageDone            Stage = "done"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Stage      Stage     `json:"stage,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Type)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s at %s", e.Type, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithStage returns the error tagged with the lifecycle stage it failed in
func (e *AppError) WithStage(stage Stage) *AppError {
	e.Stage = stage
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProcessing,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewDecodeError reports an unreadable, corrupt or unsupported image.
// The client sent something we cannot use, so it maps to 422.
func NewDecodeError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeDecode,
		Message:    message,
		Stage:      StageDecoded,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewUnsupportedModelShapeError reports a classifier input contract we cannot map
func NewUnsupportedModelShapeError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnsupportedModelShape,
		Message:    message,
		Stage:      StageNormalized,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewScoringError reports a failed classifier call
func NewScoringError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeScoring,
		Message:    message,
		Stage:      StageScored,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewDispatchError reports a notification transport failure.
// It never becomes an HTTP error on its own; the verdict stands.
func NewDispatchError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeDispatch,
		Message:    message,
		Stage:      StageNotifyAttempted,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// StageOf returns the lifecycle stage recorded on err, if any
func StageOf(err error) Stage {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Stage
	}
	return ""
}
