package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeAuthRequired represents missing or invalid authentication (401)
	ErrorTypeAuthRequired ErrorType = "auth_required"
	// ErrorTypeInsufficientCredits represents an exhausted credit balance (402)
	ErrorTypeInsufficientCredits ErrorType = "insufficient_credits"
	// ErrorTypeProfileUnavailable represents a profile that could neither be read nor created (503)
	ErrorTypeProfileUnavailable ErrorType = "profile_unavailable"
	// ErrorTypeGeneration represents a failed generation call (502)
	ErrorTypeGeneration ErrorType = "generation_failed"
	// ErrorTypeCheckout represents a failed checkout session creation (502)
	ErrorTypeCheckout ErrorType = "checkout_creation_failed"
	// ErrorTypeSignature represents a webhook signature verification failure (400)
	ErrorTypeSignature ErrorType = "signature_invalid"
	// ErrorTypeCommit represents a failure to finalize an already-debited generation (500)
	ErrorTypeCommit ErrorType = "commit_failed"
	// ErrorTypeInvalidAmount represents a non-positive ledger amount (400)
	ErrorTypeInvalidAmount ErrorType = "invalid_amount"
	// ErrorTypeValidation represents request validation errors (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitzero"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeAuthRequired:
		return http.StatusUnauthorized
	case ErrorTypeInsufficientCredits:
		return http.StatusPaymentRequired
	case ErrorTypeProfileUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGeneration, ErrorTypeCheckout:
		return http.StatusBadGateway
	case ErrorTypeSignature, ErrorTypeInvalidAmount, ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// NewAuthRequiredError creates an authentication-required error
func NewAuthRequiredError() *AppError {
	return &AppError{
		Type:       ErrorTypeAuthRequired,
		Message:    "authentication required",
		Code:       "AUTH_REQUIRED",
		StatusCode: http.StatusUnauthorized,
		Retryable:  false,
	}
}

// NewInsufficientCreditsError creates an insufficient-credits error
func NewInsufficientCreditsError(balance int64) *AppError {
	return &AppError{
		Type:       ErrorTypeInsufficientCredits,
		Message:    fmt.Sprintf("insufficient credits: balance=%d", balance),
		Code:       "INSUFFICIENT_CREDITS",
		StatusCode: http.StatusPaymentRequired,
		Retryable:  false,
	}
}

// NewProfileUnavailableError creates a profile-unavailable error
func NewProfileUnavailableError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProfileUnavailable,
		Message:    "profile is currently unavailable",
		Code:       "PROFILE_UNAVAILABLE",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewGenerationError creates a generation error. The cause is kept for
// logging; Message is safe to show to the end user.
func NewGenerationError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeGeneration,
		Message:    "Failed to generate content. Please check your connection or try a different theme.",
		Code:       "GENERATION_FAILED",
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewCheckoutError creates a checkout-creation error
func NewCheckoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCheckout,
		Message:    message,
		Code:       "CHECKOUT_CREATION_FAILED",
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewSignatureError creates a webhook signature verification error
func NewSignatureError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeSignature,
		Message:    "webhook signature verification failed",
		Code:       "SIGNATURE_INVALID",
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewCommitError creates a commit error for an already-debited generation
func NewCommitError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCommit,
		Message:    "failed to finalize generation",
		Code:       "COMMIT_FAILED",
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewInvalidAmountError creates an invalid-amount error
func NewInvalidAmountError(amount int64) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidAmount,
		Message:    fmt.Sprintf("amount must be positive, got %d", amount),
		Code:       "INVALID_AMOUNT",
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		// Return a copy without the internal cause
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
		}
	}

	return NewInternalError("an unexpected error occurred", err)
}
