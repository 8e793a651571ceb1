package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal   ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidMethod    ErrorCode = "INVALID_PAYMENT_METHOD"
	ErrCodeAmountTooHigh    ErrorCode = "AMOUNT_TOO_HIGH"
	ErrCodeMissingIdemKey   ErrorCode = "MISSING_IDEMPOTENCY_KEY"

	ErrCodeDuplicateOrder       ErrorCode = "DUPLICATE_ORDER"
	ErrCodeDuplicateReference   ErrorCode = "DUPLICATE_REFERENCE"
	ErrCodeIllegalTransition    ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeIneligibleForRefund  ErrorCode = "INELIGIBLE_FOR_REFUND"
	ErrCodeAmountExceedsPayment ErrorCode = "AMOUNT_EXCEEDS_PAYMENT"
	ErrCodeIdempotencyKeyReuse  ErrorCode = "IDEMPOTENCY_KEY_REUSE"
	ErrCodePaymentInFlight      ErrorCode = "PAYMENT_IN_FLIGHT"
	ErrCodePaymentNotFound      ErrorCode = "PAYMENT_NOT_FOUND"

	ErrCodeCollaboratorUnreachable ErrorCode = "COLLABORATOR_UNREACHABLE"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewExternalError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

// Sentinel errors for the payment lifecycle. Services return these
// unchanged so a retried client request sees the same error shape every
// time; handlers map them straight to HTTP responses.
var (
	ErrPaymentNotFound      = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrDuplicateOrder       = NewConflictError("A payment already exists for this order", ErrCodeDuplicateOrder)
	ErrDuplicateReference   = NewConflictError("A payment already exists with this reference", ErrCodeDuplicateReference)
	ErrIllegalTransition    = NewValidationError("Payment status transition not allowed", ErrCodeIllegalTransition)
	ErrIneligibleForRefund  = NewValidationError("Only completed payments can be refunded", ErrCodeIneligibleForRefund)
	ErrAmountExceedsPayment = NewValidationError("Refund amount cannot exceed payment amount", ErrCodeAmountExceedsPayment)
	ErrIdempotencyKeyReuse  = NewConflictError("Idempotency key was already used with a different payload", ErrCodeIdempotencyKeyReuse)
	ErrPaymentInFlight      = NewConflictError("A payment for this idempotency key is still processing", ErrCodePaymentInFlight)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
