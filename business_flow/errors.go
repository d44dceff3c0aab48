// Package businessflow contains the core business logic for number provisioning and reconciliation
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Purchase validation errors
	ErrPhoneNumberRequired = errors.New("phone number is required")
	ErrInvalidProvider     = errors.New("provider must be telnyx or twilio")
	ErrGigIDRequired       = errors.New("gig ID is required")
	ErrCompanyIDRequired   = errors.New("company ID is required")

	// Conflict errors
	ErrGigAlreadyHasNumber = errors.New("a number is already associated with this gig")

	// Lookup errors
	ErrPhoneNumberNotFound      = errors.New("phone number not found")
	ErrRequirementGroupNotFound = errors.New("requirement group not found")

	// Provider-reported errors during purchase
	ErrInsufficientBalance      = errors.New("provider balance is insufficient")
	ErrNumberNotAvailable       = errors.New("number is no longer available")
	ErrNumberAlreadyRegistered  = errors.New("number is already registered")
	ErrProviderRejected         = errors.New("provider rejected the request")
	ErrUnsupportedProvider      = errors.New("no gateway configured for provider")

	// Webhook errors
	ErrMissingSignatureHeaders = errors.New("missing webhook signature headers")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrMalformedWebhookEvent   = errors.New("malformed webhook event")

	// Webhook URL update errors
	ErrWebhookURLRequired = errors.New("webhook URL is required")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsPhoneNumberRequired(err error) bool {
	return errors.Is(err, ErrPhoneNumberRequired)
}

func IsInvalidProvider(err error) bool {
	return errors.Is(err, ErrInvalidProvider)
}

func IsGigIDRequired(err error) bool {
	return errors.Is(err, ErrGigIDRequired)
}

func IsCompanyIDRequired(err error) bool {
	return errors.Is(err, ErrCompanyIDRequired)
}

// IsValidationError reports whether err is any of the purchase precondition
// failures that must map to a 400 without side effects
func IsValidationError(err error) bool {
	return IsPhoneNumberRequired(err) ||
		IsInvalidProvider(err) ||
		IsGigIDRequired(err) ||
		IsCompanyIDRequired(err) ||
		errors.Is(err, ErrWebhookURLRequired)
}

func IsGigAlreadyHasNumber(err error) bool {
	return errors.Is(err, ErrGigAlreadyHasNumber)
}

func IsPhoneNumberNotFound(err error) bool {
	return errors.Is(err, ErrPhoneNumberNotFound)
}

func IsRequirementGroupNotFound(err error) bool {
	return errors.Is(err, ErrRequirementGroupNotFound)
}

func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

func IsNumberNotAvailable(err error) bool {
	return errors.Is(err, ErrNumberNotAvailable)
}

func IsNumberAlreadyRegistered(err error) bool {
	return errors.Is(err, ErrNumberAlreadyRegistered)
}

func IsProviderRejected(err error) bool {
	return errors.Is(err, ErrProviderRejected)
}

func IsUnsupportedProvider(err error) bool {
	return errors.Is(err, ErrUnsupportedProvider)
}

func IsMissingSignatureHeaders(err error) bool {
	return errors.Is(err, ErrMissingSignatureHeaders)
}

func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

func IsMalformedWebhookEvent(err error) bool {
	return errors.Is(err, ErrMalformedWebhookEvent)
}
