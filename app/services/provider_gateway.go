// Package services contains upstream provider clients and their shared contracts
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gigline/numbers/models"
)

// SearchInput describes an available-number search
type SearchInput struct {
	CountryCode string
	NumberType  string // local, toll-free, mobile
	Features    []string
	Limit       int
}

// AvailableNumber is one purchasable number returned by a search
type AvailableNumber struct {
	PhoneNumber string
	CountryCode string
	NumberType  string
	Features    []string
}

// OrderInput describes a number purchase submitted to a provider
type OrderInput struct {
	PhoneNumber        string
	ConnectionID       string
	MessagingProfileID string
	// Provider-side requirement group id, attached only when the local
	// group passed the validity gate
	RequirementGroupID string
	CustomerReference  string
}

// OrderedNumber is the per-number slice of a provider order response
type OrderedNumber struct {
	PhoneNumber      string
	ProviderNumberID string
	Status           string
	RequirementsMet  bool
}

// OrderResult is the provider's immediate response to an order submission
type OrderResult struct {
	OrderID string
	Status  string
	Numbers []OrderedNumber
}

// NumberConfigInput carries the voice settings applied to an allocated number
type NumberConfigInput struct {
	ProviderNumberID string
	ConnectionID     string
	VoiceWebhookURL  string
}

// ProviderGateway is the capability contract for an upstream telephony
// provider. Engine business logic never touches provider SDKs directly;
// everything goes through this interface so tests can substitute a double.
type ProviderGateway interface {
	Name() models.Provider
	SearchNumbers(ctx context.Context, in SearchInput) ([]AvailableNumber, error)
	CreateOrder(ctx context.Context, in OrderInput) (*OrderResult, error)
	UpdateNumberConfig(ctx context.Context, in NumberConfigInput) error
	DeleteNumber(ctx context.Context, providerNumberID string) error
	// VerifyWebhookSignature checks a webhook over the raw request body.
	// The signed message is timestamp + body.
	VerifyWebhookSignature(payload []byte, timestamp, signature string) error
}

// ProviderRequirement is one regulatory field the provider demands before a
// number in a regulated country can activate
type ProviderRequirement struct {
	RequirementID string
	FieldType     string
}

// RequirementGroupProvisioner creates provider-side requirement groups.
// Only Telnyx models regulatory requirements as a first-class resource, so
// this sits outside ProviderGateway.
type RequirementGroupProvisioner interface {
	CreateRequirementGroup(ctx context.Context, countryCode string) (providerGroupID string, requirements []ProviderRequirement, err error)
}

// GatewayErrorKind classifies provider rejections the Engine must map to
// distinct domain errors
type GatewayErrorKind string

const (
	GatewayErrorInsufficientFunds  GatewayErrorKind = "insufficient_funds"
	GatewayErrorNumberUnavailable  GatewayErrorKind = "number_not_available"
	GatewayErrorAlreadyRegistered  GatewayErrorKind = "already_registered"
	GatewayErrorInvalidSignature   GatewayErrorKind = "invalid_signature"
	GatewayErrorOther              GatewayErrorKind = "provider_error"
)

// GatewayError is a typed provider rejection. Kind is assigned at creation
// from the provider's status and error code, never inferred from message
// text downstream.
type GatewayError struct {
	Kind       GatewayErrorKind
	Code       string
	Message    string
	HTTPStatus int
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
}

// AsGatewayError unwraps err into a *GatewayError if it is one
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// kindForStatus maps an upstream HTTP status to an error kind. Providers
// agree on 402 for balance problems; availability and duplicate allocation
// surface as 404/410 and 409 respectively on both Telnyx and Twilio.
func kindForStatus(status int) GatewayErrorKind {
	switch status {
	case 402:
		return GatewayErrorInsufficientFunds
	case 404, 410:
		return GatewayErrorNumberUnavailable
	case 409:
		return GatewayErrorAlreadyRegistered
	default:
		return GatewayErrorOther
	}
}
