// Package businessflow contains the business logic for the application.
package businessflow

import (
	"fmt"
	"time"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/services"
	"github.com/gigline/numbers/models"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// mapGatewayError translates a typed provider rejection into the matching
// domain sentinel. Non-gateway errors pass through untouched.
func mapGatewayError(err error) error {
	ge, ok := services.AsGatewayError(err)
	if !ok {
		return err
	}
	switch ge.Kind {
	case services.GatewayErrorInsufficientFunds:
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, ge.Message)
	case services.GatewayErrorNumberUnavailable:
		return fmt.Errorf("%w: %s", ErrNumberNotAvailable, ge.Message)
	case services.GatewayErrorAlreadyRegistered:
		return fmt.Errorf("%w: %s", ErrNumberAlreadyRegistered, ge.Message)
	case services.GatewayErrorInvalidSignature:
		return fmt.Errorf("%w: %s", ErrInvalidSignature, ge.Message)
	default:
		return fmt.Errorf("%w: %s", ErrProviderRejected, ge.Message)
	}
}

// ToPhoneNumberDTO converts a record to its API representation
func ToPhoneNumberDTO(record models.PhoneNumberRecord) dto.PhoneNumberDTO {
	d := dto.PhoneNumberDTO{
		ID:          record.ID,
		UUID:        record.UUID.String(),
		PhoneNumber: record.PhoneNumber,
		Provider:    string(record.Provider),
		Status:      string(record.Status),
		OrderStatus: string(record.OrderStatus),
		Features:    record.Features,
		GigID:       record.GigID,
		CompanyID:   record.CompanyID,
		CreatedAt:   record.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   record.UpdatedAt.Format(time.RFC3339),
	}
	if record.ProviderNumberID != nil {
		d.ProviderNumberID = *record.ProviderNumberID
	}
	if record.OrderID != nil {
		d.OrderID = *record.OrderID
	}
	if record.WebhookURL != nil {
		d.WebhookURL = *record.WebhookURL
	}
	if record.ErrorDetails != nil {
		d.ErrorDetails = &dto.ErrorDetailsDTO{
			Code:      record.ErrorDetails.Code,
			Message:   record.ErrorDetails.Message,
			Timestamp: record.ErrorDetails.Timestamp.Format(time.RFC3339),
		}
	}
	return d
}
