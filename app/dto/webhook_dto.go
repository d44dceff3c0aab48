package dto

import "encoding/json"

// WebhookEventRequest is the Telnyx v2 webhook envelope. The payload shape
// depends on data.event_type, so it stays raw until the dispatcher picks a
// concrete type.
type WebhookEventRequest struct {
	Data WebhookEventData `json:"data" validate:"required"`
}

// WebhookEventData is the common part of every provider event
type WebhookEventData struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// OrderEventPayload is the payload of number_order.* events
type OrderEventPayload struct {
	ID                string                  `json:"id"`
	Status            string                  `json:"status"`
	CustomerReference string                  `json:"customer_reference,omitempty"`
	ErrorCode         string                  `json:"error_code,omitempty"`
	ErrorDetail       string                  `json:"error_detail,omitempty"`
	PhoneNumbers      []OrderEventPhoneNumber `json:"phone_numbers"`
}

// OrderEventPhoneNumber is one number inside an order event
type OrderEventPhoneNumber struct {
	ID                     string                     `json:"id"`
	PhoneNumber            string                     `json:"phone_number"`
	Status                 string                     `json:"status"`
	RequirementsMet        bool                       `json:"requirements_met"`
	RegulatoryRequirements []RegulatoryRequirementDTO `json:"regulatory_requirements,omitempty"`
}

// RegulatoryRequirementDTO is one outstanding regulatory field reported by
// the provider on a requirements-info-pending order
type RegulatoryRequirementDTO struct {
	RequirementID string `json:"requirement_id"`
	FieldType     string `json:"field_type"`
	FieldValue    string `json:"field_value,omitempty"`
	Status        string `json:"status"`
}

// RequirementGroupEventPayload is the payload of requirement_group.updated
type RequirementGroupEventPayload struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CountryCode string `json:"country_code,omitempty"`
}

// ReconcileSummary reports the outcome of applying one order event
type ReconcileSummary struct {
	Matched int `json:"matched"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// WebhookAckResponse acknowledges a processed (or ignored) webhook
type WebhookAckResponse struct {
	Message string            `json:"message"`
	Summary *ReconcileSummary `json:"summary,omitempty"`
}
