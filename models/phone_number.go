// Package models contains domain entities and business models for the telephony backend
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Provider identifies the upstream telephony provider a number belongs to
type Provider string

const (
	ProviderTelnyx Provider = "telnyx"
	ProviderTwilio Provider = "twilio"
)

// IsValid reports whether the provider is one of the supported upstreams
func (p Provider) IsValid() bool {
	return p == ProviderTelnyx || p == ProviderTwilio
}

// PhoneNumberStatus is the coarse local lifecycle status of a number record
type PhoneNumberStatus string

const (
	PhoneNumberStatusPending             PhoneNumberStatus = "pending"              // Record created, order not yet submitted
	PhoneNumberStatusProcessing          PhoneNumberStatus = "processing"           // Provider order submitted, awaiting webhook
	PhoneNumberStatusRequirementsPending PhoneNumberStatus = "requirements_pending" // Provider is waiting for regulatory info
	PhoneNumberStatusActive              PhoneNumberStatus = "active"               // Number allocated and configured
	PhoneNumberStatusError               PhoneNumberStatus = "error"                // Order or configuration failed
	PhoneNumberStatusDeleted             PhoneNumberStatus = "deleted"              // Released, or the provider order expired
)

// OrderStatus is the fine-grained provider-reported status of a number order
type OrderStatus string

const (
	OrderStatusPending             OrderStatus = "pending"
	OrderStatusRequirementsPending OrderStatus = "requirements-info-pending"
	OrderStatusInProgress          OrderStatus = "in-progress"
	OrderStatusCompleted           OrderStatus = "completed"
	OrderStatusFailed              OrderStatus = "failed"
	OrderStatusExpired             OrderStatus = "expired"
)

// ErrorDetails captures the last failure recorded against a number record.
// Present only when Status is error.
type ErrorDetails struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PhoneNumberRecord represents one purchased or attempted phone number.
// Table: phone_numbers
// Unique by PhoneNumber value; ProviderNumberID unique per provider (sparse).
// The partial unique index on gig_id (non-terminal statuses only) enforces
// at-most-one non-terminal number per gig at the store level, so the second
// of two concurrent purchases fails atomically instead of racing the
// read-then-write check in the flow.
type PhoneNumberRecord struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_phone_numbers_uuid" json:"uuid"`

	PhoneNumber string `gorm:"size:20;not null;uniqueIndex:uk_phone_numbers_value" json:"phone_number"`

	// Provider linkage
	Provider         Provider `gorm:"type:varchar(10);not null;index:idx_phone_numbers_provider" json:"provider"`
	ProviderNumberID *string  `gorm:"size:255;uniqueIndex:uk_phone_numbers_provider_number,where:provider_number_id IS NOT NULL" json:"provider_number_id,omitempty"`
	OrderID          *string  `gorm:"size:255;index:idx_phone_numbers_order_id" json:"order_id,omitempty"`

	// Ownership linkage
	GigID     string `gorm:"size:255;not null;uniqueIndex:uk_phone_numbers_active_gig,where:status IN ('pending','processing','requirements_pending','active')" json:"gig_id"`
	CompanyID string `gorm:"size:255;not null;index:idx_phone_numbers_company_id" json:"company_id"`

	Status      PhoneNumberStatus `gorm:"type:varchar(25);not null;default:'pending';index:idx_phone_numbers_status" json:"status"`
	OrderStatus OrderStatus       `gorm:"type:varchar(30);not null;default:'pending'" json:"order_status"`

	// Enabled capabilities as confirmed by the provider (voice/sms/mms).
	// Empty until the order completes.
	Features pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"features"`

	// Voice configuration applied on activation
	ConnectionID *string `gorm:"size:255" json:"connection_id,omitempty"`
	WebhookURL   *string `gorm:"type:text" json:"webhook_url,omitempty"`

	RequirementGroupID *uint `gorm:"index:idx_phone_numbers_requirement_group" json:"requirement_group_id,omitempty"`

	ErrorDetails *ErrorDetails   `gorm:"type:jsonb;serializer:json" json:"error_details,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_phone_numbers_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PhoneNumberRecord) TableName() string {
	return "phone_numbers"
}

// BeforeCreate ensures the UUID is set
func (r *PhoneNumberRecord) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	return nil
}

// NonTerminalStatuses are the statuses counted against the one-number-per-gig
// invariant. Must stay in sync with the partial index on gig_id.
var NonTerminalStatuses = []PhoneNumberStatus{
	PhoneNumberStatusPending,
	PhoneNumberStatusProcessing,
	PhoneNumberStatusRequirementsPending,
	PhoneNumberStatusActive,
}

// IsTerminal reports whether the record is in a terminal state
func (r *PhoneNumberRecord) IsTerminal() bool {
	return r.Status == PhoneNumberStatusError || r.Status == PhoneNumberStatusDeleted
}

// HasFeature reports whether the provider confirmed the given capability
func (r *PhoneNumberRecord) HasFeature(feature string) bool {
	for _, f := range r.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// LocalStatusFor maps a provider-reported order status to the local status it
// forces, if any. The second return is false for order statuses that leave
// the local status unchanged (e.g. in-progress).
func LocalStatusFor(orderStatus OrderStatus) (PhoneNumberStatus, bool) {
	switch orderStatus {
	case OrderStatusRequirementsPending:
		return PhoneNumberStatusRequirementsPending, true
	case OrderStatusCompleted:
		return PhoneNumberStatusActive, true
	case OrderStatusFailed:
		return PhoneNumberStatusError, true
	case OrderStatusExpired:
		return PhoneNumberStatusDeleted, true
	default:
		return "", false
	}
}

// PhoneNumberFilter represents filter criteria for phone number queries
type PhoneNumberFilter struct {
	ID               *uint
	UUID             *uuid.UUID
	PhoneNumber      *string
	Provider         *Provider
	ProviderNumberID *string
	OrderID          *string
	GigID            *string
	CompanyID        *string
	Status           *PhoneNumberStatus
	StatusIn         []PhoneNumberStatus
	OrderStatus      *OrderStatus
	CreatedAfter     *time.Time
	CreatedBefore    *time.Time
	UpdatedBefore    *time.Time
}
