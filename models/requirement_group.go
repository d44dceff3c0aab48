package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequirementGroupStatus is the lifecycle status of a regulatory requirement group
type RequirementGroupStatus string

const (
	RequirementGroupStatusPending  RequirementGroupStatus = "pending"
	RequirementGroupStatusActive   RequirementGroupStatus = "active"
	RequirementGroupStatusRejected RequirementGroupStatus = "rejected"
)

// RequirementType classifies a single regulatory field
type RequirementType string

const (
	RequirementTypeDocument RequirementType = "document"
	RequirementTypeTextual  RequirementType = "textual"
	RequirementTypeAddress  RequirementType = "address"
)

// RequirementStatus is the approval status of a single requirement entry
type RequirementStatus string

const (
	RequirementStatusPending  RequirementStatus = "pending"
	RequirementStatusApproved RequirementStatus = "approved"
	RequirementStatusRejected RequirementStatus = "rejected"
)

// Requirement is one regulatory field inside a group: a value or a document
// reference, plus its submission and approval state.
type Requirement struct {
	Field             string            `json:"field"`
	Type              RequirementType   `json:"type"`
	Value             *string           `json:"value,omitempty"`
	DocumentReference *string           `json:"document_reference,omitempty"`
	SubmittedAt       *time.Time        `json:"submitted_at,omitempty"`
	Status            RequirementStatus `json:"status"`
	RejectionReason   *string           `json:"rejection_reason,omitempty"`
}

// RequirementGroup bundles the regulatory fields one country demands before a
// number there can go live. One group per (company, destination country).
// Table: requirement_groups
type RequirementGroup struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_requirement_groups_uuid" json:"uuid"`

	// Provider-side identifier for the group (sparse; assigned on creation)
	ProviderGroupID *string `gorm:"size:255;uniqueIndex:uk_requirement_groups_provider,where:provider_group_id IS NOT NULL" json:"provider_group_id,omitempty"`

	CompanyID   string `gorm:"size:255;not null;index:idx_requirement_groups_company_country,priority:1" json:"company_id"`
	CountryCode string `gorm:"size:5;not null;index:idx_requirement_groups_company_country,priority:2" json:"country_code"`

	Status RequirementGroupStatus `gorm:"type:varchar(15);not null;default:'pending';index:idx_requirement_groups_status" json:"status"`

	Requirements []Requirement `gorm:"type:jsonb;serializer:json;not null;default:'[]'" json:"requirements"`

	// A group past this date is unusable for new orders and must be recreated
	ValidUntil *time.Time `gorm:"index:idx_requirement_groups_valid_until" json:"valid_until,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RequirementGroup) TableName() string {
	return "requirement_groups"
}

// BeforeCreate ensures the UUID is set
func (g *RequirementGroup) BeforeCreate(tx *gorm.DB) error {
	if g.UUID == uuid.Nil {
		g.UUID = uuid.New()
	}
	return nil
}

// IsValid reports whether the group has not expired. A group without a
// validUntil never expires, matching provider behavior for unregulated
// countries.
func (g *RequirementGroup) IsValid() bool {
	if g.ValidUntil == nil {
		return true
	}
	return time.Now().UTC().Before(*g.ValidUntil)
}

// IsComplete reports whether every requirement in the group is approved
func (g *RequirementGroup) IsComplete() bool {
	for _, req := range g.Requirements {
		if req.Status != RequirementStatusApproved {
			return false
		}
	}
	return true
}

// MissingRequirements returns the requirements not yet approved
func (g *RequirementGroup) MissingRequirements() []Requirement {
	missing := make([]Requirement, 0)
	for _, req := range g.Requirements {
		if req.Status != RequirementStatusApproved {
			missing = append(missing, req)
		}
	}
	return missing
}

// RequirementGroupFilter represents filter criteria for requirement group queries
type RequirementGroupFilter struct {
	ID              *uint
	UUID            *uuid.UUID
	ProviderGroupID *string
	CompanyID       *string
	CountryCode     *string
	Status          *RequirementGroupStatus
	ValidAfter      *time.Time
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
}
