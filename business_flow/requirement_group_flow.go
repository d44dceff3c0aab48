package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/services"
	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/repository"
	"github.com/gigline/numbers/utils"
)

// GroupValidity is the result of the purchase-time requirement group gate
type GroupValidity struct {
	Valid           bool
	Reason          string
	GroupID         uint
	ProviderGroupID string
}

// RequirementGroupFlow tracks regulatory requirement groups per
// (company, destination country)
type RequirementGroupFlow interface {
	// CheckValidity gates a caller-supplied group before it is attached to
	// an order. An unusable group is reported, never an error.
	CheckValidity(ctx context.Context, groupUUID string) (*GroupValidity, error)
	// FindOrCreate returns the active unexpired group for the pair, creating
	// a provider-side group when none exists
	FindOrCreate(ctx context.Context, companyID, countryCode string, metadata *ClientMetadata) (*dto.RequirementGroupDTO, error)
	// UpdateStatus applies a provider webhook to the matching group
	UpdateStatus(ctx context.Context, providerGroupID, status string, metadata *ClientMetadata) error
}

type RequirementGroupFlowImpl struct {
	groupRepo   repository.RequirementGroupRepository
	provisioner services.RequirementGroupProvisioner
}

func NewRequirementGroupFlow(
	groupRepo repository.RequirementGroupRepository,
	provisioner services.RequirementGroupProvisioner,
) RequirementGroupFlow {
	return &RequirementGroupFlowImpl{groupRepo: groupRepo, provisioner: provisioner}
}

// CheckValidity reports whether the group can back a new order
func (f *RequirementGroupFlowImpl) CheckValidity(ctx context.Context, groupUUID string) (*GroupValidity, error) {
	parsed, err := utils.ParseUUID(groupUUID)
	if err != nil {
		return &GroupValidity{Valid: false, Reason: "Group not found"}, nil
	}

	items, err := f.groupRepo.ByFilter(ctx, models.RequirementGroupFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, NewBusinessError("CHECK_GROUP_VALIDITY_FAILED", "Failed to check requirement group validity", err)
	}
	if len(items) == 0 {
		return &GroupValidity{Valid: false, Reason: "Group not found"}, nil
	}

	group := items[0]
	if group.Status != models.RequirementGroupStatusActive {
		return &GroupValidity{Valid: false, Reason: "Group not active"}, nil
	}
	if !group.IsValid() {
		return &GroupValidity{Valid: false, Reason: "Group expired"}, nil
	}

	v := &GroupValidity{Valid: true, GroupID: group.ID}
	if group.ProviderGroupID != nil {
		v.ProviderGroupID = *group.ProviderGroupID
	}
	return v, nil
}

// FindOrCreate reuses the newest active unexpired group for the pair, or
// provisions a fresh one at the provider. New groups start pending with a
// 90-day validity window.
func (f *RequirementGroupFlowImpl) FindOrCreate(ctx context.Context, companyID, countryCode string, metadata *ClientMetadata) (_ *dto.RequirementGroupDTO, err error) {
	defer func() {
		if err != nil {
			err = NewBusinessError("FIND_OR_CREATE_GROUP_FAILED", "Failed to find or create requirement group", err)
		}
	}()

	existing, err := f.groupRepo.ActiveByCompanyAndCountry(ctx, companyID, countryCode)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return ToRequirementGroupDTO(existing), nil
	}

	if f.provisioner == nil {
		err = ErrUnsupportedProvider
		return nil, err
	}

	providerGroupID, providerReqs, err := f.provisioner.CreateRequirementGroup(ctx, countryCode)
	if err != nil {
		err = mapGatewayError(err)
		return nil, err
	}

	requirements := make([]models.Requirement, 0, len(providerReqs))
	for _, r := range providerReqs {
		requirements = append(requirements, models.Requirement{
			Field:  r.RequirementID,
			Type:   requirementTypeFor(r.FieldType),
			Status: models.RequirementStatusPending,
		})
	}

	group := &models.RequirementGroup{
		ProviderGroupID: utils.ToPtr(providerGroupID),
		CompanyID:       companyID,
		CountryCode:     countryCode,
		Status:          models.RequirementGroupStatusPending,
		Requirements:    requirements,
		ValidUntil:      utils.UTCNowAddPtr(utils.RequirementGroupValidity),
	}
	if err = f.groupRepo.Save(ctx, group); err != nil {
		return nil, err
	}

	return ToRequirementGroupDTO(group), nil
}

// UpdateStatus applies a provider-reported group status change. Events for
// groups this service never created are logged and skipped so a shared
// webhook endpoint does not error on foreign traffic.
func (f *RequirementGroupFlowImpl) UpdateStatus(ctx context.Context, providerGroupID, status string, metadata *ClientMetadata) (err error) {
	defer func() {
		if err != nil {
			err = NewBusinessError("UPDATE_GROUP_STATUS_FAILED", "Failed to update requirement group status", err)
		}
	}()

	group, err := f.groupRepo.ByProviderGroupID(ctx, providerGroupID)
	if err != nil {
		return err
	}
	if group == nil {
		log.Printf("requirement group %s not tracked, skipping status update", providerGroupID)
		return nil
	}

	switch models.RequirementGroupStatus(status) {
	case models.RequirementGroupStatusActive:
		group.Status = models.RequirementGroupStatusActive
		// activation renews the validity window
		group.ValidUntil = utils.UTCNowAddPtr(utils.RequirementGroupValidity)
	case models.RequirementGroupStatusRejected:
		group.Status = models.RequirementGroupStatusRejected
	case models.RequirementGroupStatusPending:
		group.Status = models.RequirementGroupStatusPending
	default:
		log.Printf("requirement group %s reported unknown status %q, skipping", providerGroupID, status)
		return nil
	}

	err = f.groupRepo.Update(ctx, group)
	return err
}

// requirementTypeFor maps a provider field type onto the local taxonomy
func requirementTypeFor(fieldType string) models.RequirementType {
	switch fieldType {
	case "document":
		return models.RequirementTypeDocument
	case "address":
		return models.RequirementTypeAddress
	default:
		return models.RequirementTypeTextual
	}
}

// ToRequirementGroupDTO converts a group to its API representation
func ToRequirementGroupDTO(group *models.RequirementGroup) *dto.RequirementGroupDTO {
	d := &dto.RequirementGroupDTO{
		ID:          group.ID,
		UUID:        group.UUID.String(),
		CompanyID:   group.CompanyID,
		CountryCode: group.CountryCode,
		Status:      string(group.Status),
	}
	if group.ProviderGroupID != nil {
		d.ProviderGroupID = *group.ProviderGroupID
	}
	if group.ValidUntil != nil {
		d.ValidUntil = group.ValidUntil.Format(time.RFC3339)
	}
	d.Requirements = make([]dto.RequirementDTO, 0, len(group.Requirements))
	for _, r := range group.Requirements {
		rd := dto.RequirementDTO{
			Field:  r.Field,
			Type:   string(r.Type),
			Status: string(r.Status),
		}
		if r.Value != nil {
			rd.Value = *r.Value
		}
		d.Requirements = append(d.Requirements, rd)
	}
	return d
}
