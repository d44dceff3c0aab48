package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/utils"
	"gorm.io/gorm"
)

// RequirementGroupRepositoryImpl implements RequirementGroupRepository interface
type RequirementGroupRepositoryImpl struct {
	*BaseRepository[models.RequirementGroup, models.RequirementGroupFilter]
}

// NewRequirementGroupRepository creates a new requirement group repository
func NewRequirementGroupRepository(db *gorm.DB) RequirementGroupRepository {
	return &RequirementGroupRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RequirementGroup, models.RequirementGroupFilter](db),
	}
}

// ByProviderGroupID retrieves a group by its provider-side identifier
func (r *RequirementGroupRepositoryImpl) ByProviderGroupID(ctx context.Context, providerGroupID string) (*models.RequirementGroup, error) {
	filter := models.RequirementGroupFilter{ProviderGroupID: &providerGroupID}
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ActiveByCompanyAndCountry retrieves the newest active, unexpired group for
// a (company, country) pair
func (r *RequirementGroupRepositoryImpl) ActiveByCompanyAndCountry(ctx context.Context, companyID, countryCode string) (*models.RequirementGroup, error) {
	status := models.RequirementGroupStatusActive
	now := utils.UTCNow()
	filter := models.RequirementGroupFilter{
		CompanyID:   &companyID,
		CountryCode: &countryCode,
		Status:      &status,
		ValidAfter:  &now,
	}
	items, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// applyFilter applies filter criteria to a GORM query
func (r *RequirementGroupRepositoryImpl) applyFilter(query *gorm.DB, filter models.RequirementGroupFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.ProviderGroupID != nil {
		query = query.Where("provider_group_id = ?", *filter.ProviderGroupID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.CountryCode != nil {
		query = query.Where("country_code = ?", *filter.CountryCode)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ValidAfter != nil {
		query = query.Where("valid_until > ?", *filter.ValidAfter)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves groups based on filter criteria
func (r *RequirementGroupRepositoryImpl) ByFilter(ctx context.Context, filter models.RequirementGroupFilter, orderBy string, limit, offset int) ([]*models.RequirementGroup, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.RequirementGroup{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var groups []*models.RequirementGroup
	if err := query.Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// Count returns the number of groups matching the filter
func (r *RequirementGroupRepositoryImpl) Count(ctx context.Context, filter models.RequirementGroupFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.RequirementGroup{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any group matching the filter exists
func (r *RequirementGroupRepositoryImpl) Exists(ctx context.Context, filter models.RequirementGroupFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update persists mutable fields for a group by ID and refreshes updated_at
func (r *RequirementGroupRepositoryImpl) Update(ctx context.Context, group *models.RequirementGroup) error {
	if group == nil {
		return errors.New("requirement group payload is nil")
	}
	if group.ID == 0 {
		return errors.New("requirement group ID is required for update")
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	updates := map[string]any{
		"updated_at": utils.UTCNow(),
	}
	if group.ProviderGroupID != nil {
		updates["provider_group_id"] = *group.ProviderGroupID
	}
	if group.Status != "" {
		updates["status"] = group.Status
	}
	if group.Requirements != nil {
		// map-based Updates bypasses the field serializer
		raw, mErr := json.Marshal(group.Requirements)
		if mErr != nil {
			err = mErr
			return err
		}
		updates["requirements"] = json.RawMessage(raw)
	}
	if group.ValidUntil != nil {
		updates["valid_until"] = *group.ValidUntil
	}

	result := db.Model(&models.RequirementGroup{}).
		Where("id = ?", group.ID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("requirement group not found with ID: " + strconv.Itoa(int(group.ID)))
	}
	return nil
}
