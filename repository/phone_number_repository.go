package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/utils"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PhoneNumberRepositoryImpl implements PhoneNumberRepository interface
type PhoneNumberRepositoryImpl struct {
	*BaseRepository[models.PhoneNumberRecord, models.PhoneNumberFilter]
}

// NewPhoneNumberRepository creates a new phone number repository
func NewPhoneNumberRepository(db *gorm.DB) PhoneNumberRepository {
	return &PhoneNumberRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PhoneNumberRecord, models.PhoneNumberFilter](db),
	}
}

// uniqueViolation is the Postgres SQLSTATE for a rejected duplicate write
const uniqueViolation = "23505"

// Save inserts a new record, translating a unique-violation on the active-gig
// partial index into ErrDuplicateActiveGig so callers get a typed conflict
// instead of a driver error.
func (r *PhoneNumberRepositoryImpl) Save(ctx context.Context, record *models.PhoneNumberRecord) error {
	err := r.BaseRepository.Save(ctx, record)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "uk_phone_numbers_active_gig" {
			return ErrDuplicateActiveGig
		}
		return err
	}
	return nil
}

// ByUUID retrieves a record by UUID (string)
func (r *PhoneNumberRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.PhoneNumberRecord, error) {
	parsed, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.PhoneNumberFilter{UUID: &parsed}
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ByPhoneNumber retrieves a record by its E.164 value
func (r *PhoneNumberRepositoryImpl) ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.PhoneNumberRecord, error) {
	filter := models.PhoneNumberFilter{PhoneNumber: &phoneNumber}
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ByOrderID retrieves all records tied to one provider batch order
func (r *PhoneNumberRepositoryImpl) ByOrderID(ctx context.Context, orderID string) ([]*models.PhoneNumberRecord, error) {
	filter := models.PhoneNumberFilter{OrderID: &orderID}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// ByProviderNumberID retrieves the record holding the given provider-side number id
func (r *PhoneNumberRepositoryImpl) ByProviderNumberID(ctx context.Context, provider models.Provider, providerNumberID string) (*models.PhoneNumberRecord, error) {
	filter := models.PhoneNumberFilter{Provider: &provider, ProviderNumberID: &providerNumberID}
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ActiveByGigID retrieves the non-terminal record for a gig, if any
func (r *PhoneNumberRepositoryImpl) ActiveByGigID(ctx context.Context, gigID string) (*models.PhoneNumberRecord, error) {
	filter := models.PhoneNumberFilter{GigID: &gigID, StatusIn: models.NonTerminalStatuses}
	items, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// applyFilter applies filter criteria to a GORM query
func (r *PhoneNumberRepositoryImpl) applyFilter(query *gorm.DB, filter models.PhoneNumberFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.PhoneNumber != nil {
		query = query.Where("phone_number = ?", *filter.PhoneNumber)
	}
	if filter.Provider != nil {
		query = query.Where("provider = ?", *filter.Provider)
	}
	if filter.ProviderNumberID != nil {
		query = query.Where("provider_number_id = ?", *filter.ProviderNumberID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.GigID != nil {
		query = query.Where("gig_id = ?", *filter.GigID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if len(filter.StatusIn) > 0 {
		query = query.Where("status IN ?", filter.StatusIn)
	}
	if filter.OrderStatus != nil {
		query = query.Where("order_status = ?", *filter.OrderStatus)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.UpdatedBefore != nil {
		query = query.Where("updated_at < ?", *filter.UpdatedBefore)
	}
	return query
}

// ByFilter retrieves records based on filter criteria
func (r *PhoneNumberRepositoryImpl) ByFilter(ctx context.Context, filter models.PhoneNumberFilter, orderBy string, limit, offset int) ([]*models.PhoneNumberRecord, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PhoneNumberRecord{})

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

	var records []*models.PhoneNumberRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of records matching the filter
func (r *PhoneNumberRepositoryImpl) Count(ctx context.Context, filter models.PhoneNumberFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PhoneNumberRecord{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any record matching the filter exists
func (r *PhoneNumberRepositoryImpl) Exists(ctx context.Context, filter models.PhoneNumberFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update persists mutable fields for a record by ID and refreshes updated_at
func (r *PhoneNumberRepositoryImpl) Update(ctx context.Context, record *models.PhoneNumberRecord) error {
	if record == nil {
		return errors.New("phone number payload is nil")
	}
	if record.ID == 0 {
		return errors.New("phone number ID is required for update")
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
	if record.Status != "" {
		updates["status"] = record.Status
	}
	if record.OrderStatus != "" {
		updates["order_status"] = record.OrderStatus
	}
	if record.ProviderNumberID != nil {
		updates["provider_number_id"] = *record.ProviderNumberID
	}
	if record.OrderID != nil {
		updates["order_id"] = *record.OrderID
	}
	if record.Features != nil {
		updates["features"] = record.Features
	}
	if record.ConnectionID != nil {
		updates["connection_id"] = *record.ConnectionID
	}
	if record.WebhookURL != nil {
		updates["webhook_url"] = *record.WebhookURL
	}
	if record.RequirementGroupID != nil {
		updates["requirement_group_id"] = *record.RequirementGroupID
	}
	if record.ErrorDetails != nil {
		// map-based Updates bypasses the field serializer
		raw, mErr := json.Marshal(record.ErrorDetails)
		if mErr != nil {
			err = mErr
			return err
		}
		updates["error_details"] = json.RawMessage(raw)
	}
	if record.Metadata != nil {
		updates["metadata"] = record.Metadata
	}

	result := db.Model(&models.PhoneNumberRecord{}).
		Where("id = ?", record.ID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("phone number not found with ID: " + strconv.Itoa(int(record.ID)))
	}
	return nil
}

// Delete removes a record by ID
func (r *PhoneNumberRepositoryImpl) Delete(ctx context.Context, id uint) error {
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

	result := db.Where("id = ?", id).Delete(&models.PhoneNumberRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("phone number not found with ID: " + strconv.Itoa(int(id)))
	}
	return nil
}

// ListStaleProcessing returns records stuck in processing since before the
// given time. No scheduler consumes this; it exists for operator drift
// queries against orders that never received a terminal webhook.
func (r *PhoneNumberRepositoryImpl) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*models.PhoneNumberRecord, error) {
	status := models.PhoneNumberStatusProcessing
	filter := models.PhoneNumberFilter{Status: &status, UpdatedBefore: &olderThan}
	return r.ByFilter(ctx, filter, "updated_at ASC", 0, 0)
}
