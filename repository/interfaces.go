// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/gigline/numbers/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrDuplicateActiveGig is returned when the store rejects an insert because
// a non-terminal record already exists for the gig. The partial unique index
// on gig_id raises this even when two purchases race past the flow's
// read-first check.
var ErrDuplicateActiveGig = errors.New("gig already has a non-terminal phone number")

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// PhoneNumberRepository defines operations for the number record store
type PhoneNumberRepository interface {
	Repository[models.PhoneNumberRecord, models.PhoneNumberFilter]
	ByUUID(ctx context.Context, uuid string) (*models.PhoneNumberRecord, error)
	ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.PhoneNumberRecord, error)
	ByOrderID(ctx context.Context, orderID string) ([]*models.PhoneNumberRecord, error)
	ByProviderNumberID(ctx context.Context, provider models.Provider, providerNumberID string) (*models.PhoneNumberRecord, error)
	ActiveByGigID(ctx context.Context, gigID string) (*models.PhoneNumberRecord, error)
	Update(ctx context.Context, record *models.PhoneNumberRecord) error
	Delete(ctx context.Context, id uint) error
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*models.PhoneNumberRecord, error)
}

// RequirementGroupRepository defines operations for requirement groups
type RequirementGroupRepository interface {
	Repository[models.RequirementGroup, models.RequirementGroupFilter]
	ByProviderGroupID(ctx context.Context, providerGroupID string) (*models.RequirementGroup, error)
	ActiveByCompanyAndCountry(ctx context.Context, companyID, countryCode string) (*models.RequirementGroup, error)
	Update(ctx context.Context, group *models.RequirementGroup) error
}
