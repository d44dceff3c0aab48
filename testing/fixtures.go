package testing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigline/numbers/app/services"
	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/repository"
)

// FakePhoneNumberRepository is an in-memory PhoneNumberRepository. It
// enforces the same one-non-terminal-record-per-gig rule the partial index
// enforces in postgres.
type FakePhoneNumberRepository struct {
	mu      sync.Mutex
	records map[uint]*models.PhoneNumberRecord
	nextID  uint

	SaveErr   error
	UpdateErr error
	DeleteErr error

	UpdateCalls int
	DeleteCalls int
}

func NewFakePhoneNumberRepository() *FakePhoneNumberRepository {
	return &FakePhoneNumberRepository{records: make(map[uint]*models.PhoneNumberRecord)}
}

// Seed inserts a record directly, bypassing uniqueness checks
func (f *FakePhoneNumberRepository) Seed(record *models.PhoneNumberRecord) *models.PhoneNumberRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	record.ID = f.nextID
	if record.UUID == uuid.Nil {
		record.UUID = uuid.New()
	}
	stored := *record
	f.records[record.ID] = &stored
	return record
}

// Get returns the stored copy of a record
func (f *FakePhoneNumberRepository) Get(id uint) *models.PhoneNumberRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[id]; ok {
		clone := *r
		return &clone
	}
	return nil
}

func (f *FakePhoneNumberRepository) Save(ctx context.Context, record *models.PhoneNumberRecord) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.GigID == record.GigID && !r.IsTerminal() {
			return repository.ErrDuplicateActiveGig
		}
	}
	f.nextID++
	record.ID = f.nextID
	if record.UUID == uuid.Nil {
		record.UUID = uuid.New()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	stored := *record
	f.records[record.ID] = &stored
	return nil
}

func (f *FakePhoneNumberRepository) Update(ctx context.Context, record *models.PhoneNumberRecord) error {
	f.UpdateCalls++
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record.UpdatedAt = time.Now().UTC()
	stored := *record
	f.records[record.ID] = &stored
	return nil
}

func (f *FakePhoneNumberRepository) Delete(ctx context.Context, id uint) error {
	f.DeleteCalls++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *FakePhoneNumberRepository) ByID(ctx context.Context, id uint) (*models.PhoneNumberRecord, error) {
	return f.Get(id), nil
}

func (f *FakePhoneNumberRepository) ByUUID(ctx context.Context, id string) (*models.PhoneNumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UUID.String() == id {
			clone := *r
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *FakePhoneNumberRepository) ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.PhoneNumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.PhoneNumber == phoneNumber {
			clone := *r
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *FakePhoneNumberRepository) ByOrderID(ctx context.Context, orderID string) ([]*models.PhoneNumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PhoneNumberRecord
	for _, r := range f.records {
		if r.OrderID != nil && *r.OrderID == orderID {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *FakePhoneNumberRepository) ByProviderNumberID(ctx context.Context, provider models.Provider, providerNumberID string) (*models.PhoneNumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Provider == provider && r.ProviderNumberID != nil && *r.ProviderNumberID == providerNumberID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *FakePhoneNumberRepository) ActiveByGigID(ctx context.Context, gigID string) (*models.PhoneNumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.GigID == gigID && !r.IsTerminal() {
			clone := *r
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *FakePhoneNumberRepository) ByFilter(ctx context.Context, filter models.PhoneNumberFilter, orderBy string, limit, offset int) ([]*models.PhoneNumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PhoneNumberRecord
	for _, r := range f.records {
		if matchesNumberFilter(r, filter) {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *FakePhoneNumberRepository) Count(ctx context.Context, filter models.PhoneNumberFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if matchesNumberFilter(r, filter) {
			n++
		}
	}
	return n, nil
}

func (f *FakePhoneNumberRepository) Exists(ctx context.Context, filter models.PhoneNumberFilter) (bool, error) {
	n, _ := f.Count(ctx, filter)
	return n > 0, nil
}

func (f *FakePhoneNumberRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*models.PhoneNumberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PhoneNumberRecord
	for _, r := range f.records {
		if r.Status == models.PhoneNumberStatusProcessing && r.UpdatedAt.Before(olderThan) {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func matchesNumberFilter(r *models.PhoneNumberRecord, filter models.PhoneNumberFilter) bool {
	if filter.CompanyID != nil && r.CompanyID != *filter.CompanyID {
		return false
	}
	if filter.GigID != nil && r.GigID != *filter.GigID {
		return false
	}
	if filter.Status != nil && r.Status != *filter.Status {
		return false
	}
	if filter.Provider != nil && r.Provider != *filter.Provider {
		return false
	}
	if filter.OrderID != nil && (r.OrderID == nil || *r.OrderID != *filter.OrderID) {
		return false
	}
	if len(filter.StatusIn) > 0 {
		found := false
		for _, s := range filter.StatusIn {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FakeRequirementGroupRepository is an in-memory RequirementGroupRepository
type FakeRequirementGroupRepository struct {
	mu     sync.Mutex
	groups map[uint]*models.RequirementGroup
	nextID uint

	SaveErr   error
	UpdateErr error

	UpdateCalls int
}

func NewFakeRequirementGroupRepository() *FakeRequirementGroupRepository {
	return &FakeRequirementGroupRepository{groups: make(map[uint]*models.RequirementGroup)}
}

// Seed inserts a group directly
func (f *FakeRequirementGroupRepository) Seed(group *models.RequirementGroup) *models.RequirementGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	group.ID = f.nextID
	if group.UUID == uuid.Nil {
		group.UUID = uuid.New()
	}
	stored := *group
	f.groups[group.ID] = &stored
	return group
}

// Get returns the stored copy of a group
func (f *FakeRequirementGroupRepository) Get(id uint) *models.RequirementGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[id]; ok {
		clone := *g
		return &clone
	}
	return nil
}

func (f *FakeRequirementGroupRepository) Save(ctx context.Context, group *models.RequirementGroup) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	group.ID = f.nextID
	if group.UUID == uuid.Nil {
		group.UUID = uuid.New()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	stored := *group
	f.groups[group.ID] = &stored
	return nil
}

func (f *FakeRequirementGroupRepository) Update(ctx context.Context, group *models.RequirementGroup) error {
	f.UpdateCalls++
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	group.UpdatedAt = time.Now().UTC()
	stored := *group
	f.groups[group.ID] = &stored
	return nil
}

func (f *FakeRequirementGroupRepository) ByID(ctx context.Context, id uint) (*models.RequirementGroup, error) {
	return f.Get(id), nil
}

func (f *FakeRequirementGroupRepository) ByProviderGroupID(ctx context.Context, providerGroupID string) (*models.RequirementGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.ProviderGroupID != nil && *g.ProviderGroupID == providerGroupID {
			clone := *g
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *FakeRequirementGroupRepository) ActiveByCompanyAndCountry(ctx context.Context, companyID, countryCode string) (*models.RequirementGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.CompanyID == companyID && g.CountryCode == countryCode &&
			g.Status == models.RequirementGroupStatusActive && g.IsValid() {
			clone := *g
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *FakeRequirementGroupRepository) ByFilter(ctx context.Context, filter models.RequirementGroupFilter, orderBy string, limit, offset int) ([]*models.RequirementGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RequirementGroup
	for _, g := range f.groups {
		if matchesGroupFilter(g, filter) {
			clone := *g
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *FakeRequirementGroupRepository) Count(ctx context.Context, filter models.RequirementGroupFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, g := range f.groups {
		if matchesGroupFilter(g, filter) {
			n++
		}
	}
	return n, nil
}

func (f *FakeRequirementGroupRepository) Exists(ctx context.Context, filter models.RequirementGroupFilter) (bool, error) {
	n, _ := f.Count(ctx, filter)
	return n > 0, nil
}

func matchesGroupFilter(g *models.RequirementGroup, filter models.RequirementGroupFilter) bool {
	if filter.UUID != nil && g.UUID != *filter.UUID {
		return false
	}
	if filter.CompanyID != nil && g.CompanyID != *filter.CompanyID {
		return false
	}
	if filter.CountryCode != nil && g.CountryCode != *filter.CountryCode {
		return false
	}
	if filter.Status != nil && g.Status != *filter.Status {
		return false
	}
	if filter.ProviderGroupID != nil && (g.ProviderGroupID == nil || *g.ProviderGroupID != *filter.ProviderGroupID) {
		return false
	}
	return true
}

// FakeProviderGateway is a scriptable ProviderGateway double recording every
// call it receives
type FakeProviderGateway struct {
	Provider models.Provider

	SearchResult []services.AvailableNumber
	SearchErr    error
	OrderResult  *services.OrderResult
	OrderErr     error
	ConfigErr    error
	DeleteErr    error
	VerifyErr    error

	SearchCalls []services.SearchInput
	OrderCalls  []services.OrderInput
	ConfigCalls []services.NumberConfigInput
	DeleteCalls []string
	VerifyCalls int
}

func NewFakeProviderGateway(provider models.Provider) *FakeProviderGateway {
	return &FakeProviderGateway{Provider: provider}
}

func (g *FakeProviderGateway) Name() models.Provider {
	return g.Provider
}

func (g *FakeProviderGateway) SearchNumbers(ctx context.Context, in services.SearchInput) ([]services.AvailableNumber, error) {
	g.SearchCalls = append(g.SearchCalls, in)
	if g.SearchErr != nil {
		return nil, g.SearchErr
	}
	return g.SearchResult, nil
}

func (g *FakeProviderGateway) CreateOrder(ctx context.Context, in services.OrderInput) (*services.OrderResult, error) {
	g.OrderCalls = append(g.OrderCalls, in)
	if g.OrderErr != nil {
		return nil, g.OrderErr
	}
	if g.OrderResult != nil {
		return g.OrderResult, nil
	}
	return &services.OrderResult{
		OrderID: "order-1",
		Status:  "pending",
		Numbers: []services.OrderedNumber{{PhoneNumber: in.PhoneNumber, Status: "pending"}},
	}, nil
}

func (g *FakeProviderGateway) UpdateNumberConfig(ctx context.Context, in services.NumberConfigInput) error {
	g.ConfigCalls = append(g.ConfigCalls, in)
	return g.ConfigErr
}

func (g *FakeProviderGateway) DeleteNumber(ctx context.Context, providerNumberID string) error {
	g.DeleteCalls = append(g.DeleteCalls, providerNumberID)
	return g.DeleteErr
}

func (g *FakeProviderGateway) VerifyWebhookSignature(payload []byte, timestamp, signature string) error {
	g.VerifyCalls++
	return g.VerifyErr
}

// FakeRequirementGroupProvisioner is a scriptable RequirementGroupProvisioner
type FakeRequirementGroupProvisioner struct {
	GroupID      string
	Requirements []services.ProviderRequirement
	Err          error

	Calls []string
}

func (p *FakeRequirementGroupProvisioner) CreateRequirementGroup(ctx context.Context, countryCode string) (string, []services.ProviderRequirement, error) {
	p.Calls = append(p.Calls, countryCode)
	if p.Err != nil {
		return "", nil, p.Err
	}
	groupID := p.GroupID
	if groupID == "" {
		groupID = "rg-provider-1"
	}
	return groupID, p.Requirements, nil
}
