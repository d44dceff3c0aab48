package businessflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/services"
	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/repository"
	testhelpers "github.com/gigline/numbers/testing"
	"github.com/gigline/numbers/utils"
)

type numberFlowFixture struct {
	repo      *testhelpers.FakePhoneNumberRepository
	groupRepo *testhelpers.FakeRequirementGroupRepository
	gateway   *testhelpers.FakeProviderGateway
	flow      PhoneNumberFlow
}

func newNumberFlowFixture() *numberFlowFixture {
	repo := testhelpers.NewFakePhoneNumberRepository()
	groupRepo := testhelpers.NewFakeRequirementGroupRepository()
	gateway := testhelpers.NewFakeProviderGateway(models.ProviderTelnyx)
	groups := NewRequirementGroupFlow(groupRepo, &testhelpers.FakeRequirementGroupProvisioner{})
	flow := NewPhoneNumberFlow(
		repo,
		groups,
		map[models.Provider]services.ProviderGateway{models.ProviderTelnyx: gateway},
		VoiceSettings{
			ConnectionID:       "conn-1",
			MessagingProfileID: "mp-1",
			DefaultWebhookURL:  "https://hooks.example.com/voice",
		},
	)
	return &numberFlowFixture{repo: repo, groupRepo: groupRepo, gateway: gateway, flow: flow}
}

func validPurchaseRequest() *dto.PurchaseNumberRequest {
	return &dto.PurchaseNumberRequest{
		PhoneNumber: "+15551234567",
		Provider:    "telnyx",
		GigID:       "gig-1",
		CompanyID:   "company-1",
	}
}

func TestPurchaseNumberValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(req *dto.PurchaseNumberRequest)
		expected error
	}{
		{
			name:     "missing phone number",
			mutate:   func(req *dto.PurchaseNumberRequest) { req.PhoneNumber = "" },
			expected: ErrPhoneNumberRequired,
		},
		{
			name:     "unknown provider",
			mutate:   func(req *dto.PurchaseNumberRequest) { req.Provider = "vonage" },
			expected: ErrInvalidProvider,
		},
		{
			name:     "missing gig id",
			mutate:   func(req *dto.PurchaseNumberRequest) { req.GigID = "" },
			expected: ErrGigIDRequired,
		},
		{
			name:     "missing company id",
			mutate:   func(req *dto.PurchaseNumberRequest) { req.CompanyID = "" },
			expected: ErrCompanyIDRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newNumberFlowFixture()
			req := validPurchaseRequest()
			tt.mutate(req)

			_, err := fx.flow.PurchaseNumber(context.Background(), req, NewClientMetadata("127.0.0.1", "test"))

			require.ErrorIs(t, err, tt.expected)
			assert.True(t, IsValidationError(err))
			assert.Empty(t, fx.gateway.OrderCalls, "validation failures must not reach the provider")
		})
	}
}

func TestPurchaseNumberSuccess(t *testing.T) {
	fx := newNumberFlowFixture()
	fx.gateway.OrderResult = &services.OrderResult{
		OrderID: "ord-77",
		Status:  "pending",
		Numbers: []services.OrderedNumber{
			{PhoneNumber: "+15551234567", ProviderNumberID: "pn-42", Status: "pending"},
		},
	}

	resp, err := fx.flow.PurchaseNumber(context.Background(), validPurchaseRequest(), NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	assert.Equal(t, "processing", resp.Number.Status)
	assert.Equal(t, "pending", resp.Number.OrderStatus)
	assert.Equal(t, "ord-77", resp.Number.OrderID)
	assert.Equal(t, "pn-42", resp.Number.ProviderNumberID)

	require.Len(t, fx.gateway.OrderCalls, 1)
	assert.Equal(t, "conn-1", fx.gateway.OrderCalls[0].ConnectionID)
	assert.Equal(t, "gig-1", fx.gateway.OrderCalls[0].CustomerReference)

	stored := fx.repo.Get(resp.Number.ID)
	require.NotNil(t, stored)
	assert.Equal(t, models.PhoneNumberStatusProcessing, stored.Status)
	assert.Equal(t, models.OrderStatusPending, stored.OrderStatus)
}

func TestPurchaseNumberGigConflict(t *testing.T) {
	fx := newNumberFlowFixture()
	fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15550000001",
		Provider:    models.ProviderTelnyx,
		GigID:       "gig-1",
		CompanyID:   "company-1",
		Status:      models.PhoneNumberStatusActive,
	})

	_, err := fx.flow.PurchaseNumber(context.Background(), validPurchaseRequest(), NewClientMetadata("127.0.0.1", "test"))

	require.ErrorIs(t, err, ErrGigAlreadyHasNumber)
	assert.Empty(t, fx.gateway.OrderCalls, "a conflicting gig must not reach the provider")
}

func TestPurchaseNumberAllowedAfterTerminalRecord(t *testing.T) {
	fx := newNumberFlowFixture()
	fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15550000001",
		Provider:    models.ProviderTelnyx,
		GigID:       "gig-1",
		CompanyID:   "company-1",
		Status:      models.PhoneNumberStatusError,
	})

	_, err := fx.flow.PurchaseNumber(context.Background(), validPurchaseRequest(), NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	assert.Len(t, fx.gateway.OrderCalls, 1)
}

func TestPurchaseNumberRaceLostOnInsert(t *testing.T) {
	fx := newNumberFlowFixture()
	fx.repo.SaveErr = repository.ErrDuplicateActiveGig

	_, err := fx.flow.PurchaseNumber(context.Background(), validPurchaseRequest(), NewClientMetadata("127.0.0.1", "test"))

	require.ErrorIs(t, err, ErrGigAlreadyHasNumber)
}

func TestPurchaseNumberGatewayErrors(t *testing.T) {
	tests := []struct {
		name     string
		kind     services.GatewayErrorKind
		expected error
	}{
		{"insufficient funds", services.GatewayErrorInsufficientFunds, ErrInsufficientBalance},
		{"number unavailable", services.GatewayErrorNumberUnavailable, ErrNumberNotAvailable},
		{"already registered", services.GatewayErrorAlreadyRegistered, ErrNumberAlreadyRegistered},
		{"generic rejection", services.GatewayErrorOther, ErrProviderRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newNumberFlowFixture()
			fx.gateway.OrderErr = &services.GatewayError{Kind: tt.kind, Message: "rejected"}

			_, err := fx.flow.PurchaseNumber(context.Background(), validPurchaseRequest(), NewClientMetadata("127.0.0.1", "test"))

			require.ErrorIs(t, err, tt.expected)
			n, _ := fx.repo.Count(context.Background(), models.PhoneNumberFilter{})
			assert.Zero(t, n, "a rejected order must leave no record behind")
		})
	}
}

func TestPurchaseNumberValidGroupAttached(t *testing.T) {
	fx := newNumberFlowFixture()
	group := fx.groupRepo.Seed(&models.RequirementGroup{
		ProviderGroupID: utils.ToPtr("rg-prov-1"),
		CompanyID:       "company-1",
		CountryCode:     "DE",
		Status:          models.RequirementGroupStatusActive,
		ValidUntil:      utils.UTCNowAddPtr(utils.RequirementGroupValidity),
	})

	req := validPurchaseRequest()
	req.RequirementGroupID = utils.ToPtr(group.UUID.String())

	resp, err := fx.flow.PurchaseNumber(context.Background(), req, NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	require.Len(t, fx.gateway.OrderCalls, 1)
	assert.Equal(t, "rg-prov-1", fx.gateway.OrderCalls[0].RequirementGroupID)

	stored := fx.repo.Get(resp.Number.ID)
	require.NotNil(t, stored)
	require.NotNil(t, stored.RequirementGroupID)
	assert.Equal(t, group.ID, *stored.RequirementGroupID)
}

func TestPurchaseNumberInvalidGroupDropped(t *testing.T) {
	tests := []struct {
		name string
		seed func(fx *numberFlowFixture) string
	}{
		{
			name: "unknown group",
			seed: func(fx *numberFlowFixture) string { return uuid.NewString() },
		},
		{
			name: "group not active",
			seed: func(fx *numberFlowFixture) string {
				group := fx.groupRepo.Seed(&models.RequirementGroup{
					CompanyID:   "company-1",
					CountryCode: "DE",
					Status:      models.RequirementGroupStatusPending,
				})
				return group.UUID.String()
			},
		},
		{
			name: "group expired",
			seed: func(fx *numberFlowFixture) string {
				group := fx.groupRepo.Seed(&models.RequirementGroup{
					CompanyID:   "company-1",
					CountryCode: "DE",
					Status:      models.RequirementGroupStatusActive,
					ValidUntil:  utils.UTCNowAddPtr(-utils.RequirementGroupValidity),
				})
				return group.UUID.String()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newNumberFlowFixture()
			groupID := tt.seed(fx)

			req := validPurchaseRequest()
			req.RequirementGroupID = utils.ToPtr(groupID)

			resp, err := fx.flow.PurchaseNumber(context.Background(), req, NewClientMetadata("127.0.0.1", "test"))

			require.NoError(t, err, "an unusable group must not block the purchase")
			require.Len(t, fx.gateway.OrderCalls, 1)
			assert.Empty(t, fx.gateway.OrderCalls[0].RequirementGroupID)

			stored := fx.repo.Get(resp.Number.ID)
			require.NotNil(t, stored)
			assert.Nil(t, stored.RequirementGroupID)
			assert.Equal(t, groupID, metadataString(stored.Metadata, "requirement_group_dropped"))
		})
	}
}

func TestPurchaseNumberCreatesGroupFromCountryCode(t *testing.T) {
	repo := testhelpers.NewFakePhoneNumberRepository()
	groupRepo := testhelpers.NewFakeRequirementGroupRepository()
	gateway := testhelpers.NewFakeProviderGateway(models.ProviderTelnyx)
	provisioner := &testhelpers.FakeRequirementGroupProvisioner{
		GroupID: "rg-prov-9",
		Requirements: []services.ProviderRequirement{
			{RequirementID: "req-address", FieldType: "address"},
		},
	}
	flow := NewPhoneNumberFlow(
		repo,
		NewRequirementGroupFlow(groupRepo, provisioner),
		map[models.Provider]services.ProviderGateway{models.ProviderTelnyx: gateway},
		VoiceSettings{ConnectionID: "conn-1", DefaultWebhookURL: "https://hooks.example.com/voice"},
	)

	req := validPurchaseRequest()
	req.CountryCode = utils.ToPtr("DE")

	resp, err := flow.PurchaseNumber(context.Background(), req, NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	assert.Equal(t, []string{"DE"}, provisioner.Calls)
	require.Len(t, gateway.OrderCalls, 1)
	assert.Equal(t, "rg-prov-9", gateway.OrderCalls[0].RequirementGroupID)

	stored := repo.Get(resp.Number.ID)
	require.NotNil(t, stored)
	require.NotNil(t, stored.RequirementGroupID)

	group := groupRepo.Get(*stored.RequirementGroupID)
	require.NotNil(t, group)
	assert.Equal(t, models.RequirementGroupStatusPending, group.Status)
}

func TestDeleteNumber(t *testing.T) {
	t.Run("releases at the provider then deletes the record", func(t *testing.T) {
		fx := newNumberFlowFixture()
		record := fx.repo.Seed(&models.PhoneNumberRecord{
			PhoneNumber:      "+15551234567",
			Provider:         models.ProviderTelnyx,
			ProviderNumberID: utils.ToPtr("pn-42"),
			GigID:            "gig-1",
			CompanyID:        "company-1",
			Status:           models.PhoneNumberStatusActive,
		})

		_, err := fx.flow.DeleteNumber(context.Background(), record.UUID.String(), NewClientMetadata("127.0.0.1", "test"))

		require.NoError(t, err)
		assert.Equal(t, []string{"pn-42"}, fx.gateway.DeleteCalls)
		assert.Nil(t, fx.repo.Get(record.ID))
	})

	t.Run("tolerates a number the provider no longer knows", func(t *testing.T) {
		fx := newNumberFlowFixture()
		fx.gateway.DeleteErr = &services.GatewayError{Kind: services.GatewayErrorNumberUnavailable, Message: "gone"}
		record := fx.repo.Seed(&models.PhoneNumberRecord{
			PhoneNumber:      "+15551234567",
			Provider:         models.ProviderTelnyx,
			ProviderNumberID: utils.ToPtr("pn-42"),
			GigID:            "gig-1",
			CompanyID:        "company-1",
			Status:           models.PhoneNumberStatusActive,
		})

		_, err := fx.flow.DeleteNumber(context.Background(), record.UUID.String(), NewClientMetadata("127.0.0.1", "test"))

		require.NoError(t, err)
		assert.Nil(t, fx.repo.Get(record.ID))
	})

	t.Run("keeps the record when the provider release fails", func(t *testing.T) {
		fx := newNumberFlowFixture()
		fx.gateway.DeleteErr = &services.GatewayError{Kind: services.GatewayErrorOther, Message: "boom"}
		record := fx.repo.Seed(&models.PhoneNumberRecord{
			PhoneNumber:      "+15551234567",
			Provider:         models.ProviderTelnyx,
			ProviderNumberID: utils.ToPtr("pn-42"),
			GigID:            "gig-1",
			CompanyID:        "company-1",
			Status:           models.PhoneNumberStatusActive,
		})

		_, err := fx.flow.DeleteNumber(context.Background(), record.UUID.String(), NewClientMetadata("127.0.0.1", "test"))

		require.ErrorIs(t, err, ErrProviderRejected)
		assert.NotNil(t, fx.repo.Get(record.ID))
	})

	t.Run("unknown id", func(t *testing.T) {
		fx := newNumberFlowFixture()

		_, err := fx.flow.DeleteNumber(context.Background(), uuid.NewString(), NewClientMetadata("127.0.0.1", "test"))

		require.ErrorIs(t, err, ErrPhoneNumberNotFound)
	})

	t.Run("malformed id", func(t *testing.T) {
		fx := newNumberFlowFixture()

		_, err := fx.flow.DeleteNumber(context.Background(), "not-a-uuid", NewClientMetadata("127.0.0.1", "test"))

		require.ErrorIs(t, err, ErrPhoneNumberNotFound)
	})
}

func TestUpdateWebhookURL(t *testing.T) {
	t.Run("updates the provider before the record", func(t *testing.T) {
		fx := newNumberFlowFixture()
		record := fx.repo.Seed(&models.PhoneNumberRecord{
			PhoneNumber:      "+15551234567",
			Provider:         models.ProviderTelnyx,
			ProviderNumberID: utils.ToPtr("pn-42"),
			ConnectionID:     utils.ToPtr("conn-own"),
			GigID:            "gig-1",
			CompanyID:        "company-1",
			Status:           models.PhoneNumberStatusActive,
		})

		resp, err := fx.flow.UpdateWebhookURL(
			context.Background(),
			record.UUID.String(),
			&dto.UpdateWebhookURLRequest{WebhookURL: "https://hooks.example.com/new"},
			NewClientMetadata("127.0.0.1", "test"),
		)

		require.NoError(t, err)
		require.Len(t, fx.gateway.ConfigCalls, 1)
		assert.Equal(t, "pn-42", fx.gateway.ConfigCalls[0].ProviderNumberID)
		assert.Equal(t, "conn-own", fx.gateway.ConfigCalls[0].ConnectionID)
		assert.Equal(t, "https://hooks.example.com/new", fx.gateway.ConfigCalls[0].VoiceWebhookURL)
		assert.Equal(t, "https://hooks.example.com/new", resp.Number.WebhookURL)

		stored := fx.repo.Get(record.ID)
		require.NotNil(t, stored.WebhookURL)
		assert.Equal(t, "https://hooks.example.com/new", *stored.WebhookURL)
	})

	t.Run("keeps the record untouched when the provider rejects", func(t *testing.T) {
		fx := newNumberFlowFixture()
		fx.gateway.ConfigErr = &services.GatewayError{Kind: services.GatewayErrorOther, Message: "boom"}
		record := fx.repo.Seed(&models.PhoneNumberRecord{
			PhoneNumber:      "+15551234567",
			Provider:         models.ProviderTelnyx,
			ProviderNumberID: utils.ToPtr("pn-42"),
			GigID:            "gig-1",
			CompanyID:        "company-1",
			Status:           models.PhoneNumberStatusActive,
		})

		_, err := fx.flow.UpdateWebhookURL(
			context.Background(),
			record.UUID.String(),
			&dto.UpdateWebhookURLRequest{WebhookURL: "https://hooks.example.com/new"},
			NewClientMetadata("127.0.0.1", "test"),
		)

		require.ErrorIs(t, err, ErrProviderRejected)
		assert.Nil(t, fx.repo.Get(record.ID).WebhookURL)
	})

	t.Run("empty url", func(t *testing.T) {
		fx := newNumberFlowFixture()

		_, err := fx.flow.UpdateWebhookURL(
			context.Background(),
			uuid.NewString(),
			&dto.UpdateWebhookURLRequest{},
			NewClientMetadata("127.0.0.1", "test"),
		)

		require.ErrorIs(t, err, ErrWebhookURLRequired)
	})
}

func TestListNumbers(t *testing.T) {
	fx := newNumberFlowFixture()
	fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15550000001", Provider: models.ProviderTelnyx,
		GigID: "gig-1", CompanyID: "company-1", Status: models.PhoneNumberStatusActive,
	})
	fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15550000002", Provider: models.ProviderTelnyx,
		GigID: "gig-2", CompanyID: "company-1", Status: models.PhoneNumberStatusError,
	})
	fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15550000003", Provider: models.ProviderTelnyx,
		GigID: "gig-3", CompanyID: "company-2", Status: models.PhoneNumberStatusActive,
	})

	resp, err := fx.flow.ListNumbers(context.Background(), &dto.ListNumbersQuery{CompanyID: "company-1"}, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
	assert.EqualValues(t, 2, resp.Total)

	resp, err = fx.flow.ListNumbers(context.Background(), &dto.ListNumbersQuery{Status: "active"}, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
}

func TestListNumbersByGig(t *testing.T) {
	fx := newNumberFlowFixture()
	fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15550000001", Provider: models.ProviderTelnyx,
		GigID: "gig-1", CompanyID: "company-1", Status: models.PhoneNumberStatusDeleted,
	})
	fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15550000002", Provider: models.ProviderTelnyx,
		GigID: "gig-1", CompanyID: "company-1", Status: models.PhoneNumberStatusActive,
	})

	resp, err := fx.flow.ListNumbersByGig(context.Background(), "gig-1", NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2, "history includes terminal records")

	_, err = fx.flow.ListNumbersByGig(context.Background(), "", NewClientMetadata("127.0.0.1", "test"))
	require.ErrorIs(t, err, ErrGigIDRequired)
}

func TestSearchAvailableNumbers(t *testing.T) {
	fx := newNumberFlowFixture()
	fx.gateway.SearchResult = []services.AvailableNumber{
		{PhoneNumber: "+15557770001", CountryCode: "US", NumberType: "local", Features: []string{"voice", "sms"}},
	}

	resp, err := fx.flow.SearchAvailableNumbers(context.Background(), &dto.SearchNumbersQuery{Provider: "telnyx"}, NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "+15557770001", resp.Items[0].PhoneNumber)
	require.Len(t, fx.gateway.SearchCalls, 1)
	assert.Equal(t, "US", fx.gateway.SearchCalls[0].CountryCode, "country defaults to US")

	_, err = fx.flow.SearchAvailableNumbers(context.Background(), &dto.SearchNumbersQuery{Provider: "vonage"}, NewClientMetadata("127.0.0.1", "test"))
	require.ErrorIs(t, err, ErrInvalidProvider)
}
