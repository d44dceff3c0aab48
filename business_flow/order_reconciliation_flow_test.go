package businessflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/services"
	"github.com/gigline/numbers/models"
	testhelpers "github.com/gigline/numbers/testing"
	"github.com/gigline/numbers/utils"
)

type reconcileFixture struct {
	repo      *testhelpers.FakePhoneNumberRepository
	groupRepo *testhelpers.FakeRequirementGroupRepository
	gateway   *testhelpers.FakeProviderGateway
	flow      OrderReconciliationFlow
}

func newReconcileFixture() *reconcileFixture {
	repo := testhelpers.NewFakePhoneNumberRepository()
	groupRepo := testhelpers.NewFakeRequirementGroupRepository()
	gateway := testhelpers.NewFakeProviderGateway(models.ProviderTelnyx)
	flow := NewOrderReconciliationFlow(
		repo,
		NewRequirementGroupFlow(groupRepo, &testhelpers.FakeRequirementGroupProvisioner{}),
		map[models.Provider]services.ProviderGateway{models.ProviderTelnyx: gateway},
		nil,
		VoiceSettings{ConnectionID: "conn-1", DefaultWebhookURL: "https://hooks.example.com/voice"},
	)
	return &reconcileFixture{repo: repo, groupRepo: groupRepo, gateway: gateway, flow: flow}
}

func (fx *reconcileFixture) seedProcessing() *models.PhoneNumberRecord {
	return fx.repo.Seed(&models.PhoneNumberRecord{
		PhoneNumber: "+15551234567",
		Provider:    models.ProviderTelnyx,
		OrderID:     utils.ToPtr("ord-1"),
		GigID:       "gig-1",
		CompanyID:   "company-1",
		Status:      models.PhoneNumberStatusProcessing,
		OrderStatus: models.OrderStatusPending,
	})
}

func orderEvent(t *testing.T, eventID string, payload dto.OrderEventPayload) *dto.WebhookEventData {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &dto.WebhookEventData{
		ID:        eventID,
		EventType: "number_order.updated",
		Payload:   raw,
	}
}

func TestReconcileOrderCompleted(t *testing.T) {
	fx := newReconcileFixture()
	record := fx.seedProcessing()

	event := orderEvent(t, "evt-1", dto.OrderEventPayload{
		ID:     "ord-1",
		Status: "completed",
		PhoneNumbers: []dto.OrderEventPhoneNumber{
			{ID: "pn-42", PhoneNumber: "+15551234567", Status: "completed", RequirementsMet: true},
		},
	})

	summary, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	assert.Equal(t, &dto.ReconcileSummary{Matched: 1, Updated: 1}, summary)

	stored := fx.repo.Get(record.ID)
	assert.Equal(t, models.PhoneNumberStatusActive, stored.Status)
	assert.Equal(t, models.OrderStatusCompleted, stored.OrderStatus)
	require.NotNil(t, stored.ProviderNumberID)
	assert.Equal(t, "pn-42", *stored.ProviderNumberID)

	require.Len(t, fx.gateway.ConfigCalls, 1)
	assert.Equal(t, "pn-42", fx.gateway.ConfigCalls[0].ProviderNumberID)
	assert.Equal(t, "conn-1", fx.gateway.ConfigCalls[0].ConnectionID)
	assert.Equal(t, "https://hooks.example.com/voice", fx.gateway.ConfigCalls[0].VoiceWebhookURL)
}

func TestReconcileOrderCompletedConfigurationFails(t *testing.T) {
	fx := newReconcileFixture()
	fx.gateway.ConfigErr = &services.GatewayError{Kind: services.GatewayErrorOther, Message: "config rejected"}
	record := fx.seedProcessing()

	event := orderEvent(t, "evt-1", dto.OrderEventPayload{
		ID:     "ord-1",
		Status: "completed",
		PhoneNumbers: []dto.OrderEventPhoneNumber{
			{ID: "pn-42", PhoneNumber: "+15551234567", Status: "completed"},
		},
	})

	_, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	stored := fx.repo.Get(record.ID)
	require.NotNil(t, stored, "a failed configuration keeps the allocation")
	assert.Equal(t, models.PhoneNumberStatusError, stored.Status)
	require.NotNil(t, stored.ErrorDetails)
	assert.Equal(t, "configuration_error", stored.ErrorDetails.Code)
	require.NotNil(t, stored.ProviderNumberID)
	assert.Equal(t, "pn-42", *stored.ProviderNumberID)
}

func TestReconcileOrderFailed(t *testing.T) {
	tests := []struct {
		name         string
		errorCode    string
		expectedCode string
	}{
		{"provider error code preserved", "10004", "10004"},
		{"missing error code defaults", "", "order_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newReconcileFixture()
			record := fx.seedProcessing()

			event := orderEvent(t, "evt-1", dto.OrderEventPayload{
				ID:        "ord-1",
				Status:    "failed",
				ErrorCode: tt.errorCode,
				PhoneNumbers: []dto.OrderEventPhoneNumber{
					{PhoneNumber: "+15551234567", Status: "failed"},
				},
			})

			_, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
			require.NoError(t, err)

			stored := fx.repo.Get(record.ID)
			assert.Equal(t, models.PhoneNumberStatusError, stored.Status)
			assert.Equal(t, models.OrderStatusFailed, stored.OrderStatus)
			require.NotNil(t, stored.ErrorDetails)
			assert.Equal(t, tt.expectedCode, stored.ErrorDetails.Code)
			assert.Empty(t, fx.gateway.ConfigCalls)
		})
	}
}

func TestReconcileOrderExpired(t *testing.T) {
	fx := newReconcileFixture()
	record := fx.seedProcessing()

	event := orderEvent(t, "evt-1", dto.OrderEventPayload{ID: "ord-1", Status: "expired"})

	_, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	stored := fx.repo.Get(record.ID)
	assert.Equal(t, models.PhoneNumberStatusDeleted, stored.Status)
	assert.Equal(t, models.OrderStatusExpired, stored.OrderStatus)
	assert.Empty(t, fx.gateway.DeleteCalls, "the provider already released an expired order")
}

func TestReconcileOrderRequirementsPending(t *testing.T) {
	fx := newReconcileFixture()
	record := fx.seedProcessing()

	event := orderEvent(t, "evt-1", dto.OrderEventPayload{
		ID:     "ord-1",
		Status: "requirements-info-pending",
		PhoneNumbers: []dto.OrderEventPhoneNumber{
			{
				PhoneNumber: "+15551234567",
				Status:      "requirements-info-pending",
				RegulatoryRequirements: []dto.RegulatoryRequirementDTO{
					{RequirementID: "req-address", FieldType: "address", Status: "pending"},
				},
			},
		},
	})

	_, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	stored := fx.repo.Get(record.ID)
	assert.Equal(t, models.PhoneNumberStatusRequirementsPending, stored.Status)
	assert.Equal(t, models.OrderStatusRequirementsPending, stored.OrderStatus)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(stored.Metadata, &meta))
	assert.Contains(t, meta, "pending_requirements")
}

func TestReconcileOrderInProgressKeepsLocalStatus(t *testing.T) {
	fx := newReconcileFixture()
	record := fx.seedProcessing()

	event := orderEvent(t, "evt-1", dto.OrderEventPayload{ID: "ord-1", Status: "in-progress"})

	summary, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	stored := fx.repo.Get(record.ID)
	assert.Equal(t, models.PhoneNumberStatusProcessing, stored.Status, "intermediate order statuses leave the local status alone")
	assert.Equal(t, models.OrderStatusInProgress, stored.OrderStatus)
}

func TestReconcileOrderPartialMatch(t *testing.T) {
	fx := newReconcileFixture()
	fx.seedProcessing()

	event := orderEvent(t, "evt-1", dto.OrderEventPayload{
		ID:     "ord-1",
		Status: "completed",
		PhoneNumbers: []dto.OrderEventPhoneNumber{
			{ID: "pn-42", PhoneNumber: "+15551234567", Status: "completed"},
			{ID: "pn-99", PhoneNumber: "+15559999999", Status: "completed"},
		},
	})

	summary, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	assert.Equal(t, &dto.ReconcileSummary{Matched: 1, Updated: 1, Skipped: 1}, summary)
}

func TestReconcileOrderEventReplayed(t *testing.T) {
	fx := newReconcileFixture()
	fx.seedProcessing()

	event := orderEvent(t, "evt-1", dto.OrderEventPayload{
		ID:     "ord-1",
		Status: "completed",
		PhoneNumbers: []dto.OrderEventPhoneNumber{
			{ID: "pn-42", PhoneNumber: "+15551234567", Status: "completed"},
		},
	})

	first, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated)

	second, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Matched)
	assert.Zero(t, second.Updated, "a replayed event must not touch the record again")
	assert.Len(t, fx.gateway.ConfigCalls, 1, "configuration runs once")
}

func TestReconcileOrderStatusAliases(t *testing.T) {
	assert.Equal(t, models.OrderStatusCompleted, normalizeOrderStatus("success"))
	assert.Equal(t, models.OrderStatusCompleted, normalizeOrderStatus("Success"))
	assert.Equal(t, models.OrderStatusFailed, normalizeOrderStatus("failure"))
	assert.Equal(t, models.OrderStatusInProgress, normalizeOrderStatus("IN-PROGRESS"))
	assert.Equal(t, models.OrderStatus("pending"), normalizeOrderStatus("pending"))
}

func TestReconcileOrderMalformedPayload(t *testing.T) {
	fx := newReconcileFixture()

	event := &dto.WebhookEventData{
		ID:        "evt-1",
		EventType: "number_order.updated",
		Payload:   json.RawMessage(`{"status":"completed"}`),
	}

	_, err := fx.flow.ReconcileOrderEvent(context.Background(), models.ProviderTelnyx, event, NewClientMetadata("127.0.0.1", "test"))
	require.ErrorIs(t, err, ErrMalformedWebhookEvent)
}

func webhookBody(t *testing.T, data dto.WebhookEventData) []byte {
	t.Helper()
	raw, err := json.Marshal(dto.WebhookEventRequest{Data: data})
	require.NoError(t, err)
	return raw
}

func TestHandleWebhookEventSignatureGate(t *testing.T) {
	fx := newReconcileFixture()
	body := webhookBody(t, dto.WebhookEventData{
		ID:        "evt-1",
		EventType: "number_order.updated",
		Payload:   json.RawMessage(`{"id":"ord-1","status":"in-progress"}`),
	})

	t.Run("missing headers", func(t *testing.T) {
		_, err := fx.flow.HandleWebhookEvent(context.Background(), models.ProviderTelnyx, body, "", "", NewClientMetadata("127.0.0.1", "test"))
		require.ErrorIs(t, err, ErrMissingSignatureHeaders)
		assert.Zero(t, fx.gateway.VerifyCalls)
	})

	t.Run("invalid signature", func(t *testing.T) {
		fx.gateway.VerifyErr = &services.GatewayError{Kind: services.GatewayErrorInvalidSignature, Message: "mismatch"}
		defer func() { fx.gateway.VerifyErr = nil }()

		_, err := fx.flow.HandleWebhookEvent(context.Background(), models.ProviderTelnyx, body, "1712000000", "sig", NewClientMetadata("127.0.0.1", "test"))
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := fx.flow.HandleWebhookEvent(context.Background(), models.ProviderTwilio, body, "1712000000", "sig", NewClientMetadata("127.0.0.1", "test"))
		require.ErrorIs(t, err, ErrUnsupportedProvider)
	})
}

func TestHandleWebhookEventMalformedBody(t *testing.T) {
	fx := newReconcileFixture()

	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not json at all")},
		{"missing event type", []byte(`{"data":{"id":"evt-1"}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.flow.HandleWebhookEvent(context.Background(), models.ProviderTelnyx, tt.body, "1712000000", "sig", NewClientMetadata("127.0.0.1", "test"))
			require.ErrorIs(t, err, ErrMalformedWebhookEvent)
		})
	}
}

func TestHandleWebhookEventDispatchesOrderEvents(t *testing.T) {
	fx := newReconcileFixture()
	record := fx.seedProcessing()

	body := webhookBody(t, dto.WebhookEventData{
		ID:        "evt-1",
		EventType: "number_order.status_changed",
		Payload: json.RawMessage(`{
			"id": "ord-1",
			"status": "completed",
			"phone_numbers": [{"id": "pn-42", "phone_number": "+15551234567", "status": "completed"}]
		}`),
	})

	ack, err := fx.flow.HandleWebhookEvent(context.Background(), models.ProviderTelnyx, body, "1712000000", "sig", NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	require.NotNil(t, ack.Summary)
	assert.Equal(t, 1, ack.Summary.Updated)
	assert.Equal(t, models.PhoneNumberStatusActive, fx.repo.Get(record.ID).Status)
}

func TestHandleWebhookEventDispatchesGroupEvents(t *testing.T) {
	fx := newReconcileFixture()
	group := fx.groupRepo.Seed(&models.RequirementGroup{
		ProviderGroupID: utils.ToPtr("rg-prov-1"),
		CompanyID:       "company-1",
		CountryCode:     "DE",
		Status:          models.RequirementGroupStatusPending,
	})

	body := webhookBody(t, dto.WebhookEventData{
		ID:        "evt-2",
		EventType: "requirement_group.updated",
		Payload:   json.RawMessage(`{"id":"rg-prov-1","status":"active"}`),
	})

	_, err := fx.flow.HandleWebhookEvent(context.Background(), models.ProviderTelnyx, body, "1712000000", "sig", NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err)
	updated := fx.groupRepo.Get(group.ID)
	assert.Equal(t, models.RequirementGroupStatusActive, updated.Status)
	assert.NotNil(t, updated.ValidUntil, "activation renews the validity window")
}

func TestHandleWebhookEventIgnoresUnknownTypes(t *testing.T) {
	fx := newReconcileFixture()

	body := webhookBody(t, dto.WebhookEventData{
		ID:        "evt-3",
		EventType: "call.initiated",
		Payload:   json.RawMessage(`{}`),
	})

	ack, err := fx.flow.HandleWebhookEvent(context.Background(), models.ProviderTelnyx, body, "1712000000", "sig", NewClientMetadata("127.0.0.1", "test"))

	require.NoError(t, err, "unknown events are acknowledged so the provider stops retrying")
	assert.Equal(t, "Event ignored", ack.Message)
	assert.Nil(t, ack.Summary)
}
