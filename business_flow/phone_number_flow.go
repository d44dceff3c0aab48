package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/services"
	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/repository"
	"github.com/gigline/numbers/utils"
	"github.com/lib/pq"
)

// VoiceSettings are the provider-side voice defaults applied to every order
type VoiceSettings struct {
	ConnectionID       string
	MessagingProfileID string
	DefaultWebhookURL  string
}

// PhoneNumberFlow defines the customer-facing number provisioning operations
type PhoneNumberFlow interface {
	PurchaseNumber(ctx context.Context, req *dto.PurchaseNumberRequest, metadata *ClientMetadata) (*dto.PurchaseNumberResponse, error)
	ListNumbers(ctx context.Context, query *dto.ListNumbersQuery, metadata *ClientMetadata) (*dto.ListPhoneNumbersResponse, error)
	ListNumbersByGig(ctx context.Context, gigID string, metadata *ClientMetadata) (*dto.ListPhoneNumbersResponse, error)
	SearchAvailableNumbers(ctx context.Context, query *dto.SearchNumbersQuery, metadata *ClientMetadata) (*dto.SearchNumbersResponse, error)
	DeleteNumber(ctx context.Context, id string, metadata *ClientMetadata) (*dto.DeleteNumberResponse, error)
	UpdateWebhookURL(ctx context.Context, id string, req *dto.UpdateWebhookURLRequest, metadata *ClientMetadata) (*dto.UpdateWebhookURLResponse, error)
}

type PhoneNumberFlowImpl struct {
	numberRepo repository.PhoneNumberRepository
	groups     RequirementGroupFlow
	gateways   map[models.Provider]services.ProviderGateway
	voice      VoiceSettings
}

func NewPhoneNumberFlow(
	numberRepo repository.PhoneNumberRepository,
	groups RequirementGroupFlow,
	gateways map[models.Provider]services.ProviderGateway,
	voice VoiceSettings,
) PhoneNumberFlow {
	return &PhoneNumberFlowImpl{
		numberRepo: numberRepo,
		groups:     groups,
		gateways:   gateways,
		voice:      voice,
	}
}

// PurchaseNumber submits a number order to the provider and records it as
// processing. The record is persisted only after the provider accepts the
// order; a rejected order leaves no trace in the store.
func (f *PhoneNumberFlowImpl) PurchaseNumber(ctx context.Context, req *dto.PurchaseNumberRequest, metadata *ClientMetadata) (*dto.PurchaseNumberResponse, error) {
	if req.PhoneNumber == "" {
		return nil, ErrPhoneNumberRequired
	}
	provider := models.Provider(req.Provider)
	if !provider.IsValid() {
		return nil, ErrInvalidProvider
	}
	if req.GigID == "" {
		return nil, ErrGigIDRequired
	}
	if req.CompanyID == "" {
		return nil, ErrCompanyIDRequired
	}

	gateway, ok := f.gateways[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	existing, err := f.numberRepo.ActiveByGigID(ctx, req.GigID)
	if err != nil {
		return nil, NewBusinessError("PURCHASE_NUMBER_FAILED", "Failed to purchase phone number", err)
	}
	if existing != nil {
		return nil, ErrGigAlreadyHasNumber
	}

	groupID, providerGroupID, droppedGroup, err := f.resolveRequirementGroup(ctx, req, metadata)
	if err != nil {
		return nil, err
	}

	webhookURL := f.voice.DefaultWebhookURL
	if req.WebhookURL != nil && *req.WebhookURL != "" {
		webhookURL = *req.WebhookURL
	}

	result, err := gateway.CreateOrder(ctx, services.OrderInput{
		PhoneNumber:        req.PhoneNumber,
		ConnectionID:       f.voice.ConnectionID,
		MessagingProfileID: f.voice.MessagingProfileID,
		RequirementGroupID: providerGroupID,
		CustomerReference:  req.GigID,
	})
	if err != nil {
		return nil, mapGatewayError(err)
	}

	record := &models.PhoneNumberRecord{
		PhoneNumber:        req.PhoneNumber,
		Provider:           provider,
		OrderID:            utils.ToPtr(result.OrderID),
		GigID:              req.GigID,
		CompanyID:          req.CompanyID,
		Status:             models.PhoneNumberStatusProcessing,
		OrderStatus:        models.OrderStatusPending,
		Features:           pq.StringArray{},
		RequirementGroupID: groupID,
	}
	if f.voice.ConnectionID != "" {
		record.ConnectionID = utils.ToPtr(f.voice.ConnectionID)
	}
	if webhookURL != "" {
		record.WebhookURL = utils.ToPtr(webhookURL)
	}
	for _, n := range result.Numbers {
		if n.PhoneNumber == req.PhoneNumber && n.ProviderNumberID != "" {
			record.ProviderNumberID = utils.ToPtr(n.ProviderNumberID)
			break
		}
	}
	if droppedGroup != "" {
		record.Metadata = mergeMetadata(nil, map[string]any{"requirement_group_dropped": droppedGroup})
	}

	if err := f.numberRepo.Save(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveGig) {
			return nil, ErrGigAlreadyHasNumber
		}
		return nil, NewBusinessError("PURCHASE_NUMBER_FAILED", "Failed to persist phone number record", err)
	}

	return &dto.PurchaseNumberResponse{
		Message: "Phone number order submitted successfully",
		Number:  ToPhoneNumberDTO(*record),
	}, nil
}

// resolveRequirementGroup gates a caller-supplied group and falls back to
// FindOrCreate when only a country code is given. An unusable supplied group
// is dropped with a warning, never a rejection: the provider reports missing
// requirements through the order lifecycle anyway.
func (f *PhoneNumberFlowImpl) resolveRequirementGroup(ctx context.Context, req *dto.PurchaseNumberRequest, metadata *ClientMetadata) (groupID *uint, providerGroupID string, dropped string, err error) {
	if req.RequirementGroupID != nil && *req.RequirementGroupID != "" {
		validity, vErr := f.groups.CheckValidity(ctx, *req.RequirementGroupID)
		if vErr != nil {
			return nil, "", "", vErr
		}
		if validity.Valid {
			return utils.ToPtr(validity.GroupID), validity.ProviderGroupID, "", nil
		}
		log.Printf("requirement group %s dropped from order for gig %s: %s", *req.RequirementGroupID, req.GigID, validity.Reason)
		return nil, "", *req.RequirementGroupID, nil
	}

	if req.CountryCode != nil && *req.CountryCode != "" && models.Provider(req.Provider) == models.ProviderTelnyx {
		group, gErr := f.groups.FindOrCreate(ctx, req.CompanyID, *req.CountryCode, metadata)
		if gErr != nil {
			return nil, "", "", gErr
		}
		return utils.ToPtr(group.ID), group.ProviderGroupID, "", nil
	}

	return nil, "", "", nil
}

// ListNumbers returns records matching the optional query filters
func (f *PhoneNumberFlowImpl) ListNumbers(ctx context.Context, query *dto.ListNumbersQuery, metadata *ClientMetadata) (_ *dto.ListPhoneNumbersResponse, err error) {
	defer func() {
		if err != nil {
			err = NewBusinessError("LIST_NUMBERS_FAILED", "Failed to list phone numbers", err)
		}
	}()

	filter := models.PhoneNumberFilter{}
	if query != nil {
		if query.CompanyID != "" {
			filter.CompanyID = &query.CompanyID
		}
		if query.GigID != "" {
			filter.GigID = &query.GigID
		}
		if query.Status != "" {
			status := models.PhoneNumberStatus(query.Status)
			filter.Status = &status
		}
	}

	limit, offset := 0, 0
	if query != nil {
		limit, offset = query.Limit, query.Offset
	}

	rows, err := f.numberRepo.ByFilter(ctx, filter, "id DESC", limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := f.numberRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]dto.PhoneNumberDTO, 0, len(rows))
	for _, r := range rows {
		items = append(items, ToPhoneNumberDTO(*r))
	}

	return &dto.ListPhoneNumbersResponse{
		Message: "Phone numbers retrieved successfully",
		Items:   items,
		Total:   total,
	}, nil
}

// ListNumbersByGig returns all records ever created for a gig
func (f *PhoneNumberFlowImpl) ListNumbersByGig(ctx context.Context, gigID string, metadata *ClientMetadata) (*dto.ListPhoneNumbersResponse, error) {
	if gigID == "" {
		return nil, ErrGigIDRequired
	}
	return f.ListNumbers(ctx, &dto.ListNumbersQuery{GigID: gigID}, metadata)
}

// SearchAvailableNumbers proxies an availability search to the provider
func (f *PhoneNumberFlowImpl) SearchAvailableNumbers(ctx context.Context, query *dto.SearchNumbersQuery, metadata *ClientMetadata) (*dto.SearchNumbersResponse, error) {
	provider := models.Provider(query.Provider)
	if !provider.IsValid() {
		return nil, ErrInvalidProvider
	}
	gateway, ok := f.gateways[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	countryCode := query.CountryCode
	if countryCode == "" {
		countryCode = "US"
	}

	found, err := gateway.SearchNumbers(ctx, services.SearchInput{
		CountryCode: countryCode,
		NumberType:  query.NumberType,
		Features:    query.Features,
		Limit:       query.Limit,
	})
	if err != nil {
		return nil, mapGatewayError(err)
	}

	items := make([]dto.AvailableNumberDTO, 0, len(found))
	for _, n := range found {
		items = append(items, dto.AvailableNumberDTO{
			PhoneNumber: n.PhoneNumber,
			CountryCode: n.CountryCode,
			NumberType:  n.NumberType,
			Features:    n.Features,
		})
	}

	return &dto.SearchNumbersResponse{
		Message: "Available numbers retrieved successfully",
		Items:   items,
	}, nil
}

// DeleteNumber releases the number at the provider, then removes the record.
// A failed provider release keeps the record so the operation can be retried.
func (f *PhoneNumberFlowImpl) DeleteNumber(ctx context.Context, id string, metadata *ClientMetadata) (*dto.DeleteNumberResponse, error) {
	record, err := f.lookupByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.ProviderNumberID != nil && *record.ProviderNumberID != "" {
		gateway, ok := f.gateways[record.Provider]
		if !ok {
			return nil, ErrUnsupportedProvider
		}
		if err := gateway.DeleteNumber(ctx, *record.ProviderNumberID); err != nil {
			ge, isGateway := services.AsGatewayError(err)
			// a number the provider no longer knows is already released
			if !isGateway || ge.Kind != services.GatewayErrorNumberUnavailable {
				return nil, mapGatewayError(err)
			}
		}
	}

	if err := f.numberRepo.Delete(ctx, record.ID); err != nil {
		return nil, NewBusinessError("DELETE_NUMBER_FAILED", "Failed to delete phone number record", err)
	}

	return &dto.DeleteNumberResponse{Message: "Phone number deleted successfully"}, nil
}

// UpdateWebhookURL changes the voice webhook at the provider first, then on
// the local record
func (f *PhoneNumberFlowImpl) UpdateWebhookURL(ctx context.Context, id string, req *dto.UpdateWebhookURLRequest, metadata *ClientMetadata) (*dto.UpdateWebhookURLResponse, error) {
	if req.WebhookURL == "" {
		return nil, ErrWebhookURLRequired
	}

	record, err := f.lookupByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.ProviderNumberID != nil && *record.ProviderNumberID != "" {
		gateway, ok := f.gateways[record.Provider]
		if !ok {
			return nil, ErrUnsupportedProvider
		}
		connectionID := f.voice.ConnectionID
		if record.ConnectionID != nil && *record.ConnectionID != "" {
			connectionID = *record.ConnectionID
		}
		if err := gateway.UpdateNumberConfig(ctx, services.NumberConfigInput{
			ProviderNumberID: *record.ProviderNumberID,
			ConnectionID:     connectionID,
			VoiceWebhookURL:  req.WebhookURL,
		}); err != nil {
			return nil, mapGatewayError(err)
		}
	}

	record.WebhookURL = utils.ToPtr(req.WebhookURL)
	if err := f.numberRepo.Update(ctx, record); err != nil {
		return nil, NewBusinessError("UPDATE_WEBHOOK_URL_FAILED", "Failed to update webhook URL", err)
	}

	return &dto.UpdateWebhookURLResponse{
		Message: "Webhook URL updated successfully",
		Number:  ToPhoneNumberDTO(*record),
	}, nil
}

// lookupByID resolves a URL id (record UUID) to a record, folding malformed
// ids into not-found
func (f *PhoneNumberFlowImpl) lookupByID(ctx context.Context, id string) (*models.PhoneNumberRecord, error) {
	if _, err := utils.ParseUUID(id); err != nil {
		return nil, ErrPhoneNumberNotFound
	}
	record, err := f.numberRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("LOOKUP_NUMBER_FAILED", "Failed to look up phone number", err)
	}
	if record == nil {
		return nil, ErrPhoneNumberNotFound
	}
	return record, nil
}

// mergeMetadata overlays keys onto a jsonb metadata blob
func mergeMetadata(raw json.RawMessage, set map[string]any) json.RawMessage {
	merged := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &merged); err != nil {
			merged = map[string]any{}
		}
	}
	for k, v := range set {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return raw
	}
	return out
}
