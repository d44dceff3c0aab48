package businessflow

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/services"
	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/repository"
	"github.com/gigline/numbers/utils"
	"github.com/redis/go-redis/v9"
)

const (
	webhookEventKeyPrefix  = "webhook:events:"
	lastWebhookEventKey    = "last_webhook_event"
	pendingRequirementsKey = "pending_requirements"
)

// OrderReconciliationFlow applies provider webhook events to the number store
type OrderReconciliationFlow interface {
	// HandleWebhookEvent verifies, deduplicates and dispatches one raw
	// webhook delivery
	HandleWebhookEvent(ctx context.Context, provider models.Provider, body []byte, timestamp, signature string, metadata *ClientMetadata) (*dto.WebhookAckResponse, error)
	// ReconcileOrderEvent applies a number_order.* event to every record it
	// matches, committing per record
	ReconcileOrderEvent(ctx context.Context, provider models.Provider, event *dto.WebhookEventData, metadata *ClientMetadata) (*dto.ReconcileSummary, error)
}

type OrderReconciliationFlowImpl struct {
	numberRepo repository.PhoneNumberRepository
	groups     RequirementGroupFlow
	gateways   map[models.Provider]services.ProviderGateway
	redis      *redis.Client
	voice      VoiceSettings
}

func NewOrderReconciliationFlow(
	numberRepo repository.PhoneNumberRepository,
	groups RequirementGroupFlow,
	gateways map[models.Provider]services.ProviderGateway,
	redisClient *redis.Client,
	voice VoiceSettings,
) OrderReconciliationFlow {
	return &OrderReconciliationFlowImpl{
		numberRepo: numberRepo,
		groups:     groups,
		gateways:   gateways,
		redis:      redisClient,
		voice:      voice,
	}
}

// HandleWebhookEvent verifies the delivery signature against the provider
// gateway, short-circuits exact replays, and dispatches on event type.
// Unknown event types are acknowledged so the provider stops retrying them.
func (f *OrderReconciliationFlowImpl) HandleWebhookEvent(ctx context.Context, provider models.Provider, body []byte, timestamp, signature string, metadata *ClientMetadata) (*dto.WebhookAckResponse, error) {
	gateway, ok := f.gateways[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	if timestamp == "" || signature == "" {
		return nil, ErrMissingSignatureHeaders
	}
	if err := gateway.VerifyWebhookSignature(body, timestamp, signature); err != nil {
		return nil, ErrInvalidSignature
	}

	var event dto.WebhookEventRequest
	if err := json.Unmarshal(body, &event); err != nil || event.Data.EventType == "" {
		return nil, ErrMalformedWebhookEvent
	}

	if f.alreadyProcessed(ctx, event.Data.ID) {
		return &dto.WebhookAckResponse{Message: "Event already processed"}, nil
	}

	var ack *dto.WebhookAckResponse
	switch {
	case strings.HasPrefix(event.Data.EventType, "number_order."):
		summary, err := f.ReconcileOrderEvent(ctx, provider, &event.Data, metadata)
		if err != nil {
			return nil, err
		}
		ack = &dto.WebhookAckResponse{Message: "Order event processed", Summary: summary}

	case event.Data.EventType == "requirement_group.updated":
		var payload dto.RequirementGroupEventPayload
		if err := json.Unmarshal(event.Data.Payload, &payload); err != nil || payload.ID == "" {
			return nil, ErrMalformedWebhookEvent
		}
		if err := f.groups.UpdateStatus(ctx, payload.ID, payload.Status, metadata); err != nil {
			return nil, err
		}
		ack = &dto.WebhookAckResponse{Message: "Requirement group event processed"}

	default:
		log.Printf("ignoring webhook event type %q (%s)", event.Data.EventType, event.Data.ID)
		ack = &dto.WebhookAckResponse{Message: "Event ignored"}
	}

	f.markProcessed(ctx, event.Data.ID)
	return ack, nil
}

// ReconcileOrderEvent matches event numbers to records and applies the
// status mapping. Each record commits independently so one bad row cannot
// hold back the rest of the batch.
func (f *OrderReconciliationFlowImpl) ReconcileOrderEvent(ctx context.Context, provider models.Provider, event *dto.WebhookEventData, metadata *ClientMetadata) (*dto.ReconcileSummary, error) {
	var payload dto.OrderEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.ID == "" {
		return nil, ErrMalformedWebhookEvent
	}

	orderStatus := normalizeOrderStatus(payload.Status)

	records, err := f.numberRepo.ByOrderID(ctx, payload.ID)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_ORDER_FAILED", "Failed to load records for order", err)
	}

	byNumber := make(map[string]*models.PhoneNumberRecord, len(records))
	byProviderID := make(map[string]*models.PhoneNumberRecord, len(records))
	for _, r := range records {
		byNumber[r.PhoneNumber] = r
		if r.ProviderNumberID != nil {
			byProviderID[*r.ProviderNumberID] = r
		}
	}

	summary := &dto.ReconcileSummary{}

	if len(payload.PhoneNumbers) == 0 {
		// order-level event with no per-number slice
		for _, record := range records {
			summary.Matched++
			f.applyToRecord(ctx, record, orderStatus, nil, &payload, event, summary)
		}
	} else {
		for i := range payload.PhoneNumbers {
			entry := &payload.PhoneNumbers[i]
			record := f.matchRecord(ctx, provider, entry, byProviderID, byNumber)
			if record == nil {
				summary.Skipped++
				continue
			}
			summary.Matched++
			f.applyToRecord(ctx, record, orderStatus, entry, &payload, event, summary)
		}
	}

	if summary.Skipped > 0 {
		log.Printf("order %s: %d event number(s) matched no record", payload.ID, summary.Skipped)
	}
	return summary, nil
}

// matchRecord resolves an event number to a record: provider number id
// first, then the number value, then direct store lookups for records
// created outside this order
func (f *OrderReconciliationFlowImpl) matchRecord(ctx context.Context, provider models.Provider, entry *dto.OrderEventPhoneNumber, byProviderID, byNumber map[string]*models.PhoneNumberRecord) *models.PhoneNumberRecord {
	if entry.ID != "" {
		if r, ok := byProviderID[entry.ID]; ok {
			return r
		}
	}
	if entry.PhoneNumber != "" {
		if r, ok := byNumber[entry.PhoneNumber]; ok {
			return r
		}
	}
	if entry.ID != "" {
		if r, err := f.numberRepo.ByProviderNumberID(ctx, provider, entry.ID); err == nil && r != nil {
			return r
		}
	}
	if entry.PhoneNumber != "" {
		if r, err := f.numberRepo.ByPhoneNumber(ctx, entry.PhoneNumber); err == nil && r != nil {
			return r
		}
	}
	return nil
}

// applyToRecord transitions one record for one event and persists it.
// Re-deliveries of an already-applied event leave the record untouched.
func (f *OrderReconciliationFlowImpl) applyToRecord(ctx context.Context, record *models.PhoneNumberRecord, orderStatus models.OrderStatus, entry *dto.OrderEventPhoneNumber, payload *dto.OrderEventPayload, event *dto.WebhookEventData, summary *dto.ReconcileSummary) {
	if event.ID != "" && metadataString(record.Metadata, lastWebhookEventKey) == event.ID {
		return
	}

	wasActive := record.Status == models.PhoneNumberStatusActive

	// the provider-reported order status is recorded verbatim
	record.OrderStatus = orderStatus
	if local, forced := models.LocalStatusFor(orderStatus); forced {
		record.Status = local
	}

	metaUpdates := map[string]any{}
	if event.ID != "" {
		metaUpdates[lastWebhookEventKey] = event.ID
	}

	switch orderStatus {
	case models.OrderStatusCompleted:
		if entry != nil && entry.ID != "" {
			record.ProviderNumberID = utils.ToPtr(entry.ID)
		}
	case models.OrderStatusFailed:
		code := payload.ErrorCode
		if code == "" {
			code = "order_failed"
		}
		message := payload.ErrorDetail
		if message == "" {
			message = "Provider reported the order as failed"
		}
		record.ErrorDetails = &models.ErrorDetails{
			Code:      code,
			Message:   message,
			Timestamp: utils.UTCNow(),
		}
	case models.OrderStatusRequirementsPending:
		if entry != nil && len(entry.RegulatoryRequirements) > 0 {
			metaUpdates[pendingRequirementsKey] = entry.RegulatoryRequirements
		}
	case models.OrderStatusExpired:
		// the provider already released the allocation; local state only
	}

	if len(metaUpdates) > 0 {
		record.Metadata = mergeMetadata(record.Metadata, metaUpdates)
	}

	if err := f.numberRepo.Update(ctx, record); err != nil {
		log.Printf("order %s: failed to update record %d: %v", deref(record.OrderID), record.ID, err)
		return
	}
	summary.Updated++

	if record.Status == models.PhoneNumberStatusActive && !wasActive {
		f.configureNumberSettings(ctx, record)
	}
}

// configureNumberSettings pushes voice settings to the freshly activated
// number. Failure flips the record to error but keeps the allocation: the
// number is paid for and an operator can re-apply settings.
func (f *OrderReconciliationFlowImpl) configureNumberSettings(ctx context.Context, record *models.PhoneNumberRecord) {
	fail := func(err error) {
		record.Status = models.PhoneNumberStatusError
		record.ErrorDetails = &models.ErrorDetails{
			Code:      "configuration_error",
			Message:   err.Error(),
			Timestamp: utils.UTCNow(),
		}
		if uErr := f.numberRepo.Update(ctx, record); uErr != nil {
			log.Printf("record %d: failed to persist configuration error: %v", record.ID, uErr)
		}
	}

	gateway, ok := f.gateways[record.Provider]
	if !ok {
		fail(ErrUnsupportedProvider)
		return
	}
	if record.ProviderNumberID == nil || *record.ProviderNumberID == "" {
		fail(ErrMalformedWebhookEvent)
		return
	}

	connectionID := f.voice.ConnectionID
	if record.ConnectionID != nil && *record.ConnectionID != "" {
		connectionID = *record.ConnectionID
	}
	webhookURL := f.voice.DefaultWebhookURL
	if record.WebhookURL != nil && *record.WebhookURL != "" {
		webhookURL = *record.WebhookURL
	}

	if err := gateway.UpdateNumberConfig(ctx, services.NumberConfigInput{
		ProviderNumberID: *record.ProviderNumberID,
		ConnectionID:     connectionID,
		VoiceWebhookURL:  webhookURL,
	}); err != nil {
		fail(err)
	}
}

// alreadyProcessed consults the best-effort event cache. A cold or absent
// cache answers false; per-record metadata stays authoritative.
func (f *OrderReconciliationFlowImpl) alreadyProcessed(ctx context.Context, eventID string) bool {
	if f.redis == nil || eventID == "" {
		return false
	}
	n, err := f.redis.Exists(ctx, webhookEventKeyPrefix+eventID).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (f *OrderReconciliationFlowImpl) markProcessed(ctx context.Context, eventID string) {
	if f.redis == nil || eventID == "" {
		return
	}
	if err := f.redis.SetNX(ctx, webhookEventKeyPrefix+eventID, 1, utils.WebhookEventDedupTTL).Err(); err != nil {
		log.Printf("failed to cache webhook event %s: %v", eventID, err)
	}
}

// normalizeOrderStatus folds provider aliases onto the canonical order
// status vocabulary
func normalizeOrderStatus(status string) models.OrderStatus {
	switch strings.ToLower(status) {
	case "success":
		return models.OrderStatusCompleted
	case "failure":
		return models.OrderStatusFailed
	default:
		return models.OrderStatus(strings.ToLower(status))
	}
}

// metadataString reads one string key out of a jsonb metadata blob
func metadataString(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
