package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/middleware"
	businessflow "github.com/gigline/numbers/business_flow"
	"github.com/gigline/numbers/models"
	"github.com/gigline/numbers/utils"
	"github.com/gofiber/fiber/v3"
)

// Telnyx webhook signature headers
const (
	HeaderTelnyxSignature = "Telnyx-Signature-Ed25519"
	HeaderTelnyxTimestamp = "Telnyx-Timestamp"
)

// WebhookHandlerInterface defines the contract for provider webhook ingress
type WebhookHandlerInterface interface {
	TelnyxNumberOrder(c fiber.Ctx) error
}

// WebhookHandler handles provider webhook deliveries
type WebhookHandler struct {
	flow businessflow.OrderReconciliationFlow
}

func NewWebhookHandler(flow businessflow.OrderReconciliationFlow) WebhookHandlerInterface {
	return &WebhookHandler{flow: flow}
}

func (h *WebhookHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WebhookHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// TelnyxNumberOrder ingests Telnyx number order webhooks. The signature is
// verified over the raw body before any parsing happens.
// @Summary Telnyx number order webhook
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.WebhookAckResponse}
// @Failure 400 {object} dto.APIResponse "Missing headers or malformed event"
// @Failure 401 {object} dto.APIResponse "Invalid signature"
// @Router /api/v1/webhooks/telnyx/number-order [post]
func (h *WebhookHandler) TelnyxNumberOrder(c fiber.Ctx) error {
	body := c.Body()
	signature := c.Get(HeaderTelnyxSignature)
	timestamp := c.Get(HeaderTelnyxTimestamp)

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ack, err := h.flow.HandleWebhookEvent(
		h.createRequestContext(c, "/api/v1/webhooks/telnyx/number-order"),
		models.ProviderTelnyx, body, timestamp, signature, metadata,
	)
	if err != nil {
		if businessflow.IsMissingSignatureHeaders(err) {
			middleware.RecordWebhook("telnyx", "missing_headers")
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Missing webhook signature headers", "MISSING_SIGNATURE_HEADERS", nil)
		}
		if businessflow.IsInvalidSignature(err) {
			middleware.RecordWebhook("telnyx", "invalid_signature")
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid webhook signature", "INVALID_SIGNATURE", nil)
		}
		if businessflow.IsMalformedWebhookEvent(err) {
			middleware.RecordWebhook("telnyx", "malformed")
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Malformed webhook event", "MALFORMED_EVENT", nil)
		}
		middleware.RecordWebhook("telnyx", "error")
		log.Println("Webhook processing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process webhook", "WEBHOOK_PROCESSING_FAILED", nil)
	}

	middleware.RecordWebhook("telnyx", "processed")
	return h.SuccessResponse(c, fiber.StatusOK, "Webhook processed", ack)
}

func (h *WebhookHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
