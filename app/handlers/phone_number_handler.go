package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gigline/numbers/app/dto"
	"github.com/gigline/numbers/app/middleware"
	businessflow "github.com/gigline/numbers/business_flow"
	"github.com/gigline/numbers/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// PhoneNumberHandlerInterface defines the contract for number provisioning handlers
type PhoneNumberHandlerInterface interface {
	Purchase(c fiber.Ctx) error
	List(c fiber.Ctx) error
	ListByGig(c fiber.Ctx) error
	Search(c fiber.Ctx) error
	Delete(c fiber.Ctx) error
	UpdateWebhookURL(c fiber.Ctx) error
}

// PhoneNumberHandler handles number provisioning HTTP requests
type PhoneNumberHandler struct {
	flow      businessflow.PhoneNumberFlow
	validator *validator.Validate
}

func NewPhoneNumberHandler(flow businessflow.PhoneNumberFlow) PhoneNumberHandlerInterface {
	return &PhoneNumberHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *PhoneNumberHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *PhoneNumberHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Purchase submits a number order
// @Summary Purchase a phone number
// @Tags Phone Numbers
// @Accept json
// @Produce json
// @Param request body dto.PurchaseNumberRequest true "Purchase details"
// @Success 200 {object} dto.APIResponse{data=dto.PurchaseNumberResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 402 {object} dto.APIResponse "Insufficient provider balance"
// @Failure 409 {object} dto.APIResponse "Gig already has a number"
// @Failure 410 {object} dto.APIResponse "Number no longer available"
// @Router /api/v1/phone-numbers/purchase [post]
func (h *PhoneNumberHandler) Purchase(c fiber.Ctx) error {
	var req dto.PurchaseNumberRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.PurchaseNumber(h.createRequestContext(c, "/api/v1/phone-numbers/purchase"), &req, metadata)
	if err != nil {
		middleware.RecordPurchase(req.Provider, "error")
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
		}
		if businessflow.IsGigAlreadyHasNumber(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "A phone number is already associated with this gig", "GIG_ALREADY_HAS_NUMBER", nil)
		}
		if businessflow.IsInsufficientBalance(err) {
			return h.ErrorResponse(c, fiber.StatusPaymentRequired, "Provider balance is insufficient", "INSUFFICIENT_BALANCE", nil)
		}
		if businessflow.IsNumberNotAvailable(err) {
			return h.ErrorResponse(c, fiber.StatusGone, "The requested number is no longer available", "NUMBER_NOT_AVAILABLE", nil)
		}
		if businessflow.IsNumberAlreadyRegistered(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "The requested number is already registered", "NUMBER_ALREADY_REGISTERED", nil)
		}
		log.Println("Purchase number failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to purchase phone number", "PURCHASE_NUMBER_FAILED", nil)
	}

	middleware.RecordPurchase(req.Provider, "submitted")
	return h.SuccessResponse(c, fiber.StatusOK, "Phone number order submitted", result)
}

// List returns number records, optionally filtered
// @Summary List phone numbers
// @Tags Phone Numbers
// @Produce json
// @Param companyId query string false "Filter by company"
// @Param gigId query string false "Filter by gig"
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.APIResponse{data=dto.ListPhoneNumbersResponse}
// @Router /api/v1/phone-numbers [get]
func (h *PhoneNumberHandler) List(c fiber.Ctx) error {
	var query dto.ListNumbersQuery
	if err := c.Bind().Query(&query); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&query); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.ListNumbers(h.createRequestContext(c, "/api/v1/phone-numbers"), &query, metadata)
	if err != nil {
		log.Println("List numbers failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list phone numbers", "LIST_NUMBERS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Phone numbers retrieved", result)
}

// ListByGig returns records for one gig
// @Summary List phone numbers for a gig
// @Tags Phone Numbers
// @Produce json
// @Param gigId path string true "Gig ID"
// @Success 200 {object} dto.APIResponse{data=dto.ListPhoneNumbersResponse}
// @Router /api/v1/phone-numbers/gig/{gigId} [get]
func (h *PhoneNumberHandler) ListByGig(c fiber.Ctx) error {
	gigID := c.Params("gigId")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.ListNumbersByGig(h.createRequestContext(c, "/api/v1/phone-numbers/gig/:gigId"), gigID, metadata)
	if err != nil {
		if businessflow.IsGigIDRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Gig ID is required", "VALIDATION_ERROR", nil)
		}
		log.Println("List numbers by gig failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list phone numbers", "LIST_NUMBERS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Phone numbers retrieved", result)
}

// Search proxies an availability search to the provider
// @Summary Search available numbers
// @Tags Phone Numbers
// @Produce json
// @Param provider query string true "Provider (telnyx or twilio)"
// @Param countryCode query string false "ISO country code"
// @Param features query []string false "Required features"
// @Success 200 {object} dto.APIResponse{data=dto.SearchNumbersResponse}
// @Router /api/v1/phone-numbers/search [get]
func (h *PhoneNumberHandler) Search(c fiber.Ctx) error {
	var query dto.SearchNumbersQuery
	if err := c.Bind().Query(&query); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&query); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.SearchAvailableNumbers(h.createRequestContext(c, "/api/v1/phone-numbers/search"), &query, metadata)
	if err != nil {
		if businessflow.IsInvalidProvider(err) || businessflow.IsUnsupportedProvider(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Unsupported provider", "VALIDATION_ERROR", nil)
		}
		log.Println("Search numbers failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to search available numbers", "SEARCH_NUMBERS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Available numbers retrieved", result)
}

// Delete releases a number at the provider and removes the record
// @Summary Delete a phone number
// @Tags Phone Numbers
// @Produce json
// @Param id path string true "Record UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DeleteNumberResponse}
// @Failure 404 {object} dto.APIResponse "Record not found"
// @Router /api/v1/phone-numbers/{id} [delete]
func (h *PhoneNumberHandler) Delete(c fiber.Ctx) error {
	id := c.Params("id")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.DeleteNumber(h.createRequestContext(c, "/api/v1/phone-numbers/:id"), id, metadata)
	if err != nil {
		if businessflow.IsPhoneNumberNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Phone number not found", "PHONE_NUMBER_NOT_FOUND", nil)
		}
		log.Println("Delete number failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete phone number", "DELETE_NUMBER_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Phone number deleted", result)
}

// UpdateWebhookURL changes the voice webhook for a number
// @Summary Update a number's voice webhook URL
// @Tags Phone Numbers
// @Accept json
// @Produce json
// @Param id path string true "Record UUID"
// @Param request body dto.UpdateWebhookURLRequest true "New webhook URL"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateWebhookURLResponse}
// @Failure 404 {object} dto.APIResponse "Record not found"
// @Router /api/v1/phone-numbers/{id}/webhook-url [put]
func (h *PhoneNumberHandler) UpdateWebhookURL(c fiber.Ctx) error {
	id := c.Params("id")

	var req dto.UpdateWebhookURLRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.flow.UpdateWebhookURL(h.createRequestContext(c, "/api/v1/phone-numbers/:id/webhook-url"), id, &req, metadata)
	if err != nil {
		if businessflow.IsPhoneNumberNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Phone number not found", "PHONE_NUMBER_NOT_FOUND", nil)
		}
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
		}
		log.Println("Update webhook URL failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update webhook URL", "UPDATE_WEBHOOK_URL_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Webhook URL updated", result)
}

func (h *PhoneNumberHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *PhoneNumberHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
