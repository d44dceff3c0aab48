package dto

// PurchaseNumberRequest is the body of POST /phone-numbers/purchase.
// Field names follow the public wire contract (camelCase).
type PurchaseNumberRequest struct {
	PhoneNumber        string  `json:"phoneNumber" validate:"required,e164" example:"+15551234567"`
	Provider           string  `json:"provider" validate:"required,oneof=telnyx twilio" example:"telnyx"`
	GigID              string  `json:"gigId" validate:"required,max=255" example:"gig_8842"`
	CompanyID          string  `json:"companyId" validate:"required,max=255" example:"cmp_1019"`
	RequirementGroupID *string `json:"requirementGroupId,omitempty" validate:"omitempty,uuid" example:"9f2d1a34-0c1b-4f6e-9e0a-2f4b1a6c7d8e"`
	CountryCode        *string `json:"countryCode,omitempty" validate:"omitempty,len=2" example:"DE"`
	WebhookURL         *string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

// ErrorDetailsDTO mirrors the error_details column for API consumers
type ErrorDetailsDTO struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PhoneNumberDTO is the API representation of a number record
type PhoneNumberDTO struct {
	ID               uint             `json:"id"`
	UUID             string           `json:"uuid"`
	PhoneNumber      string           `json:"phoneNumber"`
	Provider         string           `json:"provider"`
	ProviderNumberID string           `json:"providerNumberId,omitempty"`
	OrderID          string           `json:"orderId,omitempty"`
	GigID            string           `json:"gigId"`
	CompanyID        string           `json:"companyId"`
	Status           string           `json:"status"`
	OrderStatus      string           `json:"orderStatus"`
	Features         []string         `json:"features"`
	WebhookURL       string           `json:"webhookUrl,omitempty"`
	ErrorDetails     *ErrorDetailsDTO `json:"errorDetails,omitempty"`
	CreatedAt        string           `json:"createdAt"`
	UpdatedAt        string           `json:"updatedAt"`
}

// PurchaseNumberResponse is returned on a successful order submission
type PurchaseNumberResponse struct {
	Message string         `json:"message"`
	Number  PhoneNumberDTO `json:"number"`
}

// ListNumbersQuery carries the optional filters of GET /phone-numbers
type ListNumbersQuery struct {
	CompanyID string `query:"companyId" validate:"omitempty,max=255"`
	GigID     string `query:"gigId" validate:"omitempty,max=255"`
	Status    string `query:"status" validate:"omitempty,oneof=pending processing requirements_pending active error deleted"`
	Limit     int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Offset    int    `query:"offset" validate:"omitempty,min=0"`
}

// ListPhoneNumbersResponse is returned by the list and by-gig endpoints
type ListPhoneNumbersResponse struct {
	Message string           `json:"message"`
	Items   []PhoneNumberDTO `json:"items"`
	Total   int64            `json:"total"`
}

// SearchNumbersQuery carries the filters of GET /phone-numbers/search
type SearchNumbersQuery struct {
	Provider    string   `query:"provider" validate:"required,oneof=telnyx twilio"`
	CountryCode string   `query:"countryCode" validate:"omitempty,len=2"`
	NumberType  string   `query:"numberType" validate:"omitempty,oneof=local toll-free mobile"`
	Features    []string `query:"features" validate:"omitempty,dive,oneof=voice sms mms"`
	Limit       int      `query:"limit" validate:"omitempty,min=1,max=100"`
}

// AvailableNumberDTO is one purchasable number in a search response
type AvailableNumberDTO struct {
	PhoneNumber string   `json:"phoneNumber"`
	CountryCode string   `json:"countryCode"`
	NumberType  string   `json:"numberType"`
	Features    []string `json:"features"`
}

// SearchNumbersResponse is returned by GET /phone-numbers/search
type SearchNumbersResponse struct {
	Message string               `json:"message"`
	Items   []AvailableNumberDTO `json:"items"`
}

// DeleteNumberResponse is returned after release + delete
type DeleteNumberResponse struct {
	Message string `json:"message"`
}

// UpdateWebhookURLRequest is the body of PUT /phone-numbers/:id/webhook-url
type UpdateWebhookURLRequest struct {
	WebhookURL string `json:"webhookUrl" validate:"required,url"`
}

// UpdateWebhookURLResponse is returned after a webhook URL change
type UpdateWebhookURLResponse struct {
	Message string         `json:"message"`
	Number  PhoneNumberDTO `json:"number"`
}
