package dto

// RequirementDTO is one regulatory field inside a group
type RequirementDTO struct {
	Field  string `json:"field"`
	Type   string `json:"type"`
	Value  string `json:"value,omitempty"`
	Status string `json:"status"`
}

// RequirementGroupDTO is the API representation of a requirement group
type RequirementGroupDTO struct {
	ID              uint             `json:"id"`
	UUID            string           `json:"uuid"`
	ProviderGroupID string           `json:"providerGroupId,omitempty"`
	CompanyID       string           `json:"companyId"`
	CountryCode     string           `json:"countryCode"`
	Status          string           `json:"status"`
	Requirements    []RequirementDTO `json:"requirements"`
	ValidUntil      string           `json:"validUntil,omitempty"`
}
