package services

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gigline/numbers/models"
)

// TelnyxClient talks to the Telnyx v2 REST API.
// Docs: https://developers.telnyx.com/api/numbers
type TelnyxClient struct {
	BaseURL    string
	APIKey     string
	PublicKey  ed25519.PublicKey
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewTelnyxClient creates a Telnyx gateway. publicKey is the base64-encoded
// Ed25519 webhook signing key from the Telnyx portal; an empty key disables
// webhook verification (it will reject every event).
func NewTelnyxClient(baseURL, apiKey, publicKey string, timeout time.Duration) (*TelnyxClient, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var pk ed25519.PublicKey
	if publicKey != "" {
		raw, err := base64.StdEncoding.DecodeString(publicKey)
		if err != nil {
			return nil, fmt.Errorf("telnyx: invalid public key: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("telnyx: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		pk = ed25519.PublicKey(raw)
	}
	return &TelnyxClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		PublicKey:  pk,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}, nil
}

func (c *TelnyxClient) Name() models.Provider { return models.ProviderTelnyx }

// Telnyx wraps everything in a data envelope; errors come as a list
type telnyxErrorItem struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type telnyxErrorEnvelope struct {
	Errors []telnyxErrorItem `json:"errors"`
}

type telnyxAvailableNumber struct {
	PhoneNumber string `json:"phone_number"`
	RecordType  string `json:"record_type"`
	Features    []struct {
		Name string `json:"name"`
	} `json:"features"`
	CountryCode     string `json:"country_code"`
	PhoneNumberType string `json:"phone_number_type"`
}

type telnyxAvailableNumbersEnv struct {
	Data []telnyxAvailableNumber `json:"data"`
}

// SearchNumbers queries GET /available_phone_numbers
func (c *TelnyxClient) SearchNumbers(ctx context.Context, in SearchInput) ([]AvailableNumber, error) {
	q := url.Values{}
	if in.CountryCode != "" {
		q.Set("filter[country_code]", in.CountryCode)
	}
	if in.NumberType != "" {
		q.Set("filter[phone_number_type]", in.NumberType)
	}
	for _, f := range in.Features {
		q.Add("filter[features][]", f)
	}
	if in.Limit > 0 {
		q.Set("filter[limit]", strconv.Itoa(in.Limit))
	}

	var env telnyxAvailableNumbersEnv
	if err := c.getJSON(ctx, "/available_phone_numbers?"+q.Encode(), &env); err != nil {
		return nil, err
	}

	out := make([]AvailableNumber, 0, len(env.Data))
	for _, n := range env.Data {
		features := make([]string, 0, len(n.Features))
		for _, f := range n.Features {
			features = append(features, f.Name)
		}
		out = append(out, AvailableNumber{
			PhoneNumber: n.PhoneNumber,
			CountryCode: n.CountryCode,
			NumberType:  n.PhoneNumberType,
			Features:    features,
		})
	}
	return out, nil
}

type telnyxOrderNumber struct {
	ID              string `json:"id"`
	PhoneNumber     string `json:"phone_number"`
	Status          string `json:"status"`
	RequirementsMet bool   `json:"requirements_met"`
}

type telnyxOrderData struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	PhoneNumbers []telnyxOrderNumber `json:"phone_numbers"`
}

type telnyxOrderEnv struct {
	Data telnyxOrderData `json:"data"`
}

type telnyxOrderReq struct {
	PhoneNumbers []struct {
		PhoneNumber        string `json:"phone_number"`
		RequirementGroupID string `json:"requirement_group_id,omitempty"`
	} `json:"phone_numbers"`
	ConnectionID       string `json:"connection_id,omitempty"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty"`
	CustomerReference  string `json:"customer_reference,omitempty"`
}

// CreateOrder submits POST /number_orders
func (c *TelnyxClient) CreateOrder(ctx context.Context, in OrderInput) (*OrderResult, error) {
	body := telnyxOrderReq{
		ConnectionID:       in.ConnectionID,
		MessagingProfileID: in.MessagingProfileID,
		CustomerReference:  in.CustomerReference,
	}
	body.PhoneNumbers = append(body.PhoneNumbers, struct {
		PhoneNumber        string `json:"phone_number"`
		RequirementGroupID string `json:"requirement_group_id,omitempty"`
	}{PhoneNumber: in.PhoneNumber, RequirementGroupID: in.RequirementGroupID})

	var env telnyxOrderEnv
	if err := c.postJSON(ctx, "/number_orders", body, &env); err != nil {
		return nil, err
	}
	if env.Data.ID == "" {
		return nil, &GatewayError{Kind: GatewayErrorOther, Message: "telnyx: empty order response"}
	}

	result := &OrderResult{OrderID: env.Data.ID, Status: env.Data.Status}
	for _, n := range env.Data.PhoneNumbers {
		result.Numbers = append(result.Numbers, OrderedNumber{
			PhoneNumber:      n.PhoneNumber,
			ProviderNumberID: n.ID,
			Status:           n.Status,
			RequirementsMet:  n.RequirementsMet,
		})
	}
	return result, nil
}

type telnyxNumberConfigReq struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Voice        struct {
		Format     string `json:"format"`
		WebhookURL string `json:"webhook_url"`
	} `json:"voice"`
}

// UpdateNumberConfig submits PATCH /phone_numbers/{id} with voice settings
func (c *TelnyxClient) UpdateNumberConfig(ctx context.Context, in NumberConfigInput) error {
	if in.ProviderNumberID == "" {
		return errors.New("telnyx: provider number id is required")
	}
	body := telnyxNumberConfigReq{ConnectionID: in.ConnectionID}
	body.Voice.Format = "sip"
	body.Voice.WebhookURL = in.VoiceWebhookURL
	return c.doJSON(ctx, http.MethodPatch, "/phone_numbers/"+in.ProviderNumberID, body, nil)
}

// DeleteNumber releases the number via DELETE /phone_numbers/{id}
func (c *TelnyxClient) DeleteNumber(ctx context.Context, providerNumberID string) error {
	if providerNumberID == "" {
		return errors.New("telnyx: provider number id is required")
	}
	return c.doJSON(ctx, http.MethodDelete, "/phone_numbers/"+providerNumberID, nil, nil)
}

type telnyxRequirementGroupReq struct {
	CountryCode     string `json:"country_code"`
	PhoneNumberType string `json:"phone_number_type"`
	Action          string `json:"action"`
}

type telnyxRequirementGroupEnv struct {
	Data struct {
		ID                     string `json:"id"`
		RegulatoryRequirements []struct {
			RequirementID string `json:"requirement_id"`
			FieldType     string `json:"field_type"`
		} `json:"regulatory_requirements"`
	} `json:"data"`
}

// CreateRequirementGroup submits POST /requirement_groups for an ordering
// action on local numbers in the given country
func (c *TelnyxClient) CreateRequirementGroup(ctx context.Context, countryCode string) (string, []ProviderRequirement, error) {
	body := telnyxRequirementGroupReq{
		CountryCode:     countryCode,
		PhoneNumberType: "local",
		Action:          "ordering",
	}

	var env telnyxRequirementGroupEnv
	if err := c.postJSON(ctx, "/requirement_groups", body, &env); err != nil {
		return "", nil, err
	}
	if env.Data.ID == "" {
		return "", nil, &GatewayError{Kind: GatewayErrorOther, Message: "telnyx: empty requirement group response"}
	}

	reqs := make([]ProviderRequirement, 0, len(env.Data.RegulatoryRequirements))
	for _, r := range env.Data.RegulatoryRequirements {
		reqs = append(reqs, ProviderRequirement{RequirementID: r.RequirementID, FieldType: r.FieldType})
	}
	return env.Data.ID, reqs, nil
}

// VerifyWebhookSignature checks the Ed25519 signature over timestamp + body.
// Telnyx sends base64 signatures; hex is accepted for older integrations.
func (c *TelnyxClient) VerifyWebhookSignature(payload []byte, timestamp, signature string) error {
	if len(c.PublicKey) == 0 {
		return &GatewayError{Kind: GatewayErrorInvalidSignature, Message: "telnyx: webhook public key not configured"}
	}
	if timestamp == "" || signature == "" {
		return &GatewayError{Kind: GatewayErrorInvalidSignature, Message: "telnyx: missing signature headers"}
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		sig, err = hex.DecodeString(signature)
		if err != nil {
			return &GatewayError{Kind: GatewayErrorInvalidSignature, Message: "telnyx: undecodable signature"}
		}
	}

	signed := make([]byte, 0, len(timestamp)+len(payload))
	signed = append(signed, timestamp...)
	signed = append(signed, payload...)

	if !ed25519.Verify(c.PublicKey, signed, sig) {
		return &GatewayError{Kind: GatewayErrorInvalidSignature, Message: "telnyx: signature mismatch"}
	}
	return nil
}

// HTTP helpers

func (c *TelnyxClient) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *TelnyxClient) postJSON(ctx context.Context, path string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, payload, out)
}

func (c *TelnyxClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.errorFromResponse(resp.StatusCode, resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorFromResponse builds a typed GatewayError from a Telnyx error envelope
func (c *TelnyxClient) errorFromResponse(status int, resp *http.Response) error {
	ge := &GatewayError{
		Kind:       kindForStatus(status),
		HTTPStatus: status,
		Message:    fmt.Sprintf("telnyx: status %d", status),
	}
	var env telnyxErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && len(env.Errors) > 0 {
		ge.Code = env.Errors[0].Code
		if env.Errors[0].Detail != "" {
			ge.Message = env.Errors[0].Detail
		} else if env.Errors[0].Title != "" {
			ge.Message = env.Errors[0].Title
		}
	}
	return ge
}
