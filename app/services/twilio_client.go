package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
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

// TwilioClient talks to the Twilio REST API (form-encoded, basic auth).
// Docs: https://www.twilio.com/docs/phone-numbers/api
type TwilioClient struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewTwilioClient creates a Twilio gateway
func NewTwilioClient(baseURL, accountSID, authToken string, timeout time.Duration) *TwilioClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TwilioClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AccountSID: accountSID,
		AuthToken:  authToken,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

func (c *TwilioClient) Name() models.Provider { return models.ProviderTwilio }

func (c *TwilioClient) accountPath(resource string) string {
	return "/2010-04-01/Accounts/" + c.AccountSID + resource
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info"`
}

type twilioAvailableNumber struct {
	PhoneNumber  string `json:"phone_number"`
	ISOCountry   string `json:"iso_country"`
	Capabilities struct {
		Voice bool `json:"voice"`
		SMS   bool `json:"SMS"`
		MMS   bool `json:"MMS"`
	} `json:"capabilities"`
}

type twilioAvailableNumbersPage struct {
	AvailablePhoneNumbers []twilioAvailableNumber `json:"available_phone_numbers"`
}

// SearchNumbers queries AvailablePhoneNumbers/{Country}/Local.json
func (c *TwilioClient) SearchNumbers(ctx context.Context, in SearchInput) ([]AvailableNumber, error) {
	country := in.CountryCode
	if country == "" {
		country = "US"
	}
	numberType := "Local"
	if strings.EqualFold(in.NumberType, "toll-free") {
		numberType = "TollFree"
	} else if strings.EqualFold(in.NumberType, "mobile") {
		numberType = "Mobile"
	}

	q := url.Values{}
	for _, f := range in.Features {
		switch strings.ToLower(f) {
		case "voice":
			q.Set("VoiceEnabled", "true")
		case "sms":
			q.Set("SmsEnabled", "true")
		case "mms":
			q.Set("MmsEnabled", "true")
		}
	}
	if in.Limit > 0 {
		q.Set("PageSize", strconv.Itoa(in.Limit))
	}

	path := c.accountPath("/AvailablePhoneNumbers/" + country + "/" + numberType + ".json")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page twilioAvailableNumbersPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}

	out := make([]AvailableNumber, 0, len(page.AvailablePhoneNumbers))
	for _, n := range page.AvailablePhoneNumbers {
		features := make([]string, 0, 3)
		if n.Capabilities.Voice {
			features = append(features, "voice")
		}
		if n.Capabilities.SMS {
			features = append(features, "sms")
		}
		if n.Capabilities.MMS {
			features = append(features, "mms")
		}
		out = append(out, AvailableNumber{
			PhoneNumber: n.PhoneNumber,
			CountryCode: n.ISOCountry,
			NumberType:  strings.ToLower(numberType),
			Features:    features,
		})
	}
	return out, nil
}

type twilioIncomingNumber struct {
	SID         string `json:"sid"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

// CreateOrder provisions via IncomingPhoneNumbers.json. Twilio allocates
// synchronously and has no batch order resource, so the number SID doubles
// as the order identifier and the reported status is the number's own.
func (c *TwilioClient) CreateOrder(ctx context.Context, in OrderInput) (*OrderResult, error) {
	form := url.Values{}
	form.Set("PhoneNumber", in.PhoneNumber)
	if in.ConnectionID != "" {
		form.Set("TrunkSid", in.ConnectionID)
	}
	if in.CustomerReference != "" {
		form.Set("FriendlyName", in.CustomerReference)
	}

	var num twilioIncomingNumber
	if err := c.do(ctx, http.MethodPost, c.accountPath("/IncomingPhoneNumbers.json"), form, &num); err != nil {
		return nil, err
	}
	if num.SID == "" {
		return nil, &GatewayError{Kind: GatewayErrorOther, Message: "twilio: empty provisioning response"}
	}

	return &OrderResult{
		OrderID: num.SID,
		Status:  num.Status,
		Numbers: []OrderedNumber{{
			PhoneNumber:      num.PhoneNumber,
			ProviderNumberID: num.SID,
			Status:           num.Status,
			RequirementsMet:  true,
		}},
	}, nil
}

// UpdateNumberConfig applies voice settings to an allocated number
func (c *TwilioClient) UpdateNumberConfig(ctx context.Context, in NumberConfigInput) error {
	if in.ProviderNumberID == "" {
		return errors.New("twilio: provider number sid is required")
	}
	form := url.Values{}
	form.Set("VoiceUrl", in.VoiceWebhookURL)
	form.Set("VoiceMethod", "POST")
	if in.ConnectionID != "" {
		form.Set("TrunkSid", in.ConnectionID)
	}
	path := c.accountPath("/IncomingPhoneNumbers/" + in.ProviderNumberID + ".json")
	return c.do(ctx, http.MethodPost, path, form, nil)
}

// DeleteNumber releases the number
func (c *TwilioClient) DeleteNumber(ctx context.Context, providerNumberID string) error {
	if providerNumberID == "" {
		return errors.New("twilio: provider number sid is required")
	}
	path := c.accountPath("/IncomingPhoneNumbers/" + providerNumberID + ".json")
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// VerifyWebhookSignature checks an HMAC-SHA1 over timestamp + body keyed by
// the account auth token, base64-encoded. Comparison is constant time.
func (c *TwilioClient) VerifyWebhookSignature(payload []byte, timestamp, signature string) error {
	if c.AuthToken == "" {
		return &GatewayError{Kind: GatewayErrorInvalidSignature, Message: "twilio: auth token not configured"}
	}
	if timestamp == "" || signature == "" {
		return &GatewayError{Kind: GatewayErrorInvalidSignature, Message: "twilio: missing signature headers"}
	}

	mac := hmac.New(sha1.New, []byte(c.AuthToken))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return &GatewayError{Kind: GatewayErrorInvalidSignature, Message: "twilio: signature mismatch"}
	}
	return nil
}

// do issues a request with basic auth. Twilio accepts form-encoded bodies
// and answers JSON.
func (c *TwilioClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var bodyReader *strings.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		ge := &GatewayError{
			Kind:       kindForStatus(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("twilio: status %d", resp.StatusCode),
		}
		var te twilioError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&te); decodeErr == nil && te.Code != 0 {
			ge.Code = strconv.Itoa(te.Code)
			if te.Message != "" {
				ge.Message = te.Message
			}
		}
		return ge
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
