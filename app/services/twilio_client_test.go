package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twilioSign(authToken, timestamp string, payload []byte) string {
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioVerifyWebhookSignature(t *testing.T) {
	client := NewTwilioClient("https://api.twilio.test", "AC123", "secret-token", 5*time.Second)
	payload := []byte(`{"sid":"PN123","status":"in-use"}`)
	timestamp := "1712000000"

	t.Run("valid signature", func(t *testing.T) {
		err := client.VerifyWebhookSignature(payload, timestamp, twilioSign("secret-token", timestamp, payload))
		assert.NoError(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		err := client.VerifyWebhookSignature(payload, timestamp, twilioSign("other-token", timestamp, payload))
		ge, ok := AsGatewayError(err)
		require.True(t, ok)
		assert.Equal(t, GatewayErrorInvalidSignature, ge.Kind)
	})

	t.Run("tampered payload", func(t *testing.T) {
		err := client.VerifyWebhookSignature([]byte(`{}`), timestamp, twilioSign("secret-token", timestamp, payload))
		require.Error(t, err)
	})

	t.Run("missing headers", func(t *testing.T) {
		err := client.VerifyWebhookSignature(payload, "", "")
		require.Error(t, err)
	})
}

func TestTwilioCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/IncomingPhoneNumbers.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret-token", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551234567", r.PostForm.Get("PhoneNumber"))
		assert.Equal(t, "gig-1", r.PostForm.Get("FriendlyName"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"PN123","phone_number":"+15551234567","status":"in-use"}`))
	}))
	defer server.Close()

	client := NewTwilioClient(server.URL, "AC123", "secret-token", 5*time.Second)

	result, err := client.CreateOrder(context.Background(), OrderInput{
		PhoneNumber:       "+15551234567",
		CustomerReference: "gig-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "PN123", result.OrderID, "the number sid doubles as the order id")
	require.Len(t, result.Numbers, 1)
	assert.Equal(t, "PN123", result.Numbers[0].ProviderNumberID)
	assert.True(t, result.Numbers[0].RequirementsMet)
}

func TestTwilioErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"code":20003,"message":"Insufficient funds","status":402}`))
	}))
	defer server.Close()

	client := NewTwilioClient(server.URL, "AC123", "secret-token", 5*time.Second)

	_, err := client.CreateOrder(context.Background(), OrderInput{PhoneNumber: "+15551234567"})

	require.Error(t, err)
	ge, ok := AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, GatewayErrorInsufficientFunds, ge.Kind)
	assert.Equal(t, "20003", ge.Code)
	assert.Equal(t, "Insufficient funds", ge.Message)
}

func TestGatewayKindForStatus(t *testing.T) {
	assert.Equal(t, GatewayErrorInsufficientFunds, kindForStatus(402))
	assert.Equal(t, GatewayErrorNumberUnavailable, kindForStatus(404))
	assert.Equal(t, GatewayErrorNumberUnavailable, kindForStatus(410))
	assert.Equal(t, GatewayErrorAlreadyRegistered, kindForStatus(409))
	assert.Equal(t, GatewayErrorOther, kindForStatus(500))
}
