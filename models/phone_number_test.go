package models

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestProviderIsValid(t *testing.T) {
	assert.True(t, ProviderTelnyx.IsValid())
	assert.True(t, ProviderTwilio.IsValid())
	assert.False(t, Provider("vonage").IsValid())
	assert.False(t, Provider("").IsValid())
}

func TestLocalStatusFor(t *testing.T) {
	tests := []struct {
		orderStatus OrderStatus
		expected    PhoneNumberStatus
		forced      bool
	}{
		{OrderStatusRequirementsPending, PhoneNumberStatusRequirementsPending, true},
		{OrderStatusCompleted, PhoneNumberStatusActive, true},
		{OrderStatusFailed, PhoneNumberStatusError, true},
		{OrderStatusExpired, PhoneNumberStatusDeleted, true},
		{OrderStatusPending, "", false},
		{OrderStatusInProgress, "", false},
		{OrderStatus("unknown"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.orderStatus), func(t *testing.T) {
			status, forced := LocalStatusFor(tt.orderStatus)
			assert.Equal(t, tt.forced, forced)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range NonTerminalStatuses {
		record := PhoneNumberRecord{Status: status}
		assert.False(t, record.IsTerminal(), "%s counts against the one-number-per-gig rule", status)
	}

	assert.True(t, (&PhoneNumberRecord{Status: PhoneNumberStatusError}).IsTerminal())
	assert.True(t, (&PhoneNumberRecord{Status: PhoneNumberStatusDeleted}).IsTerminal())
}

func TestHasFeature(t *testing.T) {
	record := PhoneNumberRecord{Features: pq.StringArray{"voice", "sms"}}

	assert.True(t, record.HasFeature("voice"))
	assert.True(t, record.HasFeature("sms"))
	assert.False(t, record.HasFeature("mms"))
	assert.False(t, (&PhoneNumberRecord{}).HasFeature("voice"))
}
