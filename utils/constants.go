package utils

import (
	"time"
)

// Context keys for request-scoped values
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)

// Requirement group constants
const (
	// RequirementGroupValidity is how long an approved group stays usable
	// before the provider demands fresh regulatory information (90 days)
	RequirementGroupValidity = 90 * 24 * time.Hour
)

// Webhook constants
const (
	// WebhookEventDedupTTL bounds the best-effort replay cache in Redis.
	// The record metadata remains the source of truth for idempotency.
	WebhookEventDedupTTL = 24 * time.Hour
)
