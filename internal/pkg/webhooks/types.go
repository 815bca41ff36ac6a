package webhooks

import (
	"errors"
	"time"
)

// Well-known event types published by the platform. The dispatcher itself is
// payload-agnostic and delivers unknown event types opaquely.
const (
	EventAuditStarted   = "audit.started"
	EventAuditCompleted = "audit.completed"
	EventAuditFailed    = "audit.failed"

	EventCreditsDeducted = "credits.deducted"
	EventCreditsGranted  = "credits.granted"
	EventCreditsRefunded = "credits.refunded"
	EventCreditsLow      = "credits.low"
)

// Event is the wire envelope POSTed to subscribers.
type Event struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

var (
	// ErrNotFound is returned when a subscription does not exist or belongs
	// to another user.
	ErrNotFound = errors.New("webhooks: subscription not found")
	// ErrInvalidInput is returned for malformed subscription data.
	ErrInvalidInput = errors.New("webhooks: invalid input")
)
