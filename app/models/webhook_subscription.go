package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// WebhookSubscription is a user-registered delivery endpoint. The signing
// secret is generated once at creation and never serialized back out; reads
// that need it go through the repository's SigningSecret accessor.
type WebhookSubscription struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	URL             string         `gorm:"type:varchar(500);not null" json:"url"`
	Secret          string         `gorm:"type:varchar(100);not null" json:"-"`
	EventsJSON      string         `gorm:"type:text;not null" json:"-"`
	Active          bool           `gorm:"default:true;index" json:"active"`
	RetryLimit      int            `gorm:"not null;default:3" json:"retry_limit"`
	TimeoutSecs     int            `gorm:"not null;default:10" json:"timeout_secs"`
	SuccessCount    int            `gorm:"not null;default:0" json:"success_count"`
	FailureCount    int            `gorm:"not null;default:0" json:"failure_count"`
	LastTriggeredAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// Events decodes the subscribed event-type set.
func (w *WebhookSubscription) Events() []string {
	if w.EventsJSON == "" {
		return nil
	}
	var events []string
	if err := json.Unmarshal([]byte(w.EventsJSON), &events); err != nil {
		return nil
	}
	return events
}

// SetEvents encodes the subscribed event-type set onto the row.
func (w *WebhookSubscription) SetEvents(events []string) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	w.EventsJSON = string(data)
	return nil
}

// SubscribesTo reports whether the subscription covers the given event type.
func (w *WebhookSubscription) SubscribesTo(eventType string) bool {
	for _, e := range w.Events() {
		if e == eventType {
			return true
		}
	}
	return false
}

// Timeout returns the per-attempt delivery deadline.
func (w *WebhookSubscription) Timeout() time.Duration {
	if w.TimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.TimeoutSecs) * time.Second
}
