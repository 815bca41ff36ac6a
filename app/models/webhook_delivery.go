package models

import "time"

// WebhookDelivery is the append-only audit trail of delivery attempts. One
// row is written per attempt, so a retried event yields several rows with
// increasing AttemptNumber. Rows are never mutated once written.
type WebhookDelivery struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	WebhookID     string     `gorm:"type:varchar(36);not null;index" json:"webhook_id"`
	EventType     string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON   string     `gorm:"type:longtext;not null" json:"payload_json"`
	HTTPStatus    *int       `json:"http_status,omitempty"`
	ResponseBody  string     `gorm:"type:varchar(1024)" json:"response_body,omitempty"`
	AttemptNumber int        `gorm:"not null;default:1" json:"attempt_number"`
	Success       bool       `gorm:"not null;default:false;index" json:"success"`
	DeliveredAt   *time.Time `gorm:"type:timestamp;default:null" json:"delivered_at,omitempty"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
