package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	AuditStatusPending   = "pending"
	AuditStatusRunning   = "running"
	AuditStatusCompleted = "completed"
	AuditStatusFailed    = "failed"
)

// AuditSession is a single credit-consuming contract audit run. The
// CreditsCharged stamp is the source of truth for refunds: it is written by
// the ledger during deduction and zeroed again when the session is refunded.
type AuditSession struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	ContractAddress string         `gorm:"type:varchar(64);index" json:"contract_address"`
	Chain           string         `gorm:"type:varchar(40);default:'ethereum'" json:"chain"`
	AnalysisType    string         `gorm:"type:varchar(30);default:'security'" json:"analysis_type"`
	Language        string         `gorm:"type:varchar(30);default:'solidity'" json:"language"`
	Status          string         `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	CreditsCharged  int            `gorm:"not null;default:0" json:"credits_charged"`
	IsPrivate       bool           `gorm:"default:false" json:"is_private"`
	CompletedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
