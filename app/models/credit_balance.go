package models

import (
	"time"

	"gorm.io/gorm"
)

// CreditBalance tracks the spendable credits of a user together with the
// lifetime counters. The invariant Credits == TotalCreditsEarned −
// TotalCreditsUsed holds after every ledger operation.
type CreditBalance struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Credits            int        `gorm:"not null;default:0" json:"credits"`
	TotalCreditsEarned int        `gorm:"not null;default:0" json:"total_credits_earned"`
	TotalCreditsUsed   int        `gorm:"not null;default:0" json:"total_credits_used"`
	Enterprise         bool       `gorm:"default:false" json:"enterprise"`
	LastGrantAt        *time.Time `gorm:"type:timestamp;default:null" json:"last_grant_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetOrCreateCreditBalance returns the balance row for a user, creating an
// empty one on first touch.
func GetOrCreateCreditBalance(db *gorm.DB, userID uint) (*CreditBalance, error) {
	var cb CreditBalance
	if err := db.Where("user_id = ?", userID).First(&cb).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			cb = CreditBalance{UserID: userID}
			if err := db.Create(&cb).Error; err != nil {
				return nil, err
			}
			return &cb, nil
		}
		return nil, err
	}
	return &cb, nil
}
