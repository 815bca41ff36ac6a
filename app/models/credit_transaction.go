package models

import (
	"encoding/json"
	"time"
)

// CreditTransactionType classifies a ledger entry.
type CreditTransactionType string

const (
	CreditTxDeduction CreditTransactionType = "deduction"
	CreditTxPurchase  CreditTransactionType = "purchase"
	CreditTxBonus     CreditTransactionType = "bonus"
	CreditTxRefund    CreditTransactionType = "refund"
	CreditTxReferral  CreditTransactionType = "referral"
	CreditTxInitial   CreditTransactionType = "initial"
)

// CreditTransaction is an immutable ledger row. Amount is negative for
// deductions and positive otherwise; BalanceAfter records the balance
// immediately after the row was applied so the full history can be
// reconstructed from the log alone.
type CreditTransaction struct {
	ID           uint                  `gorm:"primaryKey" json:"id"`
	UserID       uint                  `gorm:"not null;index" json:"user_id"`
	SessionID    string                `gorm:"type:varchar(36);index;default:''" json:"session_id,omitempty"`
	Type         CreditTransactionType `gorm:"type:varchar(20);not null;index" json:"type"`
	Amount       int                   `gorm:"not null" json:"amount"`
	Reason       string                `gorm:"type:varchar(255);not null" json:"reason"`
	MetadataJSON string                `gorm:"type:text" json:"-"`
	BalanceAfter int                   `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time             `gorm:"autoCreateTime;index" json:"created_at"`
}

// Metadata decodes the opaque annotation map; nil when the row has none.
func (t *CreditTransaction) Metadata() map[string]interface{} {
	if t.MetadataJSON == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(t.MetadataJSON), &m); err != nil {
		return nil
	}
	return m
}

// SetMetadata encodes the annotation map onto the row.
func (t *CreditTransaction) SetMetadata(m map[string]interface{}) error {
	if len(m) == 0 {
		t.MetadataJSON = ""
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	t.MetadataJSON = string(data)
	return nil
}

// IsValidCreditTransactionType reports whether t names a known ledger entry type.
func IsValidCreditTransactionType(t CreditTransactionType) bool {
	switch t {
	case CreditTxDeduction, CreditTxPurchase, CreditTxBonus, CreditTxRefund, CreditTxReferral, CreditTxInitial:
		return true
	default:
		return false
	}
}
