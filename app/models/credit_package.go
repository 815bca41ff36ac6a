package models

import (
	"time"

	"gorm.io/gorm"
)

// CreditPackage is administrative reference data describing a purchasable
// credit bundle. The ledger hot path only reads these rows.
type CreditPackage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Credits      int       `gorm:"not null" json:"credits"`
	BonusCredits int       `gorm:"not null;default:0" json:"bonus_credits"`
	PriceCents   int       `gorm:"not null" json:"price_cents"`
	TierRank     int       `gorm:"not null;default:0" json:"tier_rank"`
	Active       bool      `gorm:"default:true;index" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TotalCredits is the number of credits a purchase of this package grants.
func (p *CreditPackage) TotalCredits() int {
	return p.Credits + p.BonusCredits
}

// ListActiveCreditPackages returns purchasable packages ordered by tier rank.
func ListActiveCreditPackages(db *gorm.DB) ([]CreditPackage, error) {
	var pkgs []CreditPackage
	err := db.Where("active = ?", true).Order("tier_rank asc").Find(&pkgs).Error
	return pkgs, err
}

// GetCreditPackageByName resolves a package by its unique name.
func GetCreditPackageByName(db *gorm.DB, name string) (*CreditPackage, error) {
	var pkg CreditPackage
	if err := db.Where("name = ? AND active = ?", name, true).First(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}
