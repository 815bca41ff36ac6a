package credits

import (
	"errors"
	"time"

	"github.com/chainlens/chainlens/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the durable-store operations the ledger service is
// built on. Every mutating method is a single atomic unit: balance update,
// log append and session stamping either all commit or all roll back, and
// concurrent mutations for the same user are linearized by the store.
type Repository interface {
	GetBalance(userID uint) (*models.CreditBalance, error)
	Deduct(userID uint, sessionID string, cost int, reason string) (*models.CreditTransaction, error)
	Grant(userID uint, amount int, txType models.CreditTransactionType, reason string, metadata map[string]interface{}) (*models.CreditTransaction, error)
	RefundSession(userID uint, sessionID string, reason string) (*models.CreditTransaction, int, error)
	ListTransactions(userID uint, limit int) ([]models.CreditTransaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM. Per-user
// serialization relies on SELECT ... FOR UPDATE row locks on the balance row.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetBalance(userID uint) (*models.CreditBalance, error) {
	var bal models.CreditBalance
	if err := r.db.Where("user_id = ?", userID).First(&bal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bal, nil
}

func (r *gormRepository) Deduct(userID uint, sessionID string, cost int, reason string) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var bal models.CreditBalance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&bal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		// The authoritative affordability check happens here, under the lock.
		if bal.Credits < cost {
			return &InsufficientCreditsError{Needed: cost, Current: bal.Credits}
		}

		newBalance := bal.Credits - cost
		if err := tx.Model(&models.CreditBalance{}).Where("id = ?", bal.ID).
			Updates(map[string]interface{}{
				"credits":            newBalance,
				"total_credits_used": bal.TotalCreditsUsed + cost,
			}).Error; err != nil {
			return err
		}

		row := &models.CreditTransaction{
			UserID:       userID,
			SessionID:    sessionID,
			Type:         models.CreditTxDeduction,
			Amount:       -cost,
			Reason:       reason,
			BalanceAfter: newBalance,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		if sessionID != "" {
			if err := tx.Model(&models.AuditSession{}).
				Where("id = ? AND user_id = ?", sessionID, userID).
				Update("credits_charged", cost).Error; err != nil {
				return err
			}
		}

		entry = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *gormRepository) Grant(userID uint, amount int, txType models.CreditTransactionType, reason string, metadata map[string]interface{}) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		row, err := grantLocked(tx, userID, amount, txType, reason, metadata, "")
		if err != nil {
			return err
		}
		entry = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *gormRepository) RefundSession(userID uint, sessionID string, reason string) (*models.CreditTransaction, int, error) {
	var entry *models.CreditTransaction
	amount := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var sess models.AuditSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", sessionID, userID).
			First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Tolerant no-op: refund may be called speculatively.
				return nil
			}
			return err
		}
		if sess.CreditsCharged <= 0 {
			return nil
		}

		amount = sess.CreditsCharged
		row, err := grantLocked(tx, userID, amount, models.CreditTxRefund, reason, nil, sessionID)
		if err != nil {
			return err
		}

		// Zero the stamp so a second refund for the same session is a no-op.
		if err := tx.Model(&models.AuditSession{}).Where("id = ?", sess.ID).
			Update("credits_charged", 0).Error; err != nil {
			return err
		}
		entry = row
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return entry, amount, nil
}

func (r *gormRepository) ListTransactions(userID uint, limit int) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	q := r.db.Where("user_id = ?", userID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// grantLocked increments balance and lifetime earned and appends the log row
// inside an already-open transaction. The balance row is created on first
// touch, which is how accounts are provisioned.
func grantLocked(tx *gorm.DB, userID uint, amount int, txType models.CreditTransactionType, reason string, metadata map[string]interface{}, sessionID string) (*models.CreditTransaction, error) {
	var bal models.CreditBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&bal).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		bal = models.CreditBalance{UserID: userID}
		if err := tx.Create(&bal).Error; err != nil {
			return nil, err
		}
	}

	now := time.Now()
	newBalance := bal.Credits + amount
	if err := tx.Model(&models.CreditBalance{}).Where("id = ?", bal.ID).
		Updates(map[string]interface{}{
			"credits":              newBalance,
			"total_credits_earned": bal.TotalCreditsEarned + amount,
			"last_grant_at":        &now,
		}).Error; err != nil {
		return nil, err
	}

	row := &models.CreditTransaction{
		UserID:       userID,
		SessionID:    sessionID,
		Type:         txType,
		Amount:       amount,
		Reason:       reason,
		BalanceAfter: newBalance,
	}
	if err := row.SetMetadata(metadata); err != nil {
		return nil, err
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
