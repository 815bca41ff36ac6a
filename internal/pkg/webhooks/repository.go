package webhooks

import (
	"errors"
	"time"

	"github.com/chainlens/chainlens/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations for subscriptions and the delivery
// audit trail. Read paths never expose the signing secret; only
// SigningSecret hands it out, to the delivery path.
type Repository interface {
	CreateSubscription(sub *models.WebhookSubscription) error
	GetSubscription(userID uint, id string) (*models.WebhookSubscription, error)
	ListSubscriptions(userID uint) ([]models.WebhookSubscription, error)
	UpdateSubscription(sub *models.WebhookSubscription) error
	DeleteSubscription(userID uint, id string) error

	// ActiveSubscriptions resolves active subscriptions covering eventType,
	// optionally scoped to one user (scopeUserID == 0 means all users).
	ActiveSubscriptions(eventType string, scopeUserID uint) ([]models.WebhookSubscription, error)
	SigningSecret(id string) (string, error)

	RecordDelivery(rec *models.WebhookDelivery) error
	RecordOutcome(webhookID string, success bool, at time.Time) error
	ListDeliveries(webhookID string, limit int) ([]models.WebhookDelivery, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateSubscription(sub *models.WebhookSubscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) GetSubscription(userID uint, id string) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sub.Secret = ""
	return &sub, nil
}

func (r *gormRepository) ListSubscriptions(userID uint) ([]models.WebhookSubscription, error) {
	var subs []models.WebhookSubscription
	err := r.db.Where("user_id = ?", userID).Order("created_at asc").Find(&subs).Error
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Secret = ""
	}
	return subs, nil
}

func (r *gormRepository) UpdateSubscription(sub *models.WebhookSubscription) error {
	res := r.db.Model(&models.WebhookSubscription{}).
		Where("id = ? AND user_id = ?", sub.ID, sub.UserID).
		Updates(map[string]interface{}{
			"url":          sub.URL,
			"events_json":  sub.EventsJSON,
			"active":       sub.Active,
			"retry_limit":  sub.RetryLimit,
			"timeout_secs": sub.TimeoutSecs,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) DeleteSubscription(userID uint, id string) error {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.WebhookSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) ActiveSubscriptions(eventType string, scopeUserID uint) ([]models.WebhookSubscription, error) {
	q := r.db.Where("active = ?", true)
	if scopeUserID != 0 {
		q = q.Where("user_id = ?", scopeUserID)
	}
	var subs []models.WebhookSubscription
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}

	// Event sets are stored as JSON text; membership is filtered here.
	matched := subs[:0]
	for _, sub := range subs {
		if sub.SubscribesTo(eventType) {
			sub.Secret = ""
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

func (r *gormRepository) SigningSecret(id string) (string, error) {
	var sub models.WebhookSubscription
	err := r.db.Select("secret").Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return sub.Secret, nil
}

func (r *gormRepository) RecordDelivery(rec *models.WebhookDelivery) error {
	return r.db.Create(rec).Error
}

func (r *gormRepository) RecordOutcome(webhookID string, success bool, at time.Time) error {
	updates := map[string]interface{}{}
	if success {
		updates["success_count"] = gorm.Expr("success_count + 1")
		updates["last_triggered_at"] = &at
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	}
	return r.db.Model(&models.WebhookSubscription{}).Where("id = ?", webhookID).Updates(updates).Error
}

func (r *gormRepository) ListDeliveries(webhookID string, limit int) ([]models.WebhookDelivery, error) {
	var rows []models.WebhookDelivery
	q := r.db.Where("webhook_id = ?", webhookID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
