package webhooks

import (
	"sort"
	"sync"
	"time"

	"github.com/chainlens/chainlens/app/models"
)

// MemoryRepository is an in-memory webhook store for tests and local
// development. Delivery records are append-only, like the durable store.
type MemoryRepository struct {
	mu            sync.Mutex
	subscriptions map[string]*models.WebhookSubscription
	deliveries    []models.WebhookDelivery
}

// NewMemoryRepository creates an empty in-memory webhook store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		subscriptions: make(map[string]*models.WebhookSubscription),
	}
}

func (r *MemoryRepository) CreateSubscription(sub *models.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *sub
	r.subscriptions[sub.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetSubscription(userID uint, id string) (*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[id]
	if !ok || sub.UserID != userID {
		return nil, ErrNotFound
	}
	out := *sub
	out.Secret = ""
	return &out, nil
}

func (r *MemoryRepository) ListSubscriptions(userID uint) ([]models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []models.WebhookSubscription
	for _, sub := range r.subscriptions {
		if sub.UserID == userID {
			out := *sub
			out.Secret = ""
			subs = append(subs, out)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (r *MemoryRepository) UpdateSubscription(sub *models.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.subscriptions[sub.ID]
	if !ok || existing.UserID != sub.UserID {
		return ErrNotFound
	}
	existing.URL = sub.URL
	existing.EventsJSON = sub.EventsJSON
	existing.Active = sub.Active
	existing.RetryLimit = sub.RetryLimit
	existing.TimeoutSecs = sub.TimeoutSecs
	return nil
}

func (r *MemoryRepository) DeleteSubscription(userID uint, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[id]
	if !ok || sub.UserID != userID {
		return ErrNotFound
	}
	delete(r.subscriptions, id)
	return nil
}

func (r *MemoryRepository) ActiveSubscriptions(eventType string, scopeUserID uint) ([]models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []models.WebhookSubscription
	for _, sub := range r.subscriptions {
		if !sub.Active {
			continue
		}
		if scopeUserID != 0 && sub.UserID != scopeUserID {
			continue
		}
		if !sub.SubscribesTo(eventType) {
			continue
		}
		out := *sub
		out.Secret = ""
		subs = append(subs, out)
	}
	return subs, nil
}

func (r *MemoryRepository) SigningSecret(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[id]
	if !ok {
		return "", ErrNotFound
	}
	return sub.Secret, nil
}

func (r *MemoryRepository) RecordDelivery(rec *models.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.deliveries = append(r.deliveries, cp)
	return nil
}

func (r *MemoryRepository) RecordOutcome(webhookID string, success bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[webhookID]
	if !ok {
		return ErrNotFound
	}
	if success {
		sub.SuccessCount++
		t := at
		sub.LastTriggeredAt = &t
	} else {
		sub.FailureCount++
	}
	return nil
}

func (r *MemoryRepository) ListDeliveries(webhookID string, limit int) ([]models.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []models.WebhookDelivery
	for _, rec := range r.deliveries {
		if rec.WebhookID == webhookID {
			rows = append(rows, rec)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
