package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/chainlens/chainlens/app/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultRetryLimit  = 3
	maxRetryLimit      = 10
	defaultTimeoutSecs = 10
	maxTimeoutSecs     = 120
	secretPrefix       = "whsec_"
)

// Registry manages webhook subscriptions for users.
type Registry struct {
	repo     Repository
	validate *validator.Validate
}

// NewRegistry creates a registry from an injected repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, validate: validator.New()}
}

// NewRegistryFromDB creates a registry from a GORM DB handle.
func NewRegistryFromDB(db *gorm.DB) *Registry {
	return NewRegistry(NewRepository(db))
}

// CreateSubscriptionInput carries the user-settable fields of a new
// subscription.
type CreateSubscriptionInput struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	RetryLimit  *int     `json:"retry_limit,omitempty"`
	TimeoutSecs *int     `json:"timeout_secs,omitempty"`
}

// UpdateSubscriptionInput carries the mutable fields of a subscription. Nil
// pointers leave the current value untouched.
type UpdateSubscriptionInput struct {
	URL         *string  `json:"url,omitempty"`
	Events      []string `json:"events,omitempty"`
	Active      *bool    `json:"active,omitempty"`
	RetryLimit  *int     `json:"retry_limit,omitempty"`
	TimeoutSecs *int     `json:"timeout_secs,omitempty"`
}

// Create registers a subscription and returns it together with the signing
// secret. The secret is shown exactly once; reads never expose it again.
func (r *Registry) Create(ctx context.Context, userID uint, in CreateSubscriptionInput) (*models.WebhookSubscription, string, error) {
	_ = ctx
	if userID == 0 {
		return nil, "", ErrInvalidInput
	}
	if err := r.validateURL(in.URL); err != nil {
		return nil, "", err
	}
	events, err := normalizeEvents(in.Events)
	if err != nil {
		return nil, "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}

	sub := &models.WebhookSubscription{
		ID:          uuid.New().String(),
		UserID:      userID,
		URL:         strings.TrimSpace(in.URL),
		Secret:      secret,
		Active:      true,
		RetryLimit:  clampRetryLimit(in.RetryLimit, defaultRetryLimit),
		TimeoutSecs: clampTimeout(in.TimeoutSecs, defaultTimeoutSecs),
	}
	if err := sub.SetEvents(events); err != nil {
		return nil, "", err
	}
	if err := r.repo.CreateSubscription(sub); err != nil {
		return nil, "", err
	}

	out := *sub
	out.Secret = ""
	return &out, secret, nil
}

// List returns all subscriptions of a user, secrets omitted.
func (r *Registry) List(ctx context.Context, userID uint) ([]models.WebhookSubscription, error) {
	_ = ctx
	return r.repo.ListSubscriptions(userID)
}

// Get returns one subscription of a user, secret omitted.
func (r *Registry) Get(ctx context.Context, userID uint, id string) (*models.WebhookSubscription, error) {
	_ = ctx
	return r.repo.GetSubscription(userID, id)
}

// Update modifies url, events, active, retry limit and timeout; nothing else
// is user-mutable.
func (r *Registry) Update(ctx context.Context, userID uint, id string, in UpdateSubscriptionInput) (*models.WebhookSubscription, error) {
	sub, err := r.repo.GetSubscription(userID, id)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := r.validateURL(*in.URL); err != nil {
			return nil, err
		}
		sub.URL = strings.TrimSpace(*in.URL)
	}
	if in.Events != nil {
		events, err := normalizeEvents(in.Events)
		if err != nil {
			return nil, err
		}
		if err := sub.SetEvents(events); err != nil {
			return nil, err
		}
	}
	if in.Active != nil {
		sub.Active = *in.Active
	}
	if in.RetryLimit != nil {
		sub.RetryLimit = clampRetryLimit(in.RetryLimit, sub.RetryLimit)
	}
	if in.TimeoutSecs != nil {
		sub.TimeoutSecs = clampTimeout(in.TimeoutSecs, sub.TimeoutSecs)
	}

	if err := r.repo.UpdateSubscription(sub); err != nil {
		return nil, err
	}
	return r.repo.GetSubscription(userID, id)
}

// Delete removes a subscription permanently. Deactivation via Update is the
// softer alternative.
func (r *Registry) Delete(ctx context.Context, userID uint, id string) error {
	_ = ctx
	return r.repo.DeleteSubscription(userID, id)
}

// Deliveries returns the delivery audit trail of one subscription.
func (r *Registry) Deliveries(ctx context.Context, userID uint, id string, limit int) ([]models.WebhookDelivery, error) {
	if _, err := r.repo.GetSubscription(userID, id); err != nil {
		return nil, err
	}
	return r.repo.ListDeliveries(id, limit)
}

func (r *Registry) validateURL(url string) error {
	if err := r.validate.Var(strings.TrimSpace(url), "required,url,max=500"); err != nil {
		return ErrInvalidInput
	}
	return nil
}

func normalizeEvents(events []string) ([]string, error) {
	seen := make(map[string]struct{}, len(events))
	var out []string
	for _, raw := range events {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, ErrInvalidInput
	}
	return out, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(b), nil
}

func clampRetryLimit(v *int, def int) int {
	if v == nil {
		return def
	}
	if *v < 0 {
		return 0
	}
	if *v > maxRetryLimit {
		return maxRetryLimit
	}
	return *v
}

func clampTimeout(v *int, def int) int {
	if v == nil {
		return def
	}
	if *v < 1 {
		return 1
	}
	if *v > maxTimeoutSecs {
		return maxTimeoutSecs
	}
	return *v
}
