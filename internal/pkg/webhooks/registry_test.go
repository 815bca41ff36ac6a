package webhooks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	sub, secret, err := reg.Create(ctx, 1, CreateSubscriptionInput{
		URL:    "https://example.com/hooks",
		Events: []string{EventAuditCompleted, EventCreditsLow},
	})
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.Active)
	assert.Equal(t, 3, sub.RetryLimit)
	assert.Equal(t, 10, sub.TimeoutSecs)
	assert.Equal(t, []string{EventAuditCompleted, EventCreditsLow}, sub.Events())

	// The secret is handed out exactly once at creation time.
	assert.True(t, strings.HasPrefix(secret, "whsec_"))
	assert.Empty(t, sub.Secret)

	got, err := reg.Get(ctx, 1, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Secret)
}

func TestRegistryCreateValidation(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateSubscriptionInput
	}{
		{"Missing URL", CreateSubscriptionInput{Events: []string{EventAuditCompleted}}},
		{"Malformed URL", CreateSubscriptionInput{URL: "not a url", Events: []string{EventAuditCompleted}}},
		{"No events", CreateSubscriptionInput{URL: "https://example.com/hooks"}},
		{"Only blank events", CreateSubscriptionInput{URL: "https://example.com/hooks", Events: []string{"", "  "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := reg.Create(ctx, 1, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	t.Run("Anonymous user", func(t *testing.T) {
		_, _, err := reg.Create(ctx, 0, CreateSubscriptionInput{
			URL:    "https://example.com/hooks",
			Events: []string{EventAuditCompleted},
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRegistryCreateNormalizesInput(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	sub, _, err := reg.Create(ctx, 1, CreateSubscriptionInput{
		URL:         "  https://example.com/hooks  ",
		Events:      []string{EventAuditCompleted, " " + EventAuditCompleted + " ", EventAuditFailed, ""},
		RetryLimit:  intPtr(99),
		TimeoutSecs: intPtr(0),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/hooks", sub.URL)
	assert.Equal(t, []string{EventAuditCompleted, EventAuditFailed}, sub.Events())
	assert.Equal(t, 10, sub.RetryLimit)
	assert.Equal(t, 1, sub.TimeoutSecs)
}

func TestRegistryUpdate(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	sub, _, err := reg.Create(ctx, 1, CreateSubscriptionInput{
		URL:    "https://example.com/hooks",
		Events: []string{EventAuditCompleted},
	})
	require.NoError(t, err)

	updated, err := reg.Update(ctx, 1, sub.ID, UpdateSubscriptionInput{
		URL:         strPtr("https://example.com/v2/hooks"),
		Events:      []string{EventCreditsDeducted},
		Active:      boolPtr(false),
		RetryLimit:  intPtr(5),
		TimeoutSecs: intPtr(30),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/v2/hooks", updated.URL)
	assert.Equal(t, []string{EventCreditsDeducted}, updated.Events())
	assert.False(t, updated.Active)
	assert.Equal(t, 5, updated.RetryLimit)
	assert.Equal(t, 30, updated.TimeoutSecs)
	assert.Empty(t, updated.Secret)

	// Nil fields leave current values untouched.
	updated, err = reg.Update(ctx, 1, sub.ID, UpdateSubscriptionInput{Active: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Equal(t, "https://example.com/v2/hooks", updated.URL)
	assert.Equal(t, 5, updated.RetryLimit)
}

func TestRegistryUpdateRejectsInvalidInput(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	sub, _, err := reg.Create(ctx, 1, CreateSubscriptionInput{
		URL:    "https://example.com/hooks",
		Events: []string{EventAuditCompleted},
	})
	require.NoError(t, err)

	_, err = reg.Update(ctx, 1, sub.ID, UpdateSubscriptionInput{URL: strPtr("nope")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = reg.Update(ctx, 1, sub.ID, UpdateSubscriptionInput{Events: []string{" "}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// The failed updates must not have changed anything.
	got, err := reg.Get(ctx, 1, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hooks", got.URL)
	assert.Equal(t, []string{EventAuditCompleted}, got.Events())
}

func TestRegistryOwnershipScoping(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	sub, _, err := reg.Create(ctx, 1, CreateSubscriptionInput{
		URL:    "https://example.com/hooks",
		Events: []string{EventAuditCompleted},
	})
	require.NoError(t, err)

	// Another user cannot see, modify or delete it.
	_, err = reg.Get(ctx, 2, sub.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Update(ctx, 2, sub.ID, UpdateSubscriptionInput{Active: boolPtr(false)})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Delete(ctx, 2, sub.ID), ErrNotFound)

	others, err := reg.List(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, others)

	mine, err := reg.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestRegistryDelete(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	sub, _, err := reg.Create(ctx, 1, CreateSubscriptionInput{
		URL:    "https://example.com/hooks",
		Events: []string{EventAuditCompleted},
	})
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, 1, sub.ID))
	_, err = reg.Get(ctx, 1, sub.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Delete(ctx, 1, sub.ID), ErrNotFound)
}

func TestRegistryDeliveriesRequireOwnership(t *testing.T) {
	reg := NewRegistry(NewMemoryRepository())
	ctx := context.Background()

	sub, _, err := reg.Create(ctx, 1, CreateSubscriptionInput{
		URL:    "https://example.com/hooks",
		Events: []string{EventAuditCompleted},
	})
	require.NoError(t, err)

	rows, err := reg.Deliveries(ctx, 1, sub.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = reg.Deliveries(ctx, 2, sub.ID, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}
