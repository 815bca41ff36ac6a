package webhooks

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignBytesFormat(t *testing.T) {
	sig := SignBytes("whsec_test", []byte(`{"event":"audit.completed"}`))

	assert.True(t, strings.HasPrefix(sig, "sha256="))
	// "sha256=" plus 64 hex chars of the HMAC digest
	assert.Len(t, sig, len("sha256=")+64)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	payload := map[string]interface{}{
		"session_id": "sess-1",
		"credits":    30,
		"nested":     map[string]interface{}{"chain": "ethereum"},
	}

	sig, err := Sign("whsec_test", payload)
	require.NoError(t, err)

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.True(t, Verify("whsec_test", body, sig))
}

func TestSignDeterministic(t *testing.T) {
	payload := map[string]interface{}{"b": 2, "a": 1, "c": 3}

	first, err := Sign("whsec_test", payload)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		sig, err := Sign("whsec_test", payload)
		require.NoError(t, err)
		assert.Equal(t, first, sig)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"session_id":"sess-1","credits":30}`)
	sig := SignBytes("whsec_test", body)

	t.Run("Modified payload", func(t *testing.T) {
		tampered := []byte(`{"session_id":"sess-1","credits":31}`)
		assert.False(t, Verify("whsec_test", tampered, sig))
	})

	t.Run("Wrong secret", func(t *testing.T) {
		assert.False(t, Verify("whsec_other", body, sig))
	})

	t.Run("Truncated signature", func(t *testing.T) {
		assert.False(t, Verify("whsec_test", body, sig[:len(sig)-2]))
	})

	t.Run("Empty signature", func(t *testing.T) {
		assert.False(t, Verify("whsec_test", body, ""))
	})

	t.Run("Empty secret", func(t *testing.T) {
		assert.False(t, Verify("", body, sig))
	})
}
