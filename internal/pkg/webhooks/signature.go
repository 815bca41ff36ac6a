package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const signaturePrefix = "sha256="

// Sign canonicalizes the payload to JSON and returns
// "sha256=" + hex(HMAC-SHA256(secret, body)). Map keys marshal in sorted
// order, so the representation is deterministic; verifiers must canonicalize
// the same way before comparing.
func Sign(secret string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return SignBytes(secret, body), nil
}

// SignBytes signs an already-serialized payload.
func SignBytes(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature over body and compares it against
// the presented one in constant time.
func Verify(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignBytes(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
