package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "ratelimit:"
	nonceKeyPrefix     = "nonce:"
)

// IncrementRateLimit bumps a TTL-bound counter and reports the new count.
// The key expires after window, so abandoned counters clean themselves up.
func IncrementRateLimit(key string, window time.Duration) (int64, error) {
	pipe := GetClient().TxPipeline()
	incr := pipe.Incr(ctx, rateLimitKeyPrefix+key)
	pipe.Expire(ctx, rateLimitKeyPrefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// PutNonce stores a one-shot state token (e.g. a wallet login challenge)
// with a bounded lifetime.
func PutNonce(key, value string, ttl time.Duration) error {
	return GetClient().Set(ctx, nonceKeyPrefix+key, value, ttl).Err()
}

// ConsumeNonce atomically reads and deletes a one-shot token. A second call
// for the same key returns redis.Nil.
func ConsumeNonce(key string) (string, error) {
	return GetClient().GetDel(ctx, nonceKeyPrefix+key).Result()
}

// IsNotFound reports whether an error is the cache miss sentinel.
func IsNotFound(err error) bool {
	return err == redis.Nil
}
