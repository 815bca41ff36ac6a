package middleware

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/chainlens/chainlens/app/models"
	"github.com/chainlens/chainlens/internal/pkg/cache"
	"github.com/chainlens/chainlens/internal/pkg/database"
	"github.com/chainlens/chainlens/internal/pkg/env"
	"github.com/chainlens/chainlens/internal/pkg/metrics/counter"
	"github.com/chainlens/chainlens/internal/pkg/usercontext"
)

const rateLimitWindow = time.Minute

// APIKeyAuthMiddleware authenticates requests carrying a user API key header.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		db := database.GetDB()
		if db == nil {
			log.Print("api key middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
		}

		hash := models.HashAPIKey(apiKey)
		var user models.User
		if err := db.Where("api_key_hash = ? AND api_key_hash <> ''", hash).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Printf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if user.Status != models.STATUS_ACTIVE {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
		}

		if exceeded := apiRateLimitExceeded(hash); exceeded {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "API rate limit exceeded"})
		}

		// Refresh last-used timestamp best-effort.
		now := time.Now()
		if err := db.Model(&models.User{}).
			Where("id = ?", user.ID).
			Updates(map[string]any{"api_key_last_used_at": now}).Error; err != nil {
			log.Printf("failed to update api key usage timestamp for user %d: %v", user.ID, err)
		}

		// Usage metering is batched through Redis and flushed periodically.
		if err := counter.AddAPIRequest(user.ID); err != nil {
			log.Printf("failed to record api request for user %d: %v", user.ID, err)
		}

		c.Locals(usercontext.ContextKey, usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			IsLoggedIn: true,
			IsAdmin:    user.Role == models.ROLE_ADMIN,
		})
		c.Locals(usercontext.KeyUserID, user.ID)

		return c.Next()
	}
}

// apiRateLimitExceeded enforces a per-key request budget in a TTL-bound
// Redis counter. A cache outage fails open.
func apiRateLimitExceeded(keyHash string) bool {
	limit, err := strconv.Atoi(env.GetEnv("API_RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil || limit <= 0 {
		return false
	}
	count, err := cache.IncrementRateLimit("apikey:"+keyHash, rateLimitWindow)
	if err != nil {
		log.Printf("rate limit counter unavailable: %v", err)
		return false
	}
	return count > int64(limit)
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
