package statistics

import (
	"strconv"
	"sync"
	"time"

	"github.com/chainlens/chainlens/app/models"
	"github.com/chainlens/chainlens/internal/pkg/cache"
	"github.com/chainlens/chainlens/internal/pkg/database"
	"github.com/gofiber/fiber/v2/log"
)

const (
	CacheKeyAuditsTotal = "statistics:audits:total"
	CacheKeyAuditsDaily = "statistics:audits:daily"
	CacheKeyUsersTotal  = "statistics:users:total"
	CacheExpiration     = 30 * time.Minute
)

// StatisticsData holds the public platform counters.
type StatisticsData struct {
	TotalAudits int `json:"total_audits"`
	TodayAudits int `json:"today_audits"`
	TotalUsers  int `json:"total_users"`
}

var (
	lastCacheUpdate  time.Time
	cacheUpdateMutex sync.Mutex
	// Recomputing counts is a table scan; do it at most every five minutes.
	cacheUpdateInterval = 5 * time.Minute
)

// UpdateCacheIfNeeded refreshes the cached counters when they are stale.
func UpdateCacheIfNeeded() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	if time.Since(lastCacheUpdate) <= cacheUpdateInterval {
		return
	}
	if err := UpdateStatisticsCache(); err != nil {
		log.Errorf("[Statistics] Failed to refresh cache: %v", err)
		return
	}
	lastCacheUpdate = time.Now()
}

// UpdateStatisticsCache recomputes all counters from the database and stores
// them in Redis.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalAudits int64
	if err := db.Model(&models.AuditSession{}).Count(&totalAudits).Error; err != nil {
		return err
	}

	today := time.Now().Truncate(24 * time.Hour)
	var todayAudits int64
	if err := db.Model(&models.AuditSession{}).Where("created_at >= ?", today).Count(&todayAudits).Error; err != nil {
		return err
	}

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	if err := cache.Set(CacheKeyAuditsTotal, strconv.FormatInt(totalAudits, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyAuditsDaily, strconv.FormatInt(todayAudits, 10), CacheExpiration); err != nil {
		return err
	}
	return cache.Set(CacheKeyUsersTotal, strconv.FormatInt(totalUsers, 10), CacheExpiration)
}

// GetStatistics returns the cached counters, refreshing them when stale.
func GetStatistics() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalAudits: cachedInt(CacheKeyAuditsTotal),
		TodayAudits: cachedInt(CacheKeyAuditsDaily),
		TotalUsers:  cachedInt(CacheKeyUsersTotal),
	}
}

func cachedInt(key string) int {
	v, err := cache.GetInt(key)
	if err != nil {
		return 0
	}
	return v
}
