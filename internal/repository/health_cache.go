package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"
	"github.com/jobswipe/proxy-rotator/pkg/cache"

	"github.com/sirupsen/logrus"
)

const (
	recentFailuresKey = "proxy:health:failures"
	dailyCountsPrefix = "proxy:health:counts:"
	healthChannel     = "proxy:health"
)

// HealthCache keeps a capped list of recent failures and per-day outcome counters in Redis.
type HealthCache struct {
	cache    *cache.RedisCache
	capacity int64
	logger   *logrus.Logger
}

func NewHealthCache(c *cache.RedisCache, capacity int, logger *logrus.Logger) *HealthCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &HealthCache{
		cache:    c,
		capacity: int64(capacity),
		logger:   logger,
	}
}

func (h *HealthCache) SaveHealthCheck(ctx context.Context, check *models.HealthCheck) error {
	if check.Timestamp.IsZero() {
		check.Timestamp = time.Now()
	}

	field := "success"
	if !check.Success {
		field = "failure"
		if err := h.cache.PushCapped(ctx, recentFailuresKey, check, h.capacity); err != nil {
			return err
		}
	}

	if err := h.cache.HIncrBy(ctx, dailyCountsKey(check.Timestamp), field, 1); err != nil {
		return err
	}

	if err := h.cache.Publish(ctx, healthChannel, check); err != nil {
		h.logger.WithError(err).Debug("Failed to publish health check")
	}
	return nil
}

func (h *HealthCache) GetRecentFailures(ctx context.Context, limit int) ([]models.HealthCheck, error) {
	if limit <= 0 {
		return []models.HealthCheck{}, nil
	}

	values, err := h.cache.LRange(ctx, recentFailuresKey, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}

	checks := make([]models.HealthCheck, 0, len(values))
	for _, v := range values {
		var check models.HealthCheck
		if err := json.Unmarshal([]byte(v), &check); err != nil {
			h.logger.WithError(err).Warn("Dropping undecodable health check entry")
			continue
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// DailyCounts returns the success and failure totals recorded for day.
func (h *HealthCache) DailyCounts(ctx context.Context, day time.Time) (success, failure int64, err error) {
	fields, err := h.cache.HGetAll(ctx, dailyCountsKey(day))
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	success, _ = strconv.ParseInt(fields["success"], 10, 64)
	failure, _ = strconv.ParseInt(fields["failure"], 10, 64)
	return success, failure, nil
}

func dailyCountsKey(t time.Time) string {
	return fmt.Sprintf("%s%s", dailyCountsPrefix, t.UTC().Format("2006-01-02"))
}
