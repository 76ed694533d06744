// Package quota enforces the per-user daily request quota.
// Counters are keyed by user and UTC day, so they reset at midnight UTC.
package quota

import (
	"fmt"
	"time"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

// Config contains quota settings. An empty RedisAddr selects the in-memory limiter.
type Config struct {
	DailyLimit    int    `env:"QUOTA_DAILY_LIMIT"    envDefault:"200"`
	RedisAddr     string `env:"QUOTA_REDIS_ADDR"`
	RedisPassword string `env:"QUOTA_REDIS_PASSWORD"`
	RedisDB       int    `env:"QUOTA_REDIS_DB"       envDefault:"0"`
}

func dayKey(userID string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s", userID, now.UTC().Format(time.DateOnly))
}

func nextReset(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// exceeded builds the quota error. Retrying the same day cannot succeed.
func exceeded(limit int) error {
	observability.CountQuotaRejection()
	return &domain.Error{
		Code:      domain.CodeRateLimit,
		Message:   fmt.Sprintf("daily limit of %d requests reached", limit),
		Retryable: false,
	}
}
