package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/report"
)

const latestReportKey = "stagezero:report:latest"

// ReportCache keeps the latest report in Redis so report reads skip the
// artifact files. The cache is best effort: a Redis failure degrades to
// the artifact store, never to an error for the caller.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewReportCache creates a report cache over an existing Redis client.
func NewReportCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReportCache {
	return &ReportCache{client: client, ttl: ttl, logger: logger}
}

// Put stores the report under the latest-report key.
func (c *ReportCache) Put(ctx context.Context, rep report.Report) {
	data, err := json.Marshal(rep)
	if err != nil {
		c.logger.Warn("encoding report for cache failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, latestReportKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("caching report failed", zap.Error(err))
	}
}

// Latest returns the cached report, or false on miss or Redis failure.
func (c *ReportCache) Latest(ctx context.Context) (report.Report, bool) {
	data, err := c.client.Get(ctx, latestReportKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("report cache lookup failed", zap.Error(err))
		}
		return report.Report{}, false
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		c.logger.Warn("decoding cached report failed", zap.Error(err))
		return report.Report{}, false
	}
	return rep, true
}
