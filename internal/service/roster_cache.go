package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dojaang-api/internal/models"
	appErrors "github.com/noah-isme/dojaang-api/pkg/errors"
)

const rosterKeyPrefix = "dojaang:roster:"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RosterCache keeps active class rosters in Redis. Every enrollment change for a class drops its entry.
// Cache failures are logged and never fail the caller.
type RosterCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewRosterCache constructs the roster cache.
func NewRosterCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *RosterCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *RosterCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// RosterKey returns the cache key of a class roster.
func RosterKey(classID string) string {
	return rosterKeyPrefix + classID
}

// Get returns the cached roster and whether it was a hit.
func (c *RosterCache) Get(ctx context.Context, classID string) ([]models.EnrollmentDetail, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	var roster []models.EnrollmentDetail
	err := c.repo.Get(ctx, RosterKey(classID), &roster)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("roster cache get failed", zap.String("class_id", classID), zap.Error(err))
		}
		return nil, false
	}
	return roster, true
}

// Set stores a roster snapshot.
func (c *RosterCache) Set(ctx context.Context, classID string, roster []models.EnrollmentDetail) {
	if !c.Enabled() {
		return
	}
	if roster == nil {
		roster = []models.EnrollmentDetail{}
	}
	if err := c.repo.Set(ctx, RosterKey(classID), roster, c.ttl); err != nil {
		c.logger.Warn("roster cache set failed", zap.String("class_id", classID), zap.Error(err))
	}
}

// Invalidate drops the cached roster of a class.
func (c *RosterCache) Invalidate(ctx context.Context, classID string) {
	if !c.Enabled() {
		return
	}
	if err := c.repo.Delete(ctx, RosterKey(classID)); err != nil {
		c.logger.Warn("roster cache invalidate failed", zap.String("class_id", classID), zap.Error(err))
	}
}
