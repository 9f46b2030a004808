package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Cache key layout.
const (
	statsCachePrefix      = "attendance:stats"
	predictionCachePrefix = "predictions:student"
)

func statsCacheKey(date, classID string) string {
	if classID == "" {
		classID = "all"
	}
	return fmt.Sprintf("%s:%s:%s", statsCachePrefix, date, classID)
}

func statsCachePattern(date string) string {
	return fmt.Sprintf("%s:%s:*", statsCachePrefix, date)
}

func predictionCacheKey(studentID, academicYear string) string {
	if academicYear == "" {
		academicYear = "all"
	}
	return fmt.Sprintf("%s:%s:%s", predictionCachePrefix, studentID, academicYear)
}

func predictionCachePattern(studentID string) string {
	return fmt.Sprintf("%s:%s:*", predictionCachePrefix, studentID)
}

// CacheService wraps cache reads and writes with metrics. Failures never break the caller.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	// generation advances on every Invalidate. Remember only stores a loaded
	// value when no invalidation happened while it was loading.
	generation atomic.Uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Remember fills dest from cache, or calls load to fill it and stores the result.
// The boolean reports a cache hit. A value loaded across a concurrent Invalidate
// is returned but not stored, since it may predate the write that invalidated.
// Invalidations made by other processes are not seen; the TTL bounds those.
func (s *CacheService) Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(ctx context.Context) error) (bool, error) {
	if hit, _ := s.Get(ctx, key, dest); hit {
		return true, nil
	}
	gen := s.currentGeneration()
	if err := load(ctx); err != nil {
		return false, err
	}
	if gen != s.currentGeneration() {
		s.logger.Debug("cache fill skipped after invalidation", zap.String("key", key))
		return false, nil
	}
	_ = s.Set(ctx, key, dest, ttl)
	return false, nil
}

func (s *CacheService) currentGeneration() uint64 {
	if s == nil {
		return 0
	}
	return s.generation.Load()
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	s.generation.Add(1)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}
