package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func TestCacheServiceRememberLoadsOnce(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)

	loads := 0
	load := func(dest *int) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			loads++
			*dest = 42
			return nil
		}
	}

	var first int
	hit, err := cache.Remember(context.Background(), "k", 0, &first, load(&first))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, first)

	var second int
	hit, err = cache.Remember(context.Background(), "k", 0, &second, load(&second))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, second)
	assert.Equal(t, 1, loads)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, 0, nil, false)

	require.NoError(t, cache.Set(context.Background(), "k", 1, 0))
	assert.False(t, repo.has("k"))
	hit, err := cache.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidateByPattern(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, 0, nil, true)

	require.NoError(t, cache.Set(context.Background(), statsCacheKey("2024-03-04", ""), 1, 0))
	require.NoError(t, cache.Set(context.Background(), statsCacheKey("2024-03-04", "class-1"), 1, 0))
	require.NoError(t, cache.Set(context.Background(), statsCacheKey("2024-03-05", ""), 1, 0))

	require.NoError(t, cache.Invalidate(context.Background(), statsCachePattern("2024-03-04")))
	assert.False(t, repo.has("attendance:stats:2024-03-04:all"))
	assert.False(t, repo.has("attendance:stats:2024-03-04:class-1"))
	assert.True(t, repo.has("attendance:stats:2024-03-05:all"))
}

func TestCacheServiceRememberSkipsFillAfterConcurrentInvalidate(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	key := statsCacheKey("2024-03-04", "")

	var stale int
	hit, err := cache.Remember(context.Background(), key, 0, &stale, func(ctx context.Context) error {
		stale = 7
		// a check-in lands after the counts were read
		return cache.Invalidate(ctx, statsCachePattern("2024-03-04"))
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, stale)
	assert.False(t, repo.has(key))

	var fresh int
	hit, err = cache.Remember(context.Background(), key, 0, &fresh, func(ctx context.Context) error {
		fresh = 8
		return nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 8, fresh)
	assert.True(t, repo.has(key))
}
