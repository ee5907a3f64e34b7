package problem

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/zeroelim/internal/domain"
)

func TestCache(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "cache")
	cache, err := NewCache(dir, 0)
	require.NoError(t, err)

	reports := []Report{{Name: "d", Input: "in", Output: "out", Helpers: []string{"h"}}}

	t.Run("NotFound", func(t *testing.T) {
		_, found := cache.Get("missing")
		assert.False(t, found)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		require.NoError(t, cache.Set("k", reports))
		got, found := cache.Get("k")
		require.True(t, found)
		assert.Equal(t, reports, got)

		reopened, err := NewCache(dir, 0)
		require.NoError(t, err)
		got, found = reopened.Get("k")
		require.True(t, found)
		assert.Equal(t, reports, got)
	})

	t.Run("InvalidateAll", func(t *testing.T) {
		require.NoError(t, cache.Set("k", reports))
		require.NoError(t, cache.InvalidateAll())
		_, found := cache.Get("k")
		assert.False(t, found)
	})
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()
	cache, err := NewCache(t.TempDir(), time.Nanosecond)
	require.NoError(t, err)
	require.NoError(t, cache.Set("k", []Report{{Name: "d"}}))
	time.Sleep(time.Millisecond)
	_, found := cache.Get("k")
	assert.False(t, found)
}

func TestCacheKey(t *testing.T) {
	t.Parallel()
	opts := domain.DefaultOptions()
	src := []byte(maskedSum)
	base := CacheKey(ModeDomain, opts, src)

	assert.Equal(t, base, CacheKey(ModeDomain, opts, src))
	assert.NotEqual(t, base, CacheKey(ModeOptimize, opts, src))
	assert.NotEqual(t, base, CacheKey(ModeDomain, opts, []byte(maskedSum+"\n# edited")))

	opts.Iterations++
	assert.NotEqual(t, base, CacheKey(ModeDomain, opts, src))
}

func TestEngineCache(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "masked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(maskedSum), 0o644))

	cache, err := NewCache(filepath.Join(dir, "cache"), 0)
	require.NoError(t, err)
	engine, err := NewEngine(ModeDomain, domain.DefaultOptions())
	require.NoError(t, err)
	engine.WithCache(cache)

	first, err := engine.Run(path)
	require.NoError(t, err)

	stored, found := cache.Get(CacheKey(ModeDomain, domain.DefaultOptions(), []byte(maskedSum)))
	require.True(t, found)
	require.Len(t, stored, len(first))
	assert.Empty(t, stored[0].File)

	second, err := engine.Run(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
