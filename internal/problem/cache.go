package problem

import (
	"crypto/md5"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gnolang/zeroelim/internal/domain"
)

const cacheFileName = "reports.gob"

// CacheEntry holds the reports of one problem source.
type CacheEntry struct {
	Reports      []Report
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Cache stores reports on disk, keyed by CacheKey. It is safe for
// concurrent use.
type Cache struct {
	CacheDir string
	entries  map[string]CacheEntry
	mutex    sync.Mutex
	maxAge   time.Duration
}

// NewCache opens the cache in cacheDir, creating the directory if needed.
// Entries older than maxAge are ignored; a zero maxAge keeps them forever.
func NewCache(cacheDir string, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}
	c := &Cache{
		CacheDir: cacheDir,
		entries:  make(map[string]CacheEntry),
		maxAge:   maxAge,
	}
	if err := c.load(); err != nil {
		return nil, errors.Wrap(err, "failed to load cache")
	}
	return c, nil
}

// CacheKey identifies the reports of src under mode and opts. The tracer
// does not affect results and is not part of the key.
func CacheKey(mode Mode, opts domain.Options, src []byte) string {
	h := md5.New()
	fmt.Fprintf(h, "%s:%t:%d:%t\n", mode, opts.EliminateDivMod, opts.Iterations, opts.PropagateOuter)
	h.Write(src)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *Cache) load() error {
	file, err := os.Open(filepath.Join(c.CacheDir, cacheFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()
	return gob.NewDecoder(file).Decode(&c.entries)
}

// save must be called with the mutex held.
func (c *Cache) save() error {
	file, err := os.Create(filepath.Join(c.CacheDir, cacheFileName))
	if err != nil {
		return errors.Wrap(err, "failed to create cache file")
	}
	defer file.Close()
	return gob.NewEncoder(file).Encode(c.entries)
}

// Get returns a copy of the reports stored under key.
func (c *Cache) Get(key string) ([]Report, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(entry.CreatedAt) > c.maxAge {
		delete(c.entries, key)
		return nil, false
	}
	entry.LastAccessed = time.Now()
	c.entries[key] = entry
	return append([]Report(nil), entry.Reports...), true
}

// Set stores reports under key and writes the cache to disk.
func (c *Cache) Set(key string, reports []Report) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	c.entries[key] = CacheEntry{
		Reports:      append([]Report(nil), reports...),
		CreatedAt:    now,
		LastAccessed: now,
	}
	return c.save()
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]CacheEntry)
	return c.save()
}
