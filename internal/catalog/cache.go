package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/cohort/internal/dataset"
)

// DefaultCacheSize is the number of catalogs kept by NewCache(0).
const DefaultCacheSize = 4

// Cache memoizes scans keyed by the settings and the newest modification
// time in the data directory. The oldest entry is evicted first.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	entries  map[string]*Catalog
	scans    int
}

// NewCache returns a cache holding at most capacity catalogs.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Catalog, capacity),
	}
}

// Get returns the cached catalog for s, scanning the directory on a miss.
func (c *Cache) Get(ctx context.Context, s Settings, log *slog.Logger) (*Catalog, error) {
	key, err := cacheKey(s)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cat, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return cat, nil
	}
	c.mu.Unlock()

	cat, err := Scan(ctx, s, log)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans++
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.capacity {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cat
	return cat, nil
}

// Len returns the number of cached catalogs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Scans returns how many scans the cache has performed.
func (c *Cache) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}

// Hash returns a stable digest of the settings.
func (s Settings) Hash() string {
	data, _ := json.Marshal(s)
	h := sha256.New()
	h.Write([]byte("cohort/catalog-settings/v1"))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func cacheKey(s Settings) (string, error) {
	mtime, err := newestModTime(s.DataDir)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", s.Hash(), mtime), nil
}

// newestModTime returns the latest modification time of the directory and
// its entries, in nanoseconds.
func newestModTime(dir string) (int64, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, dataset.NewDataAccessError("stat data directory", dir, err)
	}
	newest := info.ModTime().UnixNano()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, dataset.NewDataAccessError("scan data directory", dir, err)
	}
	for _, e := range entries {
		fi, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if t := fi.ModTime().UnixNano(); t > newest {
			newest = t
		}
	}
	return newest, nil
}
