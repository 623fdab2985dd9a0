package normalize

import (
	"sync"

	"github.com/RishiKendai/twinscan/internal/models"
)

// Cache memoizes normalized text per file identity. Safe for concurrent use;
// each file is normalized at most once per cache.
type Cache struct {
	fn      func(*models.SourceFile) string
	entries sync.Map
}

type cacheEntry struct {
	once sync.Once
	text string
}

func NewCache(fn func(*models.SourceFile) string) *Cache {
	return &Cache{fn: fn}
}

// Get returns the normalized text of f, computing it on first use
func (c *Cache) Get(f *models.SourceFile) string {
	v, _ := c.entries.LoadOrStore(cacheKey(f), &cacheEntry{})
	entry := v.(*cacheEntry)
	entry.once.Do(func() {
		entry.text = c.fn(f)
	})
	return entry.text
}

func cacheKey(f *models.SourceFile) string {
	if f.ID != "" {
		return f.ID
	}
	return f.Name
}
