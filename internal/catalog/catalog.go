// Package catalog maps console titles to display metadata (box art) used to
// decorate live notifications and chat messages.
package catalog

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gyaneshwarpardhi/switchrelay/internal/config"
)

const DefaultCacheSize = 512

// Entry is a known title.
type Entry struct {
	TitleID string `json:"title_id,omitempty"`
	Name    string `json:"name"`
	Image   string `json:"image,omitempty"`
}

// Catalog is immutable after New; a config reload builds a fresh one.
// Lookups, including misses, are memoised in an LRU.
type Catalog struct {
	entries []Entry
	byID    map[string]int
	cache   *lru.Cache[string, lookup]
}

type lookup struct {
	entry Entry
	found bool
}

// New builds a catalog from configured titles. size <= 0 uses DefaultCacheSize.
func New(titles []config.Title, size int) (*Catalog, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, lookup](size)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		entries: make([]Entry, 0, len(titles)),
		byID:    make(map[string]int, len(titles)),
		cache:   cache,
	}
	for _, t := range titles {
		c.entries = append(c.entries, Entry{TitleID: t.TitleID, Name: t.Name, Image: t.Image})
		if t.TitleID != "" {
			if _, dup := c.byID[strings.ToUpper(t.TitleID)]; !dup {
				c.byID[strings.ToUpper(t.TitleID)] = len(c.entries) - 1
			}
		}
	}
	return c, nil
}

// Find resolves a title by id, then by case-insensitive name equality, then
// by name containment in either direction. The first configured entry wins.
func (c *Catalog) Find(titleID, titleName string) (Entry, bool) {
	key := strings.ToUpper(titleID) + "\x00" + strings.ToLower(titleName)
	if hit, ok := c.cache.Get(key); ok {
		return hit.entry, hit.found
	}
	e, found := c.find(titleID, titleName)
	c.cache.Add(key, lookup{entry: e, found: found})
	return e, found
}

// Image returns the image URL for a title, or "".
func (c *Catalog) Image(titleID, titleName string) string {
	if c == nil {
		return ""
	}
	e, _ := c.Find(titleID, titleName)
	return e.Image
}

func (c *Catalog) Len() int { return len(c.entries) }

func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) find(titleID, titleName string) (Entry, bool) {
	if titleID != "" {
		if i, ok := c.byID[strings.ToUpper(titleID)]; ok {
			return c.entries[i], true
		}
	}
	name := strings.ToLower(strings.TrimSpace(titleName))
	if name == "" {
		return Entry{}, false
	}
	for _, e := range c.entries {
		if strings.ToLower(e.Name) == name {
			return e, true
		}
	}
	for _, e := range c.entries {
		candidate := strings.ToLower(e.Name)
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, name) || strings.Contains(name, candidate) {
			return e, true
		}
	}
	return Entry{}, false
}
