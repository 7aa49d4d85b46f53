package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalCache is the device-scoped history store: one JSON file per scope
// holding raw query strings, newest first, capped at CacheLimit. It works
// without authentication and survives across sessions on the same device.
type LocalCache struct {
	mu  sync.Mutex
	dir string
}

// NewLocalCache stores cache files under dir.
func NewLocalCache(dir string) *LocalCache {
	return &LocalCache{dir: dir}
}

func (c *LocalCache) path(scope Scope) string {
	return filepath.Join(c.dir, "history_"+string(scope)+".json")
}

// Read returns the cached query strings for a scope, newest first. A
// missing or malformed file reads as empty: the cache is a convenience,
// never a failure source.
func (c *LocalCache) Read(scope Scope) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(scope)
}

func (c *LocalCache) readLocked(scope Scope) []string {
	data, err := os.ReadFile(c.path(scope))
	if err != nil {
		return nil
	}

	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil
	}
	return texts
}

// Record moves text to the front of the scope's cache, removing any
// case-insensitive duplicate, and truncates to CacheLimit.
func (c *LocalCache) Record(scope Scope, text string) error {
	if text == "" {
		return fmt.Errorf("refusing to record empty query text")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	texts := c.readLocked(scope)
	updated := make([]string, 0, len(texts)+1)
	updated = append(updated, text)
	for _, t := range texts {
		if strings.EqualFold(t, text) {
			continue
		}
		updated = append(updated, t)
	}
	if len(updated) > CacheLimit {
		updated = updated[:CacheLimit]
	}

	return c.writeLocked(scope, updated)
}

// Remove deletes a text from the scope's cache by case-insensitive match.
func (c *LocalCache) Remove(scope Scope, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	texts := c.readLocked(scope)
	updated := texts[:0]
	for _, t := range texts {
		if strings.EqualFold(t, text) {
			continue
		}
		updated = append(updated, t)
	}

	return c.writeLocked(scope, updated)
}

// Clear empties the scope's cache.
func (c *LocalCache) Clear(scope Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(scope, nil)
}

func (c *LocalCache) writeLocked(scope Scope, texts []string) error {
	if texts == nil {
		texts = []string{}
	}

	data, err := json.Marshal(texts)
	if err != nil {
		return fmt.Errorf("marshaling local history cache: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	if err := os.WriteFile(c.path(scope), data, 0644); err != nil {
		return fmt.Errorf("writing local history cache: %w", err)
	}
	return nil
}
