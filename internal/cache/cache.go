// Package cache stores LLM review responses on disk, keyed by request hash.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// entry is the on-disk cache record.
type entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
}

// Cache is a directory of JSON entries with an optional TTL.
// A nil *Cache is valid and always misses.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New creates a cache rooted at dir. A zero ttl never expires entries.
func New(dir string, ttl time.Duration) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Key hashes the given parts into a stable cache key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get decodes the entry for key into v. It returns false on a miss,
// an expired entry or an unreadable entry.
func (c *Cache) Get(key string, v any) bool {
	if c == nil {
		return false
	}
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false
	}
	if c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl {
		_ = os.Remove(c.path(key))
		return false
	}
	return json.Unmarshal(e.Value, v) == nil
}

// Put stores v under key, replacing any existing entry.
func (c *Cache) Put(key string, v any) error {
	if c == nil {
		return nil
	}
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	data, err := json.Marshal(entry{Key: key, Value: value, CreatedAt: c.now()})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), c.path(key))
}

// Clear removes every cached entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	if c == nil {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
