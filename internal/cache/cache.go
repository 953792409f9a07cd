// Package cache persists search results on disk, keyed by a hash of the
// normalized query. Entries never expire; they are replaced by a later Put
// for the same key or removed by Clear.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// Entry is one cached query.
type Entry struct {
	Key       string                  `json:"key"`
	Query     string                  `json:"query"`
	Results   []research.SearchResult `json:"results"`
	FetchedAt time.Time               `json:"fetchedAt"`
}

// Cache is a directory of <key>.json files. It is safe for concurrent use:
// every Put writes its own temp file and renames it into place, so a Get
// sees either the old entry or the new one and needs no lock.
type Cache struct {
	dir string

	// clearMu serializes Clear against writers so Clear never races a rename.
	clearMu sync.RWMutex
}

// New opens (creating if necessary) a cache rooted at dir.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Normalize case-folds, trims and collapses internal whitespace.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Key returns the hex SHA-256 of the normalized query.
func Key(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the entry for query. A missing entry is (nil, false, nil).
// An unreadable or corrupt entry is reported as an error and treated by
// callers as a miss.
func (c *Cache) Get(query string) (*Entry, bool, error) {
	key := Key(query)
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return &e, true, nil
}

// Put stores results for query, atomically replacing any previous entry.
// Concurrent Puts for the same query leave exactly one of them in place.
// A nil results slice is stored as null and read back as nil.
func (c *Cache) Put(query string, results []research.SearchResult) error {
	c.clearMu.RLock()
	defer c.clearMu.RUnlock()

	key := Key(query)
	data, err := json.MarshalIndent(Entry{
		Key:       key,
		Query:     Normalize(query),
		Results:   results,
		FetchedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("cache: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: close: %w", err)
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()

	files, err := c.entries()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("cache: remove %s: %w", filepath.Base(f), err)
		}
		removed++
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	files, err := c.entries()
	return len(files), err
}

func (c *Cache) entries() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	return files, nil
}
