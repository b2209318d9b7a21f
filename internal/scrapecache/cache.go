// Package scrapecache tracks which registrations have already been scraped
// and applied, so delta runs can skip them. The cache is a plain JSON file
// owned by this process; losing it is safe because ingestion is idempotent,
// the worst case is re-processing records that come out unchanged.
package scrapecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// snapshot is the on-disk format. ETags remembers, per source URL, the
// validator the portal returned on the last download, so delta runs can
// skip refetching an unchanged bundle.
type snapshot struct {
	ScrapedIDs []string          `json:"scraped_ids"`
	TotalCount int               `json:"total_count"`
	ETags      map[string]string `json:"etags,omitempty"`
}

// Cache is an in-memory set of cache keys ("STATE:REGNO") backed by a JSON
// snapshot file. Not safe for concurrent use; wrap it in a Recorder when
// multiple workers feed it.
type Cache struct {
	path  string
	ids   map[string]struct{}
	etags map[string]string
	dirty bool
}

// Load reads the snapshot at path. A missing file yields an empty cache
// (first run); an unreadable or corrupt file logs a warning and also yields
// an empty cache rather than failing the run.
func Load(path string) *Cache {
	c := &Cache{path: path, ids: make(map[string]struct{}), etags: make(map[string]string)}
	log := zap.L().With(zap.String("component", "scrapecache"))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("cache file missing, starting empty", zap.String("path", path))
			return c
		}
		log.Warn("cache file unreadable, starting empty", zap.String("path", path), zap.Error(err))
		return c
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn("cache file corrupt, starting empty", zap.String("path", path), zap.Error(err))
		return c
	}

	for _, id := range snap.ScrapedIDs {
		c.ids[id] = struct{}{}
	}
	for url, etag := range snap.ETags {
		c.etags[url] = etag
	}
	if snap.TotalCount != len(c.ids) {
		log.Warn("cache count mismatch, trusting id list",
			zap.Int("total_count", snap.TotalCount),
			zap.Int("ids", len(c.ids)),
		)
	}

	log.Debug("cache loaded", zap.String("path", path), zap.Int("ids", len(c.ids)))
	return c
}

// Contains reports whether key has already been processed.
func (c *Cache) Contains(key string) bool {
	_, ok := c.ids[key]
	return ok
}

// Add inserts key and reports whether it was new. Adding an existing key is
// a no-op.
func (c *Cache) Add(key string) bool {
	if _, ok := c.ids[key]; ok {
		return false
	}
	c.ids[key] = struct{}{}
	c.dirty = true
	return true
}

// Len returns the number of cached keys.
func (c *Cache) Len() int { return len(c.ids) }

// Keys returns all cached keys, sorted.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.ids))
	for k := range c.ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path returns the snapshot file location.
func (c *Cache) Path() string { return c.path }

// ETag returns the stored validator for a source URL, "" when none.
func (c *Cache) ETag(url string) string { return c.etags[url] }

// SetETag records the validator a source URL last returned.
func (c *Cache) SetETag(url, etag string) {
	if etag == "" || c.etags[url] == etag {
		return
	}
	c.etags[url] = etag
	c.dirty = true
}

// Flush writes the snapshot atomically: temp file in the same directory,
// fsync, rename. Readers never observe a partially written cache. No-op
// when nothing changed since the last flush.
func (c *Cache) Flush() error {
	if !c.dirty {
		return nil
	}

	snap := snapshot{ScrapedIDs: c.Keys(), TotalCount: len(c.ids)}
	if len(c.etags) > 0 {
		snap.ETags = c.etags
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "scrapecache: marshal snapshot")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "scrapecache: create cache directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "scrapecache: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "scrapecache: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "scrapecache: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "scrapecache: close temp file")
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "scrapecache: rename snapshot")
	}

	c.dirty = false
	return nil
}

// Reset clears the cache, stored ETags included, and persists the empty
// snapshot.
func (c *Cache) Reset() error {
	c.ids = make(map[string]struct{})
	c.etags = make(map[string]string)
	c.dirty = true
	return c.Flush()
}
