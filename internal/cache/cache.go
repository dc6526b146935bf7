// Package cache remembers the content hash of files a hook last validated
// successfully, so unchanged files can skip re-validation.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattsolo1/han-bridge/internal/logging"
)

var log = logging.NewLogger("han-bridge.cache")

type key struct {
	plugin string
	hook   string
	file   string
}

// Cache maps (plugin, hook, file) to the last known-good content hash.
// It is safe for concurrent use by overlapping batches.
type Cache struct {
	mu      sync.Mutex
	entries map[key]string
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[key]string)}
}

// HashFile returns the hex SHA-256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ShouldSkip reports whether the file's current content hash equals the one
// recorded for this hook. Hashing failures never skip.
func (c *Cache) ShouldSkip(plugin, hook, filePath string) bool {
	k := key{plugin, hook, filepath.Clean(filePath)}

	c.mu.Lock()
	recorded, ok := c.entries[k]
	c.mu.Unlock()
	if !ok {
		return false
	}

	current, err := HashFile(filePath)
	if err != nil {
		log.WithError(err).WithField("file", filePath).Debug("Hash failed, not skipping")
		return false
	}
	return current == recorded
}

// RecordSuccess stores the file's current hash. Call it only after the hook
// exited 0. It returns the recorded hash, or "" if hashing failed.
func (c *Cache) RecordSuccess(plugin, hook, filePath string) string {
	current, err := HashFile(filePath)
	if err != nil {
		log.WithError(err).WithField("file", filePath).Debug("Hash failed, not recording")
		return ""
	}

	c.mu.Lock()
	c.entries[key{plugin, hook, filepath.Clean(filePath)}] = current
	c.mu.Unlock()
	return current
}

// Seed stores a previously recorded hash, as read back from a session log.
func (c *Cache) Seed(plugin, hook, filePath, hash string) {
	if hash == "" {
		return
	}
	c.mu.Lock()
	c.entries[key{plugin, hook, filepath.Clean(filePath)}] = hash
	c.mu.Unlock()
}

// Invalidate removes every entry whose file ends with filePath, for any
// plugin and hook. It returns the number of entries removed.
func (c *Cache) Invalidate(filePath string) int {
	target := filepath.Clean(filePath)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if pathSuffixMatch(k.file, target) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[key]string)
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// pathSuffixMatch matches on whole path components so that "a.ts" does not
// invalidate "ba.ts". Either side may be the shorter, relative form.
func pathSuffixMatch(file, target string) bool {
	if file == target {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasSuffix(file, sep+target) || strings.HasSuffix(target, sep+file)
}
