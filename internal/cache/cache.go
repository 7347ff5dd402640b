// Package cache stores classifier replies so interrupted batches can resume
// without calling the classifier again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/rulelabel/internal/model"
)

const keyPrefix = "rulelabel-v1-"

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey derives a stable key from the parts (provider, model, rule specification, content).
// Parts are length-prefixed so ("ab", "c") and ("a", "bc") differ.
func CacheKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		var size [8]byte
		n := uint64(len(part))
		for i := range size {
			size[i] = byte(n >> (8 * i))
		}
		h.Write(size[:])
		h.Write([]byte(part))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache described by cfg, or nil when caching is disabled.
// Without a directory only the in-memory layer is used.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}
