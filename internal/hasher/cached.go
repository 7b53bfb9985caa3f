package hasher

import (
	"log"

	"github.com/lyallcooper/toolbox/internal/db"
	"github.com/lyallcooper/toolbox/internal/types"
)

// CachedHasher consults a persistent digest cache before reading a file.
// Entries are keyed by path, size, modification time and algorithm, so any
// change to the file misses the cache.
type CachedHasher struct {
	inner *StreamHasher
	cache *db.DB
}

// NewCached wraps inner with cache. A nil cache disables caching.
func NewCached(inner *StreamHasher, cache *db.DB) *CachedHasher {
	return &CachedHasher{inner: inner, cache: cache}
}

// Hash returns a cached digest when available, otherwise computes and stores it.
func (c *CachedHasher) Hash(f *types.FileCandidate) (string, error) {
	if c.cache == nil {
		return c.inner.Hash(f)
	}

	key := db.FileHashKey{
		Path:      f.Path,
		Size:      f.Size,
		ModTimeNs: f.ModTime.UnixNano(),
		Algorithm: c.inner.Algorithm(),
	}

	if digest, err := c.cache.GetFileHash(key); err == nil && digest != "" {
		return digest, nil
	}

	digest, err := c.inner.Hash(f)
	if err != nil {
		return "", err
	}

	if err := c.cache.PutFileHash(key, digest); err != nil {
		log.Printf("hashcache: failed to store %s: %v", f.Path, err)
	}
	return digest, nil
}
