// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package credstore

import (
	"sync"
	"time"

	"flintwallet.org/flint/encode"
	"flintwallet.org/flint/wallet"
)

// defaultCacheTTL is the validity window of a transiently cached credential.
const defaultCacheTTL = 5 * time.Minute

// seedCache holds a plaintext credential in memory for a short window so the
// session can reconnect without another authenticated read. The buffer is
// zeroed on clear and on expiry.
type seedCache struct {
	mtx   sync.Mutex
	seed  []byte
	stamp time.Time
	ttl   time.Duration
}

// CacheTransiently stores the seed in the in-memory cache, restarting the
// validity window.
func (s *Store) CacheTransiently(seed string) {
	c := &s.cache
	c.mtx.Lock()
	defer c.mtx.Unlock()
	encode.ClearBytes(c.seed)
	c.seed = []byte(seed)
	c.stamp = time.Now()
}

// RetrieveCached returns the cached credential if the cache is still valid.
// Returns wallet.ErrCacheExpired when the cache is absent or past its TTL.
func (s *Store) RetrieveCached() (string, error) {
	c := &s.cache
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if !c.validLocked() {
		c.clearLocked()
		return "", wallet.ErrCacheExpired
	}
	return string(c.seed), nil
}

// IsCacheValid reports whether a cached credential is present and inside its
// validity window.
func (s *Store) IsCacheValid() bool {
	c := &s.cache
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.validLocked()
}

// ClearCache zeroes and discards any cached credential.
func (s *Store) ClearCache() {
	c := &s.cache
	c.mtx.Lock()
	c.clearLocked()
	c.mtx.Unlock()
}

func (c *seedCache) validLocked() bool {
	return len(c.seed) > 0 && time.Since(c.stamp) < c.ttl
}

func (c *seedCache) clearLocked() {
	encode.ClearBytes(c.seed)
	c.seed = nil
	c.stamp = time.Time{}
}
