// Package seen implements a time-bounded cache of message digests.
//
// A relaying node checks every received message against this cache before
// forwarding it. If seen: don't forward (prevents a message circling a cyclic
// mesh forever). If not seen: add and forward.
//
// Entries expire after the configured window so the same text may be sent
// again later.
package seen

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const DefaultExpiry = 30 * time.Second

// Digest identifies message content.
type Digest [32]byte

// Sum returns the digest of msg.
func Sum(msg []byte) Digest {
	return Digest(blake3.Sum256(msg))
}

// Cache is a concurrent-safe digest store.
type Cache struct {
	mu      sync.Mutex
	entries map[Digest]time.Time
	expiry  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Cache with the given expiry duration.
func New(expiry time.Duration) *Cache {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	c := &Cache{
		entries: make(map[Digest]time.Time),
		expiry:  expiry,
		stopCh:  make(chan struct{}),
	}
	go c.reap()
	return c
}

// Has returns true if d was previously added and has not expired.
func (c *Cache) Has(d Digest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.entries[d]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(c.entries, d)
		return false
	}
	return true
}

// Add records d and returns true if it was not already present.
func (c *Cache) Add(d Digest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.entries[d]; ok && time.Now().Before(exp) {
		return false
	}
	c.entries[d] = time.Now().Add(c.expiry)
	return true
}

// AddMessage is Add(Sum(msg)).
func (c *Cache) AddMessage(msg []byte) bool {
	return c.Add(Sum(msg))
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background reaper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) reap() {
	ticker := time.NewTicker(c.expiry / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for d, exp := range c.entries {
				if now.After(exp) {
					delete(c.entries, d)
				}
			}
			c.mu.Unlock()
		}
	}
}
