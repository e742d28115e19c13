// Package dedup suppresses repeated submissions of the same refund request
// within a short window.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// DefaultTTL is how long a submission key is remembered
const DefaultTTL = 300 * time.Second

// Key derives the deduplication key for a submission. The order number is
// normalised so "#1001" and "1001" collide; the email is compared
// case-insensitively.
func Key(orderNumber, email string, kind entity.RefundKind) string {
	normalized := strings.Join([]string{
		entity.NormalizeOrderNumber(orderNumber),
		strings.ToLower(strings.TrimSpace(email)),
		strings.ToLower(strings.TrimSpace(string(kind))),
	}, "\x1f")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Cache remembers recently seen keys for a fixed TTL
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewCache creates a cache with the given TTL. A non-positive ttl uses DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the cache clock (for testing)
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// CheckAndInsert reports whether key is a duplicate of an unexpired entry.
// A new key is recorded and suppresses the same key until the TTL elapses.
// A duplicate does not extend the window.
func (c *Cache) CheckAndInsert(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	if expires, ok := c.entries[key]; ok && now.Before(expires) {
		return true
	}
	c.entries[key] = now.Add(c.ttl)
	return false
}

// Forget removes key so that the same submission can be retried immediately
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep drops expired entries
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(c.now())
}

// Len returns the number of keys currently held, expired or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked(now time.Time) {
	for k, expires := range c.entries {
		if !now.Before(expires) {
			delete(c.entries, k)
		}
	}
}
