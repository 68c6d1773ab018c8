// Package identity resolves identity-provider user ids for seeded accounts and caches
// them per email.
package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache maps a normalized email to a resolved subject. A ttl of zero keeps entries
// until they are invalidated.
type Cache interface {
	Get(ctx context.Context, email string) (string, bool, error)
	Set(ctx context.Context, email, subject string) error
	Invalidate(ctx context.Context, email string) error
	Clear(ctx context.Context) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type memoryEntry struct {
	subject   string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache creates an in-process cache. A zero ttl never expires entries.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// WithClock replaces the time source, for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, email string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := normalizeEmail(email)
	entry, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", false, nil
	}
	return entry.subject, true, nil
}

func (c *MemoryCache) Set(_ context.Context, email, subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{subject: subject}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[normalizeEmail(email)] = entry
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, normalizeEmail(email))
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
