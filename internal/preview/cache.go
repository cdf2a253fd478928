// Package preview keeps extracted link previews until a follow-up button
// click consumes them.
package preview

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/metrics"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// DefaultTTL is how long a preview stays claimable.
const DefaultTTL = time.Hour

// Entry is a cached extraction result.
type Entry struct {
	Token     string
	OwnerID   int64
	Metadata  model.EventMetadata
	Proposal  model.ConcertProposal
	CreatedAt time.Time
}

// Cache is an in-memory, single-consumption store of previews. The zero
// value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache. A nil clock uses time.Now; ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]Entry), ttl: ttl, now: now}
}

// Put stores e under token, stamping CreatedAt when unset. Stale entries are
// swept on every Put.
func (c *Cache) Put(token string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	e.Token = token
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	c.entries[token] = e
}

// Take removes and returns the entry for token. Absent, expired and already
// consumed tokens are indistinguishable to the caller.
func (c *Cache) Take(token string) (Entry, bool) {
	return c.TakeIf(token, nil)
}

// TakeIf is Take guarded by allow. A refused entry stays in the cache and the
// caller sees the same miss as for an expired token.
func (c *Cache) TakeIf(token string, allow func(Entry) bool) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[token]
	if !ok {
		metrics.PreviewTakes.WithLabelValues("expired").Inc()
		return Entry{}, false
	}
	if allow != nil && !c.expired(e, c.now()) && !allow(e) {
		metrics.PreviewTakes.WithLabelValues("denied").Inc()
		return Entry{}, false
	}
	delete(c.entries, token)
	if c.expired(e, c.now()) {
		metrics.PreviewTakes.WithLabelValues("expired").Inc()
		return Entry{}, false
	}
	metrics.PreviewTakes.WithLabelValues("hit").Inc()
	return e, true
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache) expired(e Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) >= c.ttl
}

// NewToken derives a preview token from the requesting user and the time.
// Tokens stay well under the 64-byte callback payload limit of chat buttons.
func NewToken(userID int64, now time.Time) string {
	return fmt.Sprintf("%s_%s",
		strconv.FormatInt(userID, 36),
		strconv.FormatInt(now.UnixNano(), 36))
}
