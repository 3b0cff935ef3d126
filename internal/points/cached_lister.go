package points

import (
	"context"
	"errors"
	"sync"
	"time"

	"gitlab.com/yelinaung/navigator-bot/internal/models"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used when NewCachedLister is given a non-positive TTL.
const DefaultTTL = 10 * time.Minute

const maxCleanupInterval = 5 * time.Minute

type cachedEntry struct {
	points    []models.Point
	expiresAt time.Time
}

// CachedLister wraps a Lister with an in-memory TTL cache keyed by location.
// Concurrent misses for the same location share one upstream call.
type CachedLister struct {
	inner Lister
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu          sync.RWMutex
	entries     map[string]cachedEntry
	lastCleanup time.Time
}

// NewCachedLister returns a Lister that caches inner's results for ttl.
func NewCachedLister(inner Lister, ttl time.Duration) *CachedLister {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedLister{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedEntry),
	}
}

// GetPointsList returns cached points when fresh, otherwise refreshes them.
// Empty lists are cached like any other result; errors are not.
func (c *CachedLister) GetPointsList(ctx context.Context, location string) ([]models.Point, error) {
	if c.inner == nil {
		return nil, errors.New("inner points lister is required")
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[location]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return clonePoints(entry.points), nil
	}

	// The refresh is detached from the caller's cancellation so one impatient
	// caller cannot fail every waiter sharing the flight.
	ch := c.group.DoChan(location, func() (any, error) {
		pts, err := c.inner.GetPointsList(context.WithoutCancel(ctx), location)
		if err != nil {
			return nil, err
		}

		fetchedAt := c.now()
		c.mu.Lock()
		c.entries[location] = cachedEntry{points: pts, expiresAt: fetchedAt.Add(c.ttl)}
		c.cleanupExpiredLocked(fetchedAt)
		c.mu.Unlock()

		return pts, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clonePoints(res.Val.([]models.Point)), nil
	}
}

// Invalidate drops the cached entry of location, or every entry when location is empty.
func (c *CachedLister) Invalidate(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if location == "" {
		c.entries = make(map[string]cachedEntry)
		return
	}
	delete(c.entries, location)
}

func (c *CachedLister) cleanupExpiredLocked(now time.Time) {
	interval := min(c.ttl, maxCleanupInterval)
	if !c.lastCleanup.IsZero() && now.Sub(c.lastCleanup) < interval {
		return
	}
	for loc, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, loc)
		}
	}
	c.lastCleanup = now
}

func clonePoints(pts []models.Point) []models.Point {
	if pts == nil {
		return []models.Point{}
	}
	out := make([]models.Point, len(pts))
	copy(out, pts)
	return out
}
