package maps

import (
	"fmt"
	"sync"
	"time"

	"unipool/internal/types"
)

// legCache memoizes route estimates per origin/destination pair. Coordinates
// are rounded to ~10m so nearby lookups share an entry.
type legCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]legEntry
}

type legEntry struct {
	est     RouteEstimate
	expires time.Time
}

func newLegCache(ttl time.Duration) *legCache {
	return &legCache{ttl: ttl, m: make(map[string]legEntry)}
}

func (c *legCache) get(a, b types.Point) (RouteEstimate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[legKey(a, b)]
	if !ok || time.Now().After(e.expires) {
		return RouteEstimate{}, false
	}
	return e.est, true
}

func (c *legCache) put(a, b types.Point, est RouteEstimate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[legKey(a, b)] = legEntry{est: est, expires: time.Now().Add(c.ttl)}
}

func legKey(a, b types.Point) string {
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", a.Lat, a.Lng, b.Lat, b.Lng)
}
