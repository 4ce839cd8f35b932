package dispatch

import (
	"math"
	"sync"
	"time"
)

// PricePoint is the last decoded price for a token.
type PricePoint struct {
	Rate float64
	Time time.Time
}

// Throttle tunes how often a price commit is surfaced to the optional
// commit hook. Zero values disable throttling, matching the upstream
// always-publish behavior.
type Throttle struct {
	MinInterval  time.Duration
	MinChangePct float64
}

// PriceCache keeps the last price per token symbol for subscribe-time
// snapshots. Updates always land in memory; the throttle only gates the
// commit hook (e.g. a persistence collaborator).
type PriceCache struct {
	mu        sync.RWMutex
	last      map[string]PricePoint
	committed map[string]PricePoint
	throttle  Throttle
	onCommit  func(symbol string, point PricePoint)
}

// NewPriceCache allocates a cache with the given throttle policy.
func NewPriceCache(throttle Throttle, onCommit func(symbol string, point PricePoint)) *PriceCache {
	return &PriceCache{
		last:      make(map[string]PricePoint),
		committed: make(map[string]PricePoint),
		throttle:  throttle,
		onCommit:  onCommit,
	}
}

// Update stores the latest price and fires the commit hook when the
// throttle allows.
func (c *PriceCache) Update(symbol string, rate float64, at time.Time) {
	point := PricePoint{Rate: rate, Time: at}
	var commit bool
	c.mu.Lock()
	c.last[symbol] = point
	if c.onCommit != nil && c.shouldCommit(symbol, point) {
		c.committed[symbol] = point
		commit = true
	}
	c.mu.Unlock()
	if commit {
		c.onCommit(symbol, point)
	}
}

// Get returns the last price for a symbol, if any.
func (c *PriceCache) Get(symbol string) (PricePoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	point, ok := c.last[symbol]
	return point, ok
}

// Len reports the number of cached symbols.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.last)
}

// shouldCommit applies the throttle against the previously committed
// point. Caller holds the write lock.
func (c *PriceCache) shouldCommit(symbol string, point PricePoint) bool {
	prev, ok := c.committed[symbol]
	if !ok {
		return true
	}
	if c.throttle.MinInterval > 0 && point.Time.Sub(prev.Time) < c.throttle.MinInterval {
		return false
	}
	if c.throttle.MinChangePct > 0 && prev.Rate != 0 {
		change := math.Abs(point.Rate-prev.Rate) / math.Abs(prev.Rate) * 100
		if change < c.throttle.MinChangePct {
			return false
		}
	}
	return true
}
