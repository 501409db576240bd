package limit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CrawlDelay throttles requests per (host, user agent) to the delay a
// site's robots.txt advertised (§5 "per-host crawl-delay"), creating a
// rate.Limiter lazily the first time a host/agent pair is seen and
// reusing it for every subsequent request.
type CrawlDelay struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewCrawlDelay returns an empty registry.
func NewCrawlDelay() *CrawlDelay {
	return &CrawlDelay{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to host under agent is allowed, given the
// delay advertised for that host. A delay of zero never blocks and
// allocates no limiter.
func (c *CrawlDelay) Wait(ctx context.Context, host, agent string, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	key := agent + " " + host

	c.mu.Lock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(delay), 1)
		c.limiters[key] = l
	}
	c.mu.Unlock()

	return l.Wait(ctx)
}
