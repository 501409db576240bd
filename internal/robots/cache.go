package robots

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/agecache"
	"golang.org/x/sync/singleflight"
)

// Request represents a robots.txt allowance check.
//
// If UserAgent is empty it defaults to "*". User/Password identify the
// realm the robots.txt fetch is made under, so a site gated behind
// auth is fetched with the same credentials as the URL it governs.
type Request struct {
	UserAgent string
	URL       *url.URL
	User      string
	Password  string
}

func (r Request) userAgent() string {
	if r.UserAgent != "" {
		return r.UserAgent
	}
	return "*"
}

func (r Request) key() string {
	return fmt.Sprintf("%s://%s:%s@%s", r.URL.Scheme, r.User, r.Password, r.URL.Host)
}

// FetchFunc fetches a robots.txt document, honoring whatever proxy and
// credentials a concrete implementation is configured with. It must
// behave like http.Client.Do: a non-2xx status is not itself an error.
type FetchFunc func(ctx context.Context, robotsURL *url.URL, user, password string) (*http.Response, error)

// Cache implements the robots.txt fetcher/parser/matcher cache (§4.B,
// §4.E "robots_allows"): an LRU of (scheme, host, user, password) into
// parsed Records. A per-key singleflight.Group ensures at most one
// concurrent fetch per robots document (§5, "reservation then
// unlocked fetch then publish"), the same idiom the teacher used
// agecache for but now paired with golang.org/x/sync/singleflight
// instead of a second hand-rolled mutex.
type Cache struct {
	lru   *agecache.Cache
	fetch FetchFunc
	group singleflight.Group
}

// NewCache returns a new cache using client to fetch robots.txt
// documents directly (no proxy/credential awareness beyond the
// client's own configuration).
func NewCache(client *http.Client, capacity int) *Cache {
	return NewCacheWithFetcher(func(ctx context.Context, robotsURL *url.URL, user, password string) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept-Encoding", "x-gzip,gzip,deflate")
		if user != "" {
			req.SetBasicAuth(user, password)
		}
		return client.Do(req)
	}, capacity)
}

// NewCacheWithFetcher returns a new cache using fetch to retrieve
// robots.txt documents, letting the caller route the request through
// its own proxy/auth-aware transport (§4.D "allows_robots").
func NewCacheWithFetcher(fetch FetchFunc, capacity int) *Cache {
	lru := agecache.New(agecache.Config{
		Capacity:           capacity,
		MaxAge:             1 * time.Hour,
		ExpirationType:     agecache.PassiveExpration,
		ExpirationInterval: 1 * time.Minute,
	})
	return &Cache{lru: lru, fetch: fetch}
}

// Allowed reports whether req's user agent may fetch req's URL.
func (c *Cache) Allowed(ctx context.Context, req Request) (bool, error) {
	rec, err := c.lookup(ctx, req)
	if err != nil {
		return false, err
	}
	return rec.CanFetch(req.userAgent(), req.URL.Path), nil
}

// Wait blocks until the crawl-delay, if any, for req's host and user
// agent has elapsed.
func (c *Cache) Wait(ctx context.Context, req Request) error {
	rec, err := c.lookup(ctx, req)
	if err != nil {
		return err
	}

	d := rec.CrawlDelay(req.userAgent())
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CrawlDelay returns the crawl-delay for req without waiting.
func (c *Cache) CrawlDelay(ctx context.Context, req Request) (time.Duration, error) {
	rec, err := c.lookup(ctx, req)
	if err != nil {
		return 0, err
	}
	return rec.CrawlDelay(req.userAgent()), nil
}

// lookup returns the Record for req, fetching and parsing it at most
// once per key even under concurrent callers.
func (c *Cache) lookup(ctx context.Context, req Request) (*Record, error) {
	key := req.key()

	if v, ok := c.lru.Get(key); ok {
		return v.(*Record), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.lru.Get(key); ok {
			return v.(*Record), nil
		}

		rec, err := c.fetchAndClassify(ctx, req)
		if err != nil {
			return nil, err
		}

		c.lru.Set(key, rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// fetchAndClassify fetches req's robots.txt and classifies the outcome
// per §4.B's table.
func (c *Cache) fetchAndClassify(ctx context.Context, req Request) (rec *Record, err error) {
	roboturl := &url.URL{Scheme: req.URL.Scheme, Host: req.URL.Host, Path: "/robots.txt"}

	resp, ferr := c.fetch(ctx, roboturl, req.User, req.Password)
	if ferr != nil {
		if isTimeout(ferr) || ctx.Err() != nil {
			// timeouts and cancellation propagate and are not cached.
			return nil, ferr
		}
		// network error / I/O error / HTTP protocol error -> allow_all.
		return &Record{AllowAll: true}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &Record{DisallowAll: true}, nil
	case resp.StatusCode >= 400:
		return &Record{AllowAll: true}, nil
	case resp.StatusCode != http.StatusOK:
		return &Record{AllowAll: true}, nil
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "text/plain") {
		return &Record{AllowAll: true}, nil
	}

	body, rerr := ioutil.ReadAll(resp.Body)
	if rerr != nil {
		return &Record{AllowAll: true}, nil
	}

	rec = parseRecovering(string(body))
	return rec, nil
}

// parseRecovering parses body, converting any panic raised by
// malformed data into disallow_all, per §4.B's "malformed data that
// raises a value error -> disallow_all".
func parseRecovering(body string) (rec *Record) {
	defer func() {
		if r := recover(); r != nil {
			rec = &Record{DisallowAll: true}
		}
	}()
	return Parse(body)
}

func isTimeout(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}
	t, ok := err.(interface{ Timeout() bool })
	return ok && t.Timeout()
}
