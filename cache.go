package linkguard

import (
	"context"
	"sync"

	"github.com/willf/bloom"
)

// checkEntry is the published record for one canonical URL (§4.E).
type checkEntry struct {
	result   Result
	message  string
	info     []Note
	warnings []Note
	aliases  []string
}

// Cache is the check cache: the at-most-once coordinator shared by every
// worker in a Session. It combines the reservation/publish map over
// canonical URLs with the connection pool and cookie jar it delegates
// to, mirroring §4.E's grouping of "the three caches" under one
// collaborator.
//
// A bloom filter sits in front of Reserve's pending/done maps as a fast
// negative pre-check, the same "definitely not seen" idiom the teacher
// used for its whole-crawl deduper (dedupe_OLD.go.bak's DedupeBF): a
// key the filter has never seen makes the caller the owner without any
// map lookup. The filter is tested while holding the mutex.
// CheckedRedirect reads the done map directly and does not use it.
type Cache struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
	done    map[string]*checkEntry

	seen *bloom.BloomFilter

	Pool      *Pool
	CookieJar *CookieJar
}

// CacheConfig controls Cache sizing.
type CacheConfig struct {
	// ExpectedURLs sizes the bloom filter; it is an estimate, not a
	// hard cap, false positives only cost an extra map lookup.
	ExpectedURLs uint
	FalsePositiveRate float64
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.ExpectedURLs == 0 {
		c.ExpectedURLs = 100000
	}
	if c.FalsePositiveRate == 0 {
		c.FalsePositiveRate = 0.01
	}
	return c
}

// NewCache returns a new check cache backed by pool and jar.
func NewCache(cfg CacheConfig, pool *Pool, jar *CookieJar) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		pending:   make(map[string]chan struct{}),
		done:      make(map[string]*checkEntry),
		seen:      bloom.NewWithEstimates(cfg.ExpectedURLs, cfg.FalsePositiveRate),
		Pool:      pool,
		CookieJar: jar,
	}
}

// Reserve reports whether the caller became the owner of key (the first
// caller to check this canonical URL). If not, it blocks until the
// owner publishes a result, applies it to d, and returns owner=false.
func (c *Cache) Reserve(ctx context.Context, key string, d *Descriptor) (owner bool, err error) {
	v := []byte(key)

	c.mu.Lock()
	if !c.seen.Test(v) {
		c.seen.Add(v)
		c.pending[key] = make(chan struct{})
		c.mu.Unlock()
		return true, nil
	}

	if entry, ok := c.done[key]; ok {
		c.mu.Unlock()
		applyEntry(d, entry)
		return false, nil
	}

	wait, ok := c.pending[key]
	if !ok {
		// bloom filter false positive: nothing actually in flight or
		// done, so this caller becomes the owner.
		c.pending[key] = make(chan struct{})
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-wait:
	}

	c.mu.Lock()
	entry, ok := c.done[key]
	c.mu.Unlock()
	if !ok {
		// the owner's work was abandoned; this caller takes over.
		c.mu.Lock()
		c.pending[key] = make(chan struct{})
		c.mu.Unlock()
		return true, nil
	}

	applyEntry(d, entry)
	return false, nil
}

// Publish marks key complete with d's final state, snapshotting its
// info, warnings and aliases so later reservers can replay them, then
// unblocks anyone waiting on it.
func (c *Cache) Publish(key string, d *Descriptor) {
	entry := &checkEntry{
		result:   d.Result,
		message:  d.Message,
		info:     append([]Note(nil), d.Info...),
		warnings: append([]Note(nil), d.Warnings...),
		aliases:  append([]string(nil), d.Aliases...),
	}

	c.mu.Lock()
	c.done[key] = entry
	// Every alias resolves to the same entry (§3 "for any URL U, lookup
	// of U or any of its known aliases yields the same result object"),
	// so a later checked_redirect on any of them must find it too.
	for _, a := range entry.aliases {
		c.done[a] = entry
		c.seen.Add([]byte(a))
	}
	wait, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if ok {
		close(wait)
	}
}

// CheckedRedirect reports whether alias has already been checked under
// a different canonical key; if so it copies that result onto current
// and returns true, implementing §4.E's "checked_redirect".
func (c *Cache) CheckedRedirect(alias string, current *Descriptor) bool {
	c.mu.Lock()
	entry, ok := c.done[alias]
	c.mu.Unlock()
	if !ok {
		return false
	}
	applyEntry(current, entry)
	return true
}

func applyEntry(d *Descriptor, entry *checkEntry) {
	d.Result = entry.result
	d.Message = entry.message
	d.Info = append(d.Info, entry.info...)
	d.Warnings = append(d.Warnings, entry.warnings...)
	for _, a := range entry.aliases {
		if !containsString(d.Aliases, a) {
			d.Aliases = append(d.Aliases, a)
		}
	}
}
