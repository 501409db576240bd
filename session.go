package linkguard

import (
	"net/http"

	"github.com/go-linkguard/linkguard/internal/limit"
	"github.com/go-linkguard/linkguard/internal/robots"
)

// Session bundles config, logger, and the three caches (§4.F) behind
// one value passed by reference into every check. It replaces the
// source's cyclic consumer/cache coupling (§9 Design Notes): a
// Descriptor borrows a Session for the duration of one check and never
// holds a back-pointer to it.
type Session struct {
	Config    Config
	Logger    Logger
	Pool      *Pool
	CookieJar *CookieJar
	Cache     *Cache
	Robots    *robots.Cache
	Matcher   Matcher
	Extractor Extractor
	Registry  SchemeRegistry

	// Limiters are consulted, in order, before every request the
	// checker sends for a descriptor (§5's session-wide outbound
	// ceiling), independent of the per-host robots.txt crawl-delay
	// throttle applied automatically via delay. robots.txt fetches do
	// not consult them.
	Limiters []Limiter

	delay     *limit.CrawlDelay
	transport *transport
	client    *http.Client
}

// sessionOptions accumulates the settings Option values override,
// applied after the spec's defaults are chosen but before the
// dependent collaborators (robots cache, transport) are built from
// them, mirroring the teacher's NewEngine nil-check-then-construct
// sequencing (engine.go).
type sessionOptions struct {
	pool            PoolConfig
	poolSet         bool
	robotsCapacity  int
	client          *http.Client
}

// Option configures a Session, following the teacher's EngineConfig
// nil-means-default style (engine.go's NewEngine) applied as
// functional options instead of a single flat struct, since a Session
// composes more independently-defaulted collaborators.
type Option func(*Session, *sessionOptions)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Session, _ *sessionOptions) { s.Logger = l }
}

// WithMatcher installs the domain filter consulted on every redirect
// (§6 "domain filter" collaborator, concretized as Matcher).
func WithMatcher(m Matcher) Option {
	return func(s *Session, _ *sessionOptions) { s.Matcher = m }
}

// WithExtractor overrides the default no-op extractor, used when a
// redirect leaves the http/https schemes this package drives itself.
func WithExtractor(e Extractor) Option {
	return func(s *Session, _ *sessionOptions) { s.Extractor = e }
}

// WithSchemeRegistry overrides the default registry used to build a
// Descriptor for a redirect's new scheme.
func WithSchemeRegistry(r SchemeRegistry) Option {
	return func(s *Session, _ *sessionOptions) { s.Registry = r }
}

// WithPoolConfig overrides the connection pool's sizing.
func WithPoolConfig(cfg PoolConfig) Option {
	return func(_ *Session, o *sessionOptions) {
		o.pool = cfg
		o.poolSet = true
	}
}

// WithRobotsCapacity overrides the robots record cache's size (default
// 1000, matching the teacher's robots.NewCache(1000) in engine.go).
func WithRobotsCapacity(n int) Option {
	return func(_ *Session, o *sessionOptions) { o.robotsCapacity = n }
}

// WithHTTPClient overrides the *http.Client used to fetch robots.txt
// documents. The checker state machine itself never uses http.Client —
// it drives connections through Pool/transport directly — but robots
// fetches are simple enough to ride on one. Setting this opts out of
// the default proxy-aware robots.txt fetch path, since an *http.Client
// supplied by the caller is responsible for its own proxying.
func WithHTTPClient(c *http.Client) Option {
	return func(_ *Session, o *sessionOptions) { o.client = c }
}

// WithLimiter installs an additional session-wide outbound limiter
// (§5), consulted in sendRequest before a connection slot is acquired.
// Limiters accumulate across calls; each is tried in the order added.
func WithLimiter(l Limiter) Option {
	return func(s *Session, _ *sessionOptions) { s.Limiters = append(s.Limiters, l) }
}

// New returns a Session ready to check descriptors, applying opts over
// the spec's defaults: an empty cookie jar, a pool with capacity 5 per
// host, a 1000-entry robots cache, and a no-op logger/extractor.
func New(cfg Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = NewStaticConfig()
	}

	o := &sessionOptions{robotsCapacity: 1000}

	s := &Session{
		Config:    cfg,
		Logger:    nopLogger{},
		Extractor: ExtractorFunc(func(*Descriptor) {}),
		Registry:  SchemeRegistryFunc(defaultSchemeRegistry),
		delay:     limit.NewCrawlDelay(),
	}

	for _, opt := range opts {
		opt(s, o)
	}

	if o.poolSet {
		s.Pool = NewPool(o.pool)
	} else {
		s.Pool = NewPool(PoolConfig{})
	}

	s.CookieJar = NewCookieJar()
	s.Cache = NewCache(CacheConfig{}, s.Pool, s.CookieJar)

	s.transport = newTransport(s.Pool)

	if o.client != nil {
		s.client = o.client
		s.Robots = robots.NewCache(s.client, o.robotsCapacity)
	} else {
		// Route robots.txt fetches through the same proxy/auth-aware
		// transport the checker itself uses (§4.B), rather than a bare
		// *http.Client that would ignore per-scheme proxy config.
		s.Robots = robots.NewCacheWithFetcher(s.fetchRobots, o.robotsCapacity)
	}

	return s
}
