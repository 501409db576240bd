package linkguard

import (
	"time"

	"github.com/apex/log"
)

// Logger is the leveled debug/info sink a Session threads through the
// state machine (§6). It is satisfied directly by *log.Logger and by
// log.Interface (github.com/apex/log), so callers can pass
// log.Log or any apex/log entry without an adapter.
type Logger interface {
	Debugf(msg string, v ...interface{})
	Infof(msg string, v ...interface{})
	Warnf(msg string, v ...interface{})
}

// nopLogger discards everything; used when a Session is built without
// an explicit logger.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}

// apexLogger adapts log.Interface to Logger.
type apexLogger struct {
	log.Interface
}

// WrapLogger adapts an apex/log entry (log.Log, or a *log.Logger, or
// any log.Interface) to the Logger this package expects.
func WrapLogger(l log.Interface) Logger {
	return apexLogger{l}
}

// Config is the lookup-style accessor the checker reads from; it is
// deliberately not a loader (§6, "Configuration" collaborator) — file,
// env or flag parsing into a Config is left to the caller.
type Config interface {
	// Proxy returns the configured proxy for scheme, if any.
	Proxy(scheme string) (hostport string, ok bool)

	// Cookies reports whether cookie storage/sending is enabled.
	Cookies() bool

	// UserAgent is sent on every request.
	UserAgent() string

	// MaxRedirects bounds the redirect chain (spec default 5).
	MaxRedirects() int

	// Timeout is the configured per-request time limit. The checker in
	// this package does not read it: a request is bounded only by the
	// context passed to Session.Check and, while connecting, by
	// DialTimeout.
	Timeout() time.Duration

	// Credentials returns HTTP Basic auth for realm (here, the request
	// host), if configured.
	Credentials(realm string) (user, password string, ok bool)
}

// StaticConfig is a trivial in-memory Config, suitable for tests and
// small embedding programs (§1.1 "a trivial in-memory implementation").
type StaticConfig struct {
	Proxies         map[string]string
	EnableCookies   bool
	Agent           string
	Redirects       int
	RequestTimeout  time.Duration
	Realms          map[string][2]string
}

// NewStaticConfig returns a StaticConfig with the spec's defaults:
// cookies enabled, max_redirects=5, a 30s timeout, no proxies or
// credentials configured.
func NewStaticConfig() *StaticConfig {
	return &StaticConfig{
		Proxies:        make(map[string]string),
		EnableCookies:  true,
		Agent:          "linkguard",
		Redirects:      5,
		RequestTimeout: 30 * time.Second,
		Realms:         make(map[string][2]string),
	}
}

// Proxy implementation.
func (c *StaticConfig) Proxy(scheme string) (string, bool) {
	v, ok := c.Proxies[scheme]
	return v, ok
}

// Cookies implementation.
func (c *StaticConfig) Cookies() bool { return c.EnableCookies }

// UserAgent implementation.
func (c *StaticConfig) UserAgent() string {
	if c.Agent == "" {
		return "linkguard"
	}
	return c.Agent
}

// MaxRedirects implementation.
func (c *StaticConfig) MaxRedirects() int {
	if c.Redirects <= 0 {
		return 5
	}
	return c.Redirects
}

// Timeout implementation.
func (c *StaticConfig) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return c.RequestTimeout
}

// Credentials implementation.
func (c *StaticConfig) Credentials(realm string) (string, string, bool) {
	v, ok := c.Realms[realm]
	if !ok {
		return "", "", false
	}
	return v[0], v[1], true
}

// Extractor accepts new descriptors discovered when a redirect changes
// scheme away from http (§6 "Extractor").
type Extractor interface {
	Enqueue(d *Descriptor)
}

// ExtractorFunc implements Extractor.
type ExtractorFunc func(d *Descriptor)

// Enqueue implementation.
func (f ExtractorFunc) Enqueue(d *Descriptor) { f(d) }

// SchemeRegistry constructs a descriptor for an arbitrary scheme (§6
// "Scheme registry", the source's `get_url_from`). The HTTP checker
// calls it only when a redirect leaves the http/https schemes it
// drives itself.
type SchemeRegistry interface {
	URLFrom(rawurl string, depth int, parent string) (*Descriptor, error)
}

// SchemeRegistryFunc implements SchemeRegistry.
type SchemeRegistryFunc func(rawurl string, depth int, parent string) (*Descriptor, error)

// URLFrom implementation.
func (f SchemeRegistryFunc) URLFrom(rawurl string, depth int, parent string) (*Descriptor, error) {
	return f(rawurl, depth, parent)
}

// defaultSchemeRegistry builds a plain Descriptor for any scheme,
// matching the teacher's permissive default collaborators.
func defaultSchemeRegistry(rawurl string, depth int, parent string) (*Descriptor, error) {
	return NewDescriptor(rawurl, depth, parent)
}
