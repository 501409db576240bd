package linkguard

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/go-linkguard/linkguard/internal/normalize"
)

// Method is the HTTP method currently in use for a descriptor.
type Method string

// Methods the checker drives a descriptor through.
const (
	MethodHead Method = http.MethodHead
	MethodGet  Method = http.MethodGet
)

// Result classifies the outcome of a check.
type Result int

// Results a descriptor can settle into.
const (
	// ResultPending means the descriptor has not been checked yet.
	ResultPending Result = iota
	// ResultValid means the URL was fetched and is reachable.
	ResultValid
	// ResultInvalid means the URL could not be reached or was rejected.
	ResultInvalid
	// ResultSyntaxOnly means the URL was not fetched (robots.txt or an
	// external domain filter denied it) but its syntax is well-formed.
	ResultSyntaxOnly
)

// String implementation.
func (r Result) String() string {
	switch r {
	case ResultValid:
		return "valid"
	case ResultInvalid:
		return "invalid"
	case ResultSyntaxOnly:
		return "syntax-only"
	default:
		return "pending"
	}
}

// Note is a single info/warning record accumulated while checking a URL.
type Note struct {
	Message string
}

// Descriptor is the unit of work driven through the checker.
//
// A descriptor is created by the extractor collaborator (§6), mutated
// only by the worker that owns it, and discarded after reporting. It is
// never shared between goroutines while in flight.
type Descriptor struct {
	// Original is the URL string as discovered.
	Original string

	// URL is the current parsed form of Original; it is replaced in
	// place as redirects are followed.
	URL *url.URL

	// Depth is the recursion depth from the seed URLs.
	Depth int

	// Parent is the URL that linked to this one, if any.
	Parent string

	// Line, Column and Anchor record where in the parent's content this
	// URL was found.
	Line, Column int
	Anchor       string

	// CacheKey is the canonicalized form of URL used for deduplication.
	CacheKey string

	// Aliases lists other canonical forms known to resolve to the same
	// effective URL, accumulated as redirects are followed.
	Aliases []string

	// Method is HEAD or GET, mutated as the state machine falls back.
	Method Method

	// Has301, NoAnchor, Persistent and HasContent are state-machine flags.
	Has301     bool
	NoAnchor   bool
	Persistent bool
	HasContent bool

	// Timeout is the server-advertised keep-alive timeout, if any.
	Timeout int

	// Header holds the most recently received response headers, if any.
	Header http.Header

	// Body is the decoded body of the most recent response; it is read
	// in full after every request, not on demand.
	Body []byte

	// Result is the final classification.
	Result Result

	// Message is the human-readable result string, e.g. "200 OK".
	Message string

	mu       sync.Mutex
	Info     []Note
	Warnings []Note
}

// NewDescriptor parses rawurl and returns a fresh descriptor ready to
// be passed to Session.Check.
func NewDescriptor(rawurl string, depth int, parent string) (*Descriptor, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	key, err := normalize.RawURL(rawurl)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Original: rawurl,
		URL:      u,
		Depth:    depth,
		Parent:   parent,
		CacheKey: key,
		Method:   MethodHead,
	}, nil
}

// AddInfo appends an info record. Safe for concurrent use, though a
// descriptor is normally owned by a single worker at a time.
func (d *Descriptor) AddInfo(msg string) {
	d.mu.Lock()
	d.Info = append(d.Info, Note{Message: msg})
	d.mu.Unlock()
}

// AddWarning appends a warning record.
func (d *Descriptor) AddWarning(msg string) {
	d.mu.Lock()
	d.Warnings = append(d.Warnings, Note{Message: msg})
	d.mu.Unlock()
}

// SetResult finalizes the descriptor with a message; valid reflects
// whether the result is a success.
func (d *Descriptor) SetResult(msg string, valid bool) {
	d.Message = msg
	if valid {
		d.Result = ResultValid
	} else {
		d.Result = ResultInvalid
	}
}

// SetSyntaxOnly finalizes the descriptor as syntax-only with msg
// recorded as a warning.
func (d *Descriptor) SetSyntaxOnly(msg string) {
	d.AddWarning(msg)
	d.Result = ResultSyntaxOnly
}

// allSeen returns the cache key plus all known aliases, used for cycle
// detection while following redirects.
func (d *Descriptor) allSeen() []string {
	seen := make([]string, 0, len(d.Aliases)+1)
	seen = append(seen, d.CacheKey)
	seen = append(seen, d.Aliases...)
	return seen
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
