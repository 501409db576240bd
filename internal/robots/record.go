// Package robots implements the robots.txt fetcher, parser and
// matcher (§4.B): fetch, parse and evaluate robots.txt rules per
// (host, agent, path).
//
// Matching deliberately implements the source's "first entry whose
// agent substring-matches wins" semantics rather than RFC 9309's
// longest-match rule; see §9 ("Open questions / source ambiguities").
package robots

import (
	"strings"
	"time"
)

// Rule is a single "Allow:"/"Disallow:" line.
type Rule struct {
	Path  string
	Allow bool
}

// appliesTo reports whether path is governed by this rule: "*" matches
// any path, otherwise it is a prefix match over percent-encoded forms.
func (r Rule) appliesTo(path string) bool {
	return r.Path == "*" || strings.HasPrefix(path, r.Path)
}

// Entry groups one or more user-agent tokens with an ordered list of
// rules and an optional crawl-delay.
type Entry struct {
	UserAgents []string
	Rules      []Rule
	CrawlDelay int // seconds, clamped to >= 0
}

// appliesTo reports whether this entry governs useragent: the "*"
// catch-all token always applies; otherwise any of the entry's agent
// tokens, lowercased, must be a substring of the lowercased useragent.
func (e *Entry) appliesTo(useragent string) bool {
	if useragent == "" {
		return true
	}
	ua := strings.ToLower(useragent)
	for _, agent := range e.UserAgents {
		if agent == "*" {
			return true
		}
		if strings.Contains(ua, strings.ToLower(agent)) {
			return true
		}
	}
	return false
}

// allowance evaluates the entry's rules against path: the first
// matching rule line wins; if none match, access is allowed.
func (e *Entry) allowance(path string) bool {
	for _, r := range e.Rules {
		if r.appliesTo(path) {
			return r.Allow
		}
	}
	return true
}

// Record is a parsed robots.txt document for one (host, scheme, user,
// password) — the unit memoized by Cache.
type Record struct {
	AllowAll    bool
	DisallowAll bool
	Entries     []Entry
	Default     *Entry
}

// find returns the first entry (in insertion order) that governs
// useragent, consulting the default ("*") entry last, per §4.B step 3.
func (rec *Record) find(useragent string) (*Entry, bool) {
	for i := range rec.Entries {
		if rec.Entries[i].appliesTo(useragent) {
			return &rec.Entries[i], true
		}
	}
	if rec.Default != nil {
		return rec.Default, true
	}
	return nil, false
}

// CanFetch decides whether useragent may fetch path, per §4.B
// can_fetch: disallow_all/allow_all short-circuit, otherwise the
// first applying entry's first matching rule wins; no applying entry
// means allowed.
func (rec *Record) CanFetch(useragent, path string) bool {
	if rec.DisallowAll {
		return false
	}
	if rec.AllowAll {
		return true
	}

	path = normalizePath(path)

	entry, ok := rec.find(useragent)
	if !ok {
		return true
	}
	return entry.allowance(path)
}

// CrawlDelay returns the first applying entry's crawl-delay, or zero.
func (rec *Record) CrawlDelay(useragent string) time.Duration {
	entry, ok := rec.find(useragent)
	if !ok {
		return 0
	}
	return time.Duration(entry.CrawlDelay) * time.Second
}

// normalizePath extracts and re-encodes the path portion of a URL for
// comparison, defaulting to "/" when empty, per §4.B step 2.
func normalizePath(rawpath string) string {
	decoded := percentDecode(rawpath)
	if decoded == "" {
		return "/"
	}
	return percentEncode(decoded)
}
