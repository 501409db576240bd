package linkguard

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Cookie is a single stored cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string

	// seq orders cookies by storage time so Get can emit them
	// deterministically regardless of map iteration order.
	seq int
}

// String renders the cookie in "name=value" wire form.
func (c Cookie) String() string {
	return c.Name + "=" + c.Value
}

// CookieJar implements the cookie jar (§4.C): a mapping from the host
// that set a cookie to the list of its cookies, each carrying its path.
// On retrieval for (host, path), the cookies stored under host or under
// a parent domain of host, whose path is a prefix of path, are emitted
// in deterministic order. A cookie's Domain attribute is recorded but
// not used for matching: a cookie set by a.example.com with
// Domain=example.com is not sent to b.example.com.
type CookieJar struct {
	mu     sync.RWMutex
	byHost map[string][]Cookie
	next   int
}

// NewCookieJar returns an empty cookie jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{byHost: make(map[string][]Cookie)}
}

// Store parses the Set-Cookie headers in h and associates each cookie
// with host and its path attribute (default "/"). A malformed
// Set-Cookie header yields a CookieError; storage is skipped for that
// cookie only, matching §7 kind 8 (warning, not fatal).
func (j *CookieJar) Store(h http.Header, host string) []error {
	var errs []error

	resp := &http.Response{Header: h}
	raw := h.Values("Set-Cookie")

	parsed := resp.Cookies()
	if len(raw) != len(parsed) {
		for _, line := range raw {
			if !looksLikeCookie(line) {
				errs = append(errs, &CookieError{Header: line})
			}
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range parsed {
		domain := c.Domain
		if domain == "" {
			domain = host
		}
		if !j.authorizedFor(domain, host) {
			errs = append(errs, &CookieError{Header: c.Name})
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		j.byHost[host] = append(j.byHost[host], Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domain,
			Path:   path,
			seq:    j.next,
		})
		j.next++
	}

	return errs
}

// authorizedFor reports whether a cookie scoped to domain may be
// stored for requestHost: domain must be a suffix of requestHost (or
// equal to it), and requestHost itself must not be a public suffix
// (per the public suffix list) — mirroring the
// stricter-than-naive-suffix check net/http/cookiejar applies via the
// same library.
func (j *CookieJar) authorizedFor(domain, requestHost string) bool {
	domain = strings.ToLower(domain)
	requestHost = strings.ToLower(requestHost)

	if domain != requestHost && !strings.HasSuffix(requestHost, "."+domain) {
		return false
	}

	if suffix, icann := publicsuffix.PublicSuffix(requestHost); icann && suffix == requestHost {
		return false
	}

	return true
}

// Get returns cookies matching host (suffix match) and path (prefix
// match), in deterministic (insertion) order.
func (j *CookieJar) Get(host, path string) []Cookie {
	if path == "" {
		path = "/"
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	var ret []Cookie
	for storedHost, cookies := range j.byHost {
		if !hostMatches(storedHost, host) {
			continue
		}
		for _, c := range cookies {
			if strings.HasPrefix(path, c.Path) {
				ret = append(ret, c)
			}
		}
	}

	// Map iteration order is randomized; sort by storage order so two
	// calls for the same state return cookies in the same order.
	sort.Slice(ret, func(i, j int) bool { return ret[i].seq < ret[j].seq })

	return ret
}

func hostMatches(stored, requested string) bool {
	stored = strings.ToLower(stored)
	requested = strings.ToLower(requested)
	return stored == requested || strings.HasSuffix(requested, "."+stored)
}

// looksLikeCookie is a best-effort syntax check used only to decide
// whether an unparsed Set-Cookie line should be surfaced as a
// CookieError; http.Response.Cookies() silently drops malformed
// entries instead of erroring.
func looksLikeCookie(line string) bool {
	return strings.Contains(line, "=")
}
