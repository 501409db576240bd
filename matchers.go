package linkguard

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/tidwall/match"
)

// Matcher represents the domain filter (§6): a collaborator consulted
// before a discovered URL is followed past its syntax-only check.
type Matcher interface {
	// Match returns true if the URL matches.
	//
	// A Session consults the method for each redirect target; if it
	// returns false the redirect is not followed and the descriptor is
	// classified ResultSyntaxOnly. The URL a check starts from is not
	// passed to it.
	Match(url *url.URL) bool
}

// MatcherFunc implements a Matcher.
type MatcherFunc func(*url.URL) bool

// Match implementation.
func (mf MatcherFunc) Match(url *url.URL) bool {
	return mf(url)
}

// MatchHostname returns a new hostname matcher.
//
// The matcher returns true for all URLs that match the host.
func MatchHostname(host string) MatcherFunc {
	return func(url *url.URL) bool {
		return url.Host == host
	}
}

// MatchPattern returns a new pattern matcher.
//
// The matcher returns true for all URLs that match
// the pattern, the URL does not contain the scheme
// and the query parameters.
func MatchPattern(pattern string) MatcherFunc {
	return func(url *url.URL) bool {
		return match.Match(url.Host+url.Path, pattern)
	}
}

// MatchRegexp returns a new regexp matcher.
//
// The matcher returns true for all URLs that match
// the regexp, the URL does not contain the scheme
// and the query parameters.
func MatchRegexp(expr string) MatcherFunc {
	re, err := regexp.Compile(expr)
	if err != nil {
		panic(fmt.Sprintf("linkguard: regexp %q - %s", expr, err))
	}
	return func(url *url.URL) bool {
		return re.MatchString(url.Host + url.Path)
	}
}
