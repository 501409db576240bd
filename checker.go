package linkguard

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-linkguard/linkguard/internal/normalize"
	"github.com/go-linkguard/linkguard/internal/robots"
)

// Retry/backoff bounds for a transient TransportError, mirroring the
// teacher's Fetcher.backoff attempt²*min schedule (fetcher.go).
const (
	maxTransportAttempts = 5
	minTransportBackoff  = 50 * time.Millisecond
	maxTransportBackoff  = 1 * time.Second
)

// backoffWait blocks for attempt²*minTransportBackoff, capped at
// maxTransportBackoff, or returns ctx's error if it is canceled first.
func backoffWait(ctx context.Context, attempt int) error {
	dur := time.Duration(attempt*attempt) * minTransportBackoff
	if dur > maxTransportBackoff {
		dur = maxTransportBackoff
	}

	t := time.NewTimer(dur)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// amazonHost matches the Amazon properties that reject HEAD requests
// (§4.D pre-flight "Amazon servers block HTTP HEAD requests").
var amazonHost = regexp.MustCompile(`^www\.amazon\.(com|de|ca|fr|co\.(uk|jp))`)

// checkState carries the mutable, per-check values that do not belong
// on Descriptor because they never outlive one Check call: the proxy in
// effect (which §4.D's 305 handling can override mid-check) and the
// Basic auth challenge response.
type checkState struct {
	d         *Descriptor
	proxy     string
	proxyAuth string
	auth      string

	// transportAttempts counts retries of a temporary TransportError
	// within one check (see isTemporary in checkHTTPConnection).
	transportAttempts int
}

// Check drives d through the HTTP state machine (§4.D's entry
// contract): it mutates d in place to valid, valid-with-warnings,
// invalid, or syntax-only, and never returns an error for a condition
// the taxonomy in §7 recognizes — only for context cancellation or a
// cache-coordination failure.
func (s *Session) Check(ctx context.Context, d *Descriptor) error {
	owner, err := s.Cache.Reserve(ctx, d.CacheKey, d)
	if err != nil {
		return err
	}
	if !owner {
		return nil
	}

	s.runCheck(ctx, d)

	s.Cache.Publish(d.CacheKey, d)
	return nil
}

func (s *Session) runCheck(ctx context.Context, d *Descriptor) {
	st := &checkState{d: d}

	if p, ok := s.Config.Proxy(d.URL.Scheme); ok {
		st.proxy = p
	}

	allowed, err := s.robotsAllowedURL(ctx, d.URL, st)
	if err != nil {
		d.SetResult(fmt.Sprintf("robots.txt error: %s", err), false)
		return
	}
	if !allowed {
		d.SetSyntaxOnly("Access denied by robots.txt, checked only syntax.")
		return
	}

	if amazonHost.MatchString(d.URL.Host) {
		d.AddWarning("Amazon servers block HTTP HEAD requests, using GET instead.")
		d.Method = MethodGet
	} else {
		d.Method = MethodHead
	}

	resp, fallbackGET, done, err := s.checkHTTPConnection(ctx, st)
	if err != nil {
		// Recognized taxonomy errors (§7) carry their own terminal
		// message; anything else is an unrecognized exception and is
		// recorded with a generic one instead of leaking internals.
		if skip(err) {
			d.SetResult(err.Error(), false)
		} else {
			d.SetResult(fmt.Sprintf("unexpected error: %s", err), false)
		}
		return
	}
	if done {
		return
	}

	if effective := d.URL.String(); effective != d.Original {
		d.AddInfo(fmt.Sprintf("Effective URL %s.", effective))
	}

	s.checkResponse(d, resp, fallbackGET)
}

// checkHTTPConnection implements §4.D's main loop.
func (s *Session) checkHTTPConnection(ctx context.Context, st *checkState) (resp *http.Response, fallbackGET, done bool, err error) {
	d := st.d
	maxRedirects := s.Config.MaxRedirects()

	for {
		resp, err = s.sendRequest(ctx, st)
		if err != nil {
			if _, ok := err.(*ProtocolError); ok && d.Method == MethodHead {
				d.Method = MethodGet
				d.Aliases = nil
				fallbackGET = true
				continue
			}
			if isTemporary(err) && st.transportAttempts < maxTransportAttempts {
				st.transportAttempts++
				if berr := backoffWait(ctx, st.transportAttempts); berr != nil {
					return nil, fallbackGET, false, berr
				}
				continue
			}
			return nil, fallbackGET, false, err
		}

		if resp.StatusCode == http.StatusUseProxy && len(resp.Header) > 0 {
			oldProxy, oldProxyAuth := st.proxy, st.proxyAuth
			newProxy := resp.Header.Get("Location")
			d.AddInfo(fmt.Sprintf("Enforced proxy %q.", newProxy))
			st.proxy = newProxy
			if st.proxy == "" {
				err := &ConfigError{Message: fmt.Sprintf("Enforced proxy %q ignored, aborting.", newProxy)}
				d.SetResult(err.Error(), false)
				return nil, fallbackGET, true, nil
			}
			resp, err = s.sendRequest(ctx, st)
			if err != nil {
				return nil, fallbackGET, false, err
			}
			// restored only for the rest of this exchange; later
			// redirects within this check use the original proxy.
			st.proxy, st.proxyAuth = oldProxy, oldProxyAuth
		}

		tries, next, rerr := s.followRedirections(ctx, st, resp)
		if rerr != nil {
			if _, ok := rerr.(*ProtocolError); ok && d.Method == MethodHead {
				d.Method = MethodGet
				d.Aliases = nil
				fallbackGET = true
				continue
			}
			return nil, fallbackGET, false, rerr
		}
		resp = next

		if tries == -1 {
			return nil, fallbackGET, true, nil
		}
		if tries >= maxRedirects {
			if d.Method == MethodHead {
				// Microsoft servers tend to recurse HEAD requests.
				d.Method = MethodGet
				d.Aliases = nil
				fallbackGET = true
				continue
			}
			err := &RedirectError{
				Message: fmt.Sprintf("more than %d redirections, aborting", maxRedirects),
				Chain:   d.allSeen(),
			}
			d.SetResult(err.Error(), false)
			return nil, fallbackGET, true, nil
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if st.auth == "" {
				user, password := s.credentialsFor(d.URL)
				st.auth = basicAuth(user, password)
				continue
			}
		case resp.StatusCode >= 400:
			if len(resp.Header) > 0 && d.URL.Fragment != "" && !d.NoAnchor {
				d.NoAnchor = true
				continue
			}
			if d.Method == MethodHead {
				d.Method = MethodGet
				d.Aliases = nil
				fallbackGET = true
				continue
			}
		case d.Method == MethodHead && len(resp.Header) > 0:
			mime := contentType(resp.Header)
			poweredBy := resp.Header.Get("X-Powered-By")
			server := resp.Header.Get("Server")
			if mime == "application/octet-stream" &&
				(strings.HasPrefix(poweredBy, "Zope") || strings.HasPrefix(server, "Zope")) {
				// Zope could not report Content-Type on a HEAD request.
				d.Method = MethodGet
				d.Aliases = nil
				fallbackGET = true
				continue
			}
		}
		break
	}

	return resp, fallbackGET, false, nil
}

// followRedirections implements §4.D's redirect sub-routine. It
// returns tries == -1 when the check has already been finalized
// (domain filter, robots, cycle, alias already checked, or a scheme
// change handed off to the extractor); the outer loop must not touch
// resp further in that case.
func (s *Session) followRedirections(ctx context.Context, st *checkState, resp *http.Response) (tries int, result *http.Response, err error) {
	d := st.d
	result = resp
	maxRedirects := s.Config.MaxRedirects()

	for (result.StatusCode == http.StatusMovedPermanently || result.StatusCode == http.StatusFound) &&
		len(result.Header) > 0 && tries < maxRedirects {

		loc := result.Header.Get("Location")
		if loc == "" {
			loc = result.Header.Get("Uri")
		}

		newURL, perr := d.URL.Parse(loc)
		if perr != nil {
			d.SetResult(fmt.Sprintf("invalid redirect location %q", loc), false)
			return -1, result, nil
		}

		d.AddInfo(fmt.Sprintf("Redirected to %s.", newURL.String()))

		key, nerr := normalize.RawURL(newURL.String())
		if nerr != nil {
			d.SetResult(fmt.Sprintf("invalid redirect location %q", loc), false)
			return -1, result, nil
		}

		if s.Matcher != nil && !s.Matcher.Match(newURL) {
			d.SetSyntaxOnly("Outside of domain filter, checked only syntax.")
			return -1, result, nil
		}

		allowed, aerr := s.robotsAllowedURL(ctx, newURL, st)
		if aerr != nil {
			return -1, result, aerr
		}
		if !allowed {
			d.SetSyntaxOnly("Access denied by robots.txt, checked only syntax.")
			return -1, result, nil
		}

		seen := d.allSeen()
		if containsString(seen, key) {
			if d.Method == MethodHead {
				// force the outer loop's HEAD->GET switch.
				return maxRedirects, result, nil
			}
			chain := append(append([]string{}, seen...), key)
			err := &RedirectError{
				Message: fmt.Sprintf("recursive redirection encountered:\n %s",
					strings.Join(chain, "\n  => ")),
				Chain: chain,
			}
			d.SetResult(err.Error(), false)
			return -1, result, nil
		}

		d.Aliases = append(d.Aliases, key)
		d.URL = newURL

		if result.StatusCode == http.StatusMovedPermanently {
			if !d.Has301 {
				d.AddWarning("HTTP 301 (moved permanent) encountered: you should update this link.")
				if !strings.HasSuffix(d.Original, "/") && !strings.HasSuffix(d.Original, ".html") {
					d.AddWarning("A HTTP 301 redirection occured and the URL has no trailing / " +
						"at the end. All URLs which point to (home) directories should end with " +
						"a / to avoid redirection.")
				}
				d.Has301 = true
			}
		}

		if s.Cache.CheckedRedirect(key, d) {
			return -1, result, nil
		}

		if newURL.Scheme != "http" && newURL.Scheme != "https" {
			d.AddWarning(fmt.Sprintf("HTTP redirection to non-http url encountered; "+
				"the original url was %q.", d.Original))
			if nd, nerr := s.Registry.URLFrom(newURL.String(), d.Depth, d.Parent); nerr == nil {
				s.Extractor.Enqueue(nd)
			}
			d.SetSyntaxOnly("Redirected outside HTTP, handed off for separate checking.")
			return -1, result, nil
		}

		result, err = s.sendRequest(ctx, st)
		if err != nil {
			return 0, result, err
		}
		tries++
	}

	return tries, result, nil
}

// checkResponse implements §4.D's finalization.
func (s *Session) checkResponse(d *Descriptor, resp *http.Response, fallbackGET bool) {
	if resp.StatusCode >= 400 {
		err := &HTTPStatusError{URL: d.URL.String(), Status: resp.StatusCode, Reason: reasonPhrase(resp)}
		d.SetResult(err.Error(), false)
		return
	}

	server := resp.Header.Get("Server")
	if server == "" {
		server = "unknown"
	}

	if fallbackGET {
		d.AddWarning(fmt.Sprintf("Server %q did not support HEAD request, used GET for checking.", server))
	}
	if d.NoAnchor {
		d.AddWarning(fmt.Sprintf("Server %q had no anchor support, removed anchor from request.", server))
	}
	if resp.StatusCode == http.StatusNoContent {
		d.AddWarning(resp.Status)
	}

	if s.Config.Cookies() {
		for _, cerr := range s.CookieJar.Store(resp.Header, d.URL.Host) {
			d.AddWarning(fmt.Sprintf("Could not store cookies: %s.", cerr))
		}
	}

	if resp.StatusCode >= 200 {
		d.SetResult(fmt.Sprintf("%d %s", resp.StatusCode, reasonPhrase(resp)), true)
	} else {
		d.SetResult("OK", true)
	}

	if modified := resp.Header.Get("Last-Modified"); modified != "" {
		d.AddInfo(fmt.Sprintf("Last modified %s.", modified))
	}
}

// sendRequest implements §4.D's request construction and the header
// emission order it mandates.
func (s *Session) sendRequest(ctx context.Context, st *checkState) (*http.Response, error) {
	d := st.d
	host := d.URL.Host

	key := s.poolKey(d)
	if st.proxy != "" {
		key.Host = st.proxy
		key.Scheme = "http"
	}

	anchor := d.URL.Fragment
	if d.NoAnchor {
		anchor = ""
	}

	var requestURI string
	if st.proxy != "" {
		u := *d.URL
		u.Fragment = anchor
		requestURI = u.String()
	} else {
		u := url.URL{Path: d.URL.EscapedPath(), RawQuery: d.URL.RawQuery, Fragment: anchor}
		requestURI = u.String()
		if requestURI == "" {
			requestURI = "/"
		}
	}

	var lines []headerLine
	lines = append(lines, headerLine{"Host", host})

	if d.URL.User != nil {
		user := d.URL.User.Username()
		password, _ := d.URL.User.Password()
		lines = append(lines, headerLine{"Authorization", basicAuth(user, password)})
	} else if st.auth != "" {
		lines = append(lines, headerLine{"Authorization", st.auth})
	}

	if st.proxyAuth != "" {
		lines = append(lines, headerLine{"Proxy-Authorization", st.proxyAuth})
	}

	if strings.HasPrefix(d.Parent, "http://") {
		lines = append(lines, headerLine{"Referer", d.Parent})
	}

	lines = append(lines, headerLine{"User-Agent", s.Config.UserAgent()})
	lines = append(lines, headerLine{"Accept-Encoding", "gzip;q=1.0, deflate;q=0.9, identity;q=0.5"})

	if s.Config.Cookies() {
		for _, c := range s.CookieJar.Get(host, d.URL.Path) {
			lines = append(lines, headerLine{"Cookie", c.String()})
		}
	}

	wr := wireRequest{Method: string(d.Method), RequestURI: requestURI, Headers: lines}

	for _, l := range s.Limiters {
		if err := l.Limit(ctx, d.URL); err != nil {
			return nil, fmt.Errorf("linkguard: limit %q - %w", d.URL, err)
		}
	}

	release := s.Pool.Acquire(host)
	defer release()

	ex, err := s.transport.do(ctx, string(d.Method), wr, key, st.proxy)
	if err != nil {
		return nil, err
	}

	d.Persistent = persistent(ex.resp.Proto, ex.resp.Header)
	d.Timeout = timeout(ex.resp.Header)
	d.Header = ex.resp.Header

	body, _ := ioutil.ReadAll(ex.resp.Body)
	ex.resp.Body.Close()

	dr := decode(body, contentEncoding(ex.resp.Header))
	if dr.Warning != "" {
		d.AddWarning(dr.Warning)
	}
	d.Body = dr.Body
	d.HasContent = true

	s.transport.release(key, ex.conn, d.Persistent, d.Timeout, true)

	return ex.resp, nil
}

// poolKey derives the connection pool key for d's current URL and
// configured credentials.
func (s *Session) poolKey(d *Descriptor) PoolKey {
	user, password := s.credentialsFor(d.URL)
	return PoolKey{Scheme: d.URL.Scheme, Host: d.URL.Host, User: user, Password: password}
}

// credentialsFor returns userinfo embedded in u, falling back to the
// session Config's per-realm credentials.
func (s *Session) credentialsFor(u *url.URL) (string, string) {
	if u.User != nil {
		user := u.User.Username()
		password, _ := u.User.Password()
		return user, password
	}
	if user, password, ok := s.Config.Credentials(u.Host); ok {
		return user, password
	}
	return "", ""
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// robotsAllowedURL checks robots.txt allowance for u and, if allowed,
// blocks for the advertised crawl-delay before the caller proceeds —
// implemented via internal/limit's rate.Limiter-backed registry rather
// than robots.Cache.Wait's plain per-call sleep, so repeat requests to
// the same host only wait out whatever time has not already elapsed.
func (s *Session) robotsAllowedURL(ctx context.Context, u *url.URL, st *checkState) (bool, error) {
	user, password := s.credentialsFor(u)
	req := robots.Request{URL: u, UserAgent: s.Config.UserAgent(), User: user, Password: password}

	allowed, err := s.Robots.Allowed(ctx, req)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}

	delay, err := s.Robots.CrawlDelay(ctx, req)
	if err != nil {
		return false, err
	}
	if delay > 0 {
		if err := s.delay.Wait(ctx, u.Host, s.Config.UserAgent(), delay); err != nil {
			return false, err
		}
	}

	return true, nil
}
