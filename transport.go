// Package linkguard implements the HTTP checking core of a recursive
// link checker: the per-URL HTTP state machine, robots.txt
// fetcher/parser/matcher, and the shared caches that make checking
// correct under concurrent load and polite to servers.
package linkguard

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// tlsSupported is a startup capability flag rather than the runtime
// hasattr-style feature detection the source used (§9 Design Notes,
// "Feature-detected TLS"). Go always ships crypto/tls, so this is
// always true; it is kept as an explicit constant so the single
// user-visible effect of its absence, UnsupportedScheme, has one place
// to live.
const tlsSupported = true

// DialTimeout bounds how long establishing a new TCP/TLS connection
// may take.
var DialTimeout = 30 * time.Second

// exchange is the result of sending one HTTP request: the response and
// the connection used (for the caller to return to the pool or close).
type exchange struct {
	resp *http.Response
	conn net.Conn
}

// transport sends one HTTP request over a pooled or freshly dialed
// connection. It is shared by the checker (§4.D) and the robots.txt
// fetcher (§4.B) so that both honor the same proxy and connection
// reuse policy.
type transport struct {
	pool *Pool
}

func newTransport(pool *Pool) *transport {
	return &transport{pool: pool}
}

// dial opens a new connection for scheme://host, honoring proxy when
// non-empty (the proxy is always spoken in plain HTTP, per §4.D
// "send_request").
func (t *transport) dial(ctx context.Context, scheme, host, proxy string) (net.Conn, error) {
	target := host
	dialScheme := scheme

	if proxy != "" {
		target = proxy
		dialScheme = "http"
	}

	d := net.Dialer{Timeout: DialTimeout}

	switch dialScheme {
	case "http":
		conn, err := d.DialContext(ctx, "tcp", ensurePort(target, "80"))
		if err != nil {
			return nil, &TransportError{URL: target, Err: err}
		}
		return conn, nil
	case "https":
		if !tlsSupported {
			return nil, &UnsupportedScheme{Scheme: scheme}
		}
		conn, err := (&net.Dialer{Timeout: DialTimeout}).DialContext(ctx, "tcp", ensurePort(target, "443"))
		if err != nil {
			return nil, &TransportError{URL: target, Err: err}
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: hostOnly(target)})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &TransportError{URL: target, Err: err}
		}
		return tlsConn, nil
	default:
		return nil, &UnsupportedScheme{Scheme: scheme}
	}
}

// wireRequest is a fully assembled request line plus headers in the
// exact emission order §4.D mandates ("All request headers listed in
// 4.D are always emitted in that order"). http.Header is a map and
// cannot preserve that order, so the wire form is built as an ordered
// slice instead and written directly, the same explicit
// putrequest/putheader style the source uses.
type wireRequest struct {
	Method     string
	RequestURI string
	Headers    []headerLine
}

type headerLine struct {
	Name, Value string
}

func (r wireRequest) writeTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", r.Method, r.RequestURI); err != nil {
		return err
	}
	for _, h := range r.Headers {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// do sends req over a connection for key, reusing a pooled one if
// available. The caller owns the returned conn: it must either Put it
// back into the pool (once the body is fully drained and Persistent is
// true) or Close it. method is used only so http.ReadResponse can tell
// a HEAD response (no body) from a GET one; the bytes on the wire come
// entirely from req.
func (t *transport) do(ctx context.Context, method string, req wireRequest, key PoolKey, proxy string) (*exchange, error) {
	var conn net.Conn
	var err error
	var reused bool

	if c, ok := t.pool.Get(key); ok {
		conn, reused = c, true
	} else {
		conn, err = t.dial(ctx, key.Scheme, key.Host, proxy)
		if err != nil {
			return nil, err
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := req.writeTo(conn); err != nil {
		conn.Close()
		if reused {
			// A pooled connection may have been closed by the peer
			// between Get and Write; retry once on a fresh dial.
			conn, err = t.dial(ctx, key.Scheme, key.Host, proxy)
			if err != nil {
				return nil, err
			}
			if err := req.writeTo(conn); err != nil {
				conn.Close()
				return nil, &TransportError{URL: req.RequestURI, Err: err}
			}
		} else {
			return nil, &TransportError{URL: req.RequestURI, Err: err}
		}
	}

	marker := &http.Request{Method: method}
	resp, err := http.ReadResponse(bufio.NewReader(conn), marker)
	if err != nil {
		conn.Close()
		return nil, &ProtocolError{URL: req.RequestURI, Err: err}
	}

	return &exchange{resp: resp, conn: conn}, nil
}

// release returns conn to the pool when eligible, otherwise closes it,
// per §3's pool-entry invariant.
func (t *transport) release(key PoolKey, conn net.Conn, persist bool, timeoutSeconds int, bodyDrained bool) {
	if persist && bodyDrained && t.pool.Put(key, conn, timeoutSeconds) {
		return
	}
	conn.Close()
}

// fetchRobots fetches a robots.txt document through the same
// proxy/auth-aware transport the checker itself drives to reach the
// pages that document governs (§4.B: "honoring the same proxy/auth").
// It satisfies robots.FetchFunc and is wired in by New when the caller
// has not supplied its own *http.Client via WithHTTPClient.
func (s *Session) fetchRobots(ctx context.Context, robotsURL *url.URL, user, password string) (*http.Response, error) {
	proxy := ""
	if p, ok := s.Config.Proxy(robotsURL.Scheme); ok {
		proxy = p
	}

	key := PoolKey{Scheme: robotsURL.Scheme, Host: robotsURL.Host, User: user, Password: password}
	if proxy != "" {
		key.Host = proxy
		key.Scheme = "http"
	}

	var requestURI string
	if proxy != "" {
		requestURI = robotsURL.String()
	} else {
		u := url.URL{Path: robotsURL.EscapedPath(), RawQuery: robotsURL.RawQuery}
		requestURI = u.String()
		if requestURI == "" {
			requestURI = "/"
		}
	}

	var lines []headerLine
	lines = append(lines, headerLine{"Host", robotsURL.Host})
	if user != "" {
		lines = append(lines, headerLine{"Authorization", basicAuth(user, password)})
	}
	lines = append(lines, headerLine{"User-Agent", s.Config.UserAgent()})
	lines = append(lines, headerLine{"Accept-Encoding", "x-gzip,gzip,deflate"})

	wr := wireRequest{Method: http.MethodGet, RequestURI: requestURI, Headers: lines}

	release := s.Pool.Acquire(robotsURL.Host)
	defer release()

	ex, err := s.transport.do(ctx, http.MethodGet, wr, key, proxy)
	if err != nil {
		return nil, err
	}

	// The robots cache does not always read the body to completion
	// (e.g. a non-text/plain Content-Type short-circuits before
	// ioutil.ReadAll), so the connection is always closed rather than
	// risk pooling one with unread bytes still on the wire.
	ex.resp.Body = transportClosingBody{
		ReadCloser: ex.resp.Body,
		onClose:    func() { s.transport.release(key, ex.conn, false, 0, false) },
	}
	return ex.resp, nil
}

// transportClosingBody closes the connection a transport.do exchange
// was read from once the caller closes the response body, instead of
// returning it to the pool.
type transportClosingBody struct {
	io.ReadCloser
	onClose func()
}

func (b transportClosingBody) Close() error {
	err := b.ReadCloser.Close()
	b.onClose()
	return err
}

func ensurePort(hostport, defaultPort string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, defaultPort)
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
