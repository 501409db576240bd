package linkguard

import "fmt"

// Skip represents an error that can be skipped.
//
// When the checker encounters an error it typically aborts and returns
// the error to the caller. If Skip is implemented by the error and
// returns true, the caller may treat the URL as handled (e.g. recorded
// as invalid) and continue with the next one.
type Skip interface {
	Skip() bool
}

// skip returns true if the error can be skipped.
func skip(err error) bool {
	s, ok := err.(Skip)
	return ok && s.Skip()
}

// Temporary is implemented by errors that are worth retrying.
type Temporary interface {
	Temporary() bool
}

func isTemporary(err error) bool {
	t, ok := err.(Temporary)
	return ok && t.Temporary()
}

// ProtocolError represents a malformed HTTP exchange (kind 1): an
// empty status line or unparsable headers. The checker retries once
// as GET when the current method is HEAD; otherwise it surfaces as
// invalid.
type ProtocolError struct {
	URL string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("linkguard: protocol error fetching %q - %s", e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Skip implementation.
func (e *ProtocolError) Skip() bool { return true }

// HTTPStatusError represents a terminal status >= 400 (kind 2).
type HTTPStatusError struct {
	URL    string
	Status int
	Reason string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Reason)
}

// Skip implementation.
func (e *HTTPStatusError) Skip() bool { return true }

// RedirectError represents a redirect pathology (kind 3): a cycle or
// more than max_redirects hops.
type RedirectError struct {
	Message string
	Chain   []string
}

func (e *RedirectError) Error() string {
	return e.Message
}

// Skip implementation.
func (e *RedirectError) Skip() bool { return true }

// ConfigError represents a configuration-driven terminal failure (kind
// 5): an enforced proxy with an empty target. An unsupported scheme is
// reported as UnsupportedScheme instead.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Skip implementation.
func (e *ConfigError) Skip() bool { return true }

// UnsupportedScheme is returned by the transport when asked to dial a
// scheme it has no support for (e.g. https without TLS
// support compiled in).
type UnsupportedScheme struct {
	Scheme string
}

func (e *UnsupportedScheme) Error() string {
	return fmt.Sprintf("linkguard: unsupported scheme %q", e.Scheme)
}

// TransportError represents a socket error, timeout or TLS failure
// (kind 6).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("linkguard: %s - %s", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Skip implementation.
func (e *TransportError) Skip() bool { return true }

// Temporary implementation; delegates to the wrapped error if it knows.
func (e *TransportError) Temporary() bool {
	t, ok := e.Err.(Temporary)
	return ok && t.Temporary()
}

// CookieError represents a malformed Set-Cookie header (kind 8). It is
// always a warning; storage is skipped for the offending cookie.
type CookieError struct {
	Header string
	Err    error
}

func (e *CookieError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("linkguard: cookie %q malformed", e.Header)
	}
	return fmt.Sprintf("linkguard: cookie %q - %s", e.Header, e.Err)
}
