package linkguard

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
)

// defaultKeepAliveTimeout is used when a server advertises persistence
// but no explicit timeout.
const defaultKeepAliveTimeout = 300

// supportedEncodings lists the Content-Encoding values decode understands.
var supportedEncodings = map[string]bool{
	"gzip":   true,
	"x-gzip": true,
	"deflate": true,
}

// contentType returns the lowercase MIME token of the Content-Type
// header, without parameters (e.g. "text/html; charset=utf-8" ->
// "text/html").
func contentType(h http.Header) string {
	ct := h.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// contentEncoding returns the lowercase Content-Encoding token, or
// "identity" if absent.
func contentEncoding(h http.Header) string {
	ce := strings.ToLower(strings.TrimSpace(h.Get("Content-Encoding")))
	if ce == "" {
		return "identity"
	}
	return ce
}

// reasonPhrase returns resp's HTTP reason phrase without the leading
// status code net/http leaves concatenated onto Response.Status (e.g.
// "404 Not Found" -> "Not Found"), so callers building "<status>
// <reason>" strings (§4.D "check_response") don't double the code.
func reasonPhrase(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if strings.HasPrefix(resp.Status, prefix) {
		return strings.TrimPrefix(resp.Status, prefix)
	}
	return resp.Status
}

// persistent returns true iff the response's connection is eligible to
// be returned to the pool: HTTP/1.1 with Connection absent or not
// "close", or HTTP/1.0 with "Connection: keep-alive".
func persistent(proto string, h http.Header) bool {
	conn := strings.ToLower(strings.TrimSpace(h.Get("Connection")))
	switch proto {
	case "HTTP/1.1", "":
		return conn != "close"
	case "HTTP/1.0":
		return conn == "keep-alive"
	default:
		return conn != "close"
	}
}

// timeout parses the Keep-Alive timeout=N directive, in seconds,
// defaulting to defaultKeepAliveTimeout when absent or unparsable.
func timeout(h http.Header) int {
	ka := h.Get("Keep-Alive")
	for _, part := range strings.Split(ka, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToLower(part), "timeout=") {
			v := strings.TrimPrefix(part, part[:8])
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return defaultKeepAliveTimeout
}

// decodeResult is the outcome of decode: either the decoded body, or a
// warning naming an unsupported encoding with the body served raw.
type decodeResult struct {
	Body    []byte
	Warning string
}

// decode decompresses body according to encoding. gzip, x-gzip and
// deflate are supported; identity is a pass-through. Any other value
// produces an unsupported-encoding warning and the body is returned
// untouched.
func decode(body []byte, encoding string) decodeResult {
	switch encoding {
	case "identity", "":
		return decodeResult{Body: body}
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return decodeResult{
				Body:    body,
				Warning: fmt.Sprintf("decompress error: %s", err),
			}
		}
		defer r.Close()
		out, err := ioutil.ReadAll(r)
		if err != nil {
			return decodeResult{
				Body:    body,
				Warning: fmt.Sprintf("decompress error: %s", err),
			}
		}
		return decodeResult{Body: out}
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		out, err := ioutil.ReadAll(r)
		if err != nil {
			return decodeResult{
				Body:    body,
				Warning: fmt.Sprintf("decompress error: %s", err),
			}
		}
		return decodeResult{Body: out}
	default:
		return decodeResult{
			Body:    body,
			Warning: fmt.Sprintf("unsupported content encoding %q", encoding),
		}
	}
}
