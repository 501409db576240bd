package linkguard_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-linkguard/linkguard"
	"github.com/go-linkguard/linkguard/anttest"
)

func newSession(opts ...linkguard.Option) *linkguard.Session {
	return linkguard.New(linkguard.NewStaticConfig(), opts...)
}

func TestCheckValid(t *testing.T) {
	var assert = require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Tue, 01 Jan 2030 00:00:00 GMT")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/")

	assert.Equal(linkguard.ResultValid, d.Result)
	assert.Contains(d.Message, "200")
}

func TestCheckNotFound(t *testing.T) {
	var assert = require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/missing")

	assert.Equal(linkguard.ResultInvalid, d.Result)
	assert.Contains(d.Message, "404")
}

func TestCheckHeadUnsupportedFallsBackToGet(t *testing.T) {
	var assert = require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// close without a valid status line, simulating a server
			// that cannot answer HEAD at all.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatalf("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %s", err)
			}
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/")

	assert.Equal(linkguard.ResultValid, d.Result)
	assert.Equal(linkguard.MethodGet, d.Method)

	var sawFallbackWarning bool
	for _, w := range d.Warnings {
		sawFallbackWarning = sawFallbackWarning || strings.Contains(w.Message, "did not support HEAD")
	}
	assert.True(sawFallbackWarning)
}

func TestCheckRedirectChain(t *testing.T) {
	var assert = require.New(t)

	var final string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final+"/end", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	final = srv.URL

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/start")

	assert.Equal(linkguard.ResultValid, d.Result)
	assert.True(d.Has301)
	assert.NotEmpty(d.Aliases)
	assert.Equal(srv.URL+"/end", d.URL.String())

	var saw301Warning bool
	for _, w := range d.Warnings {
		saw301Warning = saw301Warning || strings.Contains(w.Message, "301")
	}
	assert.True(saw301Warning)
}

func TestCheckRedirectCycleIsInvalid(t *testing.T) {
	var assert = require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/a")

	assert.Equal(linkguard.ResultInvalid, d.Result)
	assert.Contains(d.Message, "recursive redirection")
}

func TestCheckDeniedByRobots(t *testing.T) {
	var assert = require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
	})
	mux.HandleFunc("/secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/secret")

	assert.Equal(linkguard.ResultSyntaxOnly, d.Result)
	var sawRobotsWarning bool
	for _, w := range d.Warnings {
		sawRobotsWarning = sawRobotsWarning || strings.Contains(w.Message, "robots.txt")
	}
	assert.True(sawRobotsWarning)
}

func TestCheckAuthRetry(t *testing.T) {
	var assert = require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/secret", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			w.Header().Set("WWW-Authenticate", `Basic realm="x"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := linkguard.NewStaticConfig()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	cfg.Realms[u.Host] = [2]string{"u", "p"}

	session := linkguard.New(cfg)
	d := anttest.Check(t, session, srv.URL+"/secret")

	assert.Equal(linkguard.ResultValid, d.Result)
	assert.Contains(d.Message, "200")
}

func TestCheckAnchorStrippedOnFailure(t *testing.T) {
	var assert = require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/nope#section")

	assert.Equal(linkguard.ResultInvalid, d.Result)
	assert.True(d.NoAnchor)
}

func TestCheckZopeHeadQuirkFallsBackToGet(t *testing.T) {
	var assert = require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Server", "Zope/2.13")
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newSession()
	d := anttest.Check(t, session, srv.URL+"/page")

	assert.Equal(linkguard.ResultValid, d.Result)
	assert.Equal(linkguard.MethodGet, d.Method)
}

func TestCheckConsultsLimiter(t *testing.T) {
	var assert = require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var calls int32
	limiter := linkguard.LimiterFunc(func(ctx context.Context, u *url.URL) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	session := newSession(linkguard.WithLimiter(limiter))
	d := anttest.Check(t, session, srv.URL+"/")

	assert.Equal(linkguard.ResultValid, d.Result)
	assert.True(atomic.LoadInt32(&calls) > 0)
}

func TestCheckLimiterErrorAbortsRequest(t *testing.T) {
	var assert = require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	denied := errors.New("rate limit exceeded")
	limiter := linkguard.LimiterFunc(func(ctx context.Context, u *url.URL) error {
		return denied
	})

	session := newSession(linkguard.WithLimiter(limiter))
	d := anttest.Check(t, session, srv.URL+"/")

	assert.Equal(linkguard.ResultInvalid, d.Result)
	assert.Contains(d.Message, "rate limit exceeded")
}

func TestCheckOutsideDomainFilterOnRedirect(t *testing.T) {
	var assert = require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	matcher := linkguard.MatcherFunc(func(u *url.URL) bool { return false })

	session := newSession(linkguard.WithMatcher(matcher))
	d := anttest.Check(t, session, srv.URL+"/start")

	assert.Equal(linkguard.ResultSyntaxOnly, d.Result)
	var sawFilterWarning bool
	for _, w := range d.Warnings {
		sawFilterWarning = sawFilterWarning || strings.Contains(w.Message, "domain filter")
	}
	assert.True(sawFilterWarning)
}
