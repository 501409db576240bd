package robots

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)
		var base = serve(t, "testdata/robots.txt")

		req := request(t, base+"/foo", "ant")

		allowed, err := cache.Allowed(ctx, req)
		assert.NoError(err)
		assert.True(allowed)
	})

	t.Run("allowed cancel", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)
		var base = serve(t, "testdata/robots.txt")

		ctx, cancel := context.WithCancel(ctx)
		cancel()

		req := request(t, base+"/foo", "ant")

		_, err := cache.Allowed(ctx, req)
		assert.Error(err)
	})

	t.Run("disallow", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)
		var base = serve(t, "testdata/robots.txt")

		req := request(t, base+"/search", "ant")

		allowed, err := cache.Allowed(ctx, req)
		assert.NoError(err)
		assert.False(allowed)
	})

	t.Run("first entry wins over default", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)
		var base = serve(t, "testdata/robots.txt")

		req := request(t, base+"/search", "spider LinkChecker/1.0")

		allowed, err := cache.Allowed(ctx, req)
		assert.NoError(err)
		assert.True(allowed)
	})

	t.Run("delay", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)
		var base = serve(t, "testdata/robots.txt")

		req := request(t, base, "ant")

		err := cache.Wait(ctx, req)
		assert.NoError(err)
	})

	t.Run("delay cancel", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)
		var base = serve(t, "testdata/robots.txt")

		ctx, cancel := context.WithCancel(ctx)
		cancel()

		req := request(t, base, "badbot")

		err := cache.Wait(ctx, req)
		assert.Error(err)
		assert.True(errors.Is(err, context.Canceled))
	})

	t.Run("unreachable robots allows all", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)

		u, err := url.Parse("http://127.0.0.1:1/x")
		assert.NoError(err)

		allowed, err := cache.Allowed(ctx, Request{URL: u, UserAgent: "ant"})
		assert.NoError(err)
		assert.True(allowed)
	})

	t.Run("401 disallows all", func(t *testing.T) {
		var ctx = context.Background()
		var assert = require.New(t)
		var cache = NewCache(http.DefaultClient, 50)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		u, err := url.Parse(srv.URL + "/x")
		assert.NoError(err)

		allowed, err := cache.Allowed(ctx, Request{URL: u, UserAgent: "ant"})
		assert.NoError(err)
		assert.False(allowed)
	})
}

func BenchmarkCache(b *testing.B) {
	b.Run("allowed", func(b *testing.B) {
		var ctx = context.Background()
		var cache = NewCache(http.DefaultClient, 50)
		var base = serve(b, "testdata/robots.txt")
		var req = request(b, base+"/foo", "ant")

		for i := 0; i < b.N; i++ {
			if _, err := cache.Allowed(ctx, req); err != nil {
				b.Fatalf("allowed: %s", err)
			}
		}
	})
}

func request(t testing.TB, rawurl, ua string) Request {
	t.Helper()

	u, err := url.Parse(rawurl)
	if err != nil {
		t.Fatalf("parse: %s", err)
	}

	return Request{
		URL:       u,
		UserAgent: ua,
	}
}

func serve(t testing.TB, path string) (uri string) {
	t.Helper()

	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			http.ServeFile(w, r, path)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	return srv.URL
}
