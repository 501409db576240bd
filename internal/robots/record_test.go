package robots

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndMatch(t *testing.T) {
	t.Run("scenario: first matching entry wins", func(t *testing.T) {
		var assert = require.New(t)

		body := "User-agent: *\n" +
			"Disallow: /private/\n" +
			"\n" +
			"User-agent: LinkChecker\n" +
			"Allow: /\n"

		rec := Parse(body)

		assert.True(rec.CanFetch("some spider with LinkChecker in it", "/private/x"))
		assert.False(rec.CanFetch("plain-bot", "/private/x"))
	})

	t.Run("empty disallow means allow all", func(t *testing.T) {
		var assert = require.New(t)

		rec := Parse("User-agent: *\nDisallow:\n")

		assert.True(rec.CanFetch("ant", "/anything"))
	})

	t.Run("rule before user-agent is discarded", func(t *testing.T) {
		var assert = require.New(t)

		rec := Parse("Disallow: /x\nUser-agent: *\nAllow: /\n")

		assert.True(rec.CanFetch("ant", "/x"))
	})

	t.Run("crawl-delay is clamped and non-integers are discarded", func(t *testing.T) {
		var assert = require.New(t)

		rec := Parse("User-agent: *\nCrawl-delay: -5\n\nUser-agent: bot\nCrawl-delay: nope\n")

		assert.Equal(int64(0), rec.CrawlDelay("bot").Nanoseconds())
		assert.Equal(int64(0), rec.CrawlDelay("whatever").Nanoseconds())
	})

	t.Run("wildcard path matches anything", func(t *testing.T) {
		var assert = require.New(t)

		rec := Parse("User-agent: *\nDisallow: *\n")

		assert.False(rec.CanFetch("ant", "/any/path"))
	})

	t.Run("path normalization", func(t *testing.T) {
		var assert = require.New(t)

		rec := Parse("User-agent: *\nDisallow: /a%20b\n")

		assert.False(rec.CanFetch("ant", "/a b"))
	})

	t.Run("blank path defaults to root", func(t *testing.T) {
		var assert = require.New(t)

		rec := Parse("User-agent: *\nDisallow: /\n")

		assert.False(rec.CanFetch("ant", ""))
	})
}

func TestRecordAllowAllDisallowAll(t *testing.T) {
	var assert = require.New(t)

	assert.True((&Record{AllowAll: true}).CanFetch("ant", "/x"))
	assert.False((&Record{DisallowAll: true}).CanFetch("ant", "/x"))
}
