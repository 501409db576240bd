package limit

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	var assert = require.New(t)

	m := ByMatch("example.com/admin/*", 1000)

	matched, _ := url.Parse("https://example.com/admin/users")
	assert.NoError(m.Limit(context.Background(), matched))

	unmatched, _ := url.Parse("https://example.com/public/index")
	assert.NoError(m.Limit(context.Background(), unmatched))
}
