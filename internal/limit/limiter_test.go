package limit

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	var assert = require.New(t)
	u, _ := url.Parse("https://example.com/a")

	l := New(1000)
	assert.NoError(l.Limit(context.Background(), u))
}

func TestLimiterBlocksOverBudget(t *testing.T) {
	var assert = require.New(t)
	u, _ := url.Parse("https://example.com/a")

	l := New(1)
	ctx := context.Background()
	assert.NoError(l.Limit(ctx, u))

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(l.Limit(cctx, u))
}
