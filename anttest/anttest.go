// Package anttest implements checker test helpers.
//
// Usage:
//
//   func TestChecker(t *testing.T) {
//     var assert = require.New(t)
//     var d = anttest.Check(t, session, "https://example.com")
//
//     assert.Equal(linkguard.ResultValid, d.Result)
//   }
//
package anttest

import (
	"context"
	"testing"

	"github.com/go-linkguard/linkguard"
)

// Check checks rawurl using session and returns the resulting descriptor.
//
// If the URL cannot be parsed or the check itself fails to complete
// (as opposed to completing with an invalid result, which is a normal
// outcome), the method calls `t.Fatalf` with the error.
func Check(t testing.TB, session *linkguard.Session, rawurl string) *linkguard.Descriptor {
	t.Helper()

	d, err := linkguard.NewDescriptor(rawurl, 0, "")
	if err != nil {
		t.Fatalf("anttest: %s", err)
	}

	if err := session.Check(context.Background(), d); err != nil {
		t.Fatalf("anttest: %s", err)
	}

	return d
}
