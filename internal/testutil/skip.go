// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if NITRIX_TEST_SKIP_NETWORK is set. Tests
// that start a loopback HTTP server use it, since some sandboxes forbid
// listening sockets.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("NITRIX_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: NITRIX_TEST_SKIP_NETWORK is set")
	}
}
