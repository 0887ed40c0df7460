// Package testutil gates the slow corruption-torture tests behind a flag.
package testutil

import (
	"flag"
	"testing"
)

var runTorture = flag.Bool("torture", false, "run the long corruption torture tests")

// RequireTorture skips the test unless -torture was passed.
func RequireTorture(t *testing.T) {
	t.Helper()
	if !*runTorture {
		t.Skip("skipping torture test (use -torture to enable)")
	}
}
