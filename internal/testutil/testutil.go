// Package testutil holds fakes and flags shared by the package tests.
package testutil

import (
	"flag"
	"testing"
)

var RunLong = flag.Bool("long", false, "run stress tests with many concurrent builds and upserts")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping stress test (use -long to enable)")
	}
}

// Scale returns long when -long is set and short otherwise.
func Scale(short, long int) int {
	if *RunLong {
		return long
	}
	return short
}
