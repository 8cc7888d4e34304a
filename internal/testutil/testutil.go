package testutil

import (
	"flag"
	"testing"

	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t testing.TB) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

func IsLongEnabled() bool {
	return *RunLong
}

// Owner returns a distinct non-zero owner for every b > 0.
func Owner(b byte) balance.Owner {
	var o balance.Owner
	o[31] = b
	return o
}
