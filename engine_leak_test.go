package warpcore

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks that no goroutine spawned by a test (bypassRxPump,
// ossockRxPump, or a test's own background pump) outlives the test that
// started it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
