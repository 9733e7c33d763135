package file

import (
	"context"
	"testing"
)

// testContext returns a context canceled when the test ends, standing in
// for t.Context (which needs Go 1.24; this module builds with Go 1.21).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
