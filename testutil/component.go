package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/resilience-core/component"
)

// StartComponent starts c and stops it when the test ends.
func StartComponent(t testing.TB, c component.Component) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start %s: %v", c.Name(), err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Stop(ctx); err != nil {
			t.Errorf("stop %s: %v", c.Name(), err)
		}
	})
}
