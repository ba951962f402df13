package ratelimit

import "testing"

func TestMemoryLimiterWindows(t *testing.T) {
	m := NewMemoryLimiter(10)
	if n := m.Incr("a", 1); n != 1 {
		t.Errorf("first Incr = %d, want 1", n)
	}
	if n := m.Incr("a", 1); n != 2 {
		t.Errorf("second Incr = %d, want 2", n)
	}
	if n := m.Incr("a", 2); n != 1 {
		t.Errorf("new window should restart at 1, got %d", n)
	}
}

func TestMemoryLimiterBoundsKeys(t *testing.T) {
	m := NewMemoryLimiter(2)
	m.Incr("a", 1)
	m.Incr("b", 1)

	// Table full with current-window keys: new keys share the overflow bucket.
	if n := m.Incr("c", 1); n != 1 {
		t.Errorf("overflow Incr = %d, want 1", n)
	}
	if n := m.Incr("d", 1); n != 2 {
		t.Errorf("overflow bucket should be shared, got %d", n)
	}
	if m.Len() > 3 {
		t.Errorf("tracked keys = %d, want <= 3", m.Len())
	}

	// A later window prunes stale keys.
	if n := m.Incr("e", 2); n != 1 {
		t.Errorf("Incr after prune = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("stale keys not pruned, Len = %d", m.Len())
	}
}
