package ratelimit

import (
	"strconv"
	"sync"
	"time"
)

type memoryWindow struct {
	index int64
	count int64
}

// MemoryLimiter is a locked per-process fixed-window counter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	maxKeys int
}

// NewMemoryLimiter creates a MemoryLimiter tracking at most maxKeys keys.
func NewMemoryLimiter(maxKeys int) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*memoryWindow),
		maxKeys: maxKeys,
	}
}

// Incr increments the counter of key in window index and returns the count.
// A key seen in a newer window starts over at 1. When the key table is full,
// entries from older windows are pruned; if that frees nothing the request is
// counted against a shared overflow bucket so the limit still holds.
func (m *MemoryLimiter) Incr(key string, index int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok {
		if m.maxKeys > 0 && len(m.windows) >= m.maxKeys {
			m.pruneLocked(index)
			if len(m.windows) >= m.maxKeys {
				key = overflowKey
				w = m.windows[key]
			}
		}
		if w == nil {
			w = &memoryWindow{index: index}
			m.windows[key] = w
		}
	}
	if w.index != index {
		w.index = index
		w.count = 0
	}
	w.count++
	return w.count
}

const overflowKey = "\x00overflow"

func (m *MemoryLimiter) pruneLocked(index int64) {
	for k, w := range m.windows {
		if w.index < index {
			delete(m.windows, k)
		}
	}
}

// Reset drops all counters.
func (m *MemoryLimiter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.windows)
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func windowIndex(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}

func windowEnd(index int64, window time.Duration) time.Time {
	return time.Unix(0, (index+1)*int64(window))
}

func formatIndex(index int64) string {
	return strconv.FormatInt(index, 10)
}
