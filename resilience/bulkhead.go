package resilience

import (
	"context"
	"errors"
	"sync"
)

// ErrBulkheadFull is returned when no slot frees up before the context ends.
var ErrBulkheadFull = errors.New("bulkhead is full")

// Bulkhead caps concurrent calls into one dependency so a slow dependency
// cannot absorb the whole delivery batch.
type Bulkhead struct {
	name string
	sem  chan struct{}
}

// NewBulkhead creates a bulkhead admitting maxConcurrent calls (default 10).
func NewBulkhead(name string, maxConcurrent int) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Bulkhead{name: name, sem: make(chan struct{}, maxConcurrent)}
}

// Execute runs fn once a slot is available, or fails when ctx ends first.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Join(ErrBulkheadFull, ctx.Err())
	}
	defer func() { <-b.sem }()
	return fn()
}

// Name returns the dependency the bulkhead guards.
func (b *Bulkhead) Name() string { return b.name }

// InUse returns the number of slots currently taken.
func (b *Bulkhead) InUse() int { return len(b.sem) }

// Capacity returns the maximum concurrent calls allowed.
func (b *Bulkhead) Capacity() int { return cap(b.sem) }

// Bulkheads lazily creates one bulkhead per dependency name.
type Bulkheads struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*Bulkhead
}

// NewBulkheads creates a set of bulkheads sharing the same capacity.
func NewBulkheads(capacity int) *Bulkheads {
	return &Bulkheads{capacity: capacity, items: make(map[string]*Bulkhead)}
}

// Get returns the bulkhead for name.
func (s *Bulkheads) Get(name string) *Bulkhead {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.items[name]
	if !ok {
		b = NewBulkhead(name, s.capacity)
		s.items[name] = b
	}
	return b
}
