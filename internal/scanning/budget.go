package scanning

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// SocketBudget caps how many outbound dials may be in flight across the
// whole process.
type SocketBudget struct {
	capacity  int
	semaphore chan struct{}
	inUse     atomic.Int64
	peak      atomic.Int64
	mu        sync.RWMutex
	closed    bool
}

// NewSocketBudget creates a budget with capacity slots.
func NewSocketBudget(capacity int) *SocketBudget {
	if capacity <= 0 {
		capacity = 1
	}
	return &SocketBudget{
		capacity:  capacity,
		semaphore: make(chan struct{}, capacity),
	}
}

// Acquire blocks until a slot is free or ctx ends.
func (b *SocketBudget) Acquire(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("socket budget is closed")
	}

	select {
	case b.semaphore <- struct{}{}:
		n := b.inUse.Add(1)
		for {
			peak := b.peak.Load()
			if n <= peak || b.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (b *SocketBudget) Release() {
	select {
	case <-b.semaphore:
		b.inUse.Add(-1)
	default:
	}
}

// InUse returns the number of held slots.
func (b *SocketBudget) InUse() int {
	return int(b.inUse.Load())
}

// Available returns the number of free slots.
func (b *SocketBudget) Available() int {
	return b.capacity - b.InUse()
}

// Peak returns the highest number of slots ever held at once.
func (b *SocketBudget) Peak() int {
	return int(b.peak.Load())
}

// Close rejects further Acquire calls.
func (b *SocketBudget) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Stats returns a snapshot for health output.
func (b *SocketBudget) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"capacity":  b.capacity,
		"in_use":    b.InUse(),
		"available": b.Available(),
		"peak":      b.Peak(),
		"closed":    b.closed,
	}
}
