package checkoutguard

import (
	"context"
	"sync"
	"time"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

// MemoryGuard tracks consumed checkout ids in process memory. Used when no
// Valkey address is configured and by tests.
type MemoryGuard struct {
	mu       sync.Mutex
	consumed map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryGuard constructs the guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		consumed: make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Consume marks the id spent; false when it already was.
func (g *MemoryGuard) Consume(_ context.Context, checkoutID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for id, at := range g.consumed {
		if now.Sub(at) > g.ttl {
			delete(g.consumed, id)
		}
	}
	if _, ok := g.consumed[checkoutID]; ok {
		return false, nil
	}
	g.consumed[checkoutID] = now
	return true, nil
}

// Release forgets the id so it may be consumed again.
func (g *MemoryGuard) Release(_ context.Context, checkoutID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.consumed, checkoutID)
	return nil
}

var _ stylist.CheckoutGuard = (*MemoryGuard)(nil)
