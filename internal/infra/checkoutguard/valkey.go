package checkoutguard

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

// ValkeyGuard tracks consumed checkout ids in a Valkey-compatible store so
// replays are rejected across instances.
type ValkeyGuard struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyGuard constructs the guard.
func NewValkeyGuard(client valkey.Client, prefix string, ttl time.Duration) *ValkeyGuard {
	if prefix == "" {
		prefix = "checkout"
	}
	return &ValkeyGuard{client: client, prefix: prefix, ttl: ttl}
}

// Consume marks the id spent with SET NX; false when the key already exists.
func (g *ValkeyGuard) Consume(ctx context.Context, checkoutID string) (bool, error) {
	cmd := g.client.B().Set().Key(g.key(checkoutID)).Value("1").Nx().Ex(g.ttl).Build()
	resp := g.client.Do(ctx, cmd)
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			// SET NX answers nil when the key exists.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release deletes the key so the id may be consumed again.
func (g *ValkeyGuard) Release(ctx context.Context, checkoutID string) error {
	return g.client.Do(ctx, g.client.B().Del().Key(g.key(checkoutID)).Build()).Error()
}

func (g *ValkeyGuard) key(checkoutID string) string {
	return g.prefix + ":consumed:" + checkoutID
}

var _ stylist.CheckoutGuard = (*ValkeyGuard)(nil)
