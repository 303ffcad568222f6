package archive

import (
	"context"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

// NoopArchive discards artifacts. Used when archiving is disabled.
type NoopArchive struct{}

// NewNoopArchive constructs the no-op adapter.
func NewNoopArchive() *NoopArchive {
	return &NoopArchive{}
}

// Store does nothing.
func (*NoopArchive) Store(context.Context, string, []byte, string) error {
	return nil
}

var _ stylist.ImageArchive = (*NoopArchive)(nil)
