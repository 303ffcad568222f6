package ledger

import (
	"context"
	"sync"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

// MemoryJournal keeps entries in process memory. Used when no DSN is
// configured and by tests.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []stylist.JournalEntry
}

// NewMemoryJournal constructs an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Record appends the entry.
func (j *MemoryJournal) Record(_ context.Context, entry stylist.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (j *MemoryJournal) Entries() []stylist.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]stylist.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

var _ stylist.Journal = (*MemoryJournal)(nil)
