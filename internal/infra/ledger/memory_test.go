package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

func TestMemoryJournalRecordsInOrder(t *testing.T) {
	journal := NewMemoryJournal()

	first := stylist.JournalEntry{
		ID:         "analysis-1",
		CheckoutID: "chk_1",
		OrderID:    "ord_1",
		Status:     stylist.JournalSucceeded,
		CreatedAt:  time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
	second := stylist.JournalEntry{
		ID:           "analysis-2",
		CheckoutID:   "chk_2",
		Status:       stylist.JournalFailed,
		Detail:       "image edit failed",
		RefundFailed: true,
	}

	require.NoError(t, journal.Record(context.Background(), first))
	require.NoError(t, journal.Record(context.Background(), second))

	entries := journal.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, first, entries[0])
	require.Equal(t, second, entries[1])
}

func TestMemoryJournalEntriesReturnsCopy(t *testing.T) {
	journal := NewMemoryJournal()
	require.NoError(t, journal.Record(context.Background(), stylist.JournalEntry{ID: "analysis-1"}))

	entries := journal.Entries()
	entries[0].ID = "mutated"

	require.Equal(t, "analysis-1", journal.Entries()[0].ID)
}
