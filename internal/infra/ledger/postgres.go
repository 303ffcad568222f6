package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

// PostgresJournal persists analysis outcomes with pgx.
//
// Expected schema:
//
//	CREATE TABLE analyses (
//	    id            UUID PRIMARY KEY,
//	    checkout_id   TEXT NOT NULL,
//	    order_id      TEXT NOT NULL DEFAULT '',
//	    status        TEXT NOT NULL,
//	    detail        TEXT NOT NULL DEFAULT '',
//	    refunded      BOOLEAN NOT NULL DEFAULT FALSE,
//	    refund_failed BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresJournal struct {
	pool *pgxpool.Pool
}

// NewPostgresJournal constructs the journal.
func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

// Record inserts one outcome row.
func (j *PostgresJournal) Record(ctx context.Context, entry stylist.JournalEntry) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO analyses (id, checkout_id, order_id, status, detail, refunded, refund_failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.CheckoutID, entry.OrderID, entry.Status, entry.Detail, entry.Refunded, entry.RefundFailed, entry.CreatedAt)
	return err
}

var _ stylist.Journal = (*PostgresJournal)(nil)
