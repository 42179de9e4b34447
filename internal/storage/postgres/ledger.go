package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veldmart/checkout/internal/domain/ledger"
)

var _ ledger.EventRepository = (*LedgerEventRepository)(nil)

// LedgerEventRepository reads the append-only ledger event log. Events are
// written by OrderRepository.UpdateStatus inside the transition transaction.
type LedgerEventRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerEventRepository returns a LedgerEventRepository using the pool.
func NewLedgerEventRepository(pool *pgxpool.Pool) *LedgerEventRepository {
	return &LedgerEventRepository{pool: pool}
}

// List returns all recorded events, oldest first.
func (r *LedgerEventRepository) List(ctx context.Context) ([]ledger.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, event_type, amount, created_at
		FROM ledger_events ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query ledger events")
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			ev ledger.Event
			t  string
		)
		if err := rows.Scan(&ev.ID, &ev.OrderID, &t, &ev.Amount, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan ledger event")
		}
		ev.Type = ledger.EventType(t)
		events = append(events, ev)
	}
	return events, rows.Err()
}
