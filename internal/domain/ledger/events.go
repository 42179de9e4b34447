package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event is a persisted, append-only record of one revenue-affecting order
// transition. Events are written in the same transaction as the transition
// itself, so the recorded series needs no backward inference.
type Event struct {
	ID        int64
	OrderID   string
	Type      EventType
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// EventRepository reads the recorded event log chronologically.
type EventRepository interface {
	List(ctx context.Context) ([]Event, error)
}

// Series folds recorded events into the same entry shape the reconstruction
// produces, walking forward from a zero balance and closing with a current
// snapshot at now.
func Series(events []Event, now time.Time) []Entry {
	entries := make([]Entry, 0, len(events)+1)
	balance := decimal.Zero
	for i, ev := range events {
		delta := ev.Amount
		if ev.Type == EventCancellation {
			delta = ev.Amount.Neg()
		}
		balance = balance.Add(delta)
		entries = append(entries, Entry{
			Seq:     i,
			At:      ev.CreatedAt,
			Balance: balance,
			Delta:   delta,
			Type:    ev.Type,
			OrderID: ev.OrderID,
		})
	}
	entries = append(entries, Entry{
		Seq:     len(entries),
		At:      now,
		Balance: balance,
		Delta:   decimal.Zero,
		Type:    EventCurrent,
	})
	return entries
}
