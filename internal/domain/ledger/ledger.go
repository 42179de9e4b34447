// Package ledger derives a chronological running-balance series for
// reporting. The reconstruction path infers history from the current realized
// total and the order set alone; the recorded path reads the append-only
// ledger events written at transition time.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veldmart/checkout/internal/domain/order"
)

// EventType classifies a ledger entry.
type EventType string

const (
	// EventCurrent is the head snapshot of the series: the balance as of now.
	EventCurrent EventType = "current"
	// EventSale is revenue realized by an order reaching paid.
	EventSale EventType = "sale"
	// EventCancellation is revenue reversed by cancelling a counted order.
	EventCancellation EventType = "cancellation"
)

// Entry is one derived balance change. Balance is the running balance after
// this event chronologically; Delta is the signed change the event applied.
// Entries are produced fresh per request and never persisted.
type Entry struct {
	Seq     int
	At      time.Time
	Balance decimal.Decimal
	Delta   decimal.Decimal
	Type    EventType
	OrderID string
}

// Reconstruct derives the oldest→newest balance series from the current
// realized revenue total and the full order history, without a stored event
// log.
//
// Walking the orders newest→oldest from asOfTotal: a cancelled order's loss
// is undone moving into the past (balance grows, delta -amount), a counted
// order's gain is undone (balance shrinks, delta +amount), and
// pending_payment orders are skipped entirely since they never touched
// revenue.
// The inference assumes every cancelled order was counted before it was
// cancelled; the recorded event log (Series) has no such blind spot, which is
// why it is the preferred path for data written after event recording began.
//
// The balance before the first entry is first.Balance - first.Delta, and
// replaying every delta from there reproduces asOfTotal at the final
// (current) entry exactly. The balance is never clamped: transient negative
// excursions are valid artifacts of the estimation.
func Reconstruct(asOfTotal decimal.Decimal, orders []order.Order, now time.Time) []Entry {
	sorted := make([]order.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	// Emitted newest-first, reversed at the end for chronological display.
	entries := make([]Entry, 0, len(sorted)+1)
	entries = append(entries, Entry{
		At:      now,
		Balance: asOfTotal,
		Delta:   decimal.Zero,
		Type:    EventCurrent,
	})

	running := asOfTotal
	for _, o := range sorted {
		switch {
		case o.Status == order.StatusCancelled:
			entries = append(entries, Entry{
				At:      o.CreatedAt,
				Balance: running,
				Delta:   o.Total.Neg(),
				Type:    EventCancellation,
				OrderID: o.ID,
			})
			running = running.Add(o.Total)
		case o.Status.Realized():
			entries = append(entries, Entry{
				At:      o.CreatedAt,
				Balance: running,
				Delta:   o.Total,
				Type:    EventSale,
				OrderID: o.ID,
			})
			running = running.Sub(o.Total)
		default:
			// pending_payment: never counted, no entry.
		}
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	for i := range entries {
		entries[i].Seq = i
	}
	return entries
}

// Replay applies each entry's delta to start and returns the final balance.
// Reconstruct guarantees Replay(start, entries) == asOfTotal when start is
// the balance before the oldest entry.
func Replay(start decimal.Decimal, entries []Entry) decimal.Decimal {
	balance := start
	for _, e := range entries {
		balance = balance.Add(e.Delta)
	}
	return balance
}
