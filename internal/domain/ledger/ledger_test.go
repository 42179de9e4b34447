package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldmart/checkout/internal/domain/order"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testOrder(id string, total string, status order.Status, createdAt time.Time) order.Order {
	return order.Order{
		ID:        id,
		Total:     money(total),
		Status:    status,
		CreatedAt: createdAt,
	}
}

func TestReconstructSaleThenCancellation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	orders := []order.Order{
		testOrder("o-sale", "100", order.StatusDelivered, now.Add(-2*time.Hour)),
		testOrder("o-cancel", "50", order.StatusCancelled, now.Add(-1*time.Hour)),
	}

	entries := Reconstruct(money("500"), orders, now)
	require.Len(t, entries, 3)

	sale := entries[0]
	assert.Equal(t, 0, sale.Seq)
	assert.Equal(t, EventSale, sale.Type)
	assert.Equal(t, "o-sale", sale.OrderID)
	assert.True(t, sale.Delta.Equal(money("100")), "delta %s", sale.Delta)
	assert.True(t, sale.Balance.Equal(money("550")), "balance %s", sale.Balance)

	cancel := entries[1]
	assert.Equal(t, 1, cancel.Seq)
	assert.Equal(t, EventCancellation, cancel.Type)
	assert.Equal(t, "o-cancel", cancel.OrderID)
	assert.True(t, cancel.Delta.Equal(money("-50")))
	assert.True(t, cancel.Balance.Equal(money("500")))

	head := entries[2]
	assert.Equal(t, EventCurrent, head.Type)
	assert.Equal(t, now, head.At)
	assert.True(t, head.Delta.IsZero())
	assert.True(t, head.Balance.Equal(money("500")))
}

func TestReconstructSkipsPendingPayment(t *testing.T) {
	now := time.Now()
	orders := []order.Order{
		testOrder("o-pending", "75", order.StatusPendingPayment, now.Add(-3*time.Hour)),
		testOrder("o-paid", "30", order.StatusPaid, now.Add(-2*time.Hour)),
		testOrder("o-shipped", "45", order.StatusShipped, now.Add(-1*time.Hour)),
	}

	entries := Reconstruct(money("75"), orders, now)
	require.Len(t, entries, 3)

	for _, e := range entries {
		assert.NotEqual(t, "o-pending", e.OrderID)
	}
	assert.Equal(t, EventSale, entries[0].Type)
	assert.Equal(t, EventSale, entries[1].Type)
	assert.Equal(t, EventCurrent, entries[2].Type)
}

func TestReconstructNoOrders(t *testing.T) {
	now := time.Now()

	entries := Reconstruct(money("0"), nil, now)
	require.Len(t, entries, 1)
	assert.Equal(t, EventCurrent, entries[0].Type)
	assert.True(t, entries[0].Balance.IsZero())
	assert.Equal(t, 0, entries[0].Seq)
}

func TestReconstructDoesNotClamp(t *testing.T) {
	// An order set inconsistent with the reported total (e.g. filtered
	// history) can push the inferred starting balance below zero. That is a
	// valid artifact and must be kept as-is.
	now := time.Now()
	orders := []order.Order{
		testOrder("o1", "100", order.StatusPaid, now.Add(-time.Hour)),
	}

	entries := Reconstruct(money("40"), orders, now)
	require.Len(t, entries, 2)

	start := entries[0].Balance.Sub(entries[0].Delta)
	assert.True(t, start.Equal(money("-60")), "start %s", start)
	assert.True(t, Replay(start, entries).Equal(money("40")))
}

func TestReconstructReplayInvariant(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	orders := []order.Order{
		testOrder("o1", "19.99", order.StatusDelivered, now.Add(-96*time.Hour)),
		testOrder("o2", "250", order.StatusCancelled, now.Add(-72*time.Hour)),
		testOrder("o3", "42.50", order.StatusPendingPayment, now.Add(-48*time.Hour)),
		testOrder("o4", "101.25", order.StatusShipped, now.Add(-24*time.Hour)),
		testOrder("o5", "7", order.StatusPaid, now.Add(-1*time.Hour)),
		testOrder("o6", "13.13", order.StatusCancelled, now.Add(-30*time.Minute)),
	}
	asOf := money("128.24") // 19.99 + 101.25 + 7

	entries := Reconstruct(asOf, orders, now)
	require.NotEmpty(t, entries)

	first := entries[0]
	start := first.Balance.Sub(first.Delta)
	assert.True(t, Replay(start, entries).Equal(asOf),
		"replay from %s gives %s, want %s", start, Replay(start, entries), asOf)

	// Each entry's balance equals the previous balance plus its own delta.
	for i := 1; i < len(entries); i++ {
		want := entries[i-1].Balance.Add(entries[i].Delta)
		assert.True(t, entries[i].Balance.Equal(want),
			"entry %d balance %s, want %s", i, entries[i].Balance, want)
	}
}

func TestReconstructOrdersChronologically(t *testing.T) {
	now := time.Now()
	orders := []order.Order{
		testOrder("newest", "10", order.StatusPaid, now.Add(-time.Minute)),
		testOrder("oldest", "20", order.StatusPaid, now.Add(-time.Hour)),
		testOrder("middle", "30", order.StatusCancelled, now.Add(-30*time.Minute)),
	}

	entries := Reconstruct(money("30"), orders, now)
	require.Len(t, entries, 4)

	assert.Equal(t, "oldest", entries[0].OrderID)
	assert.Equal(t, "middle", entries[1].OrderID)
	assert.Equal(t, "newest", entries[2].OrderID)
	assert.Equal(t, EventCurrent, entries[3].Type)
	for i, e := range entries {
		assert.Equal(t, i, e.Seq)
	}
}

func TestReconstructLeavesInputUntouched(t *testing.T) {
	now := time.Now()
	orders := []order.Order{
		testOrder("a", "10", order.StatusPaid, now.Add(-time.Minute)),
		testOrder("b", "20", order.StatusPaid, now.Add(-time.Hour)),
	}

	Reconstruct(money("30"), orders, now)

	assert.Equal(t, "a", orders[0].ID)
	assert.Equal(t, "b", orders[1].ID)
}

func TestSeriesFoldsRecordedEvents(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: 1, OrderID: "o1", Type: EventSale, Amount: money("100"), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 2, OrderID: "o2", Type: EventSale, Amount: money("40"), CreatedAt: now.Add(-90 * time.Minute)},
		{ID: 3, OrderID: "o2", Type: EventCancellation, Amount: money("40"), CreatedAt: now.Add(-time.Hour)},
	}

	entries := Series(events, now)
	require.Len(t, entries, 4)

	assert.True(t, entries[0].Balance.Equal(money("100")))
	assert.True(t, entries[1].Balance.Equal(money("140")))
	assert.True(t, entries[2].Balance.Equal(money("100")))
	assert.True(t, entries[2].Delta.Equal(money("-40")))

	head := entries[3]
	assert.Equal(t, EventCurrent, head.Type)
	assert.True(t, head.Balance.Equal(money("100")))
	assert.Equal(t, now, head.At)
}

func TestSeriesEmpty(t *testing.T) {
	now := time.Now()
	entries := Series(nil, now)
	require.Len(t, entries, 1)
	assert.Equal(t, EventCurrent, entries[0].Type)
	assert.True(t, entries[0].Balance.IsZero())
}
