package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/veldmart/checkout/internal/domain/ledger"
)

func encodeLedgerEntries(entries []ledger.Entry) *jx.Encoder {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, entry := range entries {
			e.Obj(func(e *jx.Encoder) {
				e.Field("seq", func(e *jx.Encoder) { e.Int(entry.Seq) })
				e.Field("at", func(e *jx.Encoder) { e.Str(entry.At.Format(timeLayout)) })
				e.Field("balance", func(e *jx.Encoder) { e.Str(entry.Balance.StringFixed(2)) })
				e.Field("delta", func(e *jx.Encoder) { e.Str(entry.Delta.StringFixed(2)) })
				e.Field("type", func(e *jx.Encoder) { e.Str(string(entry.Type)) })
				if entry.OrderID != "" {
					e.Field("order_id", func(e *jx.Encoder) { e.Str(entry.OrderID) })
				}
			})
		}
	})
	return &e
}

// Ledger reconstructs the running-balance series from the realized revenue
// total and the full order history. This is the compatibility path for data
// predating event recording; entries are derived fresh on every request.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	total, orders, err := h.orders.LedgerSnapshot(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	entries := ledger.Reconstruct(total, orders, time.Now().UTC())
	writeJSON(w, http.StatusOK, encodeLedgerEntries(entries))
}

// LedgerEvents serves the recorded append-only event series.
func (h *Handler) LedgerEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.ledgerEvents.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	entries := ledger.Series(events, time.Now().UTC())
	writeJSON(w, http.StatusOK, encodeLedgerEntries(entries))
}
