package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/veldmart/checkout/internal/domain/order"
)

// GetOrder returns one order by id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

// ListOrders returns orders filtered by customer_id and status query
// parameters, sorted by creation time (sort=asc|desc, newest first by
// default).
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.ListFilter{
		CustomerID: q.Get("customer_id"),
		Ascending:  q.Get("sort") == "asc",
	}
	if s := q.Get("status"); s != "" {
		st, err := order.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}

	list, err := h.orders.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for i := range list {
			encodeOrder(e, &list[i])
		}
	})
	writeJSON(w, http.StatusOK, &e)
}

// UpdateOrderStatus applies an administrative status transition. Invalid
// moves are rejected with 409 and the stored status is left unchanged.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var rawStatus string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "status" {
			v, err := d.Str()
			rawStatus = v
			return err
		}
		return d.Skip()
	}); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	target, err := order.ParseStatus(rawStatus)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := order.CheckTransition(o.Status, target); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.orders.UpdateStatus(r.Context(), id, o.Status, target); err != nil {
		respondError(w, r, errors.Wrapf(err, "update order %q status", id))
		return
	}
	h.notify(id, target)

	o.Status = target
	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}
