package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

type verifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

func decodeVerifyRequest(data []byte) (verifyRequest, error) {
	var req verifyRequest
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "order_id":
			v, err := d.Str()
			req.OrderID = v
			return err
		case "payment_id":
			v, err := d.Str()
			req.PaymentID = v
			return err
		case "signature":
			v, err := d.Str()
			req.Signature = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, errors.Wrap(err, "decode verify request")
	}
	return req, nil
}

// VerifyPayment finalizes a gateway payment the client reports as completed.
// A tampered signature never moves the order to paid.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	req, err := decodeVerifyRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "order_id, payment_id, and signature required")
		return
	}

	o, err := h.coordinator.Confirm(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.notify(o.ID, o.Status)

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

// FailPayment records that the client abandoned the gateway payment UI, so
// the order is explicitly resolved instead of lingering forever.
func (h *Handler) FailPayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var orderID string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "order_id" {
			v, err := d.Str()
			orderID = v
			return err
		}
		return d.Skip()
	}); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id required")
		return
	}

	o, err := h.coordinator.Fail(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	})
	writeJSON(w, http.StatusAccepted, &e)
}
