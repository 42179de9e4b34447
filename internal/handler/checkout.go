package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veldmart/checkout/internal/domain/order"
	"github.com/veldmart/checkout/internal/domain/payment"
)

// sessionKeyHeader carries the checkout session key used as the idempotency
// guard. Absent the header, every submission is its own session.
const sessionKeyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

type checkoutRequest struct {
	CustomerID    string
	PaymentMethod string
}

func decodeCheckoutRequest(data []byte) (checkoutRequest, error) {
	var req checkoutRequest
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customer_id":
			v, err := d.Str()
			req.CustomerID = v
			return err
		case "payment_method":
			v, err := d.Str()
			req.PaymentMethod = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, errors.Wrap(err, "decode checkout request")
	}
	return req, nil
}

// Checkout converts the customer's cart into a persisted order. Retries
// carrying the same Idempotency-Key collapse onto the first order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	req, err := decodeCheckoutRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id required")
		return
	}

	var method order.PaymentMethod
	switch req.PaymentMethod {
	case string(order.MethodCOD):
		method = order.MethodCOD
	case string(order.MethodGateway):
		method = order.MethodGateway
	default:
		writeError(w, http.StatusBadRequest, "payment_method must be cod or gateway")
		return
	}

	sessionKey := r.Header.Get(sessionKeyHeader)
	if sessionKey == "" {
		sessionKey = uuid.New().String()
	}

	result, err := h.coordinator.Checkout(r.Context(), payment.CheckoutRequest{
		CustomerID: req.CustomerID,
		SessionKey: sessionKey,
		Method:     method,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("checkout.order_id", result.Order.ID),
		attribute.Bool("checkout.reused", result.Reused),
	)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, result.Order) })
		e.Field("reused", func(e *jx.Encoder) { e.Bool(result.Reused) })
		if result.Intent != nil {
			e.Field("payment_intent", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(result.Intent.ID) })
					e.Field("amount", func(e *jx.Encoder) { e.Str(result.Intent.Amount.StringFixed(2)) })
					e.Field("currency", func(e *jx.Encoder) { e.Str(result.Intent.Currency) })
				})
			})
		}
	})

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, &e)
}
