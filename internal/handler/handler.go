// Package handler exposes the checkout core over HTTP.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/veldmart/checkout/internal/domain/ledger"
	"github.com/veldmart/checkout/internal/domain/order"
	"github.com/veldmart/checkout/internal/domain/payment"
)

// Notifier pushes order status changes to live subscribers.
type Notifier interface {
	Notify(orderID, status string)
}

// Handler serves the checkout API, delegating business logic to the payment
// coordinator and the order repository.
type Handler struct {
	coordinator  *payment.Coordinator
	orders       order.Repository
	ledgerEvents ledger.EventRepository
	notifier     Notifier
}

// NewHandler constructs a Handler with the required domain dependencies.
// notifier may be nil.
func NewHandler(
	coordinator *payment.Coordinator,
	orders order.Repository,
	ledgerEvents ledger.EventRepository,
	notifier Notifier,
) *Handler {
	return &Handler{
		coordinator:  coordinator,
		orders:       orders,
		ledgerEvents: ledgerEvents,
		notifier:     notifier,
	}
}

// Register mounts all API routes on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("POST /api/payments/verify", h.VerifyPayment)
	mux.HandleFunc("POST /api/payments/fail", h.FailPayment)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", h.UpdateOrderStatus)
	mux.HandleFunc("GET /api/ledger", h.Ledger)
	mux.HandleFunc("GET /api/ledger/events", h.LedgerEvents)
}

func (h *Handler) notify(orderID string, status order.Status) {
	if h.notifier != nil {
		h.notifier.Notify(orderID, string(status))
	}
}

// writeJSON writes an encoded jx payload with the given status code.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the canonical {code, message} error body.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
	writeJSON(w, status, &e)
}

// respondError maps domain errors to HTTP responses. Unexpected errors are
// logged and surfaced as an opaque 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr *order.InvalidQuantityError
		itErr *order.InvalidTransitionError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart has no items")
	case errors.Is(err, order.ErrNoAddress):
		writeError(w, http.StatusBadRequest, "no shipping address resolved")
	case errors.As(err, &iqErr):
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &itErr):
		writeError(w, http.StatusConflict, itErr.Error())
	case errors.Is(err, order.ErrStatusConflict):
		writeError(w, http.StatusConflict, "order status changed concurrently, reload and retry")
	case errors.Is(err, payment.ErrSignatureMismatch):
		writeError(w, http.StatusPaymentRequired, "payment signature mismatch")
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "payment processor unavailable, try again")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// encodeOrder writes the order representation onto e.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("shipping_address", func(e *jx.Encoder) { e.Str(o.ShippingAddress) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(timeLayout)) })
	})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
