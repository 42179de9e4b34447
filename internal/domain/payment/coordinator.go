package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/veldmart/checkout/internal/domain/cart"
	"github.com/veldmart/checkout/internal/domain/order"
)

// CheckoutRequest starts (or retries) one checkout attempt.
type CheckoutRequest struct {
	CustomerID string
	// SessionKey is the idempotency guard key for this attempt. Retries with
	// the same key reuse the already-created order.
	SessionKey string
	Method     order.PaymentMethod
}

// CheckoutResult is the outcome of a successful Checkout call. Intent is set
// only on the gateway path.
type CheckoutResult struct {
	Order *order.Order
	// Reused is true when the idempotency guard collapsed this call onto an
	// order created by an earlier submission of the same session.
	Reused bool
	Intent *Intent
}

// Coordinator orchestrates the payment sub-protocol around the order builder.
type Coordinator struct {
	carts     cart.Reader
	addresses cart.AddressResolver
	builder   *order.Service
	orders    order.Repository
	gateway   Gateway
}

// NewCoordinator wires the coordinator with its collaborators.
func NewCoordinator(
	carts cart.Reader,
	addresses cart.AddressResolver,
	builder *order.Service,
	orders order.Repository,
	gateway Gateway,
) *Coordinator {
	return &Coordinator{
		carts:     carts,
		addresses: addresses,
		builder:   builder,
		orders:    orders,
		gateway:   gateway,
	}
}

// Checkout converts the customer's cart into a persisted order and, on the
// gateway path, opens a payment intent for it.
//
// COD orders stay pending_payment flagged COD and are immediately eligible
// for fulfillment; no external call is made. On the gateway path an intent
// creation failure is returned as ErrGatewayUnavailable with the order
// already persisted in pending_payment, so the caller may retry the same
// session and reuse it.
func (c *Coordinator) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	items, err := c.carts.Snapshot(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "cart snapshot")
	}

	addr, err := c.addresses.ResolveAddress(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve address")
	}

	created, err := c.builder.Create(ctx, order.BuildRequest{
		CustomerID:      req.CustomerID,
		SessionKey:      req.SessionKey,
		Items:           items,
		ShippingAddress: addr,
		PaymentMethod:   req.Method,
	})
	if err != nil {
		return nil, err
	}
	o := created.Order

	res := &CheckoutResult{Order: o, Reused: !created.Created}
	if !created.Created {
		zctx.From(ctx).Info("Checkout collapsed onto existing order",
			zap.String("order_id", o.ID),
			zap.String("session_key", req.SessionKey),
		)
	}

	if req.Method != order.MethodGateway {
		return res, nil
	}

	// A retried session may hit an order that already left pending_payment
	// (e.g. verified between the two submissions). Never reopen payment.
	if o.Status != order.StatusPendingPayment {
		return res, nil
	}

	intent, err := c.gateway.CreateIntent(ctx, o.ID, o.Total, o.Currency)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	res.Intent = intent
	return res, nil
}

// Confirm finalizes a gateway payment the client reports as completed. The
// signature is verified before any state changes: a mismatch returns
// ErrSignatureMismatch and leaves the order pending_payment for retry.
func (c *Coordinator) Confirm(ctx context.Context, orderID, paymentID, signature string) (*order.Order, error) {
	if err := c.gateway.VerifySignature(orderID, paymentID, signature); err != nil {
		zctx.From(ctx).Warn("Payment verification rejected",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return nil, err
	}

	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	if o.Status.Realized() {
		// Duplicate completion callback; the payment already landed.
		return o, nil
	}
	if err := order.CheckTransition(o.Status, order.StatusPaid); err != nil {
		return nil, err
	}
	if err := c.orders.UpdateStatus(ctx, o.ID, o.Status, order.StatusPaid); err != nil {
		return nil, errors.Wrap(err, "mark paid")
	}

	o.Status = order.StatusPaid
	return o, nil
}

// Fail records that the client abandoned the gateway payment UI. The order
// remains pending_payment so the customer can retry; the recorded timestamp
// makes it eligible for the stale-payment sweep. The returned order carries
// the status as stored, so a late abandonment report on an already settled
// order surfaces its real state.
func (c *Coordinator) Fail(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status != order.StatusPendingPayment {
		// Nothing in flight to abandon.
		return o, nil
	}
	if err := c.orders.MarkPaymentFailed(ctx, o.ID, time.Now().UTC()); err != nil {
		return nil, errors.Wrap(err, "mark payment failed")
	}
	zctx.From(ctx).Info("Gateway payment abandoned",
		zap.String("order_id", orderID),
	)
	return o, nil
}
