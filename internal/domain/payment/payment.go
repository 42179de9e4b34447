// Package payment drives the per-checkout payment sub-protocol: building the
// order, opening a gateway intent, and folding the verification outcome back
// into the order status.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors surfaced to the checkout flow. The two gateway failures are
// deliberately distinct: an unreachable processor is retryable with the order
// untouched, while a signature mismatch is terminal for the attempt.
var (
	ErrGatewayUnavailable = errors.New("payment processor unavailable")
	ErrSignatureMismatch  = errors.New("payment signature mismatch")
)

// Intent is the transient handle for one in-flight gateway payment attempt.
// It is linked 1:1 to an order and never persisted: its outcome is folded
// into the order status.
type Intent struct {
	ID       string
	OrderID  string
	Amount   decimal.Decimal
	Currency string
}

// Gateway is the external payment processor contract.
type Gateway interface {
	// CreateIntent opens a payment intent scoped to the order's total.
	// Network or processor failures map to ErrGatewayUnavailable.
	CreateIntent(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (*Intent, error)

	// VerifySignature checks that a client-reported completion genuinely
	// originated from the processor, using its shared-secret scheme.
	// A forged or tampered signature maps to ErrSignatureMismatch.
	VerifySignature(orderID, paymentID, signature string) error
}
