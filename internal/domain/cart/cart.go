// Package cart defines the read-only contracts for the external cart and
// address-book collaborators. The checkout core never mutates either.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNoAddress indicates no shipping address could be resolved for the
// customer.
var ErrNoAddress = errors.New("no shipping address resolved")

// Item is a single cart line. UnitPrice is the price snapshot the order will
// be built from; it is never re-read from the live catalog afterwards.
type Item struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Reader provides the customer's current cart snapshot.
type Reader interface {
	Snapshot(ctx context.Context, customerID string) ([]Item, error)
}

// AddressResolver resolves the customer's shipping address to a denormalized
// string. Implementations return ErrNoAddress when nothing can be resolved.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, customerID string) (string, error)
}
