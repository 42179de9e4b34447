package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	// MethodCOD is cash on delivery: no external processor is involved.
	MethodCOD PaymentMethod = "cod"
	// MethodGateway pays through the external payment processor.
	MethodGateway PaymentMethod = "gateway"
)

// Item is a single order line. UnitPrice is the snapshot taken at checkout
// time; the order total is derived from these snapshots only.
type Item struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns UnitPrice multiplied by Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the durable result of a checkout. Items, Total, and
// ShippingAddress are immutable after creation; only Status (and the
// payment-failure marker) changes afterwards.
type Order struct {
	ID              string
	CustomerID      string
	Items           []Item
	Total           decimal.Decimal
	Currency        string
	ShippingAddress string
	PaymentMethod   PaymentMethod
	Status          Status
	PaymentFailedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListFilter narrows and orders List queries.
type ListFilter struct {
	CustomerID string
	Status     Status
	// Ascending sorts by creation time oldest-first when true,
	// newest-first otherwise.
	Ascending bool
}

// CreateResult reports whether Create persisted a new order or collapsed the
// call onto an order previously created for the same checkout session.
type CreateResult struct {
	Order   *Order
	Created bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order together with its checkout-attempt record in
	// one transaction. When sessionKey already has an order, the existing
	// order is returned with Created=false and nothing is written.
	Create(ctx context.Context, o *Order, sessionKey string) (*CreateResult, error)

	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)

	// UpdateStatus applies from→to with a compare-and-set on the current
	// status. A revenue-affecting transition appends the matching ledger
	// event and an outbox event in the same transaction. Returns
	// ErrStatusConflict when the stored status no longer equals from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error

	// MarkPaymentFailed records that the client abandoned the gateway payment
	// for this order. The status is left untouched.
	MarkPaymentFailed(ctx context.Context, id string, at time.Time) error

	// LedgerSnapshot returns the realized revenue total (orders in paid,
	// shipped, or delivered) together with the full order history, both read
	// from one consistent snapshot. Reading them separately lets a
	// concurrently committed transition skew the reconstruction: the order
	// appears in one read but not the other.
	LedgerSnapshot(ctx context.Context) (decimal.Decimal, []Order, error)

	// ExpireStalePending cancels gateway orders still pending_payment whose
	// creation (or recorded payment failure) is older than cutoff, returning
	// the ids of orders it cancelled.
	ExpireStalePending(ctx context.Context, cutoff time.Time) ([]string, error)
}
