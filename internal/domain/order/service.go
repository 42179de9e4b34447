package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veldmart/checkout/internal/domain/cart"
)

// Sentinel errors for order building and lookup.
var (
	ErrEmptyCart = errors.New("cart has no items")
	ErrNoAddress = cart.ErrNoAddress
	ErrNotFound  = errors.New("order not found")
)

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// BuildRequest holds the input for building an order from a cart snapshot.
type BuildRequest struct {
	CustomerID string
	// SessionKey identifies the in-flight checkout attempt. Two builds with
	// the same key yield one persisted order.
	SessionKey      string
	Items           []cart.Item
	ShippingAddress string
	PaymentMethod   PaymentMethod
}

// Service builds immutable orders from validated cart snapshots.
type Service struct {
	orders   Repository
	currency string
}

// NewService creates an order builder persisting through repo. Orders are
// priced in currency.
func NewService(repo Repository, currency string) *Service {
	return &Service{orders: repo, currency: currency}
}

// Create validates the cart lines and address, computes the total from the
// snapshotted unit prices, and persists the order before returning. The total
// is always computed server-side; a client-supplied total is never consulted.
//
// Create itself is not idempotent: duplicate submissions are collapsed by the
// repository using req.SessionKey, and the result reports whether this call
// created the order.
func (s *Service) Create(ctx context.Context, req BuildRequest) (*CreateResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if req.ShippingAddress == "" {
		return nil, ErrNoAddress
	}

	items := make([]Item, len(req.Items))
	total := decimal.Zero
	for i, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		items[i] = Item{
			ProductID: line.ProductID,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
		total = total.Add(items[i].Subtotal())
	}
	total = total.Round(2)

	o := &Order{
		ID:              uuid.New().String(),
		CustomerID:      req.CustomerID,
		Items:           items,
		Total:           total,
		Currency:        s.currency,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPendingPayment,
	}

	res, err := s.orders.Create(ctx, o, req.SessionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return res, nil
}
