package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veldmart/checkout/internal/domain/cart"
)

var (
	_ cart.Reader          = (*CartRepository)(nil)
	_ cart.AddressResolver = (*CartRepository)(nil)
)

// CartRepository reads cart snapshots and shipping addresses written by the
// external cart/account surfaces. The checkout core never writes these rows.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Snapshot returns the customer's current cart lines with their stored price
// snapshots, oldest line first.
func (r *CartRepository) Snapshot(ctx context.Context, customerID string) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, unit_price, quantity
		FROM cart_items WHERE customer_id = $1 ORDER BY added_at ASC`, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	defer rows.Close()

	var items []cart.Item
	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ProductID, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, errors.Wrap(err, "scan cart item")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ResolveAddress returns the customer's denormalized shipping address, or
// cart.ErrNoAddress when none is on file.
func (r *CartRepository) ResolveAddress(ctx context.Context, customerID string) (string, error) {
	var addr string
	err := r.pool.QueryRow(ctx,
		`SELECT address FROM customer_addresses WHERE customer_id = $1`, customerID,
	).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", cart.ErrNoAddress
	}
	if err != nil {
		return "", errors.Wrap(err, "resolve address")
	}
	if addr == "" {
		return "", cart.ErrNoAddress
	}
	return addr, nil
}
