package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veldmart/checkout/internal/domain/ledger"
	"github.com/veldmart/checkout/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, customer_id, items, total, currency, shipping_address, payment_method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	insertAttemptSQL = `INSERT INTO checkout_attempts (session_key, order_id)
		VALUES ($1, $2)
		ON CONFLICT (session_key) DO NOTHING`

	selectAttemptSQL = `SELECT order_id FROM checkout_attempts WHERE session_key = $1`

	selectOrderSQL = `SELECT id, customer_id, items, total, currency, shipping_address,
		payment_method, status, payment_failed_at, created_at, updated_at
		FROM orders`

	casStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING total`

	insertLedgerEventSQL = `INSERT INTO ledger_events (order_id, event_type, amount)
		VALUES ($1, $2, $3)`

	insertOutboxSQL = `INSERT INTO order_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its checkout-attempt record in one
// transaction. A duplicate session key collapses to the existing order: the
// attempt insert is the arbiter, so two racing submissions of the same
// session commit exactly one order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, sessionKey string) (*order.CreateResult, error) {
	// Fast path: the session already produced an order.
	if existing, err := r.bySession(ctx, sessionKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &order.CreateResult{Order: existing, Created: false}, nil
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order items")
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, itemsJSON, o.Total, o.Currency,
		o.ShippingAddress, string(o.PaymentMethod), string(o.Status), now,
	); err != nil {
		return nil, errors.Wrapf(err, "insert order %q", o.ID)
	}

	tag, err := tx.Exec(ctx, insertAttemptSQL, sessionKey, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert checkout attempt")
	}
	if tag.RowsAffected() == 0 {
		// Lost the race: another submission of this session committed first.
		// Roll back our order and return theirs.
		if err := tx.Rollback(ctx); err != nil {
			return nil, errors.Wrap(err, "rollback duplicate attempt")
		}
		existing, err := r.bySession(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.New("checkout attempt vanished after conflict")
		}
		return &order.CreateResult{Order: existing, Created: false}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit order")
	}
	return &order.CreateResult{Order: o, Created: true}, nil
}

// Get loads one order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, selectOrderSQL+` WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return o, nil
}

// List returns orders matching the filter, sorted by creation time.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	query := selectOrderSQL + ` WHERE ($1 = '' OR customer_id = $1) AND ($2 = '' OR status = $2)`
	if f.Ascending {
		query += ` ORDER BY created_at ASC`
	} else {
		query += ` ORDER BY created_at DESC`
	}

	rows, err := r.pool.Query(ctx, query, f.CustomerID, string(f.Status))
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		result = append(result, *o)
	}
	return result, rows.Err()
}

// UpdateStatus applies from→to with a compare-and-set on the current status.
// When the transition realizes revenue (into paid lineage) or reverses it
// (cancelling a counted order), the matching ledger event and an outbox event
// are appended in the same transaction, so no exit path leaves the order and
// its financial record disagreeing.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	var total decimal.Decimal
	if err := tx.QueryRow(ctx, casStatusSQL, id, string(from), string(to)).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.statusConflict(ctx, id)
		}
		return errors.Wrapf(err, "update order %q status", id)
	}

	switch {
	case !from.Realized() && to.Realized():
		if _, err := tx.Exec(ctx, insertLedgerEventSQL, id, string(ledger.EventSale), total); err != nil {
			return errors.Wrap(err, "insert sale event")
		}
	case from.Realized() && to == order.StatusCancelled:
		if _, err := tx.Exec(ctx, insertLedgerEventSQL, id, string(ledger.EventCancellation), total); err != nil {
			return errors.Wrap(err, "insert cancellation event")
		}
	}

	payload, err := json.Marshal(statusChangedEvent{
		EventID:    uuid.New().String(),
		OrderID:    id,
		From:       string(from),
		To:         string(to),
		Total:      total.StringFixed(2),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal status event")
	}
	if _, err := tx.Exec(ctx, insertOutboxSQL, uuid.New().String(), "order.status_changed", payload); err != nil {
		return errors.Wrap(err, "insert outbox event")
	}

	return errors.Wrap(tx.Commit(ctx), "commit status update")
}

// statusConflict distinguishes a missing order from a lost CAS race.
func (r *OrderRepository) statusConflict(ctx context.Context, id string) error {
	var current string
	err := r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "load order %q status", id)
	}
	return errors.Wrapf(order.ErrStatusConflict, "order %q is %s", id, current)
}

// MarkPaymentFailed records gateway abandonment without touching the status.
func (r *OrderRepository) MarkPaymentFailed(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_failed_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return errors.Wrapf(err, "mark order %q payment failed", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// LedgerSnapshot reads the realized revenue total and the full order history
// inside one repeatable-read transaction, so both come from the same
// snapshot. A transition committing between two independent reads would make
// the reconstruction attribute its delta to a state that never existed.
func (r *OrderRepository) LedgerSnapshot(ctx context.Context) (decimal.Decimal, []order.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "begin snapshot tx")
	}
	defer tx.Rollback(ctx)

	var total decimal.Decimal
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM orders WHERE status IN ('paid', 'shipped', 'delivered')`,
	).Scan(&total); err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "sum realized revenue")
	}

	rows, err := tx.Query(ctx, selectOrderSQL+` ORDER BY created_at ASC`)
	if err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "query order history")
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return decimal.Zero, nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "iterate order history")
	}

	return total, orders, errors.Wrap(tx.Commit(ctx), "commit snapshot tx")
}

// ExpireStalePending cancels gateway orders stuck pending_payment beyond the
// cutoff. Cancelling from pending_payment reverses nothing, so no ledger
// event is written; each expiry still emits an outbox event through the
// regular CAS path.
func (r *OrderRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM orders
		WHERE status = 'pending_payment' AND payment_method = 'gateway'
		AND COALESCE(payment_failed_at, created_at) < $1`, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "query stale orders")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "collect stale orders")
	}

	expired := make([]string, 0, len(ids))
	for _, id := range ids {
		err := r.UpdateStatus(ctx, id, order.StatusPendingPayment, order.StatusCancelled)
		if err != nil {
			// A concurrent verify or cancel may have won; that resolves the
			// order either way.
			if errors.Is(err, order.ErrStatusConflict) || errors.Is(err, order.ErrNotFound) {
				continue
			}
			return expired, err
		}
		expired = append(expired, id)
	}
	return expired, nil
}

// statusChangedEvent is the outbox payload for order status transitions.
type statusChangedEvent struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Total      string    `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (r *OrderRepository) bySession(ctx context.Context, sessionKey string) (*order.Order, error) {
	var orderID string
	err := r.pool.QueryRow(ctx, selectAttemptSQL, sessionKey).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup checkout attempt")
	}
	return r.Get(ctx, orderID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		method    string
		status    string
	)
	if err := row.Scan(
		&o.ID, &o.CustomerID, &itemsJSON, &o.Total, &o.Currency,
		&o.ShippingAddress, &method, &status, &o.PaymentFailedAt,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	return &o, nil
}
