// Command seed-db provisions a development database: an HMAC-hashed API key,
// a demo customer with a cart and address, and a small order history so the
// ledger endpoints have something to report.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veldmart/checkout/internal/domain/order"
	"github.com/veldmart/checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
		demo         bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.BoolVar(&demo, "demo", false, "also seed a demo customer, cart, and order history")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}
	if databaseURL == "" || apiKey == "" {
		slog.Error("database URL and api key are required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper, demo); err != nil {
		slog.Error("seed failed", "err", err)
		os.Exit(1)
	}
	slog.Info("seed complete")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string, demo bool) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	hash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, 'seed', '{checkout,admin}')
		ON CONFLICT (key_hash) DO NOTHING`,
		uuid.New().String(), hash,
	); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if !demo {
		return nil
	}
	return seedDemo(ctx, pool)
}

const demoCustomer = "demo-customer"

// seedDemo writes a demo customer with a two-line cart and a short order
// history covering every status class the ledger distinguishes.
func seedDemo(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		INSERT INTO customer_addresses (customer_id, address)
		VALUES ($1, '1 Demo Street, Springfield')
		ON CONFLICT (customer_id) DO NOTHING`, demoCustomer,
	); err != nil {
		return errors.Wrap(err, "seed address")
	}

	cartLines := []struct {
		productID string
		price     string
		qty       int
	}{
		{"sku-espresso", "12.50", 2},
		{"sku-grinder", "89.00", 1},
	}
	for _, line := range cartLines {
		if _, err := pool.Exec(ctx, `
			INSERT INTO cart_items (customer_id, product_id, unit_price, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (customer_id, product_id) DO NOTHING`,
			demoCustomer, line.productID, decimal.RequireFromString(line.price), line.qty,
		); err != nil {
			return errors.Wrap(err, "seed cart item")
		}
	}

	history := []struct {
		total  string
		status order.Status
		age    time.Duration
	}{
		{"120.00", order.StatusDelivered, 96 * time.Hour},
		{"45.00", order.StatusCancelled, 72 * time.Hour},
		{"60.00", order.StatusShipped, 48 * time.Hour},
		{"30.00", order.StatusPaid, 24 * time.Hour},
		{"15.00", order.StatusPendingPayment, 2 * time.Hour},
	}
	for _, hist := range history {
		items, err := json.Marshal([]order.Item{{
			ProductID: "sku-espresso",
			UnitPrice: decimal.RequireFromString(hist.total),
			Quantity:  1,
		}})
		if err != nil {
			return errors.Wrap(err, "marshal demo items")
		}
		createdAt := time.Now().UTC().Add(-hist.age)
		if _, err := pool.Exec(ctx, `
			INSERT INTO orders (id, customer_id, items, total, currency, shipping_address, payment_method, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'USD', '1 Demo Street, Springfield', 'cod', $5, $6, $6)`,
			uuid.New().String(), demoCustomer, items,
			decimal.RequireFromString(hist.total), string(hist.status), createdAt,
		); err != nil {
			return errors.Wrap(err, "seed demo order")
		}
	}
	return nil
}
