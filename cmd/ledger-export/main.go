// Command ledger-export reconstructs the running-balance ledger from the
// order history and writes it as a gzip-compressed CSV for offline analysis.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/veldmart/checkout/internal/domain/ledger"
	"github.com/veldmart/checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		outPath     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outPath, "out", "ledger.csv.gz", "output file path")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outPath); err != nil {
		slog.Error("export failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, outPath string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	repo := postgres.NewOrderRepository(pool)

	// One snapshot for both inputs: total and history must describe the same
	// database state or the inferred start balance drifts.
	total, orders, err := repo.LedgerSnapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "load order data")
	}

	entries := ledger.Reconstruct(total, orders, time.Now().UTC())
	if err := writeCSV(outPath, entries); err != nil {
		return err
	}

	slog.Info("ledger exported",
		"path", outPath,
		"entries", len(entries),
		"orders", len(orders),
		"realized_total", total.StringFixed(2),
	)
	return nil
}

func writeCSV(path string, entries []ledger.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output file")
	}
	defer f.Close()

	zw := pgzip.NewWriter(f)
	cw := csv.NewWriter(zw)

	if err := cw.Write([]string{"seq", "at", "type", "order_id", "delta", "balance"}); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, e := range entries {
		record := []string{
			strconv.Itoa(e.Seq),
			e.At.UTC().Format(time.RFC3339Nano),
			string(e.Type),
			e.OrderID,
			e.Delta.StringFixed(2),
			e.Balance.StringFixed(2),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "write record")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "close gzip stream")
	}
	return f.Close()
}
