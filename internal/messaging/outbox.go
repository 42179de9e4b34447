package messaging

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// reclaimAfter is how long a row stays claimed by a dispatcher before another
// instance may pick it up again.
const reclaimAfter = 30 * time.Second

// OutboxDispatcher drains the order_outbox table and hands each row to the
// publisher. Rows are claimed with FOR UPDATE SKIP LOCKED so multiple
// instances never double-publish within a claim window; delivery is
// at-least-once.
type OutboxDispatcher struct {
	pool      *pgxpool.Pool
	publisher Publisher
	interval  time.Duration
	batchSize int
	lg        *zap.Logger
}

type outboxRow struct {
	ID        int64
	EventType string
	Payload   []byte
	Attempts  int
}

// NewOutboxDispatcher builds a dispatcher polling every interval, claiming up
// to batch rows per sweep.
func NewOutboxDispatcher(pool *pgxpool.Pool, publisher Publisher, interval time.Duration, batch int, lg *zap.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		pool:      pool,
		publisher: publisher,
		interval:  interval,
		batchSize: batch,
		lg:        lg,
	}
}

// Run polls until ctx is cancelled. It always returns nil so an errgroup
// supervising it only stops on context cancellation, not on transient broker
// or database trouble.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.dispatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.lg.Error("Outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *OutboxDispatcher) dispatch(ctx context.Context) error {
	rows, err := d.claimRows(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := d.publishOne(ctx, row); err != nil {
			d.lg.Warn("Publish outbox event failed",
				zap.Int64("row_id", row.ID),
				zap.String("event_type", row.EventType),
				zap.Int("attempts", row.Attempts),
				zap.Error(err),
			)
		}
	}
	return nil
}

// claimRows locks a batch of due rows and marks them processing so a
// concurrent dispatcher skips them until the claim expires.
func (d *OutboxDispatcher) claimRows(ctx context.Context) ([]outboxRow, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, payload, attempts
		FROM order_outbox
		WHERE status = 'pending' OR (status = 'processing' AND next_retry <= now())
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, d.batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "query outbox")
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outboxRow, error) {
		var r outboxRow
		err := row.Scan(&r.ID, &r.EventType, &r.Payload, &r.Attempts)
		return r, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect outbox rows")
	}

	releaseAt := time.Now().Add(reclaimAfter)
	for _, row := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE order_outbox
			SET status = 'processing', next_retry = $2, updated_at = now()
			WHERE id = $1`, row.ID, releaseAt); err != nil {
			return nil, errors.Wrap(err, "claim outbox row")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit claim")
	}
	return items, nil
}

func (d *OutboxDispatcher) publishOne(ctx context.Context, row outboxRow) error {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, row.EventType, row.Payload); err != nil {
		return d.markFailure(ctx, row, err)
	}

	_, err := d.pool.Exec(ctx, `
		UPDATE order_outbox SET status = 'sent', updated_at = now() WHERE id = $1`, row.ID)
	return errors.Wrap(err, "mark sent")
}

func (d *OutboxDispatcher) markFailure(ctx context.Context, row outboxRow, publishErr error) error {
	nextRetry := time.Now().Add(retryDelay(row.Attempts + 1))
	if _, err := d.pool.Exec(ctx, `
		UPDATE order_outbox
		SET status = 'pending', attempts = attempts + 1, next_retry = $2, updated_at = now()
		WHERE id = $1`, row.ID, nextRetry); err != nil {
		return errors.Wrap(err, "schedule retry")
	}
	return publishErr
}

// retryDelay backs off exponentially, capped at one minute.
func retryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 5 {
		attempts = 5
	}
	delay := time.Duration(1<<attempts) * time.Second
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
