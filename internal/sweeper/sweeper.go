// Package sweeper expires gateway orders whose payment attempt was abandoned,
// so nothing stays pending_payment forever.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veldmart/checkout/internal/domain/order"
)

// Notifier receives the status of each order the sweep cancels.
type Notifier interface {
	Notify(orderID, status string)
}

// Sweeper periodically cancels gateway orders stuck pending_payment beyond
// MaxAge. It goes through the repository's compare-and-set path, so a
// concurrent payment verification always wins the race.
type Sweeper struct {
	orders   order.Repository
	notifier Notifier
	interval time.Duration
	maxAge   time.Duration
	lg       *zap.Logger
}

// New builds a sweeper running every interval, expiring orders older than
// maxAge. notifier may be nil.
func New(orders order.Repository, notifier Notifier, interval, maxAge time.Duration, lg *zap.Logger) *Sweeper {
	return &Sweeper{
		orders:   orders,
		notifier: notifier,
		interval: interval,
		maxAge:   maxAge,
		lg:       lg,
	}
}

// Run sweeps until ctx is cancelled. Always returns nil so a supervising
// errgroup only stops on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.maxAge)
	expired, err := s.orders.ExpireStalePending(ctx, cutoff)
	if err != nil {
		s.lg.Error("Stale payment sweep failed", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	s.lg.Info("Expired stale gateway orders",
		zap.Int("count", len(expired)),
		zap.Time("cutoff", cutoff),
	)
	if s.notifier != nil {
		for _, id := range expired {
			s.notifier.Notify(id, string(order.StatusCancelled))
		}
	}
}
