package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veldmart/checkout/internal/domain/order"
)

type stubRepo struct {
	expired []string
	err     error

	mu      sync.Mutex
	cutoffs []time.Time
}

func (s *stubRepo) ExpireStalePending(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	s.cutoffs = append(s.cutoffs, cutoff)
	s.mu.Unlock()
	return s.expired, s.err
}

func (s *stubRepo) sweepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cutoffs)
}

func (s *stubRepo) Create(context.Context, *order.Order, string) (*order.CreateResult, error) {
	panic("unexpected Create")
}
func (s *stubRepo) Get(context.Context, string) (*order.Order, error) { panic("unexpected Get") }
func (s *stubRepo) List(context.Context, order.ListFilter) ([]order.Order, error) {
	panic("unexpected List")
}
func (s *stubRepo) UpdateStatus(context.Context, string, order.Status, order.Status) error {
	panic("unexpected UpdateStatus")
}
func (s *stubRepo) MarkPaymentFailed(context.Context, string, time.Time) error {
	panic("unexpected MarkPaymentFailed")
}
func (s *stubRepo) LedgerSnapshot(context.Context) (decimal.Decimal, []order.Order, error) {
	panic("unexpected LedgerSnapshot")
}

type recordingNotifier struct {
	updates [][2]string
}

func (n *recordingNotifier) Notify(orderID, status string) {
	n.updates = append(n.updates, [2]string{orderID, status})
}

func TestSweepNotifiesCancelledOrders(t *testing.T) {
	repo := &stubRepo{expired: []string{"ord-1", "ord-2"}}
	notifier := &recordingNotifier{}
	s := New(repo, notifier, time.Minute, 30*time.Minute, zap.NewNop())

	s.sweep(context.Background())

	require.Len(t, repo.cutoffs, 1)
	assert.WithinDuration(t, time.Now().UTC().Add(-30*time.Minute), repo.cutoffs[0], time.Minute)

	require.Len(t, notifier.updates, 2)
	assert.Equal(t, [2]string{"ord-1", "cancelled"}, notifier.updates[0])
	assert.Equal(t, [2]string{"ord-2", "cancelled"}, notifier.updates[1])
}

func TestSweepNothingExpired(t *testing.T) {
	repo := &stubRepo{}
	notifier := &recordingNotifier{}
	s := New(repo, notifier, time.Minute, 30*time.Minute, zap.NewNop())

	s.sweep(context.Background())

	assert.Empty(t, notifier.updates)
}

func TestSweepToleratesRepositoryError(t *testing.T) {
	repo := &stubRepo{err: errors.New("pool closed")}
	s := New(repo, &recordingNotifier{}, time.Minute, 30*time.Minute, zap.NewNop())

	// Must log and carry on, not panic.
	s.sweep(context.Background())
}

func TestSweepNilNotifier(t *testing.T) {
	repo := &stubRepo{expired: []string{"ord-1"}}
	s := New(repo, nil, time.Minute, 30*time.Minute, zap.NewNop())

	s.sweep(context.Background())
}

func TestRunSweepsOnTicker(t *testing.T) {
	repo := &stubRepo{}
	s := New(repo, nil, 5*time.Millisecond, 30*time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return repo.sweepCount() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
