package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// ErrStatusConflict indicates a compare-and-set status update lost a race:
// the stored status no longer matched the expected one.
var ErrStatusConflict = errors.New("order status changed concurrently")

// InvalidTransitionError indicates a status change the machine does not
// permit. The order's status is left unchanged.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

// forwardRank orders the monotonic lifecycle. Cancelled is outside the chain.
var forwardRank = map[Status]int{
	StatusPendingPayment: 0,
	StatusPaid:           1,
	StatusShipped:        2,
	StatusDelivered:      3,
}

// ParseStatus validates a status string from an external caller.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPendingPayment, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Realized reports whether an order in this status is counted as realized
// revenue.
func (s Status) Realized() bool {
	return s == StatusPaid || s == StatusShipped || s == StatusDelivered
}

// CanTransition reports whether from→to is a permitted lifecycle move.
// Forward moves are monotonic along pending_payment→paid→shipped→delivered
// (skipping ahead is allowed, moving backward is not); cancellation is
// reachable from any non-terminal state. No move leaves a terminal state, and
// a no-op (from==to) is not a transition.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, ok := forwardRank[from]
	if !ok {
		return false
	}
	toRank, ok := forwardRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// CheckTransition returns an *InvalidTransitionError when from→to is not
// permitted.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
