package order

import (
	"strings"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusShipping       Status = "SHIPPING"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// transitions lists the statuses reachable from each status. Staying in the
// same status is always allowed and handled separately.
var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusPaid, StatusCancelled},
	StatusPaid:           {StatusShipping, StatusCancelled},
	StatusShipping:       {StatusCompleted},
	StatusCompleted:      nil,
	StatusCancelled:      nil,
}

// ParseStatus converts a caller supplied label into a Status. Labels are
// case-insensitive and the legacy "PENDING" label maps to PENDING_PAYMENT.
func ParseStatus(label string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(label)))
	if s == "PENDING" {
		return StatusPendingPayment, nil
	}
	if _, ok := transitions[s]; !ok {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", label)
	}
	return s, nil
}

// CanTransition reports whether an order in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates the move from s to next.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransition(next) {
		return s, &TransitionError{From: s, To: next}
	}
	return next, nil
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}
