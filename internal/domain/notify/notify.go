// Package notify defines the outbound notification contract used after an
// order has been committed.
package notify

import "context"

// Event is the message delivered to a branch.
type Event string

// EventNewOrder tells a branch that a new order was placed.
const EventNewOrder Event = "NEW_ORDER"

// Notifier delivers an event to a branch. Callers treat delivery as best-effort.
type Notifier interface {
	Notify(ctx context.Context, branchID int64, event Event) error
}
