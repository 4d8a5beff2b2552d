package order

import (
	"fmt"
	"slices"
	"strings"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReceived  Status = "RECEIVED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusFinished  Status = "FINISHED"
	StatusCanceled  Status = "CANCELED"
	StatusPaid      Status = "PAID"
)

var allStatuses = []Status{
	StatusPending,
	StatusReceived,
	StatusPreparing,
	StatusReady,
	StatusConfirmed,
	StatusShipped,
	StatusFinished,
	StatusCanceled,
	StatusPaid,
}

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(allStatuses, s)
}

// ParseStatus parses a status case-insensitively.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", domainerr.ErrInvalidEntity, s)
	}

	return status, nil
}

// Event is a trigger that moves an order between statuses.
type Event string

const (
	EventConfirm          Event = "confirm"
	EventCancel           Event = "cancel"
	EventPaymentCompleted Event = "payment_completed"
	EventReceive          Event = "receive"
	EventPrepare          Event = "prepare"
	EventMarkReady        Event = "mark_ready"
	EventShip             Event = "ship"
	EventDeliver          Event = "deliver"
)

type transition struct {
	strictFrom []Status
	// nil means any status.
	permissiveFrom []Status
	to             Status
	// replaying the event on an order already in the target status is a no-op
	idempotent bool
}

var transitions = map[Event]transition{
	EventConfirm: {
		strictFrom:     []Status{StatusPending},
		permissiveFrom: []Status{StatusPending},
		to:             StatusConfirmed,
	},
	EventCancel: {
		strictFrom:     []Status{StatusPending, StatusConfirmed},
		permissiveFrom: []Status{StatusPending, StatusConfirmed},
		to:             StatusCanceled,
	},
	EventPaymentCompleted: {
		strictFrom: []Status{StatusPending, StatusConfirmed},
		to:         StatusPaid,
		idempotent: true,
	},
	EventReceive: {
		strictFrom: []Status{StatusConfirmed, StatusPaid},
		to:         StatusReceived,
		idempotent: true,
	},
	EventPrepare: {
		strictFrom: []Status{StatusReceived},
		to:         StatusPreparing,
		idempotent: true,
	},
	EventMarkReady: {
		strictFrom: []Status{StatusPreparing},
		to:         StatusReady,
		idempotent: true,
	},
	EventShip: {
		strictFrom: []Status{StatusConfirmed, StatusPaid, StatusReady},
		to:         StatusShipped,
		idempotent: true,
	},
	EventDeliver: {
		strictFrom: []Status{StatusShipped},
		to:         StatusFinished,
		idempotent: true,
	},
}

// targetEvents maps a status reachable through the generic status path to its event.
// CONFIRMED and CANCELED are absent: they carry side effects and go through dedicated operations.
var targetEvents = map[Status]Event{
	StatusPaid:      EventPaymentCompleted,
	StatusReceived:  EventReceive,
	StatusPreparing: EventPrepare,
	StatusReady:     EventMarkReady,
	StatusShipped:   EventShip,
	StatusFinished:  EventDeliver,
}

// StateMachine decides every status change of an order.
type StateMachine struct {
	strict bool
}

// NewStateMachine creates a state machine. A non-strict machine reproduces the legacy behavior:
// event-driven transitions and generic status updates are not guarded.
func NewStateMachine(strict bool) StateMachine {
	return StateMachine{strict: strict}
}

// Strict reports whether the machine guards every transition.
func (m StateMachine) Strict() bool {
	return m.strict
}

// Next returns the status produced by applying ev to current.
func (m StateMachine) Next(current Status, ev Event) (Status, error) {
	t, ok := transitions[ev]
	if !ok {
		return "", fmt.Errorf("%w: unknown event %q", domainerr.ErrInvalidAction, ev)
	}

	if t.idempotent && current == t.to {
		return current, nil
	}

	from := t.strictFrom
	if !m.strict {
		from = t.permissiveFrom
	}
	if from != nil && !slices.Contains(from, current) {
		return "", fmt.Errorf("%w: cannot %s an order in status %s", domainerr.ErrInvalidAction, ev, current)
	}

	return t.to, nil
}

// Target returns the status produced by a generic status update from current to target.
func (m StateMachine) Target(current, target Status) (Status, error) {
	if !target.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", domainerr.ErrInvalidEntity, target)
	}
	if !m.strict {
		return target, nil
	}

	ev, ok := targetEvents[target]
	if !ok {
		return "", fmt.Errorf("%w: status %s cannot be set directly", domainerr.ErrInvalidAction, target)
	}

	return m.Next(current, ev)
}
