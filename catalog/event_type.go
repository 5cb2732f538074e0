// Package catalog is the closed set of events a tenant can subscribe to.
//
// Every event type is a named constant; adding one means adding a constant,
// a Definition and a payload struct. Lookups by string go through Parse so an
// unknown name never reaches the registry or the queue.
package catalog

import (
	"errors"
	"fmt"
)

// EventType names a domain event, e.g. "booking.created".
type EventType string

// Event types.
const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingUpdated   EventType = "booking.updated"
	EventBookingCancelled EventType = "booking.cancelled"
	EventCustomerCreated  EventType = "customer.created"
	EventCustomerUpdated  EventType = "customer.updated"
	EventPaymentReceived  EventType = "payment.received"
	EventTripCreated      EventType = "trip.created"
)

// ErrUnknownEventType is returned for names outside the catalogue.
var ErrUnknownEventType = errors.New("resthook: unknown event type")

var all = []EventType{
	EventBookingCreated,
	EventBookingUpdated,
	EventBookingCancelled,
	EventCustomerCreated,
	EventCustomerUpdated,
	EventPaymentReceived,
	EventTripCreated,
}

// All returns every event type in catalogue order.
func All() []EventType {
	out := make([]EventType, len(all))
	copy(out, all)
	return out
}

// Valid reports whether t is a member of the catalogue.
func (t EventType) Valid() bool {
	switch t {
	case EventBookingCreated, EventBookingUpdated, EventBookingCancelled,
		EventCustomerCreated, EventCustomerUpdated,
		EventPaymentReceived, EventTripCreated:
		return true
	default:
		return false
	}
}

func (t EventType) String() string { return string(t) }

// Parse converts a wire name into an EventType.
func Parse(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}
