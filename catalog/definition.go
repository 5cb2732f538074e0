package catalog

import (
	"encoding/json"
	"fmt"
)

// Definition describes an event type to integrators: the human name shown in
// automation tools, a sample body and the JSON Schema producers must satisfy.
type Definition struct {
	Key         EventType       `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Sample      json.RawMessage `json:"sample"`
	Schema      json.RawMessage `json:"-"`
}

// Definitions returns the definition of every event type in catalogue order.
func Definitions() []Definition {
	out := make([]Definition, 0, len(all))
	for _, t := range all {
		out = append(out, definitionOf(t))
	}
	return out
}

// Lookup returns the definition for t.
func Lookup(t EventType) (Definition, bool) {
	if !t.Valid() {
		return Definition{}, false
	}
	return definitionOf(t), true
}

func definitionOf(t EventType) Definition {
	switch t {
	case EventBookingCreated:
		return Definition{
			Key:         t,
			Name:        "New Booking",
			Description: "Triggers when a new booking is created",
			Sample:      json.RawMessage(`{"bookingId":"bk_1001","customerId":"cus_2001","tripId":"trp_3001","status":"confirmed","participants":2,"total":"180.00","currency":"USD"}`),
			Schema:      requireString("bookingId"),
		}
	case EventBookingUpdated:
		return Definition{
			Key:         t,
			Name:        "Booking Updated",
			Description: "Triggers when a booking is modified",
			Sample:      json.RawMessage(`{"bookingId":"bk_1001","status":"confirmed","participants":3}`),
			Schema:      requireString("bookingId"),
		}
	case EventBookingCancelled:
		return Definition{
			Key:         t,
			Name:        "Booking Cancelled",
			Description: "Triggers when a booking is cancelled",
			Sample:      json.RawMessage(`{"bookingId":"bk_1001","status":"cancelled","reason":"weather"}`),
			Schema:      requireString("bookingId"),
		}
	case EventCustomerCreated:
		return Definition{
			Key:         t,
			Name:        "New Customer",
			Description: "Triggers when a new customer is added",
			Sample:      json.RawMessage(`{"customerId":"cus_2001","firstName":"Ana","lastName":"Reef","email":"ana@example.com"}`),
			Schema:      requireString("customerId"),
		}
	case EventCustomerUpdated:
		return Definition{
			Key:         t,
			Name:        "Customer Updated",
			Description: "Triggers when customer details change",
			Sample:      json.RawMessage(`{"customerId":"cus_2001","phone":"+1-555-0100"}`),
			Schema:      requireString("customerId"),
		}
	case EventPaymentReceived:
		return Definition{
			Key:         t,
			Name:        "Payment Received",
			Description: "Triggers when a payment is received",
			Sample:      json.RawMessage(`{"paymentId":"pay_4001","bookingId":"bk_1001","amount":"180.00","currency":"USD","method":"card"}`),
			Schema:      requireString("paymentId"),
		}
	case EventTripCreated:
		return Definition{
			Key:         t,
			Name:        "New Trip",
			Description: "Triggers when a new trip is scheduled",
			Sample:      json.RawMessage(`{"tripId":"trp_3001","name":"Morning Reef Dive","siteName":"Blue Hole","capacity":12}`),
			Schema:      requireString("tripId"),
		}
	default:
		panic(fmt.Sprintf("catalog: no definition for %q", t))
	}
}

// requireString builds an object schema with one mandatory non-empty string
// property. Other properties are open so payloads can grow.
func requireString(field string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"type":"object","required":[%q],"properties":{%q:{"type":"string","minLength":1}}}`,
		field, field,
	))
}
