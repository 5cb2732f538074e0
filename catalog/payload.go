package catalog

import "time"

// Payload is implemented by every typed event body. The event type travels
// with the value so a producer cannot pair a payload with the wrong name.
type Payload interface {
	EventType() EventType
}

// Booking is the body shared by the booking.* events.
type Booking struct {
	BookingID    string     `json:"bookingId"`
	CustomerID   string     `json:"customerId,omitempty"`
	TripID       string     `json:"tripId,omitempty"`
	Status       string     `json:"status,omitempty"`
	Participants int        `json:"participants,omitempty"`
	Total        string     `json:"total,omitempty"`
	Currency     string     `json:"currency,omitempty"`
	StartsAt     *time.Time `json:"startsAt,omitempty"`
}

// BookingCreated is sent when a booking is made.
type BookingCreated struct{ Booking }

// BookingUpdated is sent when a booking changes.
type BookingUpdated struct{ Booking }

// BookingCancelled is sent when a booking is cancelled.
type BookingCancelled struct {
	Booking
	Reason string `json:"reason,omitempty"`
}

func (BookingCreated) EventType() EventType   { return EventBookingCreated }
func (BookingUpdated) EventType() EventType   { return EventBookingUpdated }
func (BookingCancelled) EventType() EventType { return EventBookingCancelled }

// Customer is the body shared by the customer.* events.
type Customer struct {
	CustomerID string `json:"customerId"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// CustomerCreated is sent when a customer record is added.
type CustomerCreated struct{ Customer }

// CustomerUpdated is sent when a customer record changes.
type CustomerUpdated struct{ Customer }

func (CustomerCreated) EventType() EventType { return EventCustomerCreated }
func (CustomerUpdated) EventType() EventType { return EventCustomerUpdated }

// PaymentReceived is sent when a payment settles.
type PaymentReceived struct {
	PaymentID  string `json:"paymentId"`
	BookingID  string `json:"bookingId,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Method     string `json:"method,omitempty"`
}

func (PaymentReceived) EventType() EventType { return EventPaymentReceived }

// TripCreated is sent when a trip is scheduled.
type TripCreated struct {
	TripID   string     `json:"tripId"`
	Name     string     `json:"name,omitempty"`
	SiteName string     `json:"siteName,omitempty"`
	Capacity int        `json:"capacity,omitempty"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
}

func (TripCreated) EventType() EventType { return EventTripCreated }
