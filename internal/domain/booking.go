package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingState string

const (
	BookingReserved  BookingState = "reserved"
	BookingPaid      BookingState = "paid"
	BookingCancelled BookingState = "cancelled"
)

// Booking is a reservation of tickets for one event. PricePerTicket and
// PaymentAmount are fixed when the booking is created.
//
// EventID is nil once the event has been deleted.
type Booking struct {
	ID              int64
	UserID          int64
	EventID         *int64
	NumberOfTickets int
	PricePerTicket  decimal.Decimal
	PaymentAmount   decimal.Decimal
	IsPaid          bool
	IsConfirmed     bool
	IsCancelled     bool
	PaymentMethod   *string
	CreatedAt       time.Time
}

func NewBooking(userID, eventID int64, count int, price decimal.Decimal, now time.Time) (*Booking, error) {
	if count <= 0 {
		return nil, ValidationError{Field: "number_of_tickets", Reason: "must be a positive integer"}
	}
	if count > MaxTickets {
		return nil, ValidationError{Field: "number_of_tickets", Reason: "is too large"}
	}

	eid := eventID

	return &Booking{
		UserID:          userID,
		EventID:         &eid,
		NumberOfTickets: count,
		PricePerTicket:  price,
		PaymentAmount:   price.Mul(decimal.NewFromInt(int64(count))),
		CreatedAt:       now,
	}, nil
}

func (b *Booking) State() BookingState {
	switch {
	case b.IsCancelled:
		return BookingCancelled
	case b.IsPaid:
		return BookingPaid
	default:
		return BookingReserved
	}
}

func (b *Booking) OwnedBy(userID int64) bool {
	return b.UserID == userID
}

// Pay records the payment method. Confirmation follows payment.
func (b *Booking) Pay(method string) error {
	switch b.State() {
	case BookingCancelled:
		return ErrBookingCancelled
	case BookingPaid:
		return ErrAlreadyPaid
	}

	m := method
	b.IsPaid = true
	b.IsConfirmed = true
	b.PaymentMethod = &m

	return nil
}

// CancelPayment returns a paid booking to the reserved state.
func (b *Booking) CancelPayment() error {
	if !b.IsPaid {
		return ErrPaymentNotMade
	}

	b.clearPayment()

	return nil
}

// Cancel moves the booking to its terminal state. The caller owns returning
// the tickets to the event; refund reports whether a payment was cleared.
func (b *Booking) Cancel() (refund bool, err error) {
	if b.IsCancelled {
		return false, ErrAlreadyCancelled
	}

	refund = b.IsPaid
	b.clearPayment()
	b.IsCancelled = true

	return refund, nil
}

// Void is the transition applied when the booking's event is deleted.
// It reports whether the booking changed.
func (b *Booking) Void() bool {
	if b.IsCancelled {
		return false
	}

	b.clearPayment()
	b.IsCancelled = true

	return true
}

func (b *Booking) clearPayment() {
	b.IsPaid = false
	b.IsConfirmed = false
	b.PaymentMethod = nil
}
