package catalog

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/tixbook/internal/domain"
)

const (
	maxTitleLen          = 255
	maxPaymentOptionsLen = 255
)

// maxPrice is the first value NUMERIC(10,2) cannot hold.
var maxPrice = decimal.New(1, 8)

// EventInput is a complete event as submitted by a manager. Date and Time
// are raw strings, "YYYY-MM-DD" and "HH:MM" or "HH:MM:SS".
type EventInput struct {
	Title            string
	Description      string
	Date             string
	Time             string
	Location         domain.City
	Category         domain.Category
	PaymentOptions   string
	Price            decimal.Decimal
	AvailableTickets int
}

// EventPatch carries the fields to change. A nil field is left as is; a
// full replacement sets every field.
type EventPatch struct {
	Title            *string
	Description      *string
	Date             *string
	Time             *string
	Location         *domain.City
	Category         *domain.Category
	PaymentOptions   *string
	Price            *decimal.Decimal
	AvailableTickets *int
}

// Patch turns in into a patch that replaces every field.
func (in EventInput) Patch() EventPatch {
	return EventPatch{
		Title:            &in.Title,
		Description:      &in.Description,
		Date:             &in.Date,
		Time:             &in.Time,
		Location:         &in.Location,
		Category:         &in.Category,
		PaymentOptions:   &in.PaymentOptions,
		Price:            &in.Price,
		AvailableTickets: &in.AvailableTickets,
	}
}

func (in EventInput) event(createdBy int64) (*domain.Event, error) {
	e := &domain.Event{CreatedBy: createdBy}
	if err := in.Patch().apply(e); err != nil {
		return nil, err
	}

	return e, nil
}

// apply validates every set field and writes it to e.
func (p EventPatch) apply(e *domain.Event) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return domain.ValidationError{Field: "title", Reason: "is required"}
		}
		if utf8.RuneCountInString(title) > maxTitleLen {
			return domain.ValidationError{Field: "title", Reason: "is too long"}
		}
		e.Title = title
	}

	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		if desc == "" {
			return domain.ValidationError{Field: "description", Reason: "is required"}
		}
		e.Description = desc
	}

	if p.Date != nil {
		d, err := ParseDate(*p.Date)
		if err != nil {
			return err
		}
		e.Date = d
	}

	if p.Time != nil {
		t, err := parseTime(*p.Time)
		if err != nil {
			return err
		}
		e.Time = t
	}

	if p.Location != nil {
		if !p.Location.Valid() {
			return domain.ValidationError{Field: "location", Reason: "unknown city"}
		}
		e.Location = *p.Location
	}

	if p.Category != nil {
		if !p.Category.Valid() {
			return domain.ValidationError{Field: "category", Reason: "unknown category"}
		}
		e.Category = *p.Category
	}

	if p.PaymentOptions != nil {
		opts := strings.TrimSpace(*p.PaymentOptions)
		if opts == "" {
			return domain.ValidationError{Field: "payment_options", Reason: "is required"}
		}
		if utf8.RuneCountInString(opts) > maxPaymentOptionsLen {
			return domain.ValidationError{Field: "payment_options", Reason: "is too long"}
		}
		e.PaymentOptions = opts
	}

	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
		e.Price = *p.Price
	}

	if p.AvailableTickets != nil {
		if *p.AvailableTickets < 0 {
			return domain.ValidationError{Field: "available_tickets", Reason: "must not be negative"}
		}
		if *p.AvailableTickets > domain.MaxTickets {
			return domain.ValidationError{Field: "available_tickets", Reason: "is too large"}
		}
		e.AvailableTickets = *p.AvailableTickets
	}

	return nil
}

// ParseDate parses a "YYYY-MM-DD" date as used by events and the list filter.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(domain.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, domain.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	return d, nil
}

func parseTime(s string) (string, error) {
	s = strings.TrimSpace(s)

	for _, layout := range []string{domain.TimeLayout, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(domain.TimeLayout), nil
		}
	}

	return "", domain.ValidationError{Field: "time", Reason: "must be HH:MM or HH:MM:SS"}
}

func validatePrice(p decimal.Decimal) error {
	switch {
	case p.IsNegative():
		return domain.ValidationError{Field: "price", Reason: "must not be negative"}
	case !p.Equal(p.Round(2)):
		return domain.ValidationError{Field: "price", Reason: "at most 2 decimal places"}
	case p.GreaterThanOrEqual(maxPrice):
		return domain.ValidationError{Field: "price", Reason: "is too large"}
	}

	return nil
}
