package httpgin

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/service/catalog"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=150"`
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"max=100"`
	Password string `json:"password" binding:"required,min=8"`
}

type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"is_admin"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Access    string    `json:"access"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ManageRoleRequest struct {
	Action string `json:"action" binding:"required"`
}

// EventRequest is the body of POST /events/ and PUT /events/{id}/.
type EventRequest struct {
	Title            string          `json:"title" binding:"required,max=255"`
	Description      string          `json:"description" binding:"required"`
	Date             string          `json:"date" binding:"required,datetime=2006-01-02"`
	Time             string          `json:"time" binding:"required"`
	Location         string          `json:"location" binding:"required,city"`
	Category         string          `json:"category" binding:"required,category"`
	PaymentOptions   string          `json:"payment_options" binding:"required,max=255"`
	Price            decimal.Decimal `json:"price" swaggertype:"string" binding:"money"`
	AvailableTickets *int            `json:"available_tickets" binding:"required,gte=0,lte=2147483647"`
}

func (r EventRequest) input() catalog.EventInput {
	return catalog.EventInput{
		Title:            r.Title,
		Description:      r.Description,
		Date:             r.Date,
		Time:             r.Time,
		Location:         domain.City(r.Location),
		Category:         domain.Category(r.Category),
		PaymentOptions:   r.PaymentOptions,
		Price:            r.Price,
		AvailableTickets: *r.AvailableTickets,
	}
}

// EventPatchRequest is the body of PATCH /events/{id}/.
type EventPatchRequest struct {
	Title            *string          `json:"title" binding:"omitempty,max=255"`
	Description      *string          `json:"description"`
	Date             *string          `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Time             *string          `json:"time"`
	Location         *string          `json:"location" binding:"omitempty,city"`
	Category         *string          `json:"category" binding:"omitempty,category"`
	PaymentOptions   *string          `json:"payment_options" binding:"omitempty,max=255"`
	Price            *decimal.Decimal `json:"price" swaggertype:"string" binding:"omitempty,money"`
	AvailableTickets *int             `json:"available_tickets" binding:"omitempty,gte=0,lte=2147483647"`
}

func (r EventPatchRequest) patch() catalog.EventPatch {
	p := catalog.EventPatch{
		Title:            r.Title,
		Description:      r.Description,
		Date:             r.Date,
		Time:             r.Time,
		PaymentOptions:   r.PaymentOptions,
		Price:            r.Price,
		AvailableTickets: r.AvailableTickets,
	}

	if r.Location != nil {
		city := domain.City(*r.Location)
		p.Location = &city
	}
	if r.Category != nil {
		cat := domain.Category(*r.Category)
		p.Category = &cat
	}

	return p
}

type EventResponse struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	Location         string `json:"location"`
	Category         string `json:"category"`
	PaymentOptions   string `json:"payment_options"`
	Price            string `json:"price"`
	AvailableTickets int    `json:"available_tickets"`
	CreatedBy        int64  `json:"created_by"`
}

func newEventResponse(e *domain.Event) EventResponse {
	return EventResponse{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		Date:             e.Date.Format(domain.DateLayout),
		Time:             e.Time,
		Location:         string(e.Location),
		Category:         string(e.Category),
		PaymentOptions:   e.PaymentOptions,
		Price:            e.Price.StringFixed(2),
		AvailableTickets: e.AvailableTickets,
		CreatedBy:        e.CreatedBy,
	}
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type BookTicketRequest struct {
	EventID         int64 `json:"event_id" binding:"required,gt=0"`
	NumberOfTickets int   `json:"number_of_tickets" binding:"required,gt=0,lte=2147483647"`
}

type BookTicketResponse struct {
	BookingID     int64  `json:"booking_id"`
	PaymentAmount string `json:"payment_amount"`
}

type BookingResponse struct {
	ID              int64     `json:"id"`
	EventID         *int64    `json:"event_id"`
	NumberOfTickets int       `json:"number_of_tickets"`
	PricePerTicket  string    `json:"price_per_ticket"`
	PaymentAmount   string    `json:"payment_amount"`
	IsPaid          bool      `json:"is_paid"`
	IsConfirmed     bool      `json:"is_confirmed"`
	IsCancelled     bool      `json:"is_cancelled"`
	PaymentMethod   *string   `json:"payment_method"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func newBookingResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		EventID:         b.EventID,
		NumberOfTickets: b.NumberOfTickets,
		PricePerTicket:  b.PricePerTicket.StringFixed(2),
		PaymentAmount:   b.PaymentAmount.StringFixed(2),
		IsPaid:          b.IsPaid,
		IsConfirmed:     b.IsConfirmed,
		IsCancelled:     b.IsCancelled,
		PaymentMethod:   b.PaymentMethod,
		Status:          string(b.State()),
		CreatedAt:       b.CreatedAt,
	}
}

type PaymentRequest struct {
	BookingID     int64  `json:"booking_id" binding:"required,gt=0"`
	PaymentMethod string `json:"payment_method" binding:"required,max=255"`
}

type PaymentResponse struct {
	BookingID     int64  `json:"booking_id"`
	AmountPaid    string `json:"amount_paid"`
	PaymentMethod string `json:"payment_method"`
	IsConfirmed   bool   `json:"is_confirmed"`
}

type CancelPaymentRequest struct {
	BookingID int64 `json:"booking_id" binding:"required,gt=0"`
}

type CancelPaymentResponse struct {
	BookingID int64  `json:"booking_id"`
	Status    string `json:"status"`
}
