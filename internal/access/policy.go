// Package access decides what a caller may do. Services ask one question,
// Can(user, action, resource), instead of comparing role strings themselves.
package access

import "github.com/kirinyoku/tixbook/internal/domain"

type Action string

const (
	CreateEvent     Action = "event:create"
	UpdateEvent     Action = "event:update"
	DeleteEvent     Action = "event:delete"
	BookTickets     Action = "booking:create"
	ViewOwnBookings Action = "booking:list"
	PayBooking      Action = "booking:pay"
	CancelPayment   Action = "booking:cancel_payment"
	CancelBooking   Action = "booking:cancel"
	ManageRoles     Action = "user:manage_role"
)

type Policy struct{}

func New() *Policy {
	return &Policy{}
}

// Can reports whether u may perform a on resource. resource is an
// *domain.Event for event actions, a *domain.Booking for booking actions
// and nil otherwise. An unauthenticated caller (nil user) may do nothing.
func (p *Policy) Can(u *domain.User, a Action, resource any) bool {
	if u == nil {
		return false
	}

	switch a {
	case CreateEvent:
		return u.Role == domain.RoleEventManager
	case UpdateEvent, DeleteEvent:
		e, ok := resource.(*domain.Event)
		return ok && e != nil &&
			u.Role == domain.RoleEventManager &&
			e.CreatedBy == u.ID
	case BookTickets, ViewOwnBookings:
		return true
	case PayBooking, CancelPayment, CancelBooking:
		b, ok := resource.(*domain.Booking)
		return ok && b != nil && b.OwnedBy(u.ID)
	case ManageRoles:
		return u.IsAdmin
	}

	return false
}

// Authorize is Can as an error: domain.ErrUnauthenticated for a nil user,
// domain.ErrPermission when the policy says no.
func (p *Policy) Authorize(u *domain.User, a Action, resource any) error {
	if u == nil {
		return domain.ErrUnauthenticated
	}

	if !p.Can(u, a, resource) {
		return domain.ErrPermission
	}

	return nil
}
