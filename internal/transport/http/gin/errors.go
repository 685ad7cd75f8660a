package httpgin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/service/accounts"
	"github.com/kirinyoku/tixbook/internal/service/booking"
)

// specificCodes refine the code of a few errors within their kind.
var specificCodes = []struct {
	err  error
	code string
}{
	{domain.ErrAlreadyPaid, "already_paid"},
	{domain.ErrPaymentNotMade, "payment_not_made"},
	{domain.ErrAlreadyCancelled, "already_cancelled"},
	{domain.ErrBookingCancelled, "booking_cancelled"},
	{accounts.ErrUserExists, "user_exists"},
	{accounts.ErrInvalidAction, "invalid_action"},
	{accounts.ErrInvalidCredentials, "invalid_credentials"},
	{accounts.ErrTokenRevoked, "token_revoked"},
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	status, code, msg := classify(err)

	var rl booking.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(rl.RetryAfter.Round(time.Second) / time.Second)
		c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func classify(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, booking.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrInsufficientInventory):
		status, code = http.StatusBadRequest, "insufficient_tickets"
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusBadRequest, "invalid_state"
	case errors.Is(err, domain.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrPermission):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}

	for _, sc := range specificCodes {
		if errors.Is(err, sc.err) {
			code = sc.code
			break
		}
	}

	return status, code, publicMessage(err)
}

// publicMessage strips the "op: " prefixes added on the way up.
func publicMessage(err error) string {
	var (
		ve domain.ValidationError
		ie domain.InsufficientInventoryError
		rl booking.RateLimitedError
	)

	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &ie):
		return ie.Error()
	case errors.As(err, &rl):
		return rl.Error()
	}

	parts := strings.Split(err.Error(), ": ")
	for len(parts) > 1 && strings.HasPrefix(parts[0], "service.") {
		parts = parts[1:]
	}

	return strings.Join(parts, ": ")
}

// bindErr reports a body that failed to decode or validate.
func bindErr(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		respondErr(c, domain.ValidationError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed %q validation", fe.Tag()),
		})
		return
	}

	respondErr(c, domain.ValidationError{Reason: "malformed request body"})
}

func badRequest(c *gin.Context, field, reason string) {
	respondErr(c, domain.ValidationError{Field: field, Reason: reason})
}
