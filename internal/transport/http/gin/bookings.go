package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	redisrepo "github.com/kirinyoku/tixbook/internal/repository/redis"
	"github.com/kirinyoku/tixbook/internal/service"
)

const idemLockTTL = 60 * time.Second

// @Summary  Book tickets (idempotent)
// @Tags     bookings
// @Security BearerAuth
// @Param    Idempotency-Key header string false "client generated key"
// @Param    req body  BookTicketRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} BookTicketResponse
// @Failure  400 {object} ErrorResponse "invalid input / not enough tickets"
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "idem in progress"
// @Failure  422 {object} ErrorResponse "idem key reused with another body"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /book-ticket/ [post]
func handleBookTicket(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BookTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}

		user := currentUser(c)
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fingerprint string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(user.ID, idemKey)
			fingerprint = requestFingerprint(req)

			if payload, fp, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
				replay(c, idemKey, fingerprint, fp, payload)
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, fp, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
					replay(c, idemKey, fingerprint, fp, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
					Error: "idempotency key in progress",
					Code:  "idempotency_in_progress",
				})
				return
			}
		}

		b, err := svcs.Booking.Book(ctx, user, req.EventID, req.NumberOfTickets)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := BookTicketResponse{
			BookingID:     b.ID,
			PaymentAmount: b.PaymentAmount.StringFixed(2),
		}

		if idemStorageKey != "" {
			payload, _ := json.Marshal(resp)
			_ = idem.SaveResult(ctx, idemStorageKey, fingerprint, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// replay answers a retried request with the stored response. A key reused
// for a different body is refused.
func replay(c *gin.Context, idemKey, fingerprint, stored, payload string) {
	if stored != fingerprint {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: "idempotency key was used with a different request",
			Code:  "idempotency_key_reused",
		})
		return
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

func requestFingerprint(req BookTicketRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// @Summary  List my bookings
// @Tags     bookings
// @Security BearerAuth
// @Success  200 {array} BookingResponse
// @Failure  401 {object} ErrorResponse
// @Router   /my-bookings/ [get]
func handleMyBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Booking.ListMine(c.Request.Context(), currentUser(c))
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]BookingResponse, 0, len(list))
		for i := range list {
			out = append(out, newBookingResponse(&list[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Cancel booking and release its tickets
// @Tags     bookings
// @Security BearerAuth
// @Param    id  path  int  true  "Booking ID"
// @Success  204
// @Failure  400 {object} ErrorResponse "already cancelled"
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /cancel-booking/{id}/ [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if _, err := svcs.Booking.Cancel(c.Request.Context(), currentUser(c), bookingID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Pay for a booking
// @Tags     bookings
// @Security BearerAuth
// @Param    req body  PaymentRequest true "payload"
// @Success  200 {object} PaymentResponse
// @Failure  400 {object} ErrorResponse "already paid"
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /make-payment/ [post]
func handleMakePayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		b, err := svcs.Booking.Pay(c.Request.Context(), currentUser(c), req.BookingID, req.PaymentMethod)
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := PaymentResponse{
			BookingID:   b.ID,
			AmountPaid:  b.PaymentAmount.StringFixed(2),
			IsConfirmed: b.IsConfirmed,
		}
		if b.PaymentMethod != nil {
			resp.PaymentMethod = *b.PaymentMethod
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Cancel the payment of a booking
// @Tags     bookings
// @Security BearerAuth
// @Param    req body  CancelPaymentRequest true "payload"
// @Success  200 {object} CancelPaymentResponse
// @Failure  400 {object} ErrorResponse "not paid"
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /cancel-payment/ [post]
func handleCancelPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		b, err := svcs.Booking.CancelPayment(c.Request.Context(), currentUser(c), req.BookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CancelPaymentResponse{BookingID: b.ID, Status: string(b.State())})
	}
}
