package httpgin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/metrics"
	redisrepo "github.com/kirinyoku/tixbook/internal/repository/redis"
	"github.com/kirinyoku/tixbook/internal/service"
	"github.com/kirinyoku/tixbook/internal/service/catalog"
)

// NewRouter builds the HTTP API. idem and m may be nil.
func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	m *metrics.Metrics,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	registerValidators()

	r := gin.New()

	r.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		MetricsMiddleware(m),
		CORS(),
	)
	for _, mw := range middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/", AuthMiddleware(svcs.Accounts))

	// Public API
	api.POST("/register/", handleRegister(svcs))
	api.POST("/login/", handleLogin(svcs))
	api.GET("/events/", handleListEvents(svcs))
	api.GET("/events/:id/", handleGetEvent(svcs))

	// Authenticated API
	authed := api.Group("/", RequireAuth())
	{
		authed.POST("/logout/", handleLogout(svcs))
		authed.POST("/manage-role/:user_id/", handleManageRole(svcs))

		authed.POST("/events/", handleCreateEvent(svcs))
		authed.PUT("/events/:id/", handleReplaceEvent(svcs))
		authed.PATCH("/events/:id/", handlePatchEvent(svcs))
		authed.DELETE("/events/:id/", handleDeleteEvent(svcs))

		authed.POST("/book-ticket/", handleBookTicket(svcs, idem))
		authed.GET("/my-bookings/", handleMyBookings(svcs))
		authed.POST("/cancel-booking/:id/", handleCancelBooking(svcs))
		authed.POST("/make-payment/", handleMakePayment(svcs))
		authed.POST("/cancel-payment/", handleCancelPayment(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List events
// @Tags     events
// @Param    location  query  string  false  "City"
// @Param    date      query  string  false  "YYYY-MM-DD"
// @Param    category  query  string  false  "Category"
// @Success  200  {array}   EventResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /events/ [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := domain.EventFilter{
			Location: domain.City(c.Query("location")),
			Category: domain.Category(c.Query("category")),
		}
		if raw := c.Query("date"); raw != "" {
			d, err := catalog.ParseDate(raw)
			if err != nil {
				respondErr(c, err)
				return
			}
			f.Date = &d
		}

		events, err := svcs.Catalog.ListEvents(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]EventResponse, 0, len(events))
		for i := range events {
			out = append(out, newEventResponse(&events[i]))
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Get event
// @Tags     events
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  EventResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/ [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Catalog.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, newEventResponse(e), "public, max-age=60", true)
	}
}

// @Summary  Create event
// @Tags     events
// @Security BearerAuth
// @Param    req body  EventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Router   /events/ [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		e, err := svcs.Catalog.CreateEvent(c.Request.Context(), currentUser(c), req.input())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: e.ID})
	}
}

// @Summary  Replace event
// @Tags     events
// @Security BearerAuth
// @Param    id  path  int  true  "Event ID"
// @Param    req body  EventRequest true "payload"
// @Success  200 {object} EventResponse
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/ [put]
func handleReplaceEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req EventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		e, err := svcs.Catalog.UpdateEvent(c.Request.Context(), currentUser(c), eventID, req.input().Patch())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newEventResponse(e))
	}
}

// @Summary  Update event fields
// @Tags     events
// @Security BearerAuth
// @Param    id  path  int  true  "Event ID"
// @Param    req body  EventPatchRequest true "fields to change"
// @Success  200 {object} EventResponse
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/ [patch]
func handlePatchEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req EventPatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindErr(c, err)
			return
		}
		e, err := svcs.Catalog.UpdateEvent(c.Request.Context(), currentUser(c), eventID, req.patch())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newEventResponse(e))
	}
}

// @Summary  Delete event and cancel its bookings
// @Tags     events
// @Security BearerAuth
// @Param    id  path  int  true  "Event ID"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/ [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if _, err := svcs.Catalog.DeleteEvent(c.Request.Context(), currentUser(c), eventID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, name, "must be a positive integer")
		return 0, false
	}
	return v, true
}
