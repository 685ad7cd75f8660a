package httpgin

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kirinyoku/tixbook/internal/auth"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/metrics"
	"github.com/kirinyoku/tixbook/internal/service/accounts"
)

const (
	ctxUser   = "user"
	ctxClaims = "claims"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}

		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set("request_id", reqID)

		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Idempotency-Key",
			"If-None-Match",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"ETag",
			"Cache-Control",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	return cors.New(cfg)
}

func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()
		reqID, _ := c.Get("request_id")

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.String("ua", c.Request.UserAgent()),
			slog.Any("request_id", reqID),
			slog.Duration("latency", latency),
			slog.Int("bytes_out", c.Writer.Size()),
		}

		// convert []slog.Attr to []any for slog.Group variadic parameter
		anyAttrs := make([]any, len(attrs))
		for i := range attrs {
			anyAttrs[i] = attrs[i]
		}

		if len(c.Errors) > 0 {
			anyAttrs = append(anyAttrs, slog.String("err", c.Errors.String()))
			logger.Error("http", slog.Group("http", anyAttrs...))
		} else {
			logger.Info("http", slog.Group("http", anyAttrs...))
		}
	}
}

func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// AuthMiddleware resolves a bearer token to the current user. Requests
// without a token pass through anonymously; a bad token is rejected.
func AuthMiddleware(svc *accounts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}

		scheme, raw, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			respondErr(c, auth.ErrInvalidToken)
			return
		}

		u, claims, err := svc.Authenticate(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Set(ctxUser, u)
		c.Set(ctxClaims, claims)

		c.Next()
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			respondErr(c, domain.ErrUnauthenticated)
			return
		}

		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}

	u, _ := v.(*domain.User)
	return u
}

func currentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}

	cl, _ := v.(*auth.Claims)
	return cl
}
