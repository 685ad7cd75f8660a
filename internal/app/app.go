package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tixbook/internal/auth"
	"github.com/kirinyoku/tixbook/internal/config"
	"github.com/kirinyoku/tixbook/internal/metrics"
	"github.com/kirinyoku/tixbook/internal/postgres"
	"github.com/kirinyoku/tixbook/internal/redis"
	postgresrepo "github.com/kirinyoku/tixbook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tixbook/internal/repository/redis"
	"github.com/kirinyoku/tixbook/internal/service"
	"github.com/kirinyoku/tixbook/internal/service/accounts"
	"github.com/kirinyoku/tixbook/internal/service/catalog"
	httpgin "github.com/kirinyoku/tixbook/internal/transport/http/gin"
	"github.com/kirinyoku/tixbook/internal/uow"
	"github.com/kirinyoku/tixbook/migrations"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	pubsub     *redisrepo.EventsPubSub
	services   *service.Services
	metrics    *metrics.Metrics
	httpServer *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	pgxPool, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN(),
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.MigrateOn {
		if err := migrations.Apply(ctx, pgxPool); err != nil {
			pgxPool.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("migrations applied")
	}

	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	store := postgresrepo.NewStore(pgxPool)
	m := metrics.New()
	pubsub := redisrepo.NewEventsPubSub(rdb)

	services := service.NewServices(
		service.Repositories{
			Tx:        uow.NewUoW(store),
			Users:     store.Users(),
			Events:    store.Events(),
			Bookings:  store.Bookings(),
			Inventory: store.Inventory(),
		},
		service.Deps{
			Cache:   redisrepo.New(rdb),
			PubSub:  pubsub,
			Limiter: redisrepo.NewBookingLimiter(rdb, cfg.Booking.RateLimit, cfg.Booking.RateWindow),
			Revoker: redisrepo.NewTokenRevocations(rdb),
			Tokens:  auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
			Metrics: m,
			Logger:  logger,
		},
		service.Config{
			Catalog: catalog.Config{EventTTL: cfg.Cache.EventTTL},
		},
	)

	if cfg.Admin.Username != "" {
		email := cfg.Admin.Email
		if email == "" {
			email = cfg.Admin.Username + "@localhost"
		}

		created, err := services.Accounts.EnsureAdmin(ctx, accounts.Registration{
			Username: cfg.Admin.Username,
			Email:    email,
			Name:     cfg.Admin.Username,
			Password: cfg.Admin.Password,
		})
		if err != nil {
			pgxPool.Close()
			_ = rdb.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if created {
			logger.Info("admin account created", slog.String("username", cfg.Admin.Username))
		}
	}

	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)

	router := httpgin.NewRouter(services, idempotencyStore, m, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		pool:     pgxPool,
		rdb:      rdb,
		pubsub:   pubsub,
		services: services,
		metrics:  m,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Another instance may have changed an event; drop our cached copy.
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, eventID int64) {
			if err := a.services.Catalog.InvalidateEvent(ctx, eventID); err != nil {
				a.logger.Warn("cache invalidation failed", slog.Int64("event_id", eventID), slog.Any("err", err))
				return
			}
			a.metrics.CacheInvalidated("pubsub")
		})
		if err != nil && gCtx.Err() == nil {
			return fmt.Errorf("events subscriber: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("redis close", slog.Any("err", err))
	}
	a.pool.Close()
}
