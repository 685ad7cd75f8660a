package service

import (
	"log/slog"

	"github.com/kirinyoku/tixbook/internal/access"
	"github.com/kirinyoku/tixbook/internal/auth"
	"github.com/kirinyoku/tixbook/internal/metrics"
	redisrepo "github.com/kirinyoku/tixbook/internal/repository/redis"
	"github.com/kirinyoku/tixbook/internal/service/accounts"
	"github.com/kirinyoku/tixbook/internal/service/booking"
	"github.com/kirinyoku/tixbook/internal/service/catalog"
	"github.com/kirinyoku/tixbook/internal/service/inventory"
)

type Services struct {
	Accounts *accounts.Service
	Catalog  *catalog.Service
	Booking  *booking.Service
	Ledger   *inventory.Ledger
}

// Repositories are the storage ports the services run on. The Postgres
// store and the in-memory test store both provide them.
type Repositories struct {
	Tx        catalog.Transactor
	Users     accounts.Users
	Events    catalog.Events
	Bookings  BookingStore
	Inventory inventory.Store
}

type BookingStore interface {
	booking.Bookings
	catalog.BookingCanceller
}

// Deps are the collaborators outside storage. Tokens is required; a nil
// Cache, PubSub, Limiter or Revoker switches that feature off.
type Deps struct {
	Cache   *redisrepo.Cache
	PubSub  *redisrepo.EventsPubSub
	Limiter *redisrepo.SlidingWindowLimiter
	Revoker accounts.Revoker
	Tokens  *auth.Issuer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Config struct {
	Catalog  catalog.Config
	Accounts accounts.Config
}

func NewServices(repos Repositories, deps Deps, cfg Config) *Services {
	policy := access.New()
	ledger := inventory.New(repos.Inventory, deps.Metrics)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalogDeps := catalog.Deps{
		Tx:       repos.Tx,
		Events:   repos.Events,
		Bookings: repos.Bookings,
		Ledger:   ledger,
		Policy:   policy,
		Cache:    deps.Cache,
		Metrics:  deps.Metrics,
		Logger:   logger,
	}

	bookingOpts := []booking.Option{
		booking.WithMetrics(deps.Metrics),
		booking.WithLogger(logger),
	}

	if deps.Cache != nil {
		bookingOpts = append(bookingOpts, booking.WithCache(deps.Cache))
	}
	if deps.PubSub != nil {
		catalogDeps.Publisher = deps.PubSub
		bookingOpts = append(bookingOpts, booking.WithPublisher(deps.PubSub))
	}
	if deps.Limiter != nil {
		bookingOpts = append(bookingOpts, booking.WithLimiter(deps.Limiter))
	}

	return &Services{
		Accounts: accounts.New(repos.Users, deps.Tokens, deps.Revoker, policy, logger, cfg.Accounts),
		Catalog:  catalog.New(catalogDeps, cfg.Catalog),
		Booking:  booking.New(repos.Tx, repos.Bookings, ledger, policy, bookingOpts...),
		Ledger:   ledger,
	}
}
