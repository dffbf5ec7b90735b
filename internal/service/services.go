package service

import (
	"log/slog"

	"github.com/ticketera/reserva/internal/clock"
	"github.com/ticketera/reserva/internal/payment"
	postgres "github.com/ticketera/reserva/internal/repository/postgres"
	redis "github.com/ticketera/reserva/internal/repository/redis"
	"github.com/ticketera/reserva/internal/service/admin"
	"github.com/ticketera/reserva/internal/service/checkout"
	"github.com/ticketera/reserva/internal/service/orders"
	"github.com/ticketera/reserva/internal/service/query"
	"github.com/ticketera/reserva/internal/service/reservation"
)

type Services struct {
	Reservation *reservation.Service
	Checkout    *checkout.Service
	Query       *query.Service
	Orders      *orders.Service
	Admin       *admin.Service
}

type Config struct {
	Reservation reservation.Config
	Query       query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.AvailabilityPubSub,
	limiter *redis.SlidingWindowLimiter,
	gateway payment.Gateway,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Reservation: reservation.New(store.Query(), store.Reservations(), cache, pubsub, limiter, clk, cfg.Reservation),
		Checkout:    checkout.New(store.Reservations(), store.Orders(), gateway, cache, pubsub, clk, logger),
		Query:       query.New(store, cache, clk, cfg.Query),
		Orders:      orders.New(store),
		Admin:       admin.New(store, cache, pubsub),
	}
}
