package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ticketera/reserva/internal/clock"
	"github.com/ticketera/reserva/internal/config"
	"github.com/ticketera/reserva/internal/payment"
	"github.com/ticketera/reserva/internal/postgres"
	"github.com/ticketera/reserva/internal/redis"
	postgresrepo "github.com/ticketera/reserva/internal/repository/postgres"
	redisrepo "github.com/ticketera/reserva/internal/repository/redis"
	"github.com/ticketera/reserva/internal/service"
	"github.com/ticketera/reserva/internal/service/query"
	"github.com/ticketera/reserva/internal/service/reservation"
	"github.com/ticketera/reserva/internal/sweeper"
	httpgin "github.com/ticketera/reserva/internal/transport/http/gin"
	"github.com/ticketera/reserva/migrations"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	sweeper    *sweeper.Sweeper
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	if err := migrations.Apply(context.Background(), pgxPool); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewAvailabilityPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "rl", 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	gateway := payment.NewClient(
		cfg.Payment.Provider,
		cfg.Payment.BaseURL,
		cfg.Payment.APIKey,
		nil,
	)

	// Initialize services
	services := service.NewServices(
		store, cache, pubsub, limiter, gateway, clock.System{}, logger,
		service.Config{
			Reservation: reservation.Config{
				HoldTTL:  cfg.Reservation.HoldDuration,
				FeeBps:   cfg.Reservation.FeeBps,
				Currency: cfg.Reservation.Currency,
			},
			Query: query.Config{},
		},
	)

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, cfg.Payment.WebhookSecret, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		sweeper: sweeper.New(services.Reservation, cfg.Reservation.SweepInterval, logger),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Background expiry sweep
	g.Go(func() error {
		if err := a.sweeper.Run(gCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("sweeper stopped: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
