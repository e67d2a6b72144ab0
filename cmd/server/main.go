package main // Entry point package

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gm0202/TicketSys/internal/config"
	"github.com/gm0202/TicketSys/internal/database"
	"github.com/gm0202/TicketSys/internal/logging"
	"github.com/gm0202/TicketSys/internal/queue"
	"github.com/gm0202/TicketSys/internal/repository"
	"github.com/gm0202/TicketSys/internal/router"
	"github.com/gm0202/TicketSys/internal/service"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := bootLogger(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// bootLogger logs failures that happen before the configured logger exists.
func bootLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", "ticketsys").Logger()
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
		log.Info().Msg("schema ready")
	}

	var events ports.EventPublisher
	if cfg.AMQPURL != "" {
		events = queue.NewPublisher(cfg.AMQPURL, cfg.EventsQueue, log)
	} else {
		log.Warn().Msg("RABBITMQ_URL not set, booking events disabled")
	}

	bookings := service.NewBookingService(
		repository.NewStore(db), events, log,
		service.WithSweepInterval(cfg.SweepInterval),
	)

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis unavailable, rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	e := router.New(router.Deps{
		Bookings:  bookings,
		DB:        db,
		Redis:     rdb,
		RateLimit: cfg.RateLimit,
		JWTSecret: cfg.JWTSecret,
		Log:       log,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return bookings.Reclaimer().Run(ctx)
	})
	if cfg.AMQPURL != "" && cfg.AuditEnabled {
		audit := queue.NewAuditConsumer(cfg.AMQPURL, cfg.EventsQueue, cfg.AuditLogPath, log)
		g.Go(func() error { return audit.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
