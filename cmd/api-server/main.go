package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/slot-booking-service/internal/api"
	"github.com/hackgods/slot-booking-service/internal/appointment"
	"github.com/hackgods/slot-booking-service/internal/config"
	"github.com/hackgods/slot-booking-service/internal/db"
	"github.com/hackgods/slot-booking-service/internal/events"
	"github.com/hackgods/slot-booking-service/internal/logger"
	redisclient "github.com/hackgods/slot-booking-service/internal/redis"
	"github.com/hackgods/slot-booking-service/internal/specialist"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
		zap.String("clinic_timezone", cfg.Location.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:        int32(cfg.PgMaxConns),
		ApplicationName: "api-server",
	})
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection error: %w", err)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	if cfg.MigrateOnStart {
		if err := db.Migrate(rootCtx, pgPool, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Redis is optional: without it bookings go straight to the ledger and
	// specialists are read from Postgres every time.
	var rdb *redis.Client
	redisCtx, cancelRedis := context.WithTimeout(rootCtx, 5*time.Second)
	rdb, err = redisclient.NewRedisClient(redisCtx,
		redisclient.ClientOptions(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize))
	cancelRedis()
	if err != nil {
		log.Warn("redis unavailable, continuing without slot lock and specialist cache", zap.Error(err))
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	var directory specialist.Directory = specialist.NewPgDirectory(pgPool)
	var locker redisclient.Locker
	if rdb != nil {
		if cfg.SpecialistTTL > 0 {
			directory = specialist.NewCachedDirectory(directory, rdb, cfg.SpecialistTTL, log)
		}
		if cfg.SlotLockEnabled {
			locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, log)
		}
	}

	var (
		publisher events.Publisher = events.NopPublisher{}
		broker    api.BrokerHealth
	)
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Warn("event broker unavailable, events go to event_logs only", zap.Error(err))
		} else {
			publisher = amqpPub
			broker = amqpPub
			log.Info("connected to event broker", zap.String("exchange", cfg.AMQPExchange))
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("error closing event publisher", zap.Error(err))
		}
	}()

	ledger := appointment.NewPgLedger(pgPool)
	svc := appointment.NewService(ledger, directory, locker, publisher, cfg, log)

	router := api.NewRouter(api.RouterConfig{
		Service:      svc,
		Logger:       log,
		PgPool:       pgPool,
		Redis:        rdb,
		Broker:       broker,
		Env:          cfg.Env,
		Version:      version,
		CORSOrigins:  cfg.CORSOrigins,
		RateLimitRPS: cfg.RateLimitRPS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}
