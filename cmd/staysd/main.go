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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"hotel-stays-backend/config"
	"hotel-stays-backend/internal/api"
	"hotel-stays-backend/internal/booking"
	"hotel-stays-backend/internal/catalog"
	"hotel-stays-backend/internal/catalogsync"
	"hotel-stays-backend/internal/db"
	"hotel-stays-backend/internal/lock"
	"hotel-stays-backend/internal/mw"
	"hotel-stays-backend/internal/notification"
	"hotel-stays-backend/internal/observability"
	"hotel-stays-backend/internal/reservation"
	"hotel-stays-backend/internal/store"
	"hotel-stays-backend/internal/subscription"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "staysd:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; variables may come from the environment.
	_ = godotenv.Load()

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	configPath := pflag.String("config", defaultPath, "path to the YAML configuration file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", *configPath, err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", *configPath))

	if len(cfg.Auth.JWTSecret) == 0 {
		return errors.New("auth.jwt_secret (or JWT_SECRET) must be set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	gormDB, err := db.Init(&cfg.Database, logger.Named("db"), cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	locker, closeLocker, err := newRoomLocker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	var events notification.EventPublisher = notification.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		writer := notification.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("kafka"))
		events = notification.NewKafkaPublisher(writer)
		logger.Info("publishing lifecycle events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		if err := events.Close(); err != nil {
			logger.Warn("close event publisher", zap.Error(err))
		}
	}()

	var (
		pusher         *notification.WebPusher
		webpushOptions *webpush.Options
	)
	if cfg.Push.Enabled() {
		pusher = notification.NewWebPusher(gormDB, cfg.Push, logger.Named("webpush"))
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Info("VAPID keys not configured, web push disabled")
	}

	registry := subscription.NewRegistry(cfg.Notification.StreamBuffer)
	dispatcher := notification.NewDispatcher(gormDB, registry, logger.Named("dispatcher"), notification.Options{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
		Pusher:    pusher,
		Events:    events,
	})
	dispatcher.Start(ctx)

	appStore := store.NewGormStore(gormDB, logger.Named("store"))
	roomCatalog := catalog.NewGormCatalog(gormDB, cfg.Catalog.CacheTTL)

	roomResponses := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)

	syncSvc := catalogsync.NewService(cfg.Catalog.Sync, appStore,
		catalogsync.Invalidators{roomCatalog, roomResponses}, logger.Named("catalogsync"))
	go syncSvc.Run(ctx)

	coordinator := booking.NewCoordinator(gormDB, roomCatalog, locker, dispatcher, logger.Named("booking"), booking.Options{
		TaxRate:  cfg.Booking.TaxRate,
		Policy:   reservation.Policy{AllowCancelAfterConfirm: cfg.Booking.AllowCancelAfterConfirm},
		LockWait: cfg.Booking.LockWait,
	})

	handler := api.NewHandler(api.Deps{
		Store:    appStore,
		Booking:  coordinator,
		Catalog:  roomCatalog,
		Registry: registry,
		WebPush:  webpushOptions,
		Log:      logger.Named("api"),
	})
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		Issuer:          cfg.Auth.Issuer,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		RoomCache:       roomResponses,
	}, logger.Named("http"))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	// Live streams end when their request context is cancelled by Shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("server gracefully stopped")
	return nil
}

// newRoomLocker picks the room boundary for this deployment.
func newRoomLocker(cfg *config.Config, logger *zap.Logger) (lock.RoomLocker, func(), error) {
	switch cfg.Booking.LockBackend {
	case "local":
		logger.Info("using in-process room lock", zap.Duration("wait", cfg.Booking.LockWait))
		return lock.NewLocalLocker(cfg.Booking.LockWait), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: time.Duration(cfg.Redis.DialTimeout) * time.Millisecond,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis at %s is unreachable: %w", cfg.Redis.Addr, err)
		}
		logger.Info("using redis room lock", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.LockTTL))
		locker := lock.NewRedisLocker(client, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL, cfg.Booking.LockWait, logger.Named("roomlock"))
		return locker, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown booking.lock_backend %q", cfg.Booking.LockBackend)
	}
}
