package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/export"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/repository"
	"courtbook/internal/scheduler"
	"courtbook/internal/service"
	"courtbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := db.SeedCatalog(ctx, cfg.Catalog); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	locker, err := initLocker(cfg, redisClient, &logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(&logger)
	events.LogEvents(bus, &logger)

	svc := service.NewBookingService(db, locker, bus, logging.Component(&logger, "booking"))
	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Worker.Enabled {
		notifications := worker.NewNotificationWorker(
			db,
			worker.NewLogNotifier(logging.Component(&logger, "notifier")),
			redisClient,
			worker.RetryPolicyFromConfig(cfg.Worker),
			cfg.Worker.PollInterval,
			cfg.Worker.BatchSize,
			logging.Component(&logger, "notification_worker"),
		)
		for _, t := range []string{events.EventWaitlistPromoted, events.EventWaitlistExpired} {
			bus.Subscribe(t, func(*events.Event) error {
				notifications.Wake()
				return nil
			})
		}
		g.Go(func() error {
			notifications.Start(ctx)
			return nil
		})
	}

	sched, err := initScheduler(cfg, svc, db, exporter, &logger)
	if err != nil {
		return err
	}
	sched.Start()
	g.Go(func() error {
		<-ctx.Done()
		return sched.Stop()
	})

	if cfg.Monitoring.PrometheusEnabled {
		metricsServer := newMetricsServer(cfg.Monitoring.PrometheusPort)
		g.Go(func() error { return serveHTTP(ctx, metricsServer, &logger, "metrics") })
	}

	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		httpServer := api.NewHTTPServer(cfg.API, svc, exporter, &logger)
		g.Go(httpServer.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if cfg.API.Enabled && cfg.API.GRPC.Enabled {
		grpcServer, err := api.NewGRPCServer(&cfg.API, db, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		g.Go(grpcServer.Serve)
		g.Go(func() error {
			grpcServer.WatchHealth(ctx)
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			grpcServer.Shutdown(shutdownCtx)
			return nil
		})
	}

	logger.Info().
		Str("lock_backend", cfg.Booking.LockBackend).
		Bool("http", cfg.API.Enabled && cfg.API.HTTP.Enabled).
		Bool("grpc", cfg.API.Enabled && cfg.API.GRPC.Enabled).
		Msg("courtbook started")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("courtbook terminated with error")
		return err
	}
	logger.Info().Msg("courtbook stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, *baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed")
		if cfg.Booking.LockBackend == "redis" {
			// the locker reports the outage per request
			return client
		}
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initLocker(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) (domain.Locker, error) {
	memory := repository.NewMemoryLocker(cfg.Booking.LockTimeout())

	switch cfg.Booking.LockBackend {
	case "memory":
		return memory, nil
	case "redis":
		if client == nil {
			return nil, errors.New("lock_backend=redis requires redis.address")
		}
		return repository.NewRedisLocker(client, cfg.Booking.LockTimeout(), cfg.Booking.LockTTL()), nil
	case "failover":
		if client == nil {
			logger.Warn().Msg("redis unavailable, using in-process locks")
			return memory, nil
		}
		primary := repository.NewRedisLocker(client, cfg.Booking.LockTimeout(), cfg.Booking.LockTTL())
		return repository.NewFailoverLocker(primary, memory, logging.Component(logger, "locker")), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Booking.LockBackend)
	}
}

func initScheduler(cfg *config.Config, svc *service.BookingService, db *database.DB, exporter *export.Exporter, logger *zerolog.Logger) (*scheduler.Service, error) {
	sched, err := scheduler.New(logging.Component(logger, "scheduler"))
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if cfg.Waitlist.ExpiryEnabled {
		if _, err := sched.AddWaitlistExpiry(cfg.Waitlist.ExpiryCron, svc); err != nil {
			return nil, fmt.Errorf("schedule waitlist expiry: %w", err)
		}
	}

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	if backup.Enabled() {
		if _, err := sched.AddBackup(cfg.Backup.Schedule, backup); err != nil {
			return nil, fmt.Errorf("schedule backup: %w", err)
		}
	}

	if cfg.Exports.Schedule != "" {
		if _, err := sched.AddReportExport(cfg.Exports.Schedule, exporter); err != nil {
			return nil, fmt.Errorf("schedule report export: %w", err)
		}
	}
	return sched, nil
}

func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func serveHTTP(ctx context.Context, srv *http.Server, logger *zerolog.Logger, name string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("addr", srv.Addr).Msg(name + " server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
