package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/api"
	"github.com/zsiec/edgeview/internal/config"
	"github.com/zsiec/edgeview/internal/health"
	"github.com/zsiec/edgeview/internal/logger"
	"github.com/zsiec/edgeview/internal/memory"
	"github.com/zsiec/edgeview/internal/server"
	"github.com/zsiec/edgeview/internal/session"
	"github.com/zsiec/edgeview/internal/stream"
	"github.com/zsiec/edgeview/pkg/bridge"
	"github.com/zsiec/edgeview/pkg/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults only when empty)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting EdgeView frame service")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server error")
	}
	log.Info("EdgeView stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	filter, err := newFilter(&cfg.Filter, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"engine":    filter.Detector().Name(),
		"layout":    filter.Layout().String(),
		"low":       filter.Thresholds().Low,
		"high":      filter.Thresholds().High,
		"max_width": cfg.Filter.MaxWidth,
	}).Info("Edge filter configured")

	mem := memory.NewController(cfg.Memory.MaxTotal, cfg.Memory.MaxPerSession)

	srv := server.New(&cfg.Server, log)
	srv.RegisterHealthChecker(health.NewFilterChecker(filter))
	srv.RegisterHealthChecker(health.NewMemoryBudgetChecker(mem))

	var registry session.Registry
	if cfg.Redis.Enabled {
		client, err := connectRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		log.WithField("addresses", cfg.Redis.Addresses).Info("Connected to Redis successfully")
		srv.RegisterHealthChecker(health.NewRedisChecker(client))
		registry = session.NewRedisRegistry(client, logger.Component(log, "sessions"), cfg.Stream.SessionTTL)
	} else {
		log.Info("Redis disabled, keeping stream sessions in memory")
		registry = session.NewMemoryRegistry(cfg.Stream.SessionTTL)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.WithError(err).Error("Failed to close session registry")
		}
	}()

	b := bridge.New(filter, logger.Component(log, "bridge"))
	apiOpts := []api.Option{
		api.WithMemory(mem),
		api.WithSessions(registry),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}

	var streams *stream.Handler
	if cfg.Stream.Enabled {
		streams = stream.NewHandler(filter, mem, registry, cfg.Stream, cfg.Filter.MaxFrameBytes(), log)
		srv.RegisterRoutes(streams.RegisterRoutes)
		apiOpts = append(apiOpts, api.WithStreamStats(streams))
	}
	srv.RegisterRoutes(api.NewHandler(b, log, apiOpts...).RegisterRoutes)

	if cfg.Metrics.Enabled {
		metricsSrv := startMetricsServer(cfg.Metrics, logger.Component(log, "metrics"))
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer done()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	// hijacked websocket connections outlive http.Server.Shutdown
	if streams != nil {
		go func() {
			<-ctx.Done()
			closeCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer done()
			if err := streams.Close(closeCtx); err != nil {
				log.WithError(err).Warn("Stream sessions did not close in time")
			}
		}()
	}

	return srv.Start(ctx)
}

func connectRedis(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// startMetricsServer serves Prometheus metrics on their own port.
func startMetricsServer(cfg config.MetricsConfig, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.WithField("addr", srv.Addr).Info("Starting metrics server")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server error")
		}
	}()
	return srv
}
