package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"livesession/internal/core/ports"
	httphandlers "livesession/internal/handlers/http"
	"livesession/internal/infrastructure/auth"
	"livesession/internal/infrastructure/distributed"
	"livesession/internal/infrastructure/middleware"
	"livesession/internal/infrastructure/monitoring"
	redisrepo "livesession/internal/infrastructure/repositories/redis"
	"livesession/internal/infrastructure/signal"
	"livesession/pkg/config"
	"livesession/pkg/logger"
	"livesession/pkg/retry"
	"livesession/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/livesession/config.yaml",
		"config.yaml",
	}
	if *configPath != "" {
		configPaths = []string{*configPath}
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("using default configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics ports.MetricsRecorder
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(registry)
	}

	opts, err := signal.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatalw("invalid session options", "error", err)
	}

	healthChecker := monitoring.NewHealthChecker()

	// Optional Redis mirror of session events
	var sink ports.EventSink
	var bus *distributed.EventBus
	if cfg.Redis.Enabled {
		var redisClient *goredis.Client
		err := retry.Retry(ctx, retry.DefaultConfig(), func() error {
			var err error
			redisClient, err = redisrepo.NewRedisClient(ctx, redisrepo.Options{
				Address:  cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				PoolSize: cfg.Redis.PoolSize,
			}, log)
			return err
		})
		if err != nil {
			log.Fatalw("failed to connect to Redis", "error", err)
		}
		defer redisrepo.CloseRedisClient(redisClient)

		bus = distributed.NewEventBus(redisClient, opts.ClientID, cfg.Redis.ChannelPrefix, cfg.Redis.QueueSize, log)
		bus.Start(ctx)
		sink = bus

		healthChecker.AddRedisCheck(monitoring.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}), cfg.Monitoring.HealthCheckInterval, 2*time.Second)
	}

	client := signal.NewClient(
		opts,
		signal.NewWebSocketDialer(signal.DialerConfigFromConfig(cfg)),
		auth.NewTokenSource(cfg, log),
		metrics,
		sink,
		log,
	)

	healthChecker.AddSessionCheck(client.State, cfg.Monitoring.HealthCheckInterval)
	healthChecker.StartBackgroundChecks(ctx)

	log.Infow("session client configured",
		"endpoint", opts.URL,
		"client_id", opts.ClientID,
		"auto_connect", cfg.Session.AutoConnect,
	)
	if cfg.Session.AutoConnect {
		client.Connect()
	}

	// Local control surface
	var srv *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(
			middleware.RecoveryMiddleware(log),
			middleware.RequestIDMiddleware(),
			middleware.SessionContextMiddleware(opts.ClientID, func() string {
				if stream := client.StreamData(); stream != nil {
					return string(stream.StreamID)
				}
				return ""
			}),
			middleware.RequestLoggingMiddleware(logger.NewContextLogger(zapLogger)),
			middleware.TracingMiddleware(),
			middleware.ErrorHandlerMiddleware(log),
			middleware.NewHTTPRateLimitMiddleware(cfg),
		)

		var gatherer prometheus.Gatherer
		if cfg.Monitoring.PrometheusEnabled {
			gatherer = registry
		}
		httphandlers.NewSessionHandler(client).SetupRoutes(router)
		httphandlers.NewHealthHandler(healthChecker, client.State, gatherer).SetupRoutes(router)

		srv = &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		go func() {
			log.Infof("Starting control surface on %s", cfg.Server.Address)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down session client...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Error during server shutdown", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Errorw("Error force closing server", "error", closeErr)
			}
		}
	}

	if err := client.Close(); err != nil {
		log.Errorw("Error closing session client", "error", err)
	}

	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Errorw("Error closing event bus", "error", err, "dropped", bus.Dropped())
		}
	}

	cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	log.Info("Session client stopped")
}
