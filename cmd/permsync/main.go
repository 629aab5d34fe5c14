package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/permsync/pkg/api"
	"github.com/platinummonkey/permsync/pkg/audit"
	"github.com/platinummonkey/permsync/pkg/config"
	"github.com/platinummonkey/permsync/pkg/identitystore"
	"github.com/platinummonkey/permsync/pkg/middleware"
	"github.com/platinummonkey/permsync/pkg/observability"
	"github.com/platinummonkey/permsync/pkg/provision"
	"github.com/platinummonkey/permsync/pkg/reconcile"
	"github.com/platinummonkey/permsync/pkg/reportstore"
	"github.com/platinummonkey/permsync/pkg/sweep"
	"github.com/platinummonkey/permsync/pkg/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "permsync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout)
	logger.Info("Starting permsync")

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	auditStore, err := audit.NewStore(cfg.Audit.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	logger.WithField("path", cfg.Audit.DBPath).Info("Audit store opened")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Redis only backs rate limiting, which fails open
			logger.WithError(err).Warn("Redis unreachable at startup, continuing")
		}
	}

	broker := token.NewBroker(token.Config{
		TokenURL:            cfg.ReportStore.BaseURL + "/oauth/token",
		ServiceAccountEmail: cfg.ReportStore.ServiceAccountEmail,
		EmbedSecret:         cfg.ReportStore.EmbedSecret,
	}, metrics)

	reportClient := reportstore.NewClient(reportstore.ClientConfig{
		BaseURL: cfg.ReportStore.BaseURL,
		SiteID:  cfg.ReportStore.SiteID,
		Timeout: cfg.ReportStore.RequestTimeout,
	}, broker, logger, metrics)

	identityClient := identitystore.NewClient(identitystore.ClientConfig{
		BaseURL:    cfg.IdentityStore.URL,
		ServiceKey: cfg.IdentityStore.ServiceKey,
		Timeout:    cfg.IdentityStore.RequestTimeout,
	}, logger, metrics)

	coordinator := provision.NewCoordinator(reportClient, identityClient, logger, auditStore, metrics)
	reconciler := reconcile.NewReconciler(reportClient, logger, auditStore, metrics)
	snapshots := api.NewSnapshotCache(0, 0, metrics)

	server := api.NewServer(api.ServerConfig{
		AdminGroup: cfg.ReportStore.AdminGroup,
	}, broker, reportClient, coordinator, reconciler, snapshots, nil, logger, metrics)

	var handler http.Handler = server
	if redisClient != nil {
		limiter := middleware.NewDistributedRateLimiter(redisClient, nil, "permsync")
		handler = middleware.RateLimit(limiter)(handler)
	}
	if metrics != nil {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	handler = observability.RecoveryMiddleware(logger)(handler)
	handler = middleware.RequestID(logger)(handler)
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "permsync")
	}

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(auditStore.DB(), redisClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: 10 * time.Second,
	}

	var sweeper *sweep.Sweeper
	if cfg.Sweep.Schedule != "" {
		sweeper = sweep.NewSweeper(reportClient, identityClient, logger, auditStore, metrics)
		if err := sweeper.Start(cfg.Sweep.Schedule); err != nil {
			return fmt.Errorf("failed to start orphan sweeper: %w", err)
		}
		logger.WithField("schedule", cfg.Sweep.Schedule).Info("Orphan sweeper started")
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if sweeper != nil {
			sweeper.Stop()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditStore.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	return shutdown.WaitForShutdown()
}
