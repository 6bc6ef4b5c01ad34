package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jonny/executor-provisioner/internal/adapter/inbound/httpapi"
	"github.com/jonny/executor-provisioner/internal/adapter/outbound/kubernetes"
	"github.com/jonny/executor-provisioner/internal/adapter/outbound/notification"
	slacknotifier "github.com/jonny/executor-provisioner/internal/adapter/outbound/notification/slack"
	"github.com/jonny/executor-provisioner/internal/adapter/outbound/persistence/postgres"
	"github.com/jonny/executor-provisioner/internal/adapter/outbound/persistence/sqlite"
	"github.com/jonny/executor-provisioner/internal/config"
	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
	"github.com/jonny/executor-provisioner/internal/domain/service"
	"github.com/jonny/executor-provisioner/pkg/health"
	"github.com/jonny/executor-provisioner/pkg/version"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	printVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = buildLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Metrics registry ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// --- Database ---
	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.close()

	// --- Control plane ---
	controlPlane, err := buildControlPlane(cfg.Kubernetes, logger, registry)
	if err != nil {
		logger.Error("failed to build control plane client", "error", err)
		os.Exit(1)
	}

	// --- Notifier ---
	var notifier outbound.Notifier = notification.NewNoopNotifier(logger)
	if cfg.Slack.Enabled {
		notifier = slacknotifier.NewNotifier(slacknotifier.Config{
			BotToken:       cfg.Slack.BotToken,
			DefaultChannel: cfg.Slack.DefaultChannel,
			Channels:       cfg.Slack.Channels,
		})
	} else {
		logger.Info("slack notifications disabled")
	}

	// --- Domain service ---
	provisioner := service.NewProvisioner(controlPlane, store.repos, notifier, logger)

	// --- HTTP API ---
	rpm := 0
	if cfg.Server.RateLimit.Enabled {
		rpm = cfg.Server.RateLimit.RequestsPerMinute
	}
	apiServer := httpapi.NewServer(httpapi.ServerConfig{
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		APIToken:          cfg.Server.APIToken,
		RequestsPerMinute: rpm,
	}, httpapi.NewHandler(provisioner, logger), logger, registry)

	// --- Health checker ---
	checker := health.NewChecker()
	checker.Register("database", store.ping)
	checker.Register("control_plane", controlPlane.HealthCheck)

	// --- Metrics server ---
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/healthz", checker.LivenessHandler())
	metricsMux.HandleFunc("/readyz", checker.ReadinessHandler())
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// API server.
	g.Go(func() error {
		return apiServer.Start(gCtx)
	})

	// Metrics/health server.
	if cfg.Server.MetricsPort > 0 {
		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Server.MetricsPort)
			errCh := make(chan error, 1)
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
			select {
			case <-gCtx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return metricsServer.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		})
	}

	logger.Info("executor-provisioner started", version.LogAttrs()...)
	if cfg.Slack.Enabled {
		if err := notifier.SendMessage(ctx, "executor-provisioner "+version.Version+" started", outbound.NotificationInfo); err != nil {
			logger.Warn("startup notification failed", "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("executor-provisioner stopped")
}

// storeHandle is the driver-independent view of the opened database.
type storeHandle struct {
	repos service.Repositories
	ping  health.CheckFunc
	close func() error
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*storeHandle, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &storeHandle{
			repos: service.Repositories{
				Executors: postgres.NewExecutorRepo(store),
				Audits:    postgres.NewAuditRepo(store),
			},
			ping:  store.Ping,
			close: store.Close,
		}, nil
	default:
		store, err := sqlite.NewStore(ctx, sqlite.Config{
			Path:              cfg.SQLite.Path,
			MaxOpenConns:      cfg.SQLite.MaxOpenConns,
			PragmaJournalMode: cfg.SQLite.PragmaJournalMode,
			PragmaBusyTimeout: cfg.SQLite.PragmaBusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return &storeHandle{
			repos: service.Repositories{
				Executors: sqlite.NewExecutorRepo(store),
				Audits:    sqlite.NewAuditRepo(store),
			},
			ping:  store.Ping,
			close: store.Close,
		}, nil
	}
}

func buildControlPlane(cfg config.KubernetesConfig, logger *slog.Logger, reg prometheus.Registerer) (outbound.ControlPlane, error) {
	if cfg.DryRun {
		logger.Warn("kubernetes dry run enabled; no requests reach the control plane")
		return kubernetes.NewNoopControlPlane(logger), nil
	}

	restConfig, err := kubernetes.NewRESTConfig(kubernetes.ClientConfig{
		InCluster:  cfg.InCluster,
		Kubeconfig: cfg.Kubeconfig,
		Host:       cfg.Host,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	metrics := kubernetes.NewMetrics(reg)
	transport, err := kubernetes.NewTransport(restConfig, logger, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("control plane configured", "host", restConfig.Host, "validate_names", cfg.ValidateNames)
	return kubernetes.NewControlPlane(transport, kubernetes.ControlPlaneOptions{
		Policy: kubernetes.NewPolicy(kubernetes.PolicyConfig{
			BlockedNamespaces:    cfg.BlockedNamespaces,
			AllowedImagePrefixes: cfg.AllowedImagePrefixes,
		}),
		ValidateNames:            cfg.ValidateNames,
		DeleteGracePeriodSeconds: cfg.DeleteGracePeriodSeconds,
		Logger:                   logger,
		Metrics:                  metrics,
	}), nil
}

// buildLogger constructs a slog.Logger based on config.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
