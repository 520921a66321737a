package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/karthik14478/clawwatch/internal/alerting"
	"github.com/karthik14478/clawwatch/internal/api"
	"github.com/karthik14478/clawwatch/internal/api/handlers"
	"github.com/karthik14478/clawwatch/internal/banner"
	"github.com/karthik14478/clawwatch/internal/config"
	"github.com/karthik14478/clawwatch/internal/database"
	"github.com/karthik14478/clawwatch/internal/database/repositories"
	"github.com/karthik14478/clawwatch/internal/discovery"
	"github.com/karthik14478/clawwatch/internal/ingestion"
	"github.com/karthik14478/clawwatch/internal/parser/agentlog"
	"github.com/karthik14478/clawwatch/internal/realtime"

	"github.com/pterm/pterm"
)

func main() {
	// Initialize logger with INFO level for production as a sensible default
	// We'll reconfigure the level after loading the configuration (LOG_LEVEL)
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

	// Print banner
	banner.Print()

	logger.Info("Initializing ClawWatch - Agent Activity Monitoring...")

	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		logger.WithCaller().Fatal("Failed to load configuration", logger.Args("error", err))
	}

	// Apply configured log level from environment variable LOG_LEVEL (default: info)
	// Supported values: trace, debug, info, warn, error, fatal
	lvl := strings.ToLower(cfg.LogLevel)
	var ptermLevel pterm.LogLevel
	switch lvl {
	case "trace":
		ptermLevel = pterm.LogLevelTrace
	case "debug":
		ptermLevel = pterm.LogLevelDebug
	case "info":
		ptermLevel = pterm.LogLevelInfo
	case "warn", "warning":
		ptermLevel = pterm.LogLevelWarn
	case "error":
		ptermLevel = pterm.LogLevelError
	case "fatal":
		ptermLevel = pterm.LogLevelFatal
	default:
		ptermLevel = pterm.LogLevelInfo
	}
	logger = pterm.DefaultLogger.WithLevel(ptermLevel)
	logger.Debug("Log level set", logger.Args("level", lvl))

	logger.Debug("Configuration loaded",
		logger.Args(
			"db_path", cfg.Database.Path,
			"server_port", cfg.Server.Port,
			"watch_dirs", strings.Join(cfg.Ingestion.WatchDirs, ","),
		))

	// Initialize database connection with configured settings
	db, err := database.NewConnection(&database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnMaxLife:  cfg.Database.ConnMaxLife,
	}, logger)
	if err != nil {
		logger.WithCaller().Fatal("Failed to connect to database", logger.Args("error", err))
	}

	// Initialize repositories
	logger.Debug("Initializing repositories...")
	eventRepo := repositories.NewAgentEventRepository(db, logger)
	ruleRepo := repositories.NewAlertRuleRepository(db)
	alertRepo := repositories.NewAlertRepository(db, logger)
	channelRepo := repositories.NewChannelRepository(db)

	// Initialize ingestion pipeline
	logger.Debug("Initializing ingestion pipeline...")
	tracker := ingestion.NewSourceTracker(logger)
	parser := agentlog.NewParser(logger)
	dedup := ingestion.NewDedupCache(cfg.Ingestion.DedupRetention)
	batcher := ingestion.NewBatchAccumulator(eventRepo, logger, cfg.Ingestion.BatchMaxSize, cfg.Ingestion.BatchHoldTime)
	coordinator := ingestion.NewCoordinator(
		tracker,
		parser,
		dedup,
		batcher,
		logger,
		cfg.Ingestion.PollInterval,
		cfg.Ingestion.BatchHoldTime,
		cfg.Ingestion.DedupPruneInterval,
	)

	// Discover session logs before ingestion starts so the first poll
	// already covers everything on disk
	logger.Debug("Starting session log discovery...")
	watcher := discovery.NewWatcher(cfg.Ingestion.WatchDirs, coordinator, logger)
	if err := watcher.Start(); err != nil {
		logger.WithCaller().Fatal("Failed to start session log discovery", logger.Args("error", err))
	}

	// An explicitly configured log path is tracked even when it lives
	// outside the watched directories
	if cfg.Ingestion.WatchLogPath != "" {
		coordinator.RegisterSource(cfg.Ingestion.WatchLogPath)
	}

	// Start ingestion engine
	logger.Info("Starting ingestion engine...")
	if err := coordinator.Start(); err != nil {
		logger.WithCaller().Fatal("Failed to start ingestion coordinator", logger.Args("error", err))
	}
	logger.Info("Ingestion engine started", logger.Args("sources", coordinator.SourceCount()))

	// Initialize database cleanup service
	logger.Debug("Initializing database cleanup service...")
	cleanupService := database.NewCleanupService(
		db,
		logger,
		cfg.Database.RetentionDays,
		cfg.Database.CleanupInterval,
		cfg.Database.CleanupTime,
		cfg.Database.VacuumEnabled,
		coordinator,
	)
	cleanupService.Start()

	// Initialize real-time metrics collector with configured interval
	logger.Info("Initializing real-time metrics collector...")
	metricsCollector := realtime.NewMetricsCollector(db, logger)
	metricsCollector.Start(cfg.Performance.RealtimeMetricsInterval)

	// Initialize rule evaluator
	logger.Debug("Initializing rule evaluator...")
	evaluator := alerting.NewEvaluator(
		ruleRepo,
		alertRepo,
		eventRepo,
		metricsCollector,
		logger,
		cfg.Alerting.EvalInterval,
	)
	evaluator.Start()

	// Initialize notification dispatcher
	logger.Debug("Initializing notification dispatcher...")
	sender := alerting.NewWebhookSender(cfg.Alerting.DeliveryTimeout, logger)
	dispatcher := alerting.NewDispatcher(
		alertRepo,
		channelRepo,
		sender,
		logger,
		cfg.Alerting.DispatchInterval,
		cfg.Alerting.DispatchPageSize,
		cfg.Alerting.DeliveryTimeout,
		cfg.Alerting.BackoffBase,
		cfg.Alerting.BackoffCap,
	)
	dispatcher.Start()

	// Initialize web server with configured settings
	logger.Info("Initializing web server...")
	alertHandler := handlers.NewAlertHandler(alertRepo, logger)
	ruleHandler := handlers.NewRuleHandler(ruleRepo, logger)
	channelHandler := handlers.NewChannelHandler(channelRepo, logger)
	realtimeHandler := handlers.NewRealtimeHandler(metricsCollector, logger)
	statusHandler := handlers.NewStatusHandler(coordinator, evaluator, dispatcher, cleanupService, eventRepo, logger)
	webServer := api.NewServer(&api.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Production: cfg.Server.Production,
	}, alertHandler, ruleHandler, channelHandler, realtimeHandler, statusHandler, logger)

	// Start web server in goroutine
	go func() {
		if err := webServer.Run(); err != nil {
			logger.WithCaller().Error("Web server error", logger.Args("error", err))
		}
	}()

	logger.Info("🐾 ClawWatch is running",
		logger.Args(
			"url", pterm.Sprintf("http://localhost:%d", cfg.Server.Port),
			"sources", coordinator.SourceCount(),
		))

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutdown signal received, stopping services...")

	// Stop discovery first so no new sources appear mid-shutdown
	logger.Debug("Stopping session log discovery...")
	watcher.Stop()

	// Stop ingestion (flushes the pending batch)
	logger.Debug("Stopping ingestion coordinator...")
	coordinator.Stop()

	// Stop evaluation and delivery; in-flight deliveries finish or fail
	// cleanly before the loops exit
	logger.Debug("Stopping rule evaluator...")
	evaluator.Stop()
	logger.Debug("Stopping notification dispatcher...")
	dispatcher.Stop()

	// Stop metrics collection and cleanup
	metricsCollector.Stop()
	logger.Debug("Stopping cleanup service...")
	cleanupService.Stop()

	// Create shutdown context with timeout (generous to drain SSE connections)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop web server (this will close SSE connections)
	logger.Debug("Stopping web server...")
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.WithCaller().Error("Web server shutdown error", logger.Args("error", err))
	} else {
		logger.Info("Web server stopped successfully")
	}

	logger.Info("ClawWatch stopped gracefully")
}
