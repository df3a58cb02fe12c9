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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"assetlens/internal/adapter"
	"assetlens/internal/codec"
	"assetlens/internal/config"
	"assetlens/internal/correlate"
	"assetlens/internal/domain"
	"assetlens/internal/handler"
	"assetlens/internal/hub"
	"assetlens/internal/repository/sqlite"
	"assetlens/internal/service"
	"assetlens/internal/watcher"
)

type options struct {
	configPath  string
	dbPath      string
	scan        bool
	execute     bool
	importPath  string
	watch       bool
	output      string
	listen      string
	metricsAddr string
	logLevel    string
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "config file (default: search standard locations)")
	pflag.StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	pflag.BoolVar(&opts.scan, "scan", false, "collect scanner sources and run the heuristic pass")
	pflag.BoolVar(&opts.execute, "execute", false, "run the execution pass over stored entities")
	pflag.StringVar(&opts.importPath, "import", "", "feed records from a JSON or YAML file to the heuristic pass")
	pflag.BoolVar(&opts.watch, "watch", false, "rerun the heuristic pass whenever the --import file changes")
	pflag.StringVarP(&opts.output, "output", "o", "", "write a report to stdout: json or yaml")
	pflag.StringVar(&opts.listen, "listen", "", "serve the HTTP API, event stream and metrics on this address until interrupted")
	pflag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address until interrupted")
	pflag.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "assetlens: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfgPath != "" {
		logger.Info("Loaded config", zap.String("path", cfgPath))
	}

	if opts.watch && opts.importPath == "" {
		return errors.New("--watch needs --import")
	}

	var exporter codec.Exporter
	if opts.output != "" {
		var ok bool
		if _, exporter, ok = codec.ForFormat(opts.output); !ok {
			return fmt.Errorf("unknown output format %q", opts.output)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		srv := serve(opts.metricsAddr, mux, logger)
		defer shutdown(srv, logger)
	}

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()
	logger.Info("Database opened", zap.String("path", cfg.Database.Path))

	registry := adapter.NewRegistry(logger)
	if err := registerSources(registry, cfg, logger); err != nil {
		return err
	}
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("start sources: %w", err)
	}
	defer func() {
		if err := registry.Stop(); err != nil {
			logger.Warn("Source shutdown error", zap.Error(err))
		}
	}()

	var execution *correlate.ExecutionCorrelator
	if cfg.SSH.Enabled {
		executor, err := adapter.NewSSHExecutor(sshExecutorConfig(cfg.SSH), logger)
		if err != nil {
			return fmt.Errorf("ssh executor: %w", err)
		}
		defer executor.Close()
		execution = correlate.NewExecutionCorrelator(executor, registry, registry, logger,
			correlate.ExecutionConfig{Timeout: cfg.Correlation.ExecutionTimeout.Duration()})
	}

	eventBus := service.NewEventBus()
	events := make(chan service.Event, 100)
	eventBus.Subscribe(events)

	var sseHub *hub.Hub
	if opts.listen != "" {
		sseHub = hub.New(logger)
		go sseHub.Run(ctx)
	}
	go forwardEvents(events, sseHub, logger)

	svc := service.NewCorrelationService(repo, execution, eventBus, logger)

	if opts.listen != "" {
		api := handler.NewCorrelationHandler(repo, svc, registry, logger)
		mux := http.NewServeMux()
		api.Routes(mux)
		mux.Handle("GET /events", sseHub)
		mux.Handle("GET /metrics", promhttp.Handler())
		srv := serve(opts.listen, handler.Chain(mux,
			handler.RequestID,
			handler.Recover(logger),
			handler.Logger(logger),
		), logger)
		defer shutdown(srv, logger)
	}

	scannerPass := func(collect bool) error {
		var records []domain.SourceRecord
		if collect {
			records = registry.CollectScanners(ctx)
		}
		if opts.importPath != "" {
			imported, err := importRecords(opts.importPath, scannerInstances(cfg), logger)
			if err != nil {
				return err
			}
			records = append(records, imported...)
		}
		if _, err := svc.ScannerPass(ctx, records); err != nil {
			return fmt.Errorf("scanner pass: %w", err)
		}
		return nil
	}

	if opts.scan || opts.importPath != "" {
		if err := scannerPass(opts.scan); err != nil {
			return err
		}
	}

	if opts.execute {
		if _, err := svc.ExecutionPass(ctx); err != nil {
			return err
		}
	}

	if exporter != nil {
		report, err := svc.Report(ctx)
		if err != nil {
			return err
		}
		if err := exporter.Export(report, os.Stdout); err != nil {
			return err
		}
	}

	if opts.watch {
		w := watcher.New(opts.importPath, func() {
			if err := scannerPass(false); err != nil {
				logger.Error("Rerun after change failed", zap.Error(err))
			}
		}, logger)
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch %s: %w", opts.importPath, err)
		}
		return nil
	}

	if opts.listen != "" || opts.metricsAddr != "" {
		logger.Info("Serving until interrupted")
		<-ctx.Done()
	}

	return nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func serve(addr string, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return srv
}

func shutdown(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
	}
}

// forwardEvents logs service events and relays them to SSE clients
func forwardEvents(events <-chan service.Event, sseHub *hub.Hub, logger *zap.Logger) {
	for event := range events {
		if sseHub != nil {
			sseHub.Broadcast(event)
		}
		switch payload := event.Payload.(type) {
		case domain.CorrelationEdge:
			logger.Info("Edge proposed",
				zap.Stringer("left", payload.Left),
				zap.Stringer("right", payload.Right),
				zap.String("reason", string(payload.Reason)),
			)
		case domain.Warning:
			logger.Warn("Correlation warning",
				zap.String("kind", string(payload.Kind)),
				zap.String("entity", payload.EntityID),
				zap.String("message", payload.Message),
			)
		}
	}
}
