// Personad is a persona synthesis daemon with an HTTP API.
//
// This binary starts the personad server with full service initialization:
// the persona store backend, optional NATS event publishing, telemetry, and
// the processing pipeline behind POST /v1/messages.
//
// Configuration is loaded from a YAML file and PERSONAD_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	personad
//
//	# Start with an explicit config file
//	personad --config /etc/personad/config.yaml
//
//	# Container health probe
//	personad --health-check
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/config"
	httpapi "github.com/fyrsmithlabs/personad/internal/http"
	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/monitor"
	"github.com/fyrsmithlabs/personad/internal/processor"
	"github.com/fyrsmithlabs/personad/internal/store"
	"github.com/fyrsmithlabs/personad/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	probe := flag.Bool("health-check", false, "probe a running daemon and exit 0/1")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *probe {
		os.Exit(runHealthCheck(*configPath))
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("personad by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the personad server and blocks until context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Telemetry, then the logger (which may bridge into it)
//  3. Optional NATS connection for run events
//  4. Store backend and processor
//  5. HTTP server plus the config watcher
//
// Shutdown reverses it: the HTTP server drains first so no run is in
// flight when the processor releases the store.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Printf("Telemetry shutdown: %v", err)
		}
	}()

	logger, err := logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting personad",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("events", cfg.NATS.Enabled),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	nc := connectNATS(ctx, cfg, logger)

	st, err := store.New(cfg.Store, logger)
	if err != nil {
		closeNATS(nc)
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	proc, err := processor.New(cfg, processor.Dependencies{
		Store:  st,
		NATS:   nc,
		Logger: logger,
	})
	if err != nil {
		st.Close()
		closeNATS(nc)
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	srv, err := httpapi.NewServer(proc, cfg.Server, httpapi.Options{
		Version: version,
		Logger:  logger,
		NATSStatus: func() string {
			if nc == nil {
				return "disabled"
			}
			return nc.Status().String()
		},
	})
	if err != nil {
		closeProcessor(ctx, proc, logger)
		closeNATS(nc)
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	watcher := startConfigWatch(ctx, configPath, logger, proc)
	if watcher != nil {
		defer watcher.Stop()
	}

	logger.Info(ctx, "personad listening",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)))

	// Blocks until context cancellation drains the server.
	err = srv.Start(ctx)

	closeProcessor(ctx, proc, logger)
	closeNATS(nc)

	return err
}

// connectNATS dials the event broker. Failures are not fatal: the daemon
// runs standalone and the publisher treats a nil connection as disabled.
func connectNATS(ctx context.Context, cfg *config.Config, logger *logging.Logger) *nats.Conn {
	if !cfg.NATS.Enabled {
		return nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.Name),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(ctx, "nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(ctx, "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info(ctx, "nats connection closed")
		}),
	)
	if err != nil {
		logger.Warn(ctx, "nats connect failed, run events disabled",
			zap.String("url", cfg.NATS.URL),
			zap.Error(err))
		return nil
	}

	logger.Info(ctx, "nats client ready",
		zap.String("url", cfg.NATS.URL),
		zap.String("status", nc.Status().String()))
	return nc
}

func closeNATS(nc *nats.Conn) {
	if nc != nil {
		nc.Close()
	}
}

func closeProcessor(ctx context.Context, proc *processor.Processor, logger *logging.Logger) {
	if err := proc.Close(); err != nil {
		logger.Error(ctx, "processor close failed", zap.Error(err))
	}
}

// startConfigWatch hot-reloads the runtime-adjustable config sections:
// the log level and the synthesis tuning. Watch failures degrade to
// static configuration with a warning.
func startConfigWatch(ctx context.Context, path string, logger *logging.Logger, proc *processor.Processor) *config.Watcher {
	if path == "" {
		return nil
	}

	w, err := config.NewWatcher(path)
	if err != nil {
		logger.Warn(ctx, "config watch unavailable", zap.Error(err))
		return nil
	}
	if err := w.Start(ctx); err != nil {
		logger.Warn(ctx, "config watch unavailable", zap.Error(err))
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-w.Configs():
				if !ok {
					return
				}
				logger.SetLevel(next.Logging.Level)
				proc.Reload(next)
				logger.Info(ctx, "configuration reloaded",
					zap.String("log_level", next.Logging.Level.String()))
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				logger.Warn(ctx, "config reload failed", zap.Error(err))
			}
		}
	}()

	logger.Info(ctx, "watching config file", zap.String("path", path))
	return w
}

// runHealthCheck probes a running daemon, for container health probes.
func runHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check: %v\n", err)
		return 1
	}

	url := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	health, err := monitor.NewStatsClient(url).FetchHealth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check: %v\n", err)
		return 1
	}
	if health.Status != "ok" {
		fmt.Fprintf(os.Stderr, "health check: daemon reports %q\n", health.Status)
		return 1
	}

	fmt.Println("ok")
	return 0
}
