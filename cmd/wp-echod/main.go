package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/haukened/wp-echo/internal/echo/common/clock"
	"github.com/haukened/wp-echo/internal/echo/common/log"
	"github.com/haukened/wp-echo/internal/echo/config"
	"github.com/haukened/wp-echo/internal/echo/domain"
	"github.com/haukened/wp-echo/internal/echo/gateways/transport"
	"github.com/haukened/wp-echo/internal/echo/repos/blocklist"
	"github.com/haukened/wp-echo/internal/echo/repos/hitcount"
	"github.com/haukened/wp-echo/internal/echo/services/echoer"
	"github.com/haukened/wp-echo/internal/echo/services/pool"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "wp-echod"

	// minWorkers is the floor for the auto-sized pool.
	minWorkers = 2
)

// Application holds all the components of the echo server
type Application struct {
	config    *config.AppConfig
	transport *transport.TCPTransport
	pool      *pool.Pool
	cache     *hitcount.Counter
	echoer    *echoer.Echoer
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"addr":      cfg.Addr,
		"port":      cfg.Port,
		"workers":   cfg.Workers,
		"delay_ms":  cfg.DelayMS,
		"blocklist": cfg.BlocklistPath,
	}, "Starting echo server")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals: interrupt and terminate both trigger the
	// same one-way graceful drain.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	// Start the echo server
	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	// Report accumulated access counts after the drain completes.
	printAccessStats(os.Stdout, app.cache.Snapshot())

	log.Info(nil, "Echo server stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Shared clock so the simulated work delay is a swappable dependency
	clk := clock.RealClock{}

	// Initialize logger (already configured globally)
	logger := log.GetLogger()

	// Build the blocklist (optional) and the hit counter
	blk, err := buildBlocklist(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist: %w", err)
	}

	cache := hitcount.New()

	// Build the worker pool. A construction failure here is fatal: the
	// process never runs with a partial pool.
	workers := cfg.Workers
	if workers == 0 {
		workers = max(runtime.NumCPU(), minWorkers)
	}
	workerPool, err := pool.New(workers, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	log.Info(map[string]any{"workers": workers}, "Worker pool configured")

	// Build the connection handler service
	echoService := echoer.NewEchoer(echoer.Options{
		Cache:     cache,
		Blocklist: blk,
		Clock:     clk,
		Logger:    logger,
		Delay:     cfg.Delay(),
	})

	// Build transport layer
	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	tcpTransport := transport.NewTCPTransport(addr, workerPool, logger)

	return &Application{
		config:    cfg,
		transport: tcpTransport,
		pool:      workerPool,
		cache:     cache,
		echoer:    echoService,
	}, nil
}

// buildBlocklist loads the configured blocklist file, or a noop when none
// is configured.
func buildBlocklist(cfg *config.AppConfig) (echoer.Blocklist, error) {
	if cfg.BlocklistPath == "" {
		return blocklist.NoopBlocklist{}, nil
	}

	blk, err := blocklist.Load(cfg.BlocklistPath)
	if err != nil {
		return nil, err
	}

	log.Info(map[string]any{
		"path":  cfg.BlocklistPath,
		"rules": blk.Len(),
	}, "Blocklist loaded")

	return blk, nil
}

// Run starts the server and blocks until the context is cancelled, then
// performs the graceful drain: stop accepting, finish every admitted
// connection, release the workers.
func (app *Application) Run(ctx context.Context) error {
	if err := app.transport.Start(app.echoer); err != nil {
		return fmt.Errorf("failed to start TCP transport: %w", err)
	}

	fmt.Printf("listening on http://%s (GET /path echoes the path)\n", app.transport.Address())
	log.Info(map[string]any{
		"address": app.transport.Address(),
		"workers": app.pool.Size(),
	}, "Echo server started")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	// Stop accepting new connections; admitted connections are untouched.
	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}

	// Drain the pool: every queued and in-flight connection finishes.
	app.pool.Shutdown()

	log.Info(map[string]any{"paths": app.cache.Len()}, "Graceful shutdown completed")
	return nil
}

// printAccessStats writes the final per-path access counts, highest
// first, to w.
func printAccessStats(w io.Writer, entries []domain.PathCount) {
	fmt.Fprintln(w, "\n==== Access Stats ====")
	if len(entries) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for _, entry := range entries {
		fmt.Fprintf(w, "%6d  %s\n", entry.Count, entry.Path)
	}
}
