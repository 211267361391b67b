// Command tasklist-server serves the task list API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tasklist/internal/adapters/events"
	"tasklist/internal/adapters/todos"
	"tasklist/internal/auth"
	"tasklist/internal/blob"
	"tasklist/internal/config"
	"tasklist/internal/core"
)

const version = "0.1.0"

const usage = `Task list server.

Configuration is read from the optional YAML file, then from TASKLIST_*
environment variables.

Usage:
    tasklist-server serve [--config=<path>]
    tasklist-server token <user> [--name=<username>] [--expiry=<duration>] [--config=<path>]
    tasklist-server -h | --help
    tasklist-server --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --config=<path>        YAML configuration file.
    --name=<username>      Display name embedded in the token.
    --expiry=<duration>    Token lifetime [default: 24h].`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	parser := &docopt.Parser{HelpHandler: docopt.NoHelpHandler, SkipHelpFlags: true}
	opts, err := parser.ParseArgs(usage, args, version)
	if err != nil {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if help, _ := opts.Bool("--help"); help {
		fmt.Fprintln(stdout, usage)
		return 0
	}
	if v, _ := opts.Bool("--version"); v {
		fmt.Fprintln(stdout, version)
		return 0
	}
	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	if tok, _ := opts.Bool("token"); tok {
		return mintToken(opts, cfg, stdout, stderr)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, stderr); err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	return 0
}

func mintToken(opts docopt.Opts, cfg config.Config, stdout, stderr io.Writer) int {
	user, _ := opts.String("<user>")
	name, _ := opts.String("--name")
	raw, _ := opts.String("--expiry")
	expiry, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(stderr, "expiry: %v\n", err)
		return 2
	}
	gate, err := auth.NewGate([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintf(stderr, "token: %v\n", err)
		return 1
	}
	tok, err := gate.Mint(user, name, expiry)
	if err != nil {
		fmt.Fprintf(stderr, "token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, tok)
	return 0
}

func serve(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	logger := config.NewLogger(cfg.Log, logOut)

	store, closeStore, err := core.OpenRecordStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close record store", "error", err)
		}
	}()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	broker, err := events.Open(ctx, cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("open events broker: %w", err)
	}
	defer func() { _ = broker.Close() }()

	gate, err := auth.NewGate([]byte(cfg.JWTSecret))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return err
	}

	h := todos.NewHandler(store)
	h.Broker = broker
	h.Archiver = blob.NewArchiver(blobs, nil)
	h.Metrics = metrics
	h.Logger = logger
	h.AllowedOrigins = cfg.Events.AllowedOrigins

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           todos.NewRouter(h, gate, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen,
			"storage", string(cfg.Storage.Driver), "blob", string(blobs.Driver()), "events", string(cfg.Events.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
