// Command tasklist is a terminal client for a tasklist server. Every change
// is applied to the local view first and reconciled with the server after.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	"tasklist/internal/adapters/httpstore"
	"tasklist/internal/auth"
	"tasklist/internal/cache"
	"tasklist/internal/core"
	"tasklist/pkg/domain"
)

const version = "0.1.0"

const usage = `Task list client.

Usage:
    tasklist list [options]
    tasklist add <text>... [options]
    tasklist done <id> [options]
    tasklist undo <id> [options]
    tasklist rename <id> <text>... [options]
    tasklist rm <id> [options]
    tasklist watch [options]
    tasklist -h | --help
    tasklist --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --server=<url>       Server base URL [default: http://localhost:8080].
    --token=<token>      Session token. Defaults to $TASKLIST_TOKEN.
    --interval=<dur>     How often watch revalidates stale data [default: 2s].
    -v --verbose         Log coordinator activity to stderr.`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
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

	token, _ := opts.String("--token")
	if token == "" {
		token = os.Getenv("TASKLIST_TOKEN")
	}
	principal, err := auth.PrincipalFromToken(token)
	if err != nil {
		fmt.Fprintf(stderr, "not signed in: %v\n", err)
		return 1
	}
	server, _ := opts.String("--server")
	client, err := httpstore.New(server)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	level := slog.LevelWarn
	if verbose, _ := opts.Bool("--verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	coord := core.NewCoordinator(cache.New(cache.WithLogger(logger)), client, core.WithLogger(logger))

	v := &view{out: stdout}
	_, _, dispose := coord.Subscribe(principal, v.notify)
	defer dispose()

	if err := execute(ctx, opts, coord, client, principal, logger); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", describe(err))
		return 1
	}
	return 0
}

func execute(ctx context.Context, opts docopt.Opts, coord *core.Coordinator, client *httpstore.Client, p domain.Principal, logger *slog.Logger) error {
	if _, err := coord.Load(ctx, p); err != nil {
		return err
	}
	id, _ := opts.String("<id>")
	text := joined(opts["<text>"])

	switch {
	case flag(opts, "list"):
		return nil
	case flag(opts, "add"):
		if _, err := coord.Insert(ctx, p, text); err != nil {
			return err
		}
		_, err := coord.Load(ctx, p)
		return err
	case flag(opts, "done"):
		_, err := coord.UpdateField(ctx, p, id, domain.CompletedField(true))
		return err
	case flag(opts, "undo"):
		_, err := coord.UpdateField(ctx, p, id, domain.CompletedField(false))
		return err
	case flag(opts, "rename"):
		_, err := coord.UpdateField(ctx, p, id, domain.TextField(text))
		return err
	case flag(opts, "rm"):
		return coord.Delete(ctx, p, id)
	case flag(opts, "watch"):
		raw, _ := opts.String("--interval")
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return domain.Validationf("interval: %v", err)
		}
		return watch(ctx, coord, client, p, interval, logger)
	}
	return nil
}

// watch marks the collection stale on every remote change and lets the
// revalidator reload it.
func watch(ctx context.Context, coord *core.Coordinator, client *httpstore.Client, p domain.Principal, interval time.Duration, logger *slog.Logger) error {
	reval := core.NewRevalidator(coord, interval)
	reval.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reval.Stop(stopCtx)
	}()
	key := cache.KeyFor(p.ID)
	return client.Watch(ctx, p, func(change domain.Change) {
		logger.Debug("remote change", "action", string(change.Action), "record", change.RecordID)
		coord.Cache().MarkStale(key)
	})
}

// view prints the collection after every notification.
type view struct {
	mu  sync.Mutex
	out io.Writer
}

func (v *view) notify(ev cache.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch ev.Type {
	case cache.EventFailed:
		fmt.Fprintf(v.out, "! %s\n", describe(ev.Err))
		return
	case cache.EventInvalidated:
		fmt.Fprintln(v.out, "~ refreshing")
		return
	}
	fmt.Fprintf(v.out, "-- %d item(s)\n", len(ev.Snapshot))
	for _, r := range ev.Snapshot {
		box := "[ ]"
		if r.Completed {
			box = "[x]"
		}
		suffix := ""
		if r.IsTemporary() {
			suffix = " (saving)"
		}
		fmt.Fprintf(v.out, "%s %s  %s%s\n", box, r.ID, r.Text, suffix)
	}
}

func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrUnauthorized):
		return "session rejected, sign in again: " + err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "server unavailable: " + err.Error()
	default:
		return err.Error()
	}
}

func flag(opts docopt.Opts, name string) bool {
	b, _ := opts.Bool(name)
	return b
}

func joined(v any) string {
	parts, _ := v.([]string)
	return strings.Join(parts, " ")
}
