/*
main.go - Command-line entry point

PURPOSE:
  Opens the configured event store, rebuilds the live state from it and
  runs one command against it.

STARTUP SEQUENCE:
  1. Load config from .env and the environment
  2. Parse command-line flags (they override config)
  3. Open the event store (memory, sqlite or badger)
  4. Replay the log into the live state
  5. Run the command, canceled on SIGINT/SIGTERM

COMMANDS:
  scenarios              List the demo scenarios
  seed <scenario>        Load a demo scenario into an empty log
  report [-at N]         Print the dashboard, as of event N when given
  events [-after N]      Print the event log

GLOBAL FLAGS:
  -backend     memory | sqlite | badger (KPSMART_BACKEND)
  -db          SQLite database path (KPSMART_DB_PATH)
  -badger-dir  Badger data directory (KPSMART_BADGER_DIR)
  -log-level   debug | info | warn | error (KPSMART_LOG_LEVEL)

EXAMPLES:
  ./kpsmart seed nz-network
  ./kpsmart report -at 12
  ./kpsmart -backend=memory seed wellington-rome

SEE ALSO:
  - config/config.go: Environment variables
  - dashboard/dashboard.go: Time travel
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/kpsmart/config"
	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/eventlog/store"
	"github.com/warp/kpsmart/state"
	badgerstore "github.com/warp/kpsmart/store/badger"
	"github.com/warp/kpsmart/store/sqlite"
)

var errUsage = errors.New("usage: kpsmart [flags] scenarios | seed <scenario> | report [-at N] | events [-after N]")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := flag.NewFlagSet("kpsmart", flag.ContinueOnError)
	backend := flags.String("backend", string(cfg.Backend), "event store: memory, sqlite or badger")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flags.StringVar(&cfg.BadgerDir, "badger-dir", cfg.BadgerDir, "Badger data directory")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg.Backend = config.Backend(*backend)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errUsage
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	es, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("close event store", "error", err)
		}
	}()

	log, err := eventlog.Open(ctx, es)
	if err != nil {
		return err
	}
	st, err := state.Open(ctx, log, state.WithLogger(logger))
	if err != nil {
		return err
	}
	logger.Debug("event store opened", "backend", cfg.Backend, "events", log.NumberOfEvents())

	cmd := &command{ctx: ctx, out: out, log: log, state: st, logger: logger}
	return cmd.dispatch(flags.Arg(0), flags.Args()[1:])
}

func openStore(cfg config.Config) (eventlog.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), func() error { return nil }, nil
	case config.BackendSQLite:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize sqlite: %w", err)
		}
		return s, s.Close, nil
	case config.BackendBadger:
		s, err := badgerstore.Open(cfg.BadgerDir)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize badger: %w", err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
