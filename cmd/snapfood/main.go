package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/config"
	"github.com/hpungsan/snapfood/internal/connectivity"
	"github.com/hpungsan/snapfood/internal/db"
	"github.com/hpungsan/snapfood/internal/logging"
	"github.com/hpungsan/snapfood/internal/ops"
	"github.com/hpungsan/snapfood/internal/remote"
	"github.com/hpungsan/snapfood/internal/syncer"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"evaluate": true, "record": true, "status": true, "sync": true,
	"queue": true, "report": true, "offline-mode": true, "connectivity": true,
	"serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___ _ __   __ _ _ __  / _| ___   ___   __| |
  / __| '_ \ / _' | '_ \| |_ / _ \ / _ \ / _' |
  \__ \ | | | (_| | |_) |  _| (_) | (_) | (_| |
  |___/_| |_|\__,_| .__/|_|  \___/ \___/ \__,_|
                  |_|

  Offline-first food scan evaluation and sync

  Usage: snapfood <command> [options]
         snapfood --help

  MCP server mode requires piped input.`)
}

// appEnv holds the process-wide collaborators shared by every command.
type appEnv struct {
	baseDir string
	cfg     *config.Config
	log     *zap.Logger
	db      *sql.DB
	monitor *connectivity.Monitor
	svc     *ops.Service
}

// setup loads config, opens the store and starts the service.
func setup(baseDir string) (*appEnv, error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	env, err := newAppEnv(baseDir, cfg, log, database, newSink(cfg, log))
	if err != nil {
		database.Close()
		return nil, err
	}
	return env, nil
}

// newAppEnv builds the service over an open database. The initial
// connectivity comes from the signal file when one is configured.
func newAppEnv(baseDir string, cfg *config.Config, log *zap.Logger, database *sql.DB, sink syncer.Sink) (*appEnv, error) {
	online := true
	if cfg.ConnectivityFile != "" {
		state, ok, err := connectivity.ReadSignal(cfg.ConnectivityFile)
		if err != nil {
			log.Warn("ignoring connectivity file", zap.String("path", cfg.ConnectivityFile), zap.Error(err))
		} else if ok {
			online = state
		}
	}
	monitor := connectivity.NewMonitor(online, log)

	svc, err := ops.New(ops.Deps{
		Store:   db.NewKV(database),
		Sink:    sink,
		Monitor: monitor,
		Config:  cfg,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	svc.Start(context.Background())

	return &appEnv{
		baseDir: baseDir,
		cfg:     cfg,
		log:     log,
		db:      database,
		monitor: monitor,
		svc:     svc,
	}, nil
}

func newSink(cfg *config.Config, log *zap.Logger) syncer.Sink {
	if cfg.RemoteURL == "" {
		log.Info("no remote_url configured, scans stay queued")
		return remote.Unconfigured{}
	}
	return remote.NewHTTPSink(cfg.RemoteURL, cfg.RemoteTimeout(), log)
}

// close lets an in-flight drain finish, bounded by the remote timeout, then
// releases the service and the database.
func (e *appEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RemoteTimeout()+time.Second)
	defer cancel()
	if err := e.svc.WaitIdle(ctx); err != nil {
		e.log.Warn("exiting with sync in flight", zap.Error(err))
	}
	e.svc.Close()
	e.db.Close()
	_ = e.log.Sync()
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'snapfood --help' for usage.\n")
		os.Exit(1)
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine data directory: %v\n", err)
		os.Exit(1)
	}

	env, err := setup(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := os.Args
	if !isCLIMode() {
		// MCP server mode (default)
		args = []string{os.Args[0], "mcp"}
	}

	app := newCLIApp(env)
	err = app.Run(args)
	env.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
