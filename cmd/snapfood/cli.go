package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/snapfood/internal/connectivity"
	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/mcp"
	"github.com/hpungsan/snapfood/internal/ops"
	"github.com/hpungsan/snapfood/internal/web"
)

// maxStdinBytes bounds a nutrient profile piped via stdin.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "snapfood",
		Usage:   "Offline-first food scan evaluation and sync",
		Version: Version,
		Commands: []*cli.Command{
			evaluateCmd(env),
			recordCmd(env),
			statusCmd(env),
			syncCmd(env),
			queueCmd(env),
			reportCmd(env),
			offlineModeCmd(env),
			connectivityCmd(env),
			serveCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func profileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "condition", Aliases: []string{"c"}, Value: "normal", Usage: "Health condition: normal|diabetic|hypertensive|weight_loss|pregnant_nursing|cholesterol_watch"},
		&cli.StringSliceFlag{Name: "nutrient", Aliases: []string{"n"}, Usage: "Nutrient amount as name=value (repeatable); a JSON object may be piped via stdin instead"},
	}
}

// evaluateCmd creates the evaluate command.
func evaluateCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "Evaluate a nutrient profile without recording it",
		Flags: profileFlags(),
		Action: func(c *cli.Context) error {
			nutrients, err := readNutrients(c.StringSlice("nutrient"))
			if err != nil {
				return outputError(err)
			}

			output, err := env.svc.Evaluate(ops.EvaluateInput{
				Nutrients: nutrients,
				Condition: c.String("condition"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// recordCmd creates the record command.
func recordCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Evaluate and queue a scan for sync",
		Flags: append(profileFlags(),
			&cli.StringFlag{Name: "dish", Aliases: []string{"d"}, Usage: "Dish name (optional)"},
			&cli.StringFlag{Name: "source", Value: "cli", Usage: "Scan origin"},
		),
		Action: func(c *cli.Context) error {
			nutrients, err := readNutrients(c.StringSlice("nutrient"))
			if err != nil {
				return outputError(err)
			}

			output, err := env.svc.RecordScan(c.Context, ops.RecordScanInput{
				Nutrients: nutrients,
				Condition: c.String("condition"),
				DishName:  c.String("dish"),
				Source:    c.String("source"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show queue and sync status",
		Action: func(c *cli.Context) error {
			return outputJSON(map[string]any{
				"status":      env.svc.QueueStatus(),
				"online":      env.svc.Online(),
				"offlineMode": env.svc.OfflineMode(),
			})
		},
	}
}

// syncCmd creates the sync command.
func syncCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Drain queued scans to the remote store",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-wait", Usage: "Return without waiting for the cycle to finish"},
		},
		Action: func(c *cli.Context) error {
			trigger := env.svc.RequestSync()
			if !c.Bool("no-wait") {
				if err := env.svc.WaitIdle(c.Context); err != nil {
					return outputError(errors.NewCancelled("sync wait"))
				}
			}

			return outputJSON(map[string]any{
				"trigger": trigger,
				"status":  env.svc.QueueStatus(),
			})
		},
	}
}

// queueCmd creates the queue command and its subcommands.
func queueCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect or edit queued scans",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List queued scans, oldest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := env.svc.ListQueue(ops.ListQueueInput{
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a queued scan",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("id is required"))
					}
					rec, err := env.svc.GetQueued(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(rec)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove queued scans that are not syncing",
				ArgsUsage: "<id> [id...]",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("at least one id is required"))
					}
					ids := c.Args().Slice()
					if err := env.svc.RemoveQueued(ids...); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{
						"removed":      ids,
						"pendingCount": env.svc.PendingCount(),
					})
				},
			},
			{
				Name:  "export",
				Usage: "Write queued scans to a JSONL file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Output path (default: <data dir>/exports/pending-<timestamp>.jsonl)"},
				},
				Action: func(c *cli.Context) error {
					output, err := env.svc.ExportQueue(c.Context, ops.ExportInput{Path: c.String("path")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "import",
				Usage:     "Queue the scans of a JSONL export (already-queued ids are skipped)",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("path is required"))
					}
					output, err := env.svc.ImportQueue(ops.ImportInput{Path: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// reportCmd creates the report command.
func reportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render a queued scan as Markdown or HTML",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "markdown", Usage: "Output format: markdown|html"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("id is required"))
			}
			output, err := env.svc.Report(ops.ReportInput{
				ID:     c.Args().First(),
				Format: ops.ReportFormat(c.String("format")),
			})
			if err != nil {
				return outputError(err)
			}
			_, err = fmt.Fprint(os.Stdout, output.Content)
			return err
		},
	}
}

// offlineModeCmd creates the offline-mode command.
func offlineModeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "offline-mode",
		Usage:     "Show or set offline mode (always queue scans locally)",
		ArgsUsage: "[on|off]",
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				on, err := parseSwitch(c.Args().First())
				if err != nil {
					return outputError(err)
				}
				if err := env.svc.SetOfflineMode(on); err != nil {
					return outputError(err)
				}
			}
			return outputJSON(map[string]any{"enabled": env.svc.OfflineMode()})
		},
	}
}

// connectivityCmd creates the connectivity command.
func connectivityCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "connectivity",
		Usage:     "Show or announce host connectivity via the connectivity file",
		ArgsUsage: "[online|offline]",
		Action: func(c *cli.Context) error {
			path := env.cfg.ConnectivityFile
			if c.NArg() > 0 {
				if path == "" {
					return outputError(errors.NewInvalidRequest("connectivity_file is not configured"))
				}
				online, err := connectivity.ParseSignal(c.Args().First())
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				if err := connectivity.WriteSignal(path, online); err != nil {
					return outputError(errors.NewInternal(err))
				}
				env.svc.SetConnectivity(online)
			}
			return outputJSON(map[string]any{
				"online": env.svc.Online(),
				"file":   path,
			})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP/WebSocket API until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Listen address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind := env.cfg.WebBind
			if b := c.String("bind"); b != "" {
				bind = b
			}
			port := env.cfg.WebPort
			if p := c.Int("port"); p != 0 {
				port = p
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			srv := web.NewServer(env.svc, env.log, Version, bind, port)
			g.Go(func() error { return web.Run(ctx, srv, env.log) })
			if env.cfg.ConnectivityFile != "" {
				watcher := connectivity.NewFileSignal(env.cfg.ConnectivityFile, env.monitor, env.log)
				g.Go(func() error { return watcher.Run(ctx) })
			}
			return g.Wait()
		},
	}
}

// mcpCmd creates the mcp command (also the default when stdin is piped).
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server over stdio",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(env.cfg.DisabledTools); len(unknown) > 0 {
				env.log.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			if env.cfg.ConnectivityFile != "" {
				watcher := connectivity.NewFileSignal(env.cfg.ConnectivityFile, env.monitor, env.log)
				go func() {
					if err := watcher.Run(ctx); err != nil {
						env.log.Warn("connectivity watcher stopped", zap.Error(err))
					}
				}()
			}

			return mcp.Run(env.svc, env.cfg, Version)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, up to limit bytes.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// readNutrients builds the raw profile from --nutrient flags, or from a JSON
// object on stdin when no flags are given.
func readNutrients(pairs []string) (map[string]any, error) {
	if len(pairs) > 0 {
		return parseNutrientPairs(pairs)
	}
	if !stdinHasData() {
		return nil, errors.NewInvalidRequest("nutrients are required: use --nutrient name=value or pipe a JSON object")
	}
	text, err := readStdin(maxStdinBytes)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if text == "" {
		return nil, errors.NewInvalidRequest("nutrients are required")
	}
	return parseNutrientJSON(text)
}

// parseNutrientPairs parses "name=value" pairs. Later pairs win.
func parseNutrientPairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid nutrient %q: want name=value", p))
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errors.NewValidation(name, "not a number")
		}
		out[name] = f
	}
	return out, nil
}

// parseNutrientJSON decodes a JSON object, keeping numbers exact.
func parseNutrientJSON(text string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("nutrients must be a JSON object: %v", err))
	}
	if out == nil {
		return nil, errors.NewInvalidRequest("nutrients must be a JSON object")
	}
	return out, nil
}

// parseSwitch parses on/off style arguments.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, errors.NewInvalidRequest(fmt.Sprintf("expected on or off, got %q", s))
}
