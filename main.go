package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"git.netflux.io/rob/mtxdash/internal/client"
	"git.netflux.io/rob/mtxdash/internal/config"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/mediaserver"
	"git.netflux.io/rob/mtxdash/internal/server"
	"github.com/urfave/cli/v3"
)

var (
	// version is the version of the application.
	version string
	// commit is the commit hash of the application.
	commit string
	// date is the date of the build.
	date string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	app := &cli.Command{
		Name:      domain.AppName,
		Usage:     "Admin dashboard backend for MediaMTX",
		Version:   cmp.Or(version, "devel"),
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			serverCommand(stderr),
			clientCommand(stdout, stderr),
		},
	}

	return app.Run(ctx, args)
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "listen-addr",
			Usage:   "Address for the HTTP server to listen on",
			Sources: cli.EnvVars("MTXDASH_LISTEN_ADDR"),
		},
		&cli.StringFlag{
			Name:    "mediamtx-url",
			Usage:   "Base URL of the MediaMTX control API",
			Sources: cli.EnvVars("MTXDASH_MEDIAMTX_URL"),
		},
		&cli.StringFlag{
			Name:    "db-path",
			Usage:   "Path to the SQLite database",
			Sources: cli.EnvVars("MTXDASH_DB_PATH"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: debug, info, warn or error",
			Sources: cli.EnvVars("MTXDASH_LOG_LEVEL"),
		},
	}
}

func serverCommand(stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run or manage the dashboard server",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the dashboard server",
				Flags: append(serverFlags(), &cli.BoolFlag{
					Name:  "bootstrap",
					Usage: "Push every stored path and the stored global configuration to MediaMTX on startup",
				}),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, logger, closeLog, err := loadServerConfig(c, stderr)
					if err != nil {
						return err
					}
					defer closeLog()

					return server.New(server.Params{
						Config:    cfg,
						Bootstrap: c.Bool("bootstrap"),
						BuildInfo: buildInfo(),
						Logger:    logger,
					}).Run(ctx)
				},
			},
			{
				Name:  "bootstrap",
				Usage: "Push every stored path and the stored global configuration to MediaMTX, then exit",
				Flags: serverFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, logger, closeLog, err := loadServerConfig(c, stderr)
					if err != nil {
						return err
					}
					defer closeLog()

					return server.New(server.Params{
						Config:    cfg,
						BuildInfo: buildInfo(),
						Logger:    logger,
					}).Bootstrap(ctx)
				},
			},
			{
				Name:  "mediamtx-config",
				Usage: "Print a MediaMTX configuration file which exposes the API and metrics to the dashboard",
				Flags: serverFlags(),
				Action: func(_ context.Context, c *cli.Command) error {
					cfg, _, closeLog, err := loadServerConfig(c, stderr)
					if err != nil {
						return err
					}
					defer closeLog()

					mtxCfg, err := mediaserver.NewConfig(mediaserver.NewConfigParams{
						APIURL:     cfg.MediaMTX.APIURL,
						MetricsURL: cfg.MediaMTX.MetricsURL,
						Username:   cfg.MediaMTX.Username,
						Password:   cfg.MediaMTX.Password,
					})
					if err != nil {
						return fmt.Errorf("build MediaMTX config: %w", err)
					}

					b, err := mtxCfg.Marshal()
					if err != nil {
						return err
					}

					_, err = c.Root().Writer.Write(b)
					return err
				},
			},
			{
				Name:  "config-path",
				Usage: "Print the path of the configuration file",
				Action: func(_ context.Context, c *cli.Command) error {
					configService, err := config.NewDefaultService()
					if err != nil {
						return fmt.Errorf("build config service: %w", err)
					}

					_, err = fmt.Fprintln(c.Root().Writer, configService.Path())
					return err
				},
			},
		},
	}
}

// loadServerConfig loads the configuration and builds a logger from it. The
// returned function closes the log file, if any.
func loadServerConfig(c *cli.Command, stderr io.Writer) (config.Config, *slog.Logger, func(), error) {
	configService, err := config.NewDefaultService()
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("build config service: %w", err)
	}

	cfg, err := configService.Load(config.Overrides{
		ListenAddr:     c.String("listen-addr"),
		MediaMTXAPIURL: c.String("mediamtx-url"),
		DatabasePath:   c.String("db-path"),
		LogLevel:       c.String("log-level"),
	})
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := buildLogger(cfg, stderr)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("build logger: %w", err)
	}

	return cfg, logger, closeLog, nil
}

// buildLogger returns a logger which writes to stderr, and to the log file if
// enabled.
func buildLogger(cfg config.Config, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmp.Or(cfg.LogLevel, config.DefaultLogLevel))); err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	w := stderr
	closeFunc := func() {}
	if cfg.LogFile.Enabled {
		fptr, err := os.OpenFile(cfg.LogFile.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(stderr, fptr)
		closeFunc = func() { _ = fptr.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), closeFunc, nil
}

func clientCommand(stdout, stderr io.Writer) *cli.Command {
	var app *client.App

	nameArg := func(c *cli.Command) (string, error) {
		name := c.Args().First()
		if name == "" {
			return "", errors.New("path name is required")
		}
		return name, nil
	}

	pathConfArgs := func(c *cli.Command) (domain.PathConf, error) {
		name, err := nameArg(c)
		if err != nil {
			return domain.PathConf{}, err
		}

		values, err := client.ParseValues(c.Args().Tail())
		if err != nil {
			return domain.PathConf{}, err
		}

		return client.BuildPathConf(name, values)
	}

	withName := func(fn func(context.Context, string) error) cli.ActionFunc {
		return func(ctx context.Context, c *cli.Command) error {
			name, err := nameArg(c)
			if err != nil {
				return err
			}
			return fn(ctx, name)
		}
	}

	return &cli.Command{
		Name:  "client",
		Usage: "Manage a running dashboard server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "URL of the dashboard server",
				Value:   client.DefaultServerURL,
				Sources: cli.EnvVars("MTXDASH_SERVER_URL"),
			},
			&cli.BoolFlag{
				Name:  "tls-skip-verify",
				Usage: "Skip TLS certificate verification (insecure)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}

			app = client.New(client.NewParams{
				ServerURL:          c.String("server"),
				InsecureSkipVerify: c.Bool("tls-skip-verify"),
				Out:                stdout,
				Logger:             slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
			})

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:    "paths",
				Aliases: []string{"path"},
				Usage:   "Manage paths",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List paths from the store, the MediaMTX configuration and live state",
						Action: func(ctx context.Context, _ *cli.Command) error { return app.ListPaths(ctx) },
					},
					{
						Name:   "watch",
						Usage:  "Print the path list every time it is refreshed",
						Action: func(ctx context.Context, _ *cli.Command) error { return app.WatchPaths(ctx) },
					},
					{
						Name:      "create",
						Usage:     "Register a path with MediaMTX and store it",
						ArgsUsage: "NAME [key=value...]",
						Action: func(ctx context.Context, c *cli.Command) error {
							conf, err := pathConfArgs(c)
							if err != nil {
								return err
							}
							return app.CreatePath(ctx, conf)
						},
					},
					{
						Name:      "update",
						Usage:     "Replace the configuration of a stored path",
						ArgsUsage: "NAME [key=value...]",
						Action: func(ctx context.Context, c *cli.Command) error {
							conf, err := pathConfArgs(c)
							if err != nil {
								return err
							}
							return app.UpdatePath(ctx, conf)
						},
					},
					{
						Name:      "remove",
						Usage:     "Deregister a path and delete it from the store",
						ArgsUsage: "NAME",
						Action:    withName(func(ctx context.Context, name string) error { return app.RemovePath(ctx, name) }),
					},
					{
						Name:      "toggle",
						Usage:     "Register a stored path with MediaMTX, or deregister it",
						ArgsUsage: "NAME",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "enabled", Value: true, Usage: "Register (true) or deregister (false) the path"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							name, err := nameArg(c)
							if err != nil {
								return err
							}
							return app.TogglePath(ctx, name, c.Bool("enabled"))
						},
					},
					{
						Name:      "sync",
						Usage:     "Store a path which is only known to MediaMTX",
						ArgsUsage: "NAME",
						Action:    withName(func(ctx context.Context, name string) error { return app.SyncPath(ctx, name) }),
					},
					{
						Name:      "state",
						Usage:     "Show the live state of a path",
						ArgsUsage: "NAME",
						Action:    withName(func(ctx context.Context, name string) error { return app.PathState(ctx, name) }),
					},
					{
						Name:      "get",
						Usage:     "Show the stored configuration of a path",
						ArgsUsage: "NAME",
						Action:    withName(func(ctx context.Context, name string) error { return app.GetPath(ctx, name) }),
					},
					{
						Name:   "publishers",
						Usage:  "List paths which are fed by a publisher",
						Action: func(ctx context.Context, _ *cli.Command) error { return app.ListPublishers(ctx) },
					},
				},
			},
			{
				Name:  "config",
				Usage: "Manage the global MediaMTX configuration",
				Commands: []*cli.Command{
					{
						Name:   "get",
						Usage:  "Show the live and stored configuration, and the keys which differ",
						Action: func(ctx context.Context, _ *cli.Command) error { return app.GetConfig(ctx) },
					},
					{
						Name:      "set",
						Usage:     "Patch the live configuration and the stored copy",
						ArgsUsage: "key=value...",
						Action: func(ctx context.Context, c *cli.Command) error {
							if c.Args().Len() == 0 {
								return errors.New("at least one key=value is required")
							}

							values, err := client.ParseValues(c.Args().Slice())
							if err != nil {
								return err
							}
							return app.SetConfig(ctx, domain.GlobalConfig(values))
						},
					},
					{
						Name:      "sync",
						Usage:     "Adopt one side of the configuration: mtx or db",
						ArgsUsage: "mtx|db",
						Action: func(ctx context.Context, c *cli.Command) error {
							source := c.Args().First()
							if source == "" {
								return errors.New("source is required: mtx or db")
							}
							return app.SyncConfig(ctx, source)
						},
					},
				},
			},
			{
				Name:  "sessions",
				Usage: "Inspect protocol sessions",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List the sessions of a protocol",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "protocol",
								Usage:    "One of rtsp, rtsps, rtmp, rtmps, webrtc, hls or srt",
								Required: true,
							},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							return app.ListSessions(ctx, domain.Protocol(c.String("protocol")))
						},
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Check whether MediaMTX is reachable",
				Action: func(ctx context.Context, _ *cli.Command) error { return app.Health(ctx) },
			},
			{
				Name:   "metrics",
				Usage:  "Show MediaMTX metrics",
				Action: func(ctx context.Context, _ *cli.Command) error { return app.Metrics(ctx) },
			},
		},
	}
}

func buildInfo() domain.BuildInfo {
	info := domain.BuildInfo{Version: version, Commit: commit, Date: date}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		info.Version = cmp.Or(info.Version, bi.Main.Version)
	}

	return info
}
