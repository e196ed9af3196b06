package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/turboflakes/skipper/internal/config"
	"github.com/turboflakes/skipper/internal/hook"
	"github.com/turboflakes/skipper/internal/logging"
	"github.com/turboflakes/skipper/internal/matrix"
	"github.com/turboflakes/skipper/internal/status"
	"github.com/turboflakes/skipper/internal/supervisor"
)

var version = "0.1.0"

func main() {
	if err := newApp(run).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(action cli.ActionFunc) *cli.App {
	return &cli.App{
		Name:    "skipper",
		Usage:   "run hook scripts at Substrate validator session and era boundaries",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the yaml config file", EnvVars: []string{"SKIPPER_CONFIG"}},
			&cli.StringFlag{Name: "substrate-ws-url", Aliases: []string{"w"}, Usage: "node websocket endpoint", EnvVars: []string{"SKIPPER_SUBSTRATE_WS_URL"}},
			&cli.Uint64Flag{Name: "error-interval", Aliases: []string{"i"}, Usage: "minutes on hold after an unexpected error", EnvVars: []string{"SKIPPER_ERROR_INTERVAL"}},
			&cli.StringSliceFlag{Name: "stashes", Aliases: []string{"s"}, Usage: "validator stash addresses", EnvVars: []string{"SKIPPER_STASHES"}},
			&cli.StringFlag{Name: "hook-new-session-path", Usage: "script run at every new session", EnvVars: []string{"SKIPPER_HOOK_NEW_SESSION_PATH"}},
			&cli.StringFlag{Name: "hook-active-next-era-path", Usage: "script run when a stash is elected for the next era", EnvVars: []string{"SKIPPER_HOOK_ACTIVE_NEXT_ERA_PATH"}},
			&cli.StringFlag{Name: "hook-inactive-next-era-path", Usage: "script run when a stash is left out of the next era", EnvVars: []string{"SKIPPER_HOOK_INACTIVE_NEXT_ERA_PATH"}},
			&cli.BoolFlag{Name: "disable-matrix", Usage: "do not send matrix notifications", EnvVars: []string{"SKIPPER_MATRIX_DISABLED"}},
			&cli.StringFlag{Name: "matrix-user", Usage: "matrix bot user id", EnvVars: []string{"SKIPPER_MATRIX_BOT_USER"}},
			&cli.StringFlag{Name: "matrix-password", Usage: "matrix bot password", EnvVars: []string{"SKIPPER_MATRIX_BOT_PASSWORD"}},
			&cli.StringFlag{Name: "matrix-room", Usage: "matrix room id or alias", EnvVars: []string{"SKIPPER_MATRIX_ROOM"}},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn, error", EnvVars: []string{"SKIPPER_LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Usage: "text or json", EnvVars: []string{"SKIPPER_LOG_FORMAT"}},
			&cli.StringFlag{Name: "log-file", Usage: "write logs to this file", EnvVars: []string{"SKIPPER_LOG_FILE"}},
			&cli.StringFlag{Name: "status-addr", Usage: "serve /healthz and /metrics on this address", EnvVars: []string{"SKIPPER_STATUS_ADDR"}},
		},
		Before: setup,
		After:  teardown,
		Action: action,
	}
}

// setup loads the configuration and configures the standard logger before
// any command runs.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := logging.Setup(log.StandardLogger(), logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	c.App.Metadata = map[string]interface{}{"config": cfg, "logCloser": closer}
	return nil
}

func teardown(c *cli.Context) error {
	if closer, ok := c.App.Metadata["logCloser"].(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func run(c *cli.Context) error {
	cfg := c.App.Metadata["config"].(config.Config)
	logger := log.StandardLogger()

	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking %s: %w", cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another skipper instance holds %s", cfg.LockFile)
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := supervisor.NewMetrics(reg)

	hooks := hook.NewRunner(logging.Component(logger, "hook")).WithObserver(metrics.ObserveHook)
	matrixLog := logging.Component(logger, "matrix")

	sup := supervisor.New(supervisor.Options{
		Config:   cfg,
		Version:  version,
		Announce: !cfg.Matrix.Disabled,
		Dial:     supervisor.DialSubstrate,
		NewSink: func(mc config.MatrixConfig) supervisor.Sink {
			return matrix.New(mc, matrixLog)
		},
		Hooks:   hooks,
		Metrics: metrics,
		Log:     logging.Component(logger, "supervisor"),
	})

	if cfg.Status.Addr != "" {
		srv := status.NewServer(sup, reg, logging.Component(logger, "status"))
		go srv.ListenAndServe(ctx, cfg.Status.Addr)
	}

	logger.Infof("skipper v%s * %s", version, c.App.Usage)
	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("skipper stopped")
	return nil
}

// applyFlags overrides file values with flags and environment variables that
// were set explicitly.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("substrate-ws-url") {
		cfg.SubstrateWsURL = c.String("substrate-ws-url")
	}
	if c.IsSet("error-interval") {
		cfg.ErrorInterval = c.Uint64("error-interval")
	}
	if c.IsSet("stashes") {
		cfg.Stashes = c.StringSlice("stashes")
	}
	if c.IsSet("hook-new-session-path") {
		cfg.Hooks.NewSession = c.String("hook-new-session-path")
	}
	if c.IsSet("hook-active-next-era-path") {
		cfg.Hooks.ActiveNextEra = c.String("hook-active-next-era-path")
	}
	if c.IsSet("hook-inactive-next-era-path") {
		cfg.Hooks.InactiveNextEra = c.String("hook-inactive-next-era-path")
	}
	if c.IsSet("disable-matrix") {
		cfg.Matrix.Disabled = c.Bool("disable-matrix")
	}
	if c.IsSet("matrix-user") {
		cfg.Matrix.User = c.String("matrix-user")
	}
	if c.IsSet("matrix-password") {
		cfg.Matrix.Password = c.String("matrix-password")
	}
	if c.IsSet("matrix-room") {
		cfg.Matrix.Room = c.String("matrix-room")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("status-addr") {
		cfg.Status.Addr = c.String("status-addr")
	}
}
