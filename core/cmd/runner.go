// Package cmd runs the photo bot process: it resolves the config file, boots
// the application and then either serves the LINE webhook or exits after
// applying migrations.
package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/m3rciful/linephoto/core/buildinfo"
	coreconfig "github.com/m3rciful/linephoto/core/config"
	coreline "github.com/m3rciful/linephoto/core/line"
	"github.com/m3rciful/linephoto/core/logger"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// App is what Bootstrap hands back: the webhook options and a closer for
// the database, Redis and sender resources it opened.
type App interface {
	RunOptions() (coreline.RunOptions, error)
	Close() error
}

// Command selects what the process does after bootstrap.
type Command string

const (
	// CommandServe serves the webhook until SIGINT/SIGTERM.
	CommandServe Command = "serve"
	// CommandMigrate boots the app, which applies pending migrations, and exits.
	CommandMigrate Command = "migrate"
	// CommandVersion prints build metadata without loading config.
	CommandVersion Command = "version"
)

// Options describe how to load configuration, bootstrap the app, and serve the webhook.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string
	// Args are the command line arguments after the program name.
	Args []string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (App, error)

	ShutdownLogger func() error
	Serve          func(ctx context.Context, opts coreline.RunOptions) error
}

// ParseCommand maps the first argument to a Command; no argument means serve.
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	switch c := Command(args[0]); c {
	case CommandServe, CommandMigrate, CommandVersion:
		return c, nil
	default:
		return "", fmt.Errorf("cmd: unknown command %q; want serve, migrate or version", args[0])
	}
}

// Run executes the requested command.
func Run(opts Options) error {
	command, err := ParseCommand(opts.Args)
	if err != nil {
		return err
	}
	if command == CommandVersion {
		fmt.Printf("photobot %s (%s) %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return nil
	}
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return fmt.Errorf("cmd: LoadConfig and Bootstrap are required")
	}

	cfgPath, err := configPath(opts)
	if err != nil {
		return err
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	core := cfg.CoreConfig()
	if core == nil {
		return fmt.Errorf("cmd: loaded config is missing core configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	application, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	appLog := logger.L.With("component", "app")
	defer func() {
		if err := application.Close(); err != nil {
			appLog.Warn("close failed", slog.String("event", "shutdown"), slog.String("err", err.Error()))
		}
	}()

	if command == CommandMigrate {
		appLog.Info("migrations applied",
			slog.String("event", "migrate"),
			slog.String("status", "ok"),
			slog.Duration("took", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	runOpts, err := application.RunOptions()
	if err != nil {
		return fmt.Errorf("cmd: run options build failed: %w", err)
	}
	withLifecycleLogs(&runOpts, core, startedAt)

	serve := opts.Serve
	if serve == nil {
		serve = coreline.RunWebhook
	}
	return serve(ctx, runOpts)
}

func configPath(opts Options) (string, error) {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if opts.DefaultConfigPath != "" {
		return opts.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
}

// withLifecycleLogs chains ready/shutdown logging around the app's own hooks.
// The ready line carries what an operator checks first when LINE reports
// webhook errors: where the bot listens and which optional features are on.
func withLifecycleLogs(runOpts *coreline.RunOptions, core *coreconfig.Config, startedAt time.Time) {
	appLog := logger.L.With("component", "app")

	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt coreline.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		appLog.Info("webhook ready",
			slog.String("event", "ready"),
			slog.String("addr", net.JoinHostPort(core.Webhook.Listen, strconv.Itoa(core.Webhook.Port))),
			slog.String("path", core.Webhook.Path),
			slog.String("bucket", core.Storage.Bucket),
			slog.Bool("redis", core.Redis.Addr != ""),
			slog.Bool("optimistic_lock", core.Session.OptimisticLock),
			slog.Int("session_ttl_min", core.Session.TTLMinutes),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	prevStop := runOpts.OnStop
	runOpts.OnStop = func(ctx context.Context, rt coreline.Runtime) error {
		appLog.Info("draining webhook", slog.String("event", "shutdown"))
		if prevStop != nil {
			return prevStop(ctx, rt)
		}
		return nil
	}
}
