package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	coreconfig "github.com/m3rciful/linephoto/core/config"
	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/line/sender"
	"github.com/m3rciful/linephoto/core/logger"
)

const shutdownTimeout = 10 * time.Second

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the HTTP collectors once per process; the default
// registry rejects duplicates.
func httpMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		if serviceName == "" {
			serviceName = "linephoto"
		}
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// RunOptions controls the behaviour of RunWebhook.
type RunOptions struct {
	Config *coreconfig.Config
	// ServiceName labels HTTP metrics.
	ServiceName string

	// Sink receives the events of every verified delivery.
	Sink events.Sink
	// Health reports readiness for GET /healthz; nil means always healthy.
	Health func(ctx context.Context) error

	DispatcherOptions sender.Options
	Dispatcher        *sender.Dispatcher

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	App        *fiber.App
	Dispatcher *sender.Dispatcher
}

// NewApp builds the fiber application serving the webhook, /healthz and /metrics.
func NewApp(opts RunOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             1 << 20,
	})
	app.Use(recover.New())
	// The request id becomes trace_id on every log line of one delivery.
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))

	pm := httpMetrics(opts.ServiceName)
	pm.RegisterAt(app, "/metrics")
	app.Use(pm.Middleware)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if opts.Health != nil {
			if err := opts.Health(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	path := "/callback"
	secret := ""
	if opts.Config != nil {
		path = opts.Config.Webhook.Path
		secret = opts.Config.Line.ChannelSecret
	}
	app.All(path, events.Handler(secret, opts.Sink))
	return app
}

// RunWebhook serves the webhook until ctx is done, then drains the dispatcher.
func RunWebhook(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("line: nil config provided")
	}
	cfg := opts.Config

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = sender.NewDispatcher(opts.DispatcherOptions)
	}

	buildStart := time.Now()
	app := NewApp(opts)
	rt := Runtime{App: app, Dispatcher: dispatcher}

	addr := net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port))
	logger.HTTP.Info("webhook mode",
		slog.String("event", "mode"),
		slog.String("mode", "webhook"),
		slog.String("listen", addr),
		slog.String("path", cfg.Webhook.Path),
		slog.Duration("duration", logger.RoundMS(time.Since(buildStart))),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- app.Listen(addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.HTTP.Warn("shutdown incomplete",
				slog.String("event", "shutdown"),
				slog.String("err", err.Error()),
			)
		}
		runErr = <-runDone
		if runErr == nil {
			runErr = ctx.Err()
		}
	case runErr = <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}

	dispatcher.Close()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
