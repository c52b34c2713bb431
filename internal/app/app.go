package app

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/linephoto/core/bootstrap"
	"github.com/m3rciful/linephoto/core/cmd"
	coredatabase "github.com/m3rciful/linephoto/core/database"
	coreline "github.com/m3rciful/linephoto/core/line"
	"github.com/m3rciful/linephoto/core/line/gateway"
	"github.com/m3rciful/linephoto/core/line/router"
	"github.com/m3rciful/linephoto/core/line/sender"
	"github.com/m3rciful/linephoto/internal/bot"
	"github.com/m3rciful/linephoto/internal/session"
	"github.com/m3rciful/linephoto/internal/storage"
	"github.com/m3rciful/linephoto/internal/user"
)

// ServiceName labels the HTTP metrics of the bot.
const ServiceName = "photobot"

// App holds the running bot.
type App struct {
	cfg        *Config
	infra      *bootstrap.Result
	dispatcher *sender.Dispatcher
	router     *router.Router
}

// Bootstrap satisfies cmd.Options.Bootstrap.
func Bootstrap(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.App, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, infra)
	if err != nil {
		infra.Close()
		return nil, err
	}
	return a, nil
}

// New wires the bot on top of initialized infrastructure.
func New(cfg *Config, infra *bootstrap.Result) (*App, error) {
	core := &cfg.Config

	gw, err := gateway.New(gateway.Options{
		ChannelAccessToken: core.Line.ChannelAccessToken,
		HTTPClient:         coreline.BuildHTTPClient(),
		DataEndpoint:       core.Line.DataEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	dispatcher := sender.NewDispatcher(sender.Options{
		QueueSize:    core.Sender.QueueSize,
		Workers:      core.Sender.Workers,
		MaxRetries:   core.Sender.MaxRetries,
		RetryBackoff: time.Duration(core.Sender.RetryBackoffMS) * time.Millisecond,
	})

	resolver := user.NewResolver(user.ResolverOptions{
		Accounts:     user.NewStore(infra.DB),
		Profiles:     gw,
		Jobs:         dispatcher,
		RichMenuID:   core.Line.RichMenuID,
		RefreshAfter: time.Duration(core.Users.ProfileRefreshHours) * time.Hour,
	})

	svc := bot.New(bot.Options{
		Sessions:  session.NewStore(infra.DB, time.Duration(core.Session.TTLMinutes)*time.Minute),
		Finalizer: session.NewFinalizer(infra.DB),
		Images: storage.NewImages(gw, infra.Store,
			time.Duration(core.Storage.SignedURLTTLSeconds)*time.Second),
		Messenger:      gw,
		Jobs:           dispatcher,
		Policy:         session.Policy{RestagePhoto: core.Session.RestagePhoto},
		OptimisticLock: core.Session.OptimisticLock,
	})

	r := router.New(resolver, svc.Handlers(), coreline.DefaultMiddlewares(core, infra.Redis, nil)...)

	return &App{cfg: cfg, infra: infra, dispatcher: dispatcher, router: r}, nil
}

// RunOptions satisfies cmd.App.
func (a *App) RunOptions() (coreline.RunOptions, error) {
	return coreline.RunOptions{
		Config:      &a.cfg.Config,
		ServiceName: ServiceName,
		Sink:        a.router.Dispatch,
		Health: func(ctx context.Context) error {
			return coredatabase.Ping(ctx, a.infra.DB)
		},
		Dispatcher: a.dispatcher,
	}, nil
}

// Close releases the database and Redis connections. The dispatcher is
// drained by the webhook runner.
func (a *App) Close() error {
	a.infra.Close()
	return nil
}
