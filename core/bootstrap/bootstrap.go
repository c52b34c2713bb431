package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/linephoto/core/cache"
	coreconfig "github.com/m3rciful/linephoto/core/config"
	coredatabase "github.com/m3rciful/linephoto/core/database"
	"github.com/m3rciful/linephoto/core/logger"
	"github.com/m3rciful/linephoto/core/objectstore"
)

// Options control the bootstrap pipeline. Nil hooks fall back to the core implementations.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit     func(*coreconfig.Config) error
	Connect        func(coredatabase.Config) (*sqlx.DB, error)
	Migrate        func(coredatabase.Config) error
	ConnectRedis   func(context.Context, coreconfig.RedisConfig) (*redis.Client, error)
	ConnectStorage func(context.Context, coreconfig.StorageConfig) (*objectstore.Store, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Store *objectstore.Store
}

// Close releases every connection held by r.
func (r *Result) Close() {
	if r == nil {
		return
	}
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
}

// Run initializes the logger, connects to the database, applies migrations,
// then connects Redis and the object store.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	res := &Result{DB: db}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Database); err != nil {
		res.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connectRedis := opts.ConnectRedis
	if connectRedis == nil {
		connectRedis = cache.Connect
	}
	rdb, err := connectRedis(ctx, opts.Config.Redis)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
	}
	res.Redis = rdb

	connectStorage := opts.ConnectStorage
	if connectStorage == nil {
		connectStorage = defaultStorage
	}
	store, err := connectStorage(ctx, opts.Config.Storage)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("bootstrap: object storage initialization failed: %w", err)
	}
	res.Store = store

	return res, nil
}

func defaultStorage(ctx context.Context, cfg coreconfig.StorageConfig) (*objectstore.Store, error) {
	store, err := objectstore.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
