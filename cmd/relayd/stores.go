package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-relay/core"
	relaymigrations "github.com/goliatone/go-webhook-relay/migrations"
	"github.com/goliatone/go-webhook-relay/store/memory"
	redisstore "github.com/goliatone/go-webhook-relay/store/redis"
	sqlstore "github.com/goliatone/go-webhook-relay/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-webhook-relay" }

// storeBundle is the store set relayd runs on plus the resources to release
// at shutdown.
type storeBundle struct {
	stores  core.StoreSet
	closers []func() error
}

func (b *storeBundle) Close() error {
	var firstErr error
	for index := len(b.closers) - 1; index >= 0; index-- {
		if err := b.closers[index](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openStores(ctx context.Context, cfg fileConfig) (*storeBundle, error) {
	if cfg.driver() == driverMemory {
		return openMemoryStores(cfg)
	}

	sqlDriver, migrationDialect := "sqlite3", relaymigrations.DialectSQLite
	if cfg.driver() == driverPostgres {
		sqlDriver, migrationDialect = "postgres", relaymigrations.DialectPostgres
	}

	sqlDB, err := sql.Open(sqlDriver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("relayd: open %s database: %w", sqlDriver, err)
	}
	if sqlDriver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := newPersistenceClient(persistenceConfig{
		driver: sqlDriver,
		server: cfg.Database.DSN,
		debug:  cfg.Database.Debug,
	}, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("relayd: persistence client: %w", err)
	}
	bundle := &storeBundle{closers: []func() error{client.Close}}

	if cfg.Database.Migrate {
		err = relaymigrations.Register(ctx, migrationDialect, func(_ context.Context, fsys fs.FS) error {
			client.RegisterSQLMigrations(fsys)
			return nil
		})
		if err != nil {
			_ = bundle.Close()
			return nil, fmt.Errorf("relayd: register migrations: %w", err)
		}
		if err := client.Migrate(ctx); err != nil {
			_ = bundle.Close()
			return nil, fmt.Errorf("relayd: migrate: %w", err)
		}
	}

	var factoryOpts []sqlstore.FactoryOption
	if cfg.Cache.Enabled {
		cacheConfig := repositorycache.DefaultConfig()
		if cfg.Cache.TTLSeconds > 0 {
			cacheConfig.TTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
		}
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			_ = bundle.Close()
			return nil, fmt.Errorf("relayd: projection cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithProjectionCache(cacheService))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		_ = bundle.Close()
		return nil, err
	}
	bundle.stores = factory.Stores()
	return bundle, nil
}

func newPersistenceClient(cfg persistenceConfig, sqlDB *sql.DB) (*persistence.Client, error) {
	if cfg.driver == "postgres" {
		return persistence.New(cfg, sqlDB, pgdialect.New())
	}
	return persistence.New(cfg, sqlDB, sqlitedialect.New())
}

func openMemoryStores(cfg fileConfig) (*storeBundle, error) {
	bundle := &storeBundle{stores: memory.NewStores()}
	if cfg.Redis.Addr == "" {
		return bundle, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ledger, err := redisstore.NewLedger(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if cfg.Redis.KeyPrefix != "" {
		ledger.KeyPrefix = cfg.Redis.KeyPrefix
	}
	bundle.stores.Ledger = ledger
	bundle.closers = append(bundle.closers, client.Close)
	return bundle, nil
}
