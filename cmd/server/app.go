package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/ButyrinIA/blog/internal/cache"
	memcache "github.com/ButyrinIA/blog/internal/cache/memory"
	rediscache "github.com/ButyrinIA/blog/internal/cache/redis"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/logging"
	"github.com/ButyrinIA/blog/internal/media"
	"github.com/ButyrinIA/blog/internal/media/local"
	miniomedia "github.com/ButyrinIA/blog/internal/media/minio"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/ButyrinIA/blog/internal/storage/memory"
	"github.com/ButyrinIA/blog/internal/storage/postgres"
	"github.com/ButyrinIA/blog/internal/storage/sqlite"
)

const version = "0.1.0"

var validLogLevels = []string{"debug", "info", "warn", "error"}

// app holds what the root command's Before hook prepares for subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newApp() *app {
	return &app{}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "blog",
		Usage:   "A small social blogging site",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file; empty runs on defaults",
				Sources: cli.EnvVars("BLOG_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "overrides log.level from the config",
				Sources: cli.EnvVars("BLOG_LOG_LEVEL"),
				Validator: func(value string) error {
					if !slices.Contains(validLogLevels, value) {
						return fmt.Errorf("invalid log level: %s, allowed values are: %s", value, validLogLevels)
					}
					return nil
				},
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.serveCommand(),
			a.groupCommand(),
			a.cacheCommand(),
			a.tokenCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, c *cli.Command) (context.Context, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return ctx, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return ctx, err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	return ctx, nil
}

func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	cfg := a.cfg.Storage
	a.logger.Info("opening storage", "driver", cfg.Driver)

	switch cfg.Driver {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StoragePostgres:
		return postgres.New(ctx, cfg.DSN)
	case config.StorageSQLite:
		return sqlite.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *app) openCache(ctx context.Context) (cache.Cache, error) {
	cfg := a.cfg.Cache
	a.logger.Info("opening page cache", "driver", cfg.Driver, "ttl", cfg.TTL)

	switch cfg.Driver {
	case config.CacheMemory:
		return memcache.New(cfg.Size)
	case config.CacheRedis:
		return rediscache.New(ctx, rediscache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// openMedia returns the upload store and, for stores that are not public
// on their own, the handler serving it.
func (a *app) openMedia(ctx context.Context) (media.Store, *local.Store, error) {
	cfg := a.cfg.Media
	a.logger.Info("opening media store", "driver", cfg.Driver)

	switch cfg.Driver {
	case config.MediaLocal:
		store, err := local.New(cfg.Dir, cfg.URLPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.MediaMinio:
		store, err := miniomedia.New(ctx, miniomedia.Options{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
			PublicURL: cfg.Minio.PublicURL,
		})
		return store, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown media driver %q", cfg.Driver)
	}
}
