package bootstrap

import (
	"context"
	"fmt"

	"github.com/iceos-ai/iceos/common/cache"
	"github.com/iceos-ai/iceos/common/config"
	"github.com/iceos-ai/iceos/common/db"
	"github.com/iceos-ai/iceos/common/logger"
	redisx "github.com/iceos-ai/iceos/common/redis"
	"github.com/iceos-ai/iceos/common/repository"
)

// Setup initializes all service components.
// This is the main entry point for all services.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"mode", components.Config.Engine.RuntimeMode,
	)

	// 3. Initialize database. Development mode runs on in-process stores
	// unless a database is explicitly requested.
	useDB := !options.skipDB && (!components.Config.Development() || options.forceDB)
	if useDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}

		components.Blueprints = repository.NewBlueprintRepository(components.DB)
		components.Executions = repository.NewExecutionRepository(components.DB)
	} else {
		components.Blueprints = repository.NewMemoryBlueprintStore()
		components.Executions = repository.NewMemoryExecutionStore()
	}

	// 4. Initialize Redis (if enabled)
	if !options.skipRedis && components.Config.Redis.Enabled {
		components.Logger.Info("connecting to redis",
			"addr", components.Config.Redis.Addr,
		)
		components.Redis, err = redisx.New(ctx, components.Config, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 5. Initialize the node-result cache backend
	if components.Config.Cache.Enabled {
		if components.Redis != nil {
			components.Cache = cache.NewRedisCache(components.Redis, serviceName)
		} else {
			components.Cache = cache.NewMemoryCache(components.Logger)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing cache")
			return components.Cache.Close()
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error.
// Useful for services that can't recover from initialization failure.
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
