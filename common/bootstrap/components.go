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

// Components holds all initialized service dependencies
type Components struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.DB
	Redis      *redisx.Client
	Cache      cache.Cache
	Blueprints repository.BlueprintStore
	Executions repository.ExecutionStore

	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components.
// Should be called with defer after Setup().
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks health of all components
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
