package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Engine   EngineConfig
	LLM      LLMConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// CacheConfig holds node-result cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// EngineConfig holds the scheduler and budget knobs
type EngineConfig struct {
	MaxParallel              int
	OrgBudgetUSD             float64
	MaxLLMCalls              int
	MaxToolExecutions        int
	RuntimeMode              string // "development" or "production"
	BudgetFailOpen           bool
	AllowDynamicRegistration bool
	EventJSONStdout          bool
	DefaultTimeoutMS         int
	ManifestPath             string
}

// LLMConfig holds provider credentials
type LLMConfig struct {
	OpenAIKey string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "iceos"),
			User:        getEnv("POSTGRES_USER", "iceos"),
			Password:    getEnv("POSTGRES_PASSWORD", "iceos"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Engine: EngineConfig{
			MaxParallel:              getEnvInt("MAX_PARALLEL", 5),
			OrgBudgetUSD:             getEnvFloat("ORG_BUDGET_USD", 0),
			MaxLLMCalls:              getEnvInt("MAX_LLM_CALLS", 0),
			MaxToolExecutions:        getEnvInt("MAX_TOOL_EXECUTIONS", 0),
			RuntimeMode:              getEnv("RUNTIME_MODE", "development"),
			BudgetFailOpen:           getEnvBool("BUDGET_FAIL_OPEN", false),
			AllowDynamicRegistration: getEnvBool("ALLOW_DYNAMIC_REGISTRATION", false),
			EventJSONStdout:          getEnvBool("EVENT_JSON_STDOUT", false),
			DefaultTimeoutMS:         getEnvInt("DEFAULT_NODE_TIMEOUT_MS", 120000),
			ManifestPath:             getEnv("PLUGIN_MANIFEST", ""),
		},
		LLM: LLMConfig{
			OpenAIKey: getEnv("OPENAI_API_KEY", ""),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be >= 1")
	}

	switch c.Engine.RuntimeMode {
	case "development", "production":
	default:
		return fmt.Errorf("invalid runtime_mode: %s", c.Engine.RuntimeMode)
	}

	if c.Engine.RuntimeMode == "production" && c.Engine.BudgetFailOpen {
		return fmt.Errorf("budget_fail_open is not allowed in production")
	}

	return nil
}

// Development reports whether the engine runs in development mode
func (c *Config) Development() bool {
	return c.Engine.RuntimeMode == "development"
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
