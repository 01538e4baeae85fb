// Package container wires the engine and services together once at
// startup (singleton pattern). Handlers only ever see the container.
package container

import (
	"fmt"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/agents"
	"github.com/iceos-ai/iceos/cmd/iceos/budget"
	"github.com/iceos-ai/iceos/cmd/iceos/events"
	"github.com/iceos-ai/iceos/cmd/iceos/executor"
	"github.com/iceos-ai/iceos/cmd/iceos/executors"
	"github.com/iceos-ai/iceos/cmd/iceos/llm"
	"github.com/iceos-ai/iceos/cmd/iceos/memory"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sandbox"
	"github.com/iceos-ai/iceos/cmd/iceos/scheduler"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/service"
	"github.com/iceos-ai/iceos/cmd/iceos/tools"
	"github.com/iceos-ai/iceos/common/bootstrap"
	"github.com/iceos-ai/iceos/common/cache"
	"github.com/iceos-ai/iceos/common/ratelimit"
)

// Container holds all initialized services (singleton pattern)
type Container struct {
	Components  *bootstrap.Components
	Registry    *registry.Registry
	Engine      *scheduler.Engine
	RateLimiter *ratelimit.RateLimiter // nil when Redis is disabled

	BlueprintService *service.BlueprintService
	RunService       *service.RunService
}

// NewContainer initializes the registry, engine, and services once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	reg, err := buildRegistry(components)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	var resultCache executor.Cache
	if components.Cache != nil {
		resultCache = cache.NewResultCache(components.Cache)
	} else {
		resultCache = executor.NewMemoryCache()
	}

	engine := scheduler.NewEngine(scheduler.Opts{
		Registry: reg,
		Cache:    resultCache,
		Sinks:    sinkFactory(components),
		Logger:   components.Logger,
		Config: scheduler.Config{
			MaxParallel:     cfg.Engine.MaxParallel,
			DevelopmentMode: cfg.Development(),
			CacheDefault:    cfg.Cache.Enabled,
			CacheTTL:        cfg.Cache.DefaultTTL,
			BudgetLimits: budget.Limits{
				MaxLLMCalls:       cfg.Engine.MaxLLMCalls,
				MaxToolExecutions: cfg.Engine.MaxToolExecutions,
				OrgBudgetUSD:      cfg.Engine.OrgBudgetUSD,
			},
			BudgetFailOpen:  cfg.Engine.BudgetFailOpen,
			DefaultLimits: sdk.ResourceLimits{
				Timeout: time.Duration(cfg.Engine.DefaultTimeoutMS) * time.Millisecond,
			},
		},
	})

	var limiter *ratelimit.RateLimiter
	if components.Redis != nil {
		limiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger)
	}

	blueprintService := service.NewBlueprintService(components.Blueprints, reg, components.Logger)
	runService := service.NewRunService(
		engine,
		blueprintService,
		components.Executions,
		limiter,
		components.Logger,
	)

	return &Container{
		Components:       components,
		Registry:         reg,
		Engine:           engine,
		RateLimiter:      limiter,
		BlueprintService: blueprintService,
		RunService:       runService,
	}, nil
}

// buildRegistry populates the capability registry: built-in executors,
// tools, LLM providers, memory, the code runner, then the optional plugin
// manifest. The registry seals after this; production refuses later
// registration.
func buildRegistry(components *bootstrap.Components) (*registry.Registry, error) {
	cfg := components.Config
	reg := registry.New()

	if err := executors.RegisterBuiltins(reg); err != nil {
		return nil, err
	}

	toolCatalog := tools.Catalog()
	for name, factory := range toolCatalog {
		if err := reg.RegisterToolFactory(name, factory); err != nil {
			return nil, err
		}
	}

	modelCatalog := llm.Catalog(cfg.LLM.OpenAIKey)
	for id, factory := range modelCatalog {
		if err := reg.RegisterLLMFactory(id, factory); err != nil {
			return nil, err
		}
	}

	reg.SetMemoryStore(memory.NewStore())

	if err := reg.RegisterCodeRunner(sandbox.NewDevRunner("python-wasm")); err != nil {
		return nil, err
	}

	// Development gets a deterministic agent out of the box.
	if cfg.Development() {
		if err := reg.RegisterAgentFactory("echo-agent", agents.Factory("echo-agent", modelCatalog["echo-1"])); err != nil {
			return nil, err
		}
	}

	if cfg.Engine.ManifestPath != "" {
		manifest, err := registry.LoadManifest(cfg.Engine.ManifestPath)
		if err != nil {
			return nil, err
		}
		defaultModel := manifest.Defaults["model"]
		if defaultModel == "" {
			defaultModel = defaultModelID(modelCatalog, cfg.LLM.OpenAIKey)
		}
		providerFactory, ok := modelCatalog[defaultModel]
		if !ok {
			return nil, fmt.Errorf("manifest default model %q is not in the catalog", defaultModel)
		}
		catalog := registry.Catalog{
			Tools:  toolCatalog,
			Agents: map[string][]string{},
			Models: modelCatalog,
		}
		err = manifest.Apply(reg, catalog, func(name string, toolNames []string) sdk.AgentFactory {
			return agents.Factory(name, providerFactory)
		})
		if err != nil {
			return nil, err
		}
		components.Logger.Info("plugin manifest applied", "path", cfg.Engine.ManifestPath)
	}

	reg.Seal(cfg.Engine.AllowDynamicRegistration)
	return reg, nil
}

func defaultModelID(catalog map[string]sdk.LLMFactory, openAIKey string) string {
	if openAIKey != "" {
		if _, ok := catalog["gpt-4o"]; ok {
			return "gpt-4o"
		}
	}
	return "echo-1"
}

// sinkFactory selects the durable sinks each run's stream writes through:
// always the execution store, plus Redis fan-out and stdout JSON when
// configured.
func sinkFactory(components *bootstrap.Components) scheduler.SinkFactory {
	cfg := components.Config
	return func(runID string) []events.Sink {
		sinks := []events.Sink{events.NewStoreSink(components.Executions)}
		if components.Redis != nil {
			sinks = append(sinks, events.NewRedisSink(components.Redis))
		}
		if cfg.Engine.EventJSONStdout {
			sinks = append(sinks, events.NewStdoutSink())
		}
		return sinks
	}
}
