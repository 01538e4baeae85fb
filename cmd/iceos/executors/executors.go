// Package executors holds the built-in node executors. Each is a plain
// function of the shared registry.ExecFunc signature; RegisterBuiltins
// installs the full set at startup.
package executors

import (
	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
)

// RegisterBuiltins installs every built-in executor into the registry.
func RegisterBuiltins(reg *registry.Registry) error {
	builtins := map[blueprint.NodeType]registry.ExecFunc{
		blueprint.NodeTool:      ExecuteTool,
		blueprint.NodeLLM:       ExecuteLLM,
		blueprint.NodeAgent:     ExecuteAgent,
		blueprint.NodeCondition: ExecuteCondition,
		blueprint.NodeLoop:      ExecuteLoop,
		blueprint.NodeParallel:  ExecuteParallel,
		blueprint.NodeCode:      ExecuteCode,
		blueprint.NodeRecursive: ExecuteRecursive,
		blueprint.NodeWorkflow:  ExecuteWorkflow,
		blueprint.NodeHuman:     ExecuteHuman,
		blueprint.NodeSwarm:     ExecuteSwarm,
	}
	for t, fn := range builtins {
		if err := reg.RegisterExecutor(t, fn); err != nil {
			return err
		}
	}
	return nil
}
