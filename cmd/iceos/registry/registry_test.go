package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

func noopExec(context.Context, Runtime, *blueprint.NodeSpec, map[string]interface{}, *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	return sdk.SuccessResult(nil), nil
}

func otherExec(context.Context, Runtime, *blueprint.NodeSpec, map[string]interface{}, *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	return sdk.SuccessResult(nil), nil
}

type stubTool struct{ name string }

func (t *stubTool) Name() string { return t.name }
func (t *stubTool) Execute(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func TestRegisterExecutor_IdempotentAndConflicting(t *testing.T) {
	r := New()

	require.NoError(t, r.RegisterExecutor(blueprint.NodeTool, noopExec))
	require.NoError(t, r.RegisterExecutor(blueprint.NodeTool, noopExec), "re-registering the same function is a no-op")

	err := r.RegisterExecutor(blueprint.NodeTool, otherExec)
	require.Error(t, err)
	assert.Equal(t, sdk.ErrRegistry, sdk.KindOf(err))

	fn, err := r.Executor(blueprint.NodeTool)
	require.NoError(t, err)
	require.NotNil(t, fn)

	_, err = r.Executor(blueprint.NodeLLM)
	require.Error(t, err)
	assert.Equal(t, sdk.ErrRegistry, sdk.KindOf(err))
}

func TestSeal_BlocksRegistrationUnlessDynamic(t *testing.T) {
	r := New()
	r.Seal(false)

	err := r.RegisterExecutor(blueprint.NodeTool, noopExec)
	require.Error(t, err)
	assert.Equal(t, sdk.ErrRegistry, sdk.KindOf(err))
	assert.Contains(t, err.Error(), "sealed")

	dynamic := New()
	dynamic.Seal(true)
	assert.NoError(t, dynamic.RegisterExecutor(blueprint.NodeTool, noopExec))
}

func TestToolRegistrationAndInstantiation(t *testing.T) {
	r := New()
	factory := func() (sdk.Tool, error) { return &stubTool{name: "echo"}, nil }
	require.NoError(t, r.RegisterToolFactory("echo", factory))
	require.NoError(t, r.RegisterToolFactory("echo", factory), "identical factory is idempotent")

	err := r.RegisterToolFactory("echo", func() (sdk.Tool, error) { return &stubTool{name: "echo"}, nil })
	require.Error(t, err, "a different factory for the same name conflicts")

	tool, err := r.Tool("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", tool.Name())

	_, err = r.Tool("missing")
	require.Error(t, err)
	assert.Equal(t, sdk.ErrRegistry, sdk.KindOf(err))
}

func TestAgentAndLLMLookups(t *testing.T) {
	r := New()

	require.NoError(t, r.RegisterAgentFactory("planner", func(tools []sdk.Tool) (sdk.Agent, error) {
		return nil, nil
	}))
	require.NoError(t, r.RegisterLLMFactory("echo-1", func() (sdk.LLMProvider, error) {
		return nil, nil
	}))

	_, err := r.Agent("missing", nil)
	require.Error(t, err)

	_, err = r.LLM("missing")
	require.Error(t, err)
}

func TestRefResolverViews(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterToolFactory("echo", func() (sdk.Tool, error) { return &stubTool{name: "echo"}, nil }))
	require.NoError(t, r.RegisterAgentFactory("planner", func([]sdk.Tool) (sdk.Agent, error) { return nil, nil }))
	require.NoError(t, r.RegisterLLMFactory("echo-1", func() (sdk.LLMProvider, error) { return nil, nil }))
	require.NoError(t, r.RegisterWorkflow("sub", &blueprint.Blueprint{ID: "sub", SchemaVersion: blueprint.SchemaVersion}))

	assert.True(t, r.HasTool("echo"))
	assert.False(t, r.HasTool("nope"))
	assert.True(t, r.HasAgent("planner"))
	assert.True(t, r.HasModel("echo-1"))
	assert.True(t, r.HasWorkflow("sub"))
	assert.False(t, r.HasWorkflow("nope"))

	// The registry satisfies the validator's resolver interface.
	var _ blueprint.RefResolver = r
}

func TestWorkflowReregistration(t *testing.T) {
	r := New()
	bp := &blueprint.Blueprint{ID: "wf", SchemaVersion: blueprint.SchemaVersion}
	require.NoError(t, r.RegisterWorkflow("wf", bp))
	require.NoError(t, r.RegisterWorkflow("wf", bp), "same blueprint pointer is idempotent")

	err := r.RegisterWorkflow("wf", &blueprint.Blueprint{ID: "wf2", SchemaVersion: blueprint.SchemaVersion})
	require.Error(t, err)

	got, err := r.Workflow("wf")
	require.NoError(t, err)
	assert.Same(t, bp, got)
}

func TestMemoryStoreInstallation(t *testing.T) {
	r := New()
	assert.Nil(t, r.Memory())
}

func TestManifestApply(t *testing.T) {
	r := New()
	catalog := Catalog{
		Tools: map[string]sdk.ToolFactory{
			"echo": func() (sdk.Tool, error) { return &stubTool{name: "echo"}, nil },
		},
		Agents: map[string][]string{
			"planner": {"echo"},
		},
		Models: map[string]sdk.LLMFactory{
			"echo-1": func() (sdk.LLMProvider, error) { return nil, nil },
		},
	}

	m := &Manifest{
		Tools:  []string{"echo"},
		Models: []string{"echo-1"},
		Agents: []ManifestAgent{{Name: "planner"}}, // tools come from the catalog default
	}

	require.NoError(t, m.Apply(r, catalog, func(name string, tools []string) sdk.AgentFactory {
		return func([]sdk.Tool) (sdk.Agent, error) { return nil, nil }
	}))

	assert.True(t, r.HasTool("echo"))
	assert.True(t, r.HasModel("echo-1"))
	assert.True(t, r.HasAgent("planner"))
}

func TestManifestApply_UnknownReferences(t *testing.T) {
	catalog := Catalog{
		Tools:  map[string]sdk.ToolFactory{},
		Models: map[string]sdk.LLMFactory{},
	}
	agentFactory := func(string, []string) sdk.AgentFactory {
		return func([]sdk.Tool) (sdk.Agent, error) { return nil, nil }
	}

	err := (&Manifest{Tools: []string{"ghost"}}).Apply(New(), catalog, agentFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")

	err = (&Manifest{Models: []string{"ghost"}}).Apply(New(), catalog, agentFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model")

	err = (&Manifest{Agents: []ManifestAgent{{Name: "a", Tools: []string{"ghost"}}}}).Apply(New(), catalog, agentFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered tool")
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := LoadManifest("/nonexistent/manifest.yaml")
	require.Error(t, err)
}
