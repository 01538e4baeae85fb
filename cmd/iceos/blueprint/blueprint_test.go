package blueprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver answers capability lookups from fixed sets.
type stubResolver struct {
	tools     map[string]bool
	agents    map[string]bool
	models    map[string]bool
	workflows map[string]bool
}

func (r *stubResolver) HasTool(name string) bool     { return r.tools[name] }
func (r *stubResolver) HasAgent(name string) bool    { return r.agents[name] }
func (r *stubResolver) HasModel(id string) bool      { return r.models[id] }
func (r *stubResolver) HasWorkflow(name string) bool { return r.workflows[name] }

func allCapabilities() *stubResolver {
	return &stubResolver{
		tools:     map[string]bool{"echo": true, "http": true},
		agents:    map[string]bool{"researcher": true},
		models:    map[string]bool{"gpt-4o": true, "echo-1": true},
		workflows: map[string]bool{"billing": true},
	}
}

func TestParse_SimpleChain(t *testing.T) {
	data := []byte(`{
		"schema_version": "1.2.0",
		"nodes": [
			{"id": "fetch", "type": "tool", "tool_name": "http", "tool_args": {"url": "https://example.com"}},
			{"id": "summarize", "type": "llm", "model": "gpt-4o", "prompt": "Summarize {{fetch.body}}",
			 "dependencies": ["fetch"]}
		]
	}`)

	bp, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, bp.Nodes, 2)

	fetch := bp.Node("fetch")
	require.NotNil(t, fetch)
	assert.Equal(t, NodeTool, fetch.Type)
	assert.Equal(t, "http", fetch.Tool.ToolName)

	summarize := bp.Node("summarize")
	require.NotNil(t, summarize)
	assert.Equal(t, "gpt-4o", summarize.LLM.Model)
	assert.Equal(t, []string{"fetch"}, summarize.Dependencies)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"schema_version": "1.2.0", "nodes": [], "bogus": true}`))
	require.Error(t, err)
}

func TestParse_RejectsMissingSchemaVersion(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": []}`))
	require.Error(t, err)
}

func TestParse_RejectsFieldFromOtherType(t *testing.T) {
	// A tool node carrying an llm field must fail at parse time.
	_, err := Parse([]byte(`{
		"schema_version": "1.2.0",
		"nodes": [{"id": "a", "type": "tool", "tool_name": "echo", "prompt": "hi"}]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid for type")
}

func TestParse_RequiredFieldsPerType(t *testing.T) {
	cases := map[string]string{
		"tool without tool_name": `{"id": "a", "type": "tool"}`,
		"llm without prompt":     `{"id": "a", "type": "llm", "model": "gpt-4o"}`,
		"agent without max_iterations": `{"id": "a", "type": "agent", "package": "researcher"}`,
		"loop without body": `{"id": "a", "type": "loop", "items_source": "inputs.items",
			"item_var": "item", "max_iterations": 5}`,
		"parallel bad wait strategy": `{"id": "a", "type": "parallel",
			"branches": [[{"id": "b", "type": "tool", "tool_name": "echo"}]], "wait_strategy": "most"}`,
		"human without prompt": `{"id": "a", "type": "human", "timeout_ms": 30000}`,
		"human without timeout": `{"id": "a", "type": "human", "prompt_for_approval": "Proceed?"}`,
	}
	for name, nodeJSON := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(`{"schema_version": "1.2.0", "nodes": [` + nodeJSON + `]}`))
			require.Error(t, err)
		})
	}
}

func TestNodeSpec_JSONRoundTrip(t *testing.T) {
	data := []byte(`{
		"schema_version": "1.2.0",
		"nodes": [
			{"id": "check", "type": "condition", "expression": "score > 0.5",
			 "dependencies": ["score"], "true_branch": ["score"]},
			{"id": "score", "type": "code", "code": "result = 0.7", "language": "python-wasm",
			 "input_mappings": {"raw": {"source_node_id": "check", "source_output_key": "decision"},
			                    "threshold": 0.5},
			 "output_schema": "float"}
		]
	}`)

	bp, err := Parse(data)
	require.NoError(t, err)

	encoded, err := json.Marshal(bp.Nodes)
	require.NoError(t, err)

	var decoded []NodeSpec
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, bp.Nodes, decoded)
}

func TestInputMapping_LiteralVersusReference(t *testing.T) {
	bp, err := Parse([]byte(`{
		"schema_version": "1.2.0",
		"nodes": [{
			"id": "a", "type": "tool", "tool_name": "echo",
			"input_mappings": {
				"lit": {"value": 42},
				"ref": {"source_node_id": "b", "source_output_key": "out.x"}
			}
		}]
	}`))
	require.NoError(t, err)

	mappings := bp.Nodes[0].InputMappings
	assert.True(t, mappings["lit"].IsLiteral)
	assert.False(t, mappings["ref"].IsLiteral)
	assert.Equal(t, "b", mappings["ref"].SourceNodeID)
	assert.Equal(t, "out.x", mappings["ref"].SourceOutputKey)
}

func TestSchema_SimpleLiterals(t *testing.T) {
	valid := []string{`"str"`, `"int"`, `"float"`, `"bool"`, `"dict"`, `"list[str]"`, `"list[int]"`}
	for _, lit := range valid {
		var s Schema
		require.NoError(t, json.Unmarshal([]byte(lit), &s), lit)
	}
	invalid := []string{`"string"`, `"list[dict]"`, `"list[list[str]]"`, `"tuple"`}
	for _, lit := range invalid {
		var s Schema
		require.Error(t, json.Unmarshal([]byte(lit), &s), lit)
	}
}

func TestSchema_ObjectSubset(t *testing.T) {
	var s Schema
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "object",
		"properties": {"name": {"type": "string"}, "count": {"type": "integer"}},
		"required": ["name"]
	}`), &s))

	assert.NoError(t, s.Validate(map[string]interface{}{"name": "x", "count": float64(3)}))
	assert.Error(t, s.Validate(map[string]interface{}{"count": float64(3)}))
	assert.Error(t, s.Validate(map[string]interface{}{"name": "x", "count": 1.5}))

	// Union types and unsupported keywords are rejected at parse time.
	require.Error(t, json.Unmarshal([]byte(`{"type": ["string", "null"]}`), &s))
	require.Error(t, json.Unmarshal([]byte(`{"type": "object", "oneOf": []}`), &s))
}

func TestSchema_SimpleValidation(t *testing.T) {
	s := &Schema{Simple: "list[int]"}
	assert.NoError(t, s.Validate([]interface{}{float64(1), float64(2)}))
	assert.Error(t, s.Validate([]interface{}{float64(1.5)}))
	assert.Error(t, s.Validate("nope"))
}

func TestValidate_DuplicateID(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
	}}
	err := Validate(bp, allCapabilities())
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, DuplicateID, verr.Kind)
}

func TestValidate_UnknownCapability(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "missing"}},
	}}
	err := Validate(bp, allCapabilities())
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, UnknownRef, verr.Kind)
}

func TestValidate_NilResolverSkipsRefs(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "missing"}},
	}}
	assert.NoError(t, Validate(bp, nil))
}

func TestValidate_Cycle(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Dependencies: []string{"b"}, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "b", Type: NodeTool, Dependencies: []string{"a"}, Tool: &ToolSpec{ToolName: "echo"}},
	}}
	err := Validate(bp, allCapabilities())
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, Cycle, verr.Kind)
}

func TestValidate_MappingMustBeDependency(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "b", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"},
			InputMappings: map[string]InputMapping{
				"x": {SourceNodeID: "a", SourceOutputKey: "out"},
			}},
	}}
	err := Validate(bp, allCapabilities())
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, BadMapping, verr.Kind)
}

func TestValidate_MappingAgainstOutputSchema(t *testing.T) {
	outSchema := &Schema{Object: map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"body": map[string]interface{}{"type": "string"}},
	}}
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}, OutputSchema: outSchema},
		{ID: "b", Type: NodeTool, Dependencies: []string{"a"}, Tool: &ToolSpec{ToolName: "echo"},
			InputMappings: map[string]InputMapping{
				"x": {SourceNodeID: "a", SourceOutputKey: "missing_key"},
			}},
	}}
	err := Validate(bp, allCapabilities())
	require.Error(t, err)

	// A declared key passes.
	bp.Nodes[1].InputMappings = map[string]InputMapping{
		"x": {SourceNodeID: "a", SourceOutputKey: "body"},
	}
	assert.NoError(t, Validate(bp, allCapabilities()))
}

func TestValidate_AirgapForbidsExternalIO(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeCode, Airgap: true, Code: &CodeSpec{Code: "result = 1", Language: "python-wasm"}},
		{ID: "b", Type: NodeTool, RequiresExternalIO: true, Tool: &ToolSpec{ToolName: "http"}},
	}}
	err := Validate(bp, allCapabilities())
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, AirgapViolation, verr.Kind)
}

func TestValidate_NestedSubBlueprints(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "loop", Type: NodeLoop, Loop: &LoopSpec{
			ItemsSource: "inputs.items", ItemVar: "item", MaxIterations: 3,
			Body: []NodeSpec{
				{ID: "x", Type: NodeTool, Dependencies: []string{"y"}, Tool: &ToolSpec{ToolName: "echo"}},
				{ID: "y", Type: NodeTool, Dependencies: []string{"x"}, Tool: &ToolSpec{ToolName: "echo"}},
			},
		}},
	}}
	err := Validate(bp, allCapabilities())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body")
}

func TestValidate_MissingTypeSpec(t *testing.T) {
	// Hand-built specs can carry a type with no matching spec struct;
	// Validate must reject them, not dereference nil.
	cases := map[NodeType]NodeSpec{
		NodeTool:      {ID: "n", Type: NodeTool},
		NodeLLM:       {ID: "n", Type: NodeLLM},
		NodeAgent:     {ID: "n", Type: NodeAgent},
		NodeCondition: {ID: "n", Type: NodeCondition},
		NodeLoop:      {ID: "n", Type: NodeLoop},
		NodeParallel:  {ID: "n", Type: NodeParallel},
		NodeCode:      {ID: "n", Type: NodeCode},
		NodeRecursive: {ID: "n", Type: NodeRecursive},
		NodeWorkflow:  {ID: "n", Type: NodeWorkflow},
		NodeHuman:     {ID: "n", Type: NodeHuman},
		NodeSwarm:     {ID: "n", Type: NodeSwarm},
	}
	for typ, node := range cases {
		t.Run(string(typ), func(t *testing.T) {
			bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{node}}
			err := Validate(bp, allCapabilities())
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, SchemaInvalid, verr.Kind)
		})
	}
}

func TestLevels_EdgeOrderingInvariant(t *testing.T) {
	// Diamond: a -> {b, c} -> d
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "b", Type: NodeTool, Dependencies: []string{"a"}, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "c", Type: NodeTool, Dependencies: []string{"a"}, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "d", Type: NodeTool, Dependencies: []string{"b", "c"}, Tool: &ToolSpec{ToolName: "echo"}},
	}}
	g, err := BuildGraph(bp)
	require.NoError(t, err)

	levels := g.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"a"}, levels[0])
	assert.ElementsMatch(t, []string{"b", "c"}, levels[1])
	assert.Equal(t, []string{"d"}, levels[2])

	// For every edge u->v, level(u) < level(v).
	levelOf := map[string]int{}
	for i, ids := range levels {
		for _, id := range ids {
			levelOf[id] = i
		}
	}
	for u, dependents := range g.Dependents {
		for _, v := range dependents {
			assert.Less(t, levelOf[u], levelOf[v], "edge %s->%s", u, v)
		}
	}
}

func TestTransitiveDependents(t *testing.T) {
	bp := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "b", Type: NodeTool, Dependencies: []string{"a"}, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "c", Type: NodeTool, Dependencies: []string{"b"}, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "other", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
	}}
	g, err := BuildGraph(bp)
	require.NoError(t, err)

	deps := g.TransitiveDependents("a")
	assert.True(t, deps["b"])
	assert.True(t, deps["c"])
	assert.False(t, deps["other"])
	assert.False(t, deps["a"])
}

func TestTopologyHash_StableAcrossDeclarationOrder(t *testing.T) {
	forward := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "b", Type: NodeTool, Dependencies: []string{"a"}, Tool: &ToolSpec{ToolName: "echo"}},
	}}
	reversed := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "b", Type: NodeTool, Dependencies: []string{"a"}, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
	}}

	g1, err := BuildGraph(forward)
	require.NoError(t, err)
	g2, err := BuildGraph(reversed)
	require.NoError(t, err)

	assert.Equal(t, g1.TopologyHash(), g2.TopologyHash())

	// A different edge set hashes differently.
	distinct := &Blueprint{SchemaVersion: SchemaVersion, Nodes: []NodeSpec{
		{ID: "a", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
		{ID: "b", Type: NodeTool, Tool: &ToolSpec{ToolName: "echo"}},
	}}
	g3, err := BuildGraph(distinct)
	require.NoError(t, err)
	assert.NotEqual(t, g1.TopologyHash(), g3.TopologyHash())
}

func TestCacheEnabled_NodeFlagWins(t *testing.T) {
	off := false
	on := true
	assert.True(t, (&NodeSpec{}).CacheEnabled(true))
	assert.False(t, (&NodeSpec{}).CacheEnabled(false))
	assert.False(t, (&NodeSpec{UseCache: &off}).CacheEnabled(true))
	assert.True(t, (&NodeSpec{UseCache: &on}).CacheEnabled(false))
}
