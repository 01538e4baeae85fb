package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// nodeSpecWire is the flat JSON form of a NodeSpec. The union is
// discriminated by "type"; unknown fields are rejected, and fields
// belonging to a different type are rejected during conversion.
type nodeSpecWire struct {
	ID            string                     `json:"id"`
	Type          NodeType                   `json:"type"`
	Name          string                     `json:"name,omitempty"`
	Dependencies  []string                   `json:"dependencies,omitempty"`
	InputSchema   *Schema                    `json:"input_schema,omitempty"`
	OutputSchema  *Schema                    `json:"output_schema,omitempty"`
	InputMappings map[string]json.RawMessage `json:"input_mappings,omitempty"`
	RetryPolicy   *RetryPolicy               `json:"retry_policy,omitempty"`
	TimeoutMS     int                        `json:"timeout_ms,omitempty"`
	UseCache      *bool                      `json:"use_cache,omitempty"`
	Provider      string                     `json:"provider,omitempty"`
	Airgap        bool                       `json:"airgap,omitempty"`
	ExternalIO    bool                       `json:"requires_external_io,omitempty"`

	// tool
	ToolName string                 `json:"tool_name,omitempty"`
	ToolArgs map[string]interface{} `json:"tool_args,omitempty"`
	// llm
	Model          string     `json:"model,omitempty"`
	Prompt         string     `json:"prompt,omitempty"`
	LLMConfig      *LLMConfig `json:"llm_config,omitempty"`
	MemoryAware    bool       `json:"memory_aware,omitempty"`
	ResponseFormat string     `json:"response_format,omitempty"`
	// agent
	Package       string                 `json:"package,omitempty"`
	Tools         []ToolRef              `json:"tools,omitempty"`
	MaxIterations int                    `json:"max_iterations,omitempty"`
	MemoryConfig  map[string]interface{} `json:"memory_config,omitempty"`
	// condition
	Expression  string     `json:"expression,omitempty"`
	TrueBranch  []string   `json:"true_branch,omitempty"`
	FalseBranch []string   `json:"false_branch,omitempty"`
	TruePath    []NodeSpec `json:"true_path,omitempty"`
	FalsePath   []NodeSpec `json:"false_path,omitempty"`
	// loop
	ItemsSource string     `json:"items_source,omitempty"`
	ItemVar     string     `json:"item_var,omitempty"`
	Body        []NodeSpec `json:"body,omitempty"`
	OutputKey   string     `json:"output_key,omitempty"`
	// parallel
	Branches     [][]NodeSpec `json:"branches,omitempty"`
	WaitStrategy WaitStrategy `json:"wait_strategy,omitempty"`
	N            int          `json:"n,omitempty"`
	// code
	Code     string   `json:"code,omitempty"`
	Language string   `json:"language,omitempty"`
	Imports  []string `json:"imports,omitempty"`
	// recursive
	AgentPackage  string       `json:"agent_package,omitempty"`
	PartnerNodeID string       `json:"partner_node_id,omitempty"`
	Convergence   *Convergence `json:"convergence,omitempty"`
	// workflow
	WorkflowRef     string            `json:"workflow_ref,omitempty"`
	WorkflowVersion string            `json:"workflow_version,omitempty"`
	InputMap        map[string]string `json:"input_map,omitempty"`
	Exports         []string          `json:"exports,omitempty"`
	// human
	PromptForApproval string `json:"prompt_for_approval,omitempty"`
	// swarm
	Agents               []SwarmAgent `json:"agents,omitempty"`
	CoordinationStrategy string       `json:"coordination_strategy,omitempty"`
}

// UnmarshalJSON decodes the flat wire form, rejecting unknown fields.
func (n *NodeSpec) UnmarshalJSON(data []byte) error {
	var w nodeSpecWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("decode node spec: %w", err)
	}
	spec, err := w.toSpec()
	if err != nil {
		return err
	}
	*n = *spec
	return nil
}

// MarshalJSON emits the flat wire form.
func (n NodeSpec) MarshalJSON() ([]byte, error) {
	w := nodeSpecWire{
		ID:            n.ID,
		Type:          n.Type,
		Name:          n.Name,
		Dependencies:  n.Dependencies,
		InputSchema:   n.InputSchema,
		OutputSchema:  n.OutputSchema,
		RetryPolicy:   n.RetryPolicy,
		TimeoutMS:     n.TimeoutMS,
		UseCache:      n.UseCache,
		Provider:      n.Provider,
		Airgap:        n.Airgap,
		ExternalIO:    n.RequiresExternalIO,
	}
	if len(n.InputMappings) > 0 {
		w.InputMappings = make(map[string]json.RawMessage, len(n.InputMappings))
		for key, m := range n.InputMappings {
			raw, err := marshalMapping(m)
			if err != nil {
				return nil, fmt.Errorf("node %s: mapping %s: %w", n.ID, key, err)
			}
			w.InputMappings[key] = raw
		}
	}
	switch n.Type {
	case NodeTool:
		if n.Tool != nil {
			w.ToolName = n.Tool.ToolName
			w.ToolArgs = n.Tool.ToolArgs
		}
	case NodeLLM:
		if n.LLM != nil {
			w.Model = n.LLM.Model
			w.Prompt = n.LLM.Prompt
			cfg := n.LLM.Config
			w.LLMConfig = &cfg
			w.MemoryAware = n.LLM.MemoryAware
			w.ResponseFormat = n.LLM.ResponseFormat
		}
	case NodeAgent:
		if n.Agent != nil {
			w.Package = n.Agent.Package
			w.Tools = n.Agent.Tools
			w.MaxIterations = n.Agent.MaxIterations
			w.MemoryConfig = n.Agent.MemoryConfig
		}
	case NodeCondition:
		if n.Condition != nil {
			w.Expression = n.Condition.Expression
			w.TrueBranch = n.Condition.TrueBranch
			w.FalseBranch = n.Condition.FalseBranch
			w.TruePath = n.Condition.TruePath
			w.FalsePath = n.Condition.FalsePath
		}
	case NodeLoop:
		if n.Loop != nil {
			w.ItemsSource = n.Loop.ItemsSource
			w.ItemVar = n.Loop.ItemVar
			w.Body = n.Loop.Body
			w.MaxIterations = n.Loop.MaxIterations
			w.OutputKey = n.Loop.OutputKey
		}
	case NodeParallel:
		if n.Parallel != nil {
			w.Branches = n.Parallel.Branches
			w.WaitStrategy = n.Parallel.WaitStrategy
			w.N = n.Parallel.N
		}
	case NodeCode:
		if n.Code != nil {
			w.Code = n.Code.Code
			w.Language = n.Code.Language
			w.Imports = n.Code.Imports
		}
	case NodeRecursive:
		if n.Recursive != nil {
			w.AgentPackage = n.Recursive.AgentPackage
			w.PartnerNodeID = n.Recursive.PartnerNodeID
			conv := n.Recursive.Convergence
			w.Convergence = &conv
		}
	case NodeWorkflow:
		if n.Workflow != nil {
			w.WorkflowRef = n.Workflow.WorkflowRef
			w.WorkflowVersion = n.Workflow.Version
			w.InputMap = n.Workflow.InputMap
			w.Exports = n.Workflow.Exports
		}
	case NodeHuman:
		if n.Human != nil {
			w.PromptForApproval = n.Human.PromptForApproval
		}
	case NodeSwarm:
		if n.Swarm != nil {
			w.Agents = n.Swarm.Agents
			w.CoordinationStrategy = n.Swarm.CoordinationStrategy
			w.MaxIterations = n.Swarm.MaxIterations
		}
	}
	return json.Marshal(w)
}

// toSpec converts the wire form into a typed NodeSpec, enforcing per-type
// required fields and rejecting fields that belong to a different type.
func (w *nodeSpecWire) toSpec() (*NodeSpec, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("node spec missing id")
	}
	if !validNodeTypes[w.Type] {
		return nil, fmt.Errorf("node %s: unknown type %q", w.ID, w.Type)
	}

	n := &NodeSpec{
		ID:                 w.ID,
		Type:               w.Type,
		Name:               w.Name,
		Dependencies:       w.Dependencies,
		InputSchema:        w.InputSchema,
		OutputSchema:       w.OutputSchema,
		RetryPolicy:        w.RetryPolicy,
		TimeoutMS:          w.TimeoutMS,
		UseCache:           w.UseCache,
		Provider:           w.Provider,
		Airgap:             w.Airgap,
		RequiresExternalIO: w.ExternalIO,
	}
	if len(w.InputMappings) > 0 {
		n.InputMappings = make(map[string]InputMapping, len(w.InputMappings))
		for key, raw := range w.InputMappings {
			m, err := unmarshalMapping(raw)
			if err != nil {
				return nil, fmt.Errorf("node %s: mapping %s: %w", w.ID, key, err)
			}
			n.InputMappings[key] = m
		}
	}

	// Track which per-type fields were set so misplaced fields fail fast.
	used := map[string]bool{
		"tool_name": w.ToolName != "", "tool_args": w.ToolArgs != nil,
		"model": w.Model != "", "prompt": w.Prompt != "", "llm_config": w.LLMConfig != nil,
		"memory_aware": w.MemoryAware, "response_format": w.ResponseFormat != "",
		"package": w.Package != "", "tools": w.Tools != nil, "memory_config": w.MemoryConfig != nil,
		"max_iterations": w.MaxIterations != 0,
		"expression":     w.Expression != "", "true_branch": w.TrueBranch != nil,
		"false_branch": w.FalseBranch != nil, "true_path": w.TruePath != nil, "false_path": w.FalsePath != nil,
		"items_source": w.ItemsSource != "", "item_var": w.ItemVar != "", "body": w.Body != nil,
		"output_key": w.OutputKey != "",
		"branches":   w.Branches != nil, "wait_strategy": w.WaitStrategy != "", "n": w.N != 0,
		"code": w.Code != "", "language": w.Language != "", "imports": w.Imports != nil,
		"agent_package": w.AgentPackage != "", "partner_node_id": w.PartnerNodeID != "",
		"convergence":  w.Convergence != nil,
		"workflow_ref": w.WorkflowRef != "", "workflow_version": w.WorkflowVersion != "",
		"input_map": w.InputMap != nil, "exports": w.Exports != nil,
		"prompt_for_approval": w.PromptForApproval != "",
		"agents":              w.Agents != nil, "coordination_strategy": w.CoordinationStrategy != "",
	}

	allow := func(fields ...string) error {
		allowed := make(map[string]bool, len(fields))
		for _, f := range fields {
			allowed[f] = true
		}
		for f, set := range used {
			if set && !allowed[f] {
				return fmt.Errorf("node %s: field %q is not valid for type %q", w.ID, f, w.Type)
			}
		}
		return nil
	}

	switch w.Type {
	case NodeTool:
		if err := allow("tool_name", "tool_args"); err != nil {
			return nil, err
		}
		if w.ToolName == "" {
			return nil, fmt.Errorf("node %s: tool node requires tool_name", w.ID)
		}
		n.Tool = &ToolSpec{ToolName: w.ToolName, ToolArgs: w.ToolArgs}
	case NodeLLM:
		if err := allow("model", "prompt", "llm_config", "memory_aware", "response_format"); err != nil {
			return nil, err
		}
		if w.Model == "" || w.Prompt == "" {
			return nil, fmt.Errorf("node %s: llm node requires model and prompt", w.ID)
		}
		spec := &LLMSpec{Model: w.Model, Prompt: w.Prompt, MemoryAware: w.MemoryAware, ResponseFormat: w.ResponseFormat}
		if w.LLMConfig != nil {
			spec.Config = *w.LLMConfig
		}
		n.LLM = spec
	case NodeAgent:
		if err := allow("package", "tools", "max_iterations", "memory_config"); err != nil {
			return nil, err
		}
		if w.Package == "" {
			return nil, fmt.Errorf("node %s: agent node requires package", w.ID)
		}
		if w.MaxIterations <= 0 {
			return nil, fmt.Errorf("node %s: agent node requires max_iterations > 0", w.ID)
		}
		n.Agent = &AgentSpec{Package: w.Package, Tools: w.Tools, MaxIterations: w.MaxIterations, MemoryConfig: w.MemoryConfig}
	case NodeCondition:
		if err := allow("expression", "true_branch", "false_branch", "true_path", "false_path"); err != nil {
			return nil, err
		}
		if w.Expression == "" {
			return nil, fmt.Errorf("node %s: condition node requires expression", w.ID)
		}
		n.Condition = &ConditionSpec{
			Expression:  w.Expression,
			TrueBranch:  w.TrueBranch,
			FalseBranch: w.FalseBranch,
			TruePath:    w.TruePath,
			FalsePath:   w.FalsePath,
		}
	case NodeLoop:
		if err := allow("items_source", "item_var", "body", "max_iterations", "output_key"); err != nil {
			return nil, err
		}
		if w.ItemsSource == "" || w.ItemVar == "" {
			return nil, fmt.Errorf("node %s: loop node requires items_source and item_var", w.ID)
		}
		if len(w.Body) == 0 {
			return nil, fmt.Errorf("node %s: loop node requires a non-empty body", w.ID)
		}
		if w.MaxIterations <= 0 {
			return nil, fmt.Errorf("node %s: loop node requires max_iterations > 0", w.ID)
		}
		n.Loop = &LoopSpec{ItemsSource: w.ItemsSource, ItemVar: w.ItemVar, Body: w.Body, MaxIterations: w.MaxIterations, OutputKey: w.OutputKey}
	case NodeParallel:
		if err := allow("branches", "wait_strategy", "n"); err != nil {
			return nil, err
		}
		if len(w.Branches) == 0 {
			return nil, fmt.Errorf("node %s: parallel node requires branches", w.ID)
		}
		switch w.WaitStrategy {
		case WaitAll, WaitAny, WaitN:
		default:
			return nil, fmt.Errorf("node %s: invalid wait_strategy %q", w.ID, w.WaitStrategy)
		}
		if w.WaitStrategy == WaitN && (w.N <= 0 || w.N > len(w.Branches)) {
			return nil, fmt.Errorf("node %s: n-of-m requires 0 < n <= %d", w.ID, len(w.Branches))
		}
		n.Parallel = &ParallelSpec{Branches: w.Branches, WaitStrategy: w.WaitStrategy, N: w.N}
	case NodeCode:
		if err := allow("code", "language", "imports"); err != nil {
			return nil, err
		}
		if w.Code == "" {
			return nil, fmt.Errorf("node %s: code node requires code", w.ID)
		}
		lang := w.Language
		if lang == "" {
			lang = "python-wasm"
		}
		n.Code = &CodeSpec{Code: w.Code, Language: lang, Imports: w.Imports}
	case NodeRecursive:
		if err := allow("agent_package", "partner_node_id", "convergence"); err != nil {
			return nil, err
		}
		if w.AgentPackage == "" || w.PartnerNodeID == "" {
			return nil, fmt.Errorf("node %s: recursive node requires agent_package and partner_node_id", w.ID)
		}
		if w.Convergence == nil || w.Convergence.MaxIterations <= 0 {
			return nil, fmt.Errorf("node %s: recursive node requires convergence.max_iterations > 0", w.ID)
		}
		n.Recursive = &RecursiveSpec{AgentPackage: w.AgentPackage, PartnerNodeID: w.PartnerNodeID, Convergence: *w.Convergence}
	case NodeWorkflow:
		if err := allow("workflow_ref", "workflow_version", "input_map", "exports"); err != nil {
			return nil, err
		}
		if w.WorkflowRef == "" {
			return nil, fmt.Errorf("node %s: workflow node requires workflow_ref", w.ID)
		}
		n.Workflow = &WorkflowSpec{WorkflowRef: w.WorkflowRef, Version: w.WorkflowVersion, InputMap: w.InputMap, Exports: w.Exports}
	case NodeHuman:
		if err := allow("prompt_for_approval"); err != nil {
			return nil, err
		}
		if w.PromptForApproval == "" {
			return nil, fmt.Errorf("node %s: human node requires prompt_for_approval", w.ID)
		}
		// A human node with no deadline blocks until the run is canceled.
		if w.TimeoutMS <= 0 {
			return nil, fmt.Errorf("node %s: human node requires timeout_ms > 0", w.ID)
		}
		n.Human = &HumanSpec{PromptForApproval: w.PromptForApproval}
	case NodeSwarm:
		if err := allow("agents", "coordination_strategy", "max_iterations"); err != nil {
			return nil, err
		}
		if len(w.Agents) == 0 {
			return nil, fmt.Errorf("node %s: swarm node requires agents", w.ID)
		}
		if w.CoordinationStrategy == "" {
			return nil, fmt.Errorf("node %s: swarm node requires coordination_strategy", w.ID)
		}
		n.Swarm = &SwarmSpec{Agents: w.Agents, CoordinationStrategy: w.CoordinationStrategy, MaxIterations: w.MaxIterations}
	}
	return n, nil
}

// unmarshalMapping decodes an input mapping value: an object carrying
// source_node_id is a reference, anything else is a literal.
func unmarshalMapping(raw json.RawMessage) (InputMapping, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if _, ok := obj["source_node_id"]; ok {
			var ref struct {
				SourceNodeID    string `json:"source_node_id"`
				SourceOutputKey string `json:"source_output_key"`
			}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&ref); err != nil {
				return InputMapping{}, fmt.Errorf("decode mapping reference: %w", err)
			}
			if ref.SourceNodeID == "" {
				return InputMapping{}, fmt.Errorf("mapping reference requires source_node_id")
			}
			return InputMapping{SourceNodeID: ref.SourceNodeID, SourceOutputKey: ref.SourceOutputKey}, nil
		}
	}
	var lit interface{}
	if err := json.Unmarshal(raw, &lit); err != nil {
		return InputMapping{}, fmt.Errorf("decode mapping literal: %w", err)
	}
	return InputMapping{Literal: lit, IsLiteral: true}, nil
}

// marshalMapping encodes an input mapping back to its wire form.
func marshalMapping(m InputMapping) (json.RawMessage, error) {
	if m.IsLiteral {
		return json.Marshal(m.Literal)
	}
	return json.Marshal(map[string]string{
		"source_node_id":    m.SourceNodeID,
		"source_output_key": m.SourceOutputKey,
	})
}

// Parse decodes blueprint JSON, rejecting unknown root fields.
func Parse(data []byte) (*Blueprint, error) {
	var wire struct {
		ID            string                 `json:"id,omitempty"`
		SchemaVersion string                 `json:"schema_version"`
		Metadata      map[string]interface{} `json:"metadata,omitempty"`
		Nodes         []NodeSpec             `json:"nodes"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode blueprint: %w", err)
	}
	if wire.SchemaVersion == "" {
		return nil, fmt.Errorf("blueprint missing schema_version")
	}
	return &Blueprint{
		ID:            wire.ID,
		SchemaVersion: wire.SchemaVersion,
		Metadata:      wire.Metadata,
		Nodes:         wire.Nodes,
	}, nil
}
