package blueprint

import (
	"fmt"
	"strings"
)

// ValidationKind classifies blueprint validation failures.
type ValidationKind string

const (
	DuplicateID     ValidationKind = "duplicate_id"
	UnknownRef      ValidationKind = "unknown_ref"
	Cycle           ValidationKind = "cycle"
	SchemaInvalid   ValidationKind = "schema_invalid"
	AirgapViolation ValidationKind = "airgap_violation"
	BadMapping      ValidationKind = "bad_mapping"
)

// ValidationError reports why a blueprint was rejected.
type ValidationError struct {
	Kind   ValidationKind
	NodeID string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.NodeID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func vErr(kind ValidationKind, nodeID, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, NodeID: nodeID, Msg: fmt.Sprintf(format, args...)}
}

// RefResolver answers whether named capabilities resolve. The executor
// registry satisfies this. A nil resolver skips reference resolution
// ("partial" drafts).
type RefResolver interface {
	HasTool(name string) bool
	HasAgent(name string) bool
	HasModel(id string) bool
	HasWorkflow(name string) bool
}

// Validate checks a blueprint for finalization: unique ids, resolvable
// references, valid dependencies, acyclicity, schema subset conformance,
// structural input mappings, and the airgap rule.
func Validate(bp *Blueprint, resolver RefResolver) error {
	if len(bp.Nodes) == 0 {
		return vErr(SchemaInvalid, "", "blueprint has no nodes")
	}

	seen := make(map[string]*NodeSpec, len(bp.Nodes))
	hasAirgap := false
	for i := range bp.Nodes {
		node := &bp.Nodes[i]
		if _, dup := seen[node.ID]; dup {
			return vErr(DuplicateID, node.ID, "node id declared twice")
		}
		seen[node.ID] = node
		if node.Airgap {
			hasAirgap = true
		}
	}

	for i := range bp.Nodes {
		node := &bp.Nodes[i]

		// Dependencies must reference declared nodes. Declaration order is
		// not execution order; forward references are allowed as long as
		// the graph stays acyclic.
		for _, dep := range node.Dependencies {
			if _, ok := seen[dep]; !ok {
				return vErr(UnknownRef, node.ID, "dependency %q does not exist", dep)
			}
			if dep == node.ID {
				return vErr(Cycle, node.ID, "node depends on itself")
			}
		}

		// Parsed blueprints always carry the per-type spec, but Validate also
		// accepts hand-built NodeSpecs; a nil spec is a structural error, not
		// a panic.
		if err := validateSpecPresence(node); err != nil {
			return err
		}
		if err := validateMappings(node, seen); err != nil {
			return err
		}
		if err := validateRefs(node, resolver); err != nil {
			return err
		}
		if hasAirgap && node.RequiresExternalIO {
			return vErr(AirgapViolation, node.ID, "blueprint contains an airgap node; external I/O is forbidden")
		}
		if err := validateNested(node, resolver); err != nil {
			return err
		}
	}

	g, err := BuildGraph(bp)
	if err != nil {
		return vErr(Cycle, "", "%v", err)
	}
	_ = g

	// Condition branch membership must reference declared nodes.
	for i := range bp.Nodes {
		node := &bp.Nodes[i]
		if node.Type != NodeCondition || node.Condition == nil {
			continue
		}
		for _, id := range append(append([]string{}, node.Condition.TrueBranch...), node.Condition.FalseBranch...) {
			if _, ok := seen[id]; !ok {
				return vErr(UnknownRef, node.ID, "branch member %q does not exist", id)
			}
		}
	}
	return nil
}

// validateMappings checks input mapping references, structurally when the
// producer declares an object output schema.
func validateMappings(node *NodeSpec, seen map[string]*NodeSpec) error {
	for key, m := range node.InputMappings {
		if m.IsLiteral {
			continue
		}
		if m.SourceNodeID == "inputs" {
			// Run-input pseudo-source; resolved against the initial inputs,
			// not a producer node.
			continue
		}
		producer, ok := seen[m.SourceNodeID]
		if !ok {
			return vErr(BadMapping, node.ID, "mapping %q references unknown node %q", key, m.SourceNodeID)
		}
		if !dependsOn(node, m.SourceNodeID) {
			return vErr(BadMapping, node.ID, "mapping %q reads node %q which is not a dependency", key, m.SourceNodeID)
		}
		path := m.SourceOutputKey
		if path == "" || path == "." {
			continue
		}
		if strings.Contains(path, "*") {
			// Wildcards need a schema-aware resolver; only allowed when the
			// producer declares a full JSON-Schema output.
			if producer.OutputSchema == nil || producer.OutputSchema.Object == nil {
				return vErr(BadMapping, node.ID, "mapping %q uses wildcard without a schema-aware producer", key)
			}
			continue
		}
		head := strings.SplitN(path, ".", 2)[0]
		if known, present := producer.OutputSchema.Property(head); known && !present {
			return vErr(BadMapping, node.ID, "mapping %q targets key %q absent from %s's output schema", key, head, m.SourceNodeID)
		}
	}
	return nil
}

// validateSpecPresence checks that the spec variant matching the node's
// type is populated.
func validateSpecPresence(node *NodeSpec) error {
	var present bool
	switch node.Type {
	case NodeTool:
		present = node.Tool != nil
	case NodeLLM:
		present = node.LLM != nil
	case NodeAgent:
		present = node.Agent != nil
	case NodeCondition:
		present = node.Condition != nil
	case NodeLoop:
		present = node.Loop != nil
	case NodeParallel:
		present = node.Parallel != nil
	case NodeCode:
		present = node.Code != nil
	case NodeRecursive:
		present = node.Recursive != nil
	case NodeWorkflow:
		present = node.Workflow != nil
	case NodeHuman:
		present = node.Human != nil
	case NodeSwarm:
		present = node.Swarm != nil
	default:
		return vErr(SchemaInvalid, node.ID, "unknown node type %q", node.Type)
	}
	if !present {
		return vErr(SchemaInvalid, node.ID, "node type %s has no %s spec", node.Type, node.Type)
	}
	return nil
}

func dependsOn(node *NodeSpec, id string) bool {
	for _, dep := range node.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// validateRefs resolves named capabilities through the registry when a
// resolver is supplied.
func validateRefs(node *NodeSpec, resolver RefResolver) error {
	if resolver == nil {
		return nil
	}
	switch node.Type {
	case NodeTool:
		if !resolver.HasTool(node.Tool.ToolName) {
			return vErr(UnknownRef, node.ID, "tool %q is not registered", node.Tool.ToolName)
		}
	case NodeLLM:
		if !resolver.HasModel(node.LLM.Model) {
			return vErr(UnknownRef, node.ID, "model %q is not registered", node.LLM.Model)
		}
	case NodeAgent:
		if !resolver.HasAgent(node.Agent.Package) {
			return vErr(UnknownRef, node.ID, "agent %q is not registered", node.Agent.Package)
		}
		for _, ref := range node.Agent.Tools {
			if !resolver.HasTool(ref.Name) {
				return vErr(UnknownRef, node.ID, "agent tool %q is not registered", ref.Name)
			}
		}
	case NodeRecursive:
		if !resolver.HasAgent(node.Recursive.AgentPackage) {
			return vErr(UnknownRef, node.ID, "agent %q is not registered", node.Recursive.AgentPackage)
		}
	case NodeWorkflow:
		if !resolver.HasWorkflow(node.Workflow.WorkflowRef) {
			return vErr(UnknownRef, node.ID, "workflow %q is not registered", node.Workflow.WorkflowRef)
		}
	case NodeSwarm:
		for _, agent := range node.Swarm.Agents {
			if !resolver.HasAgent(agent.Package) {
				return vErr(UnknownRef, node.ID, "swarm agent %q is not registered", agent.Package)
			}
		}
	}
	return nil
}

// validateNested recurses into inline sub-blueprints (condition paths, loop
// bodies, parallel branches), validating each as its own graph scope.
func validateNested(node *NodeSpec, resolver RefResolver) error {
	validateSub := func(nodes []NodeSpec) error {
		if len(nodes) == 0 {
			return nil
		}
		sub := &Blueprint{SchemaVersion: SchemaVersion, Nodes: nodes}
		return Validate(sub, resolver)
	}
	switch node.Type {
	case NodeCondition:
		if err := validateSub(node.Condition.TruePath); err != nil {
			return fmt.Errorf("node %s true_path: %w", node.ID, err)
		}
		if err := validateSub(node.Condition.FalsePath); err != nil {
			return fmt.Errorf("node %s false_path: %w", node.ID, err)
		}
	case NodeLoop:
		if err := validateSub(node.Loop.Body); err != nil {
			return fmt.Errorf("node %s body: %w", node.ID, err)
		}
	case NodeParallel:
		for i, branch := range node.Parallel.Branches {
			if err := validateSub(branch); err != nil {
				return fmt.Errorf("node %s branch %d: %w", node.ID, i, err)
			}
		}
	}
	return nil
}
