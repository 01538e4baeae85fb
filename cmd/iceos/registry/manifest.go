package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// Manifest declares the capabilities a deployment loads at startup. Tools,
// agents, and models name factories the binary links in; workflows point at
// blueprint JSON files registered under a name.
type Manifest struct {
	Tools     []string           `yaml:"tools"`
	Agents    []ManifestAgent    `yaml:"agents"`
	Models    []string           `yaml:"models"`
	Workflows []ManifestWorkflow `yaml:"workflows"`
	Defaults  map[string]string  `yaml:"defaults"`
}

// ManifestAgent binds an agent name to the tool names it may call.
type ManifestAgent struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// ManifestWorkflow names a blueprint file to register for workflow nodes.
type ManifestWorkflow struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// LoadManifest parses a startup manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Catalog is the set of linked-in factories a manifest can select from.
type Catalog struct {
	Tools  map[string]sdk.ToolFactory
	Agents map[string][]string // agent name -> default tool names when the manifest omits them
	Models map[string]sdk.LLMFactory
}

// Apply registers the manifest's selections into the registry, resolving
// names against the catalog and loading workflow blueprints from disk.
// Every referenced name must exist; validation of workflow blueprints runs
// against the registry state accumulated so far.
func (m *Manifest) Apply(r *Registry, catalog Catalog, agentFactory func(name string, tools []string) sdk.AgentFactory) error {
	for _, name := range m.Tools {
		factory, ok := catalog.Tools[name]
		if !ok {
			return sdk.NewError(sdk.ErrRegistry, "manifest references unknown tool %q", name)
		}
		if err := r.RegisterToolFactory(name, factory); err != nil {
			return err
		}
	}
	for _, id := range m.Models {
		factory, ok := catalog.Models[id]
		if !ok {
			return sdk.NewError(sdk.ErrRegistry, "manifest references unknown model %q", id)
		}
		if err := r.RegisterLLMFactory(id, factory); err != nil {
			return err
		}
	}
	for _, a := range m.Agents {
		tools := a.Tools
		if len(tools) == 0 {
			tools = catalog.Agents[a.Name]
		}
		for _, t := range tools {
			if !r.HasTool(t) {
				return sdk.NewError(sdk.ErrRegistry, "agent %q references unregistered tool %q", a.Name, t)
			}
		}
		if err := r.RegisterAgentFactory(a.Name, agentFactory(a.Name, tools)); err != nil {
			return err
		}
	}
	for _, w := range m.Workflows {
		data, err := os.ReadFile(w.Path)
		if err != nil {
			return fmt.Errorf("read workflow %s: %w", w.Name, err)
		}
		bp, err := blueprint.Parse(data)
		if err != nil {
			return fmt.Errorf("parse workflow %s: %w", w.Name, err)
		}
		if err := blueprint.Validate(bp, r); err != nil {
			return fmt.Errorf("workflow %s invalid: %w", w.Name, err)
		}
		if err := r.RegisterWorkflow(w.Name, bp); err != nil {
			return err
		}
	}
	return nil
}
