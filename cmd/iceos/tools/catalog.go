// Package tools holds the built-in tool implementations and their
// factories. Deployments select from the catalog via the plugin manifest.
package tools

import "github.com/iceos-ai/iceos/cmd/iceos/sdk"

// Catalog returns the factories for every built-in tool.
func Catalog() map[string]sdk.ToolFactory {
	return map[string]sdk.ToolFactory{
		"echo":     func() (sdk.Tool, error) { return &EchoTool{}, nil },
		"sleep":    func() (sdk.Tool, error) { return &SleepTool{}, nil },
		"http":     func() (sdk.Tool, error) { return NewHTTPTool(), nil },
		"template": func() (sdk.Tool, error) { return &TemplateTool{}, nil },
	}
}
