// Package condition evaluates the safe boolean mini-DSL used by condition
// nodes, loop stop predicates, and recursive convergence predicates. The
// DSL is CEL restricted to the variables of the run context: boolean and
// comparison operators, dotted access, and literals.
package condition

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator compiles and caches CEL programs. Safe for concurrent use.
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate compiles expr against the activation's variable set and runs it.
// The expression must produce a boolean.
func (e *Evaluator) Evaluate(expr string, activation map[string]interface{}) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return false, fmt.Errorf("empty condition expression")
	}

	prg, err := e.program(expr, activation)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("condition evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return boolean, got %T", out.Value())
	}
	return result, nil
}

// program returns a cached program or compiles one. The cache key includes
// the sorted variable names because the CEL environment is derived from
// them.
func (e *Evaluator) program(expr string, activation map[string]interface{}) (cel.Program, error) {
	names := make([]string, 0, len(activation))
	for name := range activation {
		names = append(names, name)
	}
	sort.Strings(names)
	key := expr + "|" + strings.Join(names, ",")

	e.mu.RLock()
	prg, exists := e.cache[key]
	e.mu.RUnlock()
	if exists {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(names))
	for _, name := range names {
		if !validIdentifier(name) {
			continue
		}
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition compile error: %w", issues.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.mu.Lock()
	e.cache[key] = prg
	e.mu.Unlock()
	return prg, nil
}

// validIdentifier filters activation keys that cannot be CEL identifiers.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ClearCache drops all compiled programs.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
