package blueprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Graph holds adjacency and reverse adjacency for a blueprint's dependency
// edges. Edges run dependency -> dependent.
type Graph struct {
	// Adjacency: node id -> dependents.
	Dependents map[string][]string
	// Reverse adjacency: node id -> dependencies.
	Dependencies map[string][]string
	// Node ids in blueprint declaration order.
	Order []string
}

// BuildGraph constructs the dependency graph. It assumes ids and references
// were already checked by Validate; unknown references are still reported.
func BuildGraph(bp *Blueprint) (*Graph, error) {
	g := &Graph{
		Dependents:   make(map[string][]string, len(bp.Nodes)),
		Dependencies: make(map[string][]string, len(bp.Nodes)),
		Order:        make([]string, 0, len(bp.Nodes)),
	}
	for i := range bp.Nodes {
		id := bp.Nodes[i].ID
		g.Order = append(g.Order, id)
		if _, ok := g.Dependents[id]; !ok {
			g.Dependents[id] = nil
		}
	}
	for i := range bp.Nodes {
		node := &bp.Nodes[i]
		for _, dep := range node.Dependencies {
			if _, ok := g.Dependents[dep]; !ok {
				return nil, fmt.Errorf("node %s depends on non-existent node %s", node.ID, dep)
			}
			g.Dependents[dep] = append(g.Dependents[dep], node.ID)
			g.Dependencies[node.ID] = append(g.Dependencies[node.ID], dep)
		}
	}
	if cycle := g.findCycle(); cycle != "" {
		return nil, fmt.Errorf("dependency graph contains a cycle through %s", cycle)
	}
	return g, nil
}

// findCycle runs a DFS over dependents and returns a node on a cycle, or "".
func (g *Graph) findCycle() string {
	visited := make(map[string]bool, len(g.Order))
	inStack := make(map[string]bool, len(g.Order))

	var visit func(id string) string
	visit = func(id string) string {
		visited[id] = true
		inStack[id] = true
		for _, dep := range g.Dependents[id] {
			if !visited[dep] {
				if hit := visit(dep); hit != "" {
					return hit
				}
			} else if inStack[dep] {
				return dep
			}
		}
		inStack[id] = false
		return ""
	}

	for _, id := range g.Order {
		if !visited[id] {
			if hit := visit(id); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// Levels partitions nodes into topological levels: a node's level is one
// greater than the maximum level of its dependencies. For every edge u->v,
// level(u) < level(v).
func (g *Graph) Levels() [][]string {
	level := make(map[string]int, len(g.Order))
	indegree := make(map[string]int, len(g.Order))
	for _, id := range g.Order {
		indegree[id] = len(g.Dependencies[id])
	}

	queue := make([]string, 0, len(g.Order))
	for _, id := range g.Order {
		if indegree[id] == 0 {
			queue = append(queue, id)
			level[id] = 0
		}
	}

	maxLevel := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents[id] {
			if level[id]+1 > level[dep] {
				level[dep] = level[id] + 1
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
				if level[dep] > maxLevel {
					maxLevel = level[dep]
				}
			}
		}
		if level[id] > maxLevel {
			maxLevel = level[id]
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range g.Order {
		levels[level[id]] = append(levels[level[id]], id)
	}
	return levels
}

// TransitiveDependents returns every node reachable from id over dependent
// edges, excluding id itself.
func (g *Graph) TransitiveDependents(id string) map[string]bool {
	out := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.Dependents[cur] {
			if !out[dep] {
				out[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)
	return out
}

// TopologyHash computes a SHA-256 fingerprint over the sorted adjacency
// map. Blueprints with identical topology share a cache key prefix.
func (g *Graph) TopologyHash() string {
	ids := make([]string, len(g.Order))
	copy(ids, g.Order)
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		deps := make([]string, len(g.Dependents[id]))
		copy(deps, g.Dependents[id])
		sort.Strings(deps)
		sb.WriteString(id)
		sb.WriteString("->")
		sb.WriteString(strings.Join(deps, ","))
		sb.WriteString(";")
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
