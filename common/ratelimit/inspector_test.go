package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
)

func bpWithTypes(types ...blueprint.NodeType) *blueprint.Blueprint {
	bp := &blueprint.Blueprint{SchemaVersion: blueprint.SchemaVersion}
	for i, t := range types {
		bp.Nodes = append(bp.Nodes, blueprint.NodeSpec{ID: string(rune('a' + i)), Type: t})
	}
	return bp
}

func TestInspect_TierBoundaries(t *testing.T) {
	cases := []struct {
		name  string
		types []blueprint.NodeType
		tier  BlueprintTier
		count int
	}{
		{"no nodes", nil, TierSimple, 0},
		{"tools only", []blueprint.NodeType{blueprint.NodeTool, blueprint.NodeLLM, blueprint.NodeCode}, TierSimple, 0},
		{"one agent", []blueprint.NodeType{blueprint.NodeTool, blueprint.NodeAgent}, TierStandard, 1},
		{"two agent-class", []blueprint.NodeType{blueprint.NodeAgent, blueprint.NodeSwarm}, TierStandard, 2},
		{"three agent-class", []blueprint.NodeType{blueprint.NodeAgent, blueprint.NodeSwarm, blueprint.NodeRecursive}, TierHeavy, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profile := Inspect(bpWithTypes(tc.types...))
			assert.Equal(t, tc.tier, profile.Tier)
			assert.Equal(t, tc.count, profile.AgentCount)
			assert.Equal(t, len(tc.types), profile.TotalNodes)
			assert.Equal(t, tc.count > 0, profile.HasAgentNodes)
		})
	}
}

func TestGetLimitForTier(t *testing.T) {
	assert.Equal(t, int64(100), GetLimitForTier(TierSimple))
	assert.Equal(t, int64(20), GetLimitForTier(TierStandard))
	assert.Equal(t, int64(5), GetLimitForTier(TierHeavy))
	assert.Equal(t, int64(5), GetLimitForTier(BlueprintTier("unknown")), "unknown tiers fall back to the most restrictive limit")
}
