package ratelimit

import "github.com/iceos-ai/iceos/cmd/iceos/blueprint"

// BlueprintTier represents the rate limit tier based on blueprint
// complexity. Agent-class nodes (agent, swarm, recursive) dominate cost,
// so the tier counts those.
type BlueprintTier string

const (
	TierSimple   BlueprintTier = "simple"   // No agent nodes
	TierStandard BlueprintTier = "standard" // 1-2 agent nodes
	TierHeavy    BlueprintTier = "heavy"    // 3+ agent nodes
)

// BlueprintProfile contains analysis of a blueprint's complexity
type BlueprintProfile struct {
	Tier          BlueprintTier
	AgentCount    int
	HasAgentNodes bool
	TotalNodes    int
}

// Inspect analyzes a blueprint and determines its complexity tier
func Inspect(bp *blueprint.Blueprint) BlueprintProfile {
	profile := BlueprintProfile{
		Tier:       TierSimple,
		TotalNodes: len(bp.Nodes),
	}

	for i := range bp.Nodes {
		switch bp.Nodes[i].Type {
		case blueprint.NodeAgent, blueprint.NodeSwarm, blueprint.NodeRecursive:
			profile.AgentCount++
			profile.HasAgentNodes = true
		}
	}

	profile.Tier = determineTier(profile.AgentCount)
	return profile
}

// determineTier returns the appropriate tier based on agent count
func determineTier(agentCount int) BlueprintTier {
	switch {
	case agentCount == 0:
		return TierSimple
	case agentCount <= 2:
		return TierStandard
	default: // 3+
		return TierHeavy
	}
}
