package types

import (
	"fmt"
	"math"
)

// AssignmentMethod selects the routing strategy for a tenant
type AssignmentMethod string

const (
	MethodSkillBased AssignmentMethod = "skill_based"
	MethodRoundRobin AssignmentMethod = "round_robin"
)

// ScoringWeights are the multi-factor scoring weights; they must sum to 1.0
type ScoringWeights struct {
	Tag  float64 `json:"tag"`
	Perf float64 `json:"perf"`
	Load float64 `json:"load"`
}

// DefaultScoringWeights are tunable defaults, not a contract
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Tag: 0.5, Perf: 0.3, Load: 0.2}
}

// TenantConfig is the externally supplied per-tenant routing configuration
type TenantConfig struct {
	TenantID               string           `json:"tenantId"`
	MaxQueueSize           int              `json:"maxQueueSize"`
	MaxWaitMinutes         int              `json:"maxWaitMinutes"`
	AssignmentMethod       AssignmentMethod `json:"assignmentMethod"`
	Weights                ScoringWeights   `json:"scoringWeights"`
	DefaultAcceptsOverflow bool             `json:"defaultAcceptsOverflow"`
}

// DefaultTenantConfig returns a valid config for the given tenant
func DefaultTenantConfig(tenantID string) TenantConfig {
	return TenantConfig{
		TenantID:         tenantID,
		MaxQueueSize:     200,
		MaxWaitMinutes:   30,
		AssignmentMethod: MethodSkillBased,
		Weights:          DefaultScoringWeights(),
	}
}

// Validate checks limits and weight normalization at load time
func (c *TenantConfig) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant config: missing tenant id")
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("tenant config %s: maxQueueSize must be positive, got %d", c.TenantID, c.MaxQueueSize)
	}
	if c.MaxWaitMinutes <= 0 {
		return fmt.Errorf("tenant config %s: maxWaitMinutes must be positive, got %d", c.TenantID, c.MaxWaitMinutes)
	}
	switch c.AssignmentMethod {
	case MethodSkillBased, MethodRoundRobin:
	default:
		return fmt.Errorf("tenant config %s: unknown assignment method %q", c.TenantID, c.AssignmentMethod)
	}
	sum := c.Weights.Tag + c.Weights.Perf + c.Weights.Load
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("tenant config %s: scoring weights must sum to 1.0, got %.3f", c.TenantID, sum)
	}
	if c.Weights.Tag < 0 || c.Weights.Perf < 0 || c.Weights.Load < 0 {
		return fmt.Errorf("tenant config %s: scoring weights must be non-negative", c.TenantID)
	}
	return nil
}
