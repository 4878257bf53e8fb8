package planner

import "context"

// PolicyInput is what a policy checker sees about a grounded plan.
type PolicyInput struct {
	Domains    []string
	Metrics    []string
	Dimensions []string
}

// PolicyChecker decides per-category access for a plan. Implementations may
// consult an external authorization service; results are recorded on the
// plan as named booleans.
type PolicyChecker interface {
	Check(ctx context.Context, in PolicyInput) map[string]bool
}

// AllowAll grants every category. It is the default until a real
// authorization backend is plugged in.
type AllowAll struct{}

func (AllowAll) Check(ctx context.Context, in PolicyInput) map[string]bool {
	return map[string]bool{
		"domain_access":      true,
		"metric_access":      true,
		"dimension_access":   true,
		"row_level_security": true,
	}
}
