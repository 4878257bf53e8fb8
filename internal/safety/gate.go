// Package safety performs pre-execution checks on compiled queries. The
// gate asks the warehouse for a plan estimate, compares it against row and
// cost limits, and verifies the user's remaining quota.
package safety

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/compiler"
	"github.com/queryhawk/queryhawk/internal/quota"
	"github.com/queryhawk/queryhawk/internal/warehouse"
)

const (
	DefaultMaxRows      = 1_000_000
	DefaultMaxCostUnits = 100.0
)

// ExplainUnavailableViolation marks a rejection caused by the warehouse
// failing to produce a plan, so callers can report an outage instead of a
// policy rejection.
const ExplainUnavailableViolation = "failed to get EXPLAIN plan from warehouse"

// Decision is the gate's verdict on one compiled query. Approved is true
// exactly when Violations is empty; Warnings never block execution.
type Decision struct {
	Approved           bool            `json:"approved"`
	EstimatedRows      int64           `json:"estimated_rows"`
	EstimatedCostUnits float64         `json:"estimated_cost_units"`
	ReflectionUsed     string          `json:"reflection_used,omitempty"`
	Quota              *quota.Snapshot `json:"quota,omitempty"`
	Violations         []string        `json:"violations,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
}

// Explainer is the slice of the warehouse the gate needs.
type Explainer interface {
	ExplainPlan(ctx context.Context, sql string) (*warehouse.PlanEstimate, error)
}

// Limits bounds what a single query may consume.
type Limits struct {
	MaxRows      int64
	MaxCostUnits float64
}

// Gate runs all pre-execution checks.
type Gate struct {
	explainer  Explainer
	quotas     quota.Service
	limits     Limits
	trackQuota bool
}

// New creates a gate. A nil quota service disables quota tracking; zero
// limits fall back to the defaults.
func New(explainer Explainer, quotas quota.Service, limits Limits) *Gate {
	if limits.MaxRows == 0 {
		limits.MaxRows = DefaultMaxRows
	}
	if limits.MaxCostUnits == 0 {
		limits.MaxCostUnits = DefaultMaxCostUnits
	}
	return &Gate{
		explainer:  explainer,
		quotas:     quotas,
		limits:     limits,
		trackQuota: quotas != nil,
	}
}

// Check decides whether the compiled query may run. A query with no plan
// estimate is always rejected; all limit checks run independently so the
// decision lists every violation.
func (g *Gate) Check(ctx context.Context, compiled compiler.CompiledQuery, userID string) Decision {
	log.Info().Int("sql_length", len(compiled.SQL)).Msg("running safety checks")

	estimate, err := g.explainer.ExplainPlan(ctx, compiled.SQL)
	if err != nil || estimate == nil {
		log.Error().Err(err).Msg("explain failed")
		return Decision{
			Approved:   false,
			Violations: []string{ExplainUnavailableViolation},
		}
	}

	decision := Decision{
		EstimatedRows:      estimate.EstimatedRows,
		EstimatedCostUnits: estimate.EstimatedCostUnits,
		ReflectionUsed:     estimate.ReflectionUsed,
	}

	if estimate.EstimatedRows > g.limits.MaxRows {
		decision.Violations = append(decision.Violations, fmt.Sprintf(
			"estimated rows (%d) exceeds limit (%d), add filters to reduce data volume",
			estimate.EstimatedRows, g.limits.MaxRows))
	}

	if estimate.EstimatedCostUnits > g.limits.MaxCostUnits {
		decision.Violations = append(decision.Violations, fmt.Sprintf(
			"estimated cost (%.2f DCU) exceeds limit (%.2f DCU), optimize the query or increase the limit",
			estimate.EstimatedCostUnits, g.limits.MaxCostUnits))
	}

	if estimate.ReflectionUsed == "" {
		decision.Warnings = append(decision.Warnings,
			"no reflection used, query may be slower")
	}

	if g.trackQuota && userID != "" {
		snapshot, err := g.quotas.Get(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("quota check failed")
			decision.Violations = append(decision.Violations,
				"quota service unavailable, query rejected")
		} else {
			decision.Quota = &snapshot
			if snapshot.Available < estimate.EstimatedCostUnits {
				decision.Violations = append(decision.Violations, fmt.Sprintf(
					"insufficient quota, required: %.2f DCU, available: %.2f DCU",
					estimate.EstimatedCostUnits, snapshot.Available))
			}
		}
	}

	decision.Approved = len(decision.Violations) == 0

	if decision.Approved {
		log.Info().Int64("estimated_rows", decision.EstimatedRows).
			Float64("estimated_cost", decision.EstimatedCostUnits).
			Int("warnings", len(decision.Warnings)).Msg("safety check passed")
	} else {
		log.Warn().Strs("violations", decision.Violations).
			Int64("estimated_rows", decision.EstimatedRows).
			Float64("estimated_cost", decision.EstimatedCostUnits).Msg("safety check failed")
	}
	return decision
}

// RecordUsage debits the user's quota after a query runs. Failures are
// logged, never surfaced; accounting must not fail a finished query.
func (g *Gate) RecordUsage(ctx context.Context, userID string, actualCost float64) {
	if !g.trackQuota || userID == "" {
		return
	}
	if err := g.quotas.Increment(ctx, userID, actualCost); err != nil {
		log.Error().Err(err).Str("user_id", userID).Float64("cost", actualCost).
			Msg("quota update failed")
		return
	}
	log.Info().Str("user_id", userID).Float64("cost", actualCost).Msg("quota updated")
}
