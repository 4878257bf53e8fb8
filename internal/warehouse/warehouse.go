package warehouse

import (
	"context"
	"errors"
)

// Row is one result row keyed by column name.
type Row map[string]any

// QueryResult holds the rows and execution metadata of a finished query.
type QueryResult struct {
	Rows      []Row    `json:"rows"`
	Columns   []string `json:"columns"`
	JobID     string   `json:"job_id"`
	RuntimeMs int64    `json:"runtime_ms"`
}

// PlanEstimate is what the warehouse predicts about a query before running
// it. Zero values mean the plan did not carry that figure.
type PlanEstimate struct {
	EstimatedRows      int64    `json:"estimated_rows"`
	EstimatedCostUnits float64  `json:"estimated_cost_units"`
	ReflectionUsed     string   `json:"reflection_used,omitempty"`
	RawPlan            []string `json:"raw_plan,omitempty"`
}

// Warehouse executes SQL against an analytics backend. Implementations
// must honor context cancellation on both calls.
type Warehouse interface {
	Execute(ctx context.Context, sql string) (*QueryResult, error)
	ExplainPlan(ctx context.Context, sql string) (*PlanEstimate, error)
}

var (
	// ErrUnavailable marks upstream connectivity failures so callers can
	// report them as outages rather than query errors.
	ErrUnavailable = errors.New("warehouse unavailable")

	// ErrJobFailed marks a query the warehouse accepted but could not finish.
	ErrJobFailed = errors.New("warehouse job failed")
)
