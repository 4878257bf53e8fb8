package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/planner"
)

// CompiledQuery is SQL text plus the outcome of static validation. Valid is
// the conjunction of every check in the report.
type CompiledQuery struct {
	SQL      string           `json:"sql"`
	Valid    bool             `json:"valid"`
	Checks   ValidationReport `json:"checks"`
	Metadata QueryMetadata    `json:"metadata"`
}

// QueryMetadata records what the query was compiled from.
type QueryMetadata struct {
	Metrics    []string `json:"metrics"`
	Dimensions []string `json:"dimensions"`
	Joins      int      `json:"joins"`
	Generator  string   `json:"generator"`
}

// Generator produces SQL text from a grounded plan. The output is never
// trusted: every generator's SQL goes through the same AST validation.
type Generator interface {
	Name() string
	Generate(ctx context.Context, plan planner.GroundedPlan) (string, error)
}

// Compiler synthesizes SQL from grounded plans and statically validates it.
type Compiler struct {
	generator Generator
	validator *Validator
}

func New(generator Generator, validator *Validator) *Compiler {
	if generator == nil {
		generator = RuleBased{}
	}
	return &Compiler{generator: generator, validator: validator}
}

// Compile generates SQL for the plan and validates it. It never panics;
// generation and parse failures surface as Valid=false with a message.
func (c *Compiler) Compile(ctx context.Context, plan planner.GroundedPlan) CompiledQuery {
	meta := QueryMetadata{
		Metrics:    bindingNames(plan),
		Dimensions: dimensionNames(plan),
		Joins:      len(plan.Joins),
		Generator:  c.generator.Name(),
	}

	sql, err := c.generator.Generate(ctx, plan)
	if err != nil {
		log.Error().Err(err).Str("generator", c.generator.Name()).Msg("SQL generation failed")
		return CompiledQuery{
			Valid:    false,
			Checks:   ValidationReport{Violations: []string{"SQL generation failed: " + err.Error()}},
			Metadata: meta,
		}
	}

	report := c.validator.Validate(sql)
	compiled := CompiledQuery{
		SQL:      sql,
		Valid:    report.Valid(),
		Checks:   report,
		Metadata: meta,
	}

	if !compiled.Valid {
		log.Warn().Strs("violations", report.Violations).Msg("SQL validation failed")
	}
	return compiled
}

// RuleBased is the deterministic SQL generator: dimensions aliased to their
// canonical names, then metric aggregation expressions; joins, filters,
// grouping and ordering derived directly from the plan.
type RuleBased struct{}

func (RuleBased) Name() string { return "rule_based" }

func (RuleBased) Generate(_ context.Context, plan planner.GroundedPlan) (string, error) {
	if len(plan.Metrics) == 0 && len(plan.Dimensions) == 0 {
		return "", fmt.Errorf("plan has no metrics or dimensions")
	}

	var selectParts []string
	for _, d := range plan.Dimensions {
		selectParts = append(selectParts, fmt.Sprintf("%s.%s AS %s", d.Table, d.Column, d.Canonical))
	}
	for _, m := range plan.Metrics {
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", m.Expression, m.Canonical))
	}

	var fromTable string
	if len(plan.Metrics) > 0 {
		fromTable = plan.Metrics[0].Table
	} else {
		fromTable = plan.Dimensions[0].Table
	}

	parts := []string{
		"SELECT " + strings.Join(selectParts, ",\n  "),
		"FROM " + fromTable,
	}

	for _, j := range plan.Joins {
		kind := j.Kind
		if kind == "" {
			kind = "INNER"
		}
		parts = append(parts, fmt.Sprintf("%s JOIN %s ON %s", kind, j.ToTable, j.Condition))
	}

	// Filters are structured column/operator/value triples originating from
	// the planner's catalog-derived bindings, never raw query text. The AST
	// validator remains the backstop for anything that slips through.
	var where []string
	for _, f := range plan.Filters {
		if f.Column == "" || f.Value == nil {
			continue
		}
		op := f.Operator
		if op == "" {
			op = "="
		}
		switch v := f.Value.(type) {
		case string:
			where = append(where, fmt.Sprintf("%s %s '%s'", f.Column, op, v))
		default:
			where = append(where, fmt.Sprintf("%s %s %v", f.Column, op, v))
		}
	}
	if len(where) > 0 {
		parts = append(parts, "WHERE "+strings.Join(where, " AND "))
	}

	if len(plan.Dimensions) > 0 {
		var groupBy []string
		for _, d := range plan.Dimensions {
			groupBy = append(groupBy, fmt.Sprintf("%s.%s", d.Table, d.Column))
		}
		parts = append(parts, "GROUP BY "+strings.Join(groupBy, ", "))
	}

	if len(plan.Metrics) > 0 {
		parts = append(parts, fmt.Sprintf("ORDER BY %s DESC", plan.Metrics[0].Canonical))
	}

	return strings.Join(parts, "\n"), nil
}

func bindingNames(plan planner.GroundedPlan) []string {
	out := make([]string, len(plan.Metrics))
	for i, m := range plan.Metrics {
		out[i] = m.Canonical
	}
	return out
}

func dimensionNames(plan planner.GroundedPlan) []string {
	out := make([]string, len(plan.Dimensions))
	for i, d := range plan.Dimensions {
		out[i] = d.Canonical
	}
	return out
}
