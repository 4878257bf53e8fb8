// Package pipeline wires the full query path: resolve intent, ground
// against the catalog, then either diagnose a metric change or compile,
// safety-check, execute, and format.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/compiler"
	"github.com/queryhawk/queryhawk/internal/diagnostics"
	"github.com/queryhawk/queryhawk/internal/planner"
	"github.com/queryhawk/queryhawk/internal/resolver"
	"github.com/queryhawk/queryhawk/internal/results"
	"github.com/queryhawk/queryhawk/internal/safety"
	"github.com/queryhawk/queryhawk/internal/warehouse"
)

const (
	defaultCurrentPeriod  = "last_month"
	defaultBaselinePeriod = "previous_month"
)

// Orchestrator coordinates the pipeline components.
type Orchestrator struct {
	resolver    *resolver.Resolver
	planner     *planner.Planner
	compiler    *compiler.Compiler
	gate        *safety.Gate
	diagnostics *diagnostics.Agent
	wh          warehouse.Warehouse
	results     *results.Processor
	audit       *Auditor
}

func New(
	res *resolver.Resolver,
	pl *planner.Planner,
	comp *compiler.Compiler,
	gate *safety.Gate,
	diag *diagnostics.Agent,
	wh warehouse.Warehouse,
	proc *results.Processor,
) *Orchestrator {
	return &Orchestrator{
		resolver:    res,
		planner:     pl,
		compiler:    comp,
		gate:        gate,
		diagnostics: diag,
		wh:          wh,
		results:     proc,
		audit:       NewAuditor(false),
	}
}

// SetAuditor replaces the default disabled auditor.
func (o *Orchestrator) SetAuditor(a *Auditor) {
	o.audit = a
}

// ProcessQuery runs one natural language question through the pipeline and
// returns the client-formatted response. Failures carry a pipeline error
// class distinguishing bad questions, invalid SQL, safety rejections, and
// upstream outages.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query, userID string, format results.Format) (map[string]any, error) {
	traceID := uuid.NewString()
	logger := log.With().Str("trace_id", traceID).Logger()

	out, err := o.process(ctx, query, userID, traceID, format, &logger)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			o.audit.QueryRejected(traceID, query, userID, perr.Code)
		}
	}
	return out, err
}

func (o *Orchestrator) process(ctx context.Context, query, userID, traceID string, format results.Format, logger *zerolog.Logger) (map[string]any, error) {
	logger.Info().Str("query", query).Str("user_id", userID).Msg("analytics query start")

	resolved := o.resolver.Resolve(query)
	logger.Info().Str("intent", string(resolved.Intent)).
		Float64("confidence", resolved.Confidence).Msg("query resolved")

	plan, err := o.planner.Ground(ctx, resolved)
	if err != nil {
		return nil, newError(ErrUngroundable, "UNGROUNDABLE_QUERY", err.Error())
	}
	if len(plan.Metrics) == 0 && len(plan.Dimensions) == 0 {
		return nil, newError(ErrUngroundable, "UNGROUNDABLE_QUERY",
			"could not identify any metrics or dimensions in query, rephrase with clearer metric names")
	}
	logger.Info().Int("metrics", len(plan.Metrics)).
		Int("dimensions", len(plan.Dimensions)).Msg("query grounded")

	if resolved.Intent == resolver.IntentDiagnostic {
		return o.processDiagnostic(ctx, resolved, plan, traceID, format, logger)
	}
	return o.processStandard(ctx, plan, userID, traceID, format, logger)
}

func (o *Orchestrator) processStandard(ctx context.Context, plan planner.GroundedPlan, userID, traceID string, format results.Format, logger *zerolog.Logger) (map[string]any, error) {
	compiled := o.compiler.Compile(ctx, plan)
	if !compiled.Valid {
		return nil, newError(ErrValidationFailed, "SQL_VALIDATION_FAILED", compiled.Checks.Violations...)
	}
	logger.Info().Int("sql_length", len(compiled.SQL)).Msg("query compiled")

	decision := o.gate.Check(ctx, compiled, userID)
	if !decision.Approved {
		if isExplainOutage(decision) {
			return nil, newError(ErrUpstream, "UPSTREAM_UNAVAILABLE", decision.Violations...)
		}
		return nil, newError(ErrSafetyRejected, "SAFETY_REJECTED", decision.Violations...)
	}
	logger.Info().Int64("estimated_rows", decision.EstimatedRows).
		Float64("estimated_cost", decision.EstimatedCostUnits).Msg("safety check passed")

	result, err := o.wh.Execute(ctx, compiled.SQL)
	if err != nil {
		logger.Error().Err(err).Msg("query execution failed")
		return nil, newError(ErrUpstream, "UPSTREAM_UNAVAILABLE", err.Error())
	}
	logger.Info().Str("job_id", result.JobID).Int("rows", len(result.Rows)).
		Int64("runtime_ms", result.RuntimeMs).Msg("query executed")

	o.audit.QueryExecuted(traceID, compiled.SQL, userID, len(result.Rows),
		decision.EstimatedCostUnits, result.RuntimeMs)

	// Accounting happens off the request path; a slow quota store must not
	// delay the response.
	if userID != "" && decision.EstimatedCostUnits > 0 {
		go o.gate.RecordUsage(context.WithoutCancel(ctx), userID, decision.EstimatedCostUnits)
	}

	processed := o.results.Process(result.Rows, results.Metadata{
		SQL:       compiled.SQL,
		JobID:     result.JobID,
		RuntimeMs: result.RuntimeMs,
		CostUnits: decision.EstimatedCostUnits,
		TraceID:   traceID,
	}, "", format)

	logger.Info().Int("rows", len(result.Rows)).Msg("analytics query complete")
	return results.ForClient(processed), nil
}

func (o *Orchestrator) processDiagnostic(ctx context.Context, resolved resolver.ResolvedQuery, plan planner.GroundedPlan, traceID string, format results.Format, logger *zerolog.Logger) (map[string]any, error) {
	currentPeriod := resolved.Entities.TimePeriod
	if currentPeriod == "" {
		currentPeriod = defaultCurrentPeriod
	}
	baselinePeriod := resolved.Entities.BaselinePeriod
	if baselinePeriod == "" {
		baselinePeriod = defaultBaselinePeriod
	}

	diag := o.diagnostics.Diagnose(ctx, plan, baselinePeriod, currentPeriod)
	logger.Info().Str("status", string(diag.Status)).
		Float64("confidence", diag.Confidence).
		Int("drivers", len(diag.Drivers)).Msg("diagnostics complete")

	if diag.Status == diagnostics.StatusFailed {
		return nil, newError(ErrUpstream, "UPSTREAM_UNAVAILABLE", diag.Narrative)
	}

	waterfall := make([]warehouse.Row, 0, len(diag.Drivers)+2)
	waterfall = append(waterfall, warehouse.Row{
		"factor": "Baseline", "value": diag.BaselineValue, "type": "baseline",
	})
	for _, d := range diag.Drivers {
		waterfall = append(waterfall, warehouse.Row{
			"factor": titleize(d.Factor), "value": d.Impact, "type": "driver",
		})
	}
	waterfall = append(waterfall, warehouse.Row{
		"factor": "Current", "value": diag.CurrentValue, "type": "current",
	})

	processed := o.results.Process(waterfall, results.Metadata{
		SQL:     fmt.Sprintf("-- %d diagnostic queries executed", diag.QueriesExecuted),
		TraceID: traceID,
	}, diag.Narrative, format)

	metricName := "Metric"
	if len(plan.Metrics) > 0 {
		metricName = plan.Metrics[0].Canonical
	}
	processed.Visualization = results.WaterfallVisualization(metricName)

	formatted := results.ForClient(processed)
	formatted["diagnostic_details"] = diagnosticDetails(diag)

	logger.Info().Str("status", string(diag.Status)).Msg("diagnostic query complete")
	return formatted, nil
}

func diagnosticDetails(diag diagnostics.Result) map[string]any {
	drivers := make([]map[string]any, 0, len(diag.Drivers))
	for _, d := range diag.Drivers {
		drivers = append(drivers, map[string]any{
			"factor":     d.Factor,
			"impact":     d.Impact,
			"impact_pct": d.ImpactPct,
			"dimension":  d.Dimension,
		})
	}
	return map[string]any{
		"status":           string(diag.Status),
		"confidence":       diag.Confidence,
		"baseline_value":   diag.BaselineValue,
		"current_value":    diag.CurrentValue,
		"delta":            diag.Delta,
		"delta_pct":        diag.DeltaPct,
		"queries_executed": diag.QueriesExecuted,
		"drivers":          drivers,
	}
}

// isExplainOutage reports whether the gate rejected only because the
// warehouse could not produce a plan.
func isExplainOutage(decision safety.Decision) bool {
	return len(decision.Violations) == 1 &&
		decision.Violations[0] == safety.ExplainUnavailableViolation
}

func titleize(factor string) string {
	words := strings.Split(strings.ReplaceAll(factor, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
