// Package diagnostics answers "why did the metric change" questions. It
// compares the metric across two periods, decomposes the variance by
// dimension, correlates event activity, and ranks the resulting drivers.
package diagnostics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/queryhawk/queryhawk/internal/catalog"
	"github.com/queryhawk/queryhawk/internal/events"
	"github.com/queryhawk/queryhawk/internal/planner"
	"github.com/queryhawk/queryhawk/internal/warehouse"
)

// Status classifies how conclusive a diagnosis is.
type Status string

const (
	StatusDiagnosed Status = "diagnosed"
	StatusPartial   Status = "partial"
	StatusUnclear   Status = "unclear"
	StatusFailed    Status = "failed"
)

const (
	// Changes below this percentage are not worth diagnosing.
	significanceThresholdPct = 5.0

	diagnosedConfidence = 0.8
	partialConfidence   = 0.5

	maxEvidenceRows = 5
)

// Driver is one quantified contributor to the metric change.
type Driver struct {
	Factor      string           `json:"factor"`
	Dimension   string           `json:"dimension,omitempty"`
	Impact      float64          `json:"impact"`
	ImpactPct   float64          `json:"impact_pct"`
	EvidenceSQL string           `json:"evidence_sql,omitempty"`
	Evidence    []map[string]any `json:"evidence,omitempty"`
}

// Result is the full outcome of a diagnostic run.
type Result struct {
	Status          Status   `json:"status"`
	Confidence      float64  `json:"confidence"`
	BaselineValue   float64  `json:"baseline_value"`
	CurrentValue    float64  `json:"current_value"`
	Delta           float64  `json:"delta"`
	DeltaPct        float64  `json:"delta_pct"`
	Drivers         []Driver `json:"drivers"`
	Narrative       string   `json:"narrative"`
	QueriesExecuted int      `json:"queries_executed"`
}

// Executor is the slice of the warehouse the agent needs.
type Executor interface {
	Execute(ctx context.Context, sql string) (*warehouse.QueryResult, error)
}

// Agent runs the diagnostic recipe: compare periods, decompose variance,
// check events, rank drivers.
type Agent struct {
	exec   Executor
	events events.Source
	cat    *catalog.Catalog
}

// New creates an agent. A nil event source skips event correlation.
func New(exec Executor, eventSource events.Source, cat *catalog.Catalog) *Agent {
	return &Agent{exec: exec, events: eventSource, cat: cat}
}

// Diagnose analyzes why the plan's first metric changed between the two
// periods. Individual probe failures degrade confidence instead of failing
// the run; only a missing metric or an unreadable baseline is fatal.
func (a *Agent) Diagnose(ctx context.Context, plan planner.GroundedPlan, baselinePeriod, currentPeriod string) Result {
	if len(plan.Metrics) == 0 {
		return Result{
			Status:    StatusFailed,
			Narrative: "No metric specified for diagnostics",
		}
	}
	metric := plan.Metrics[0]
	var queries atomic.Int64

	log.Info().Str("metric", metric.Canonical).
		Str("baseline", baselinePeriod).Str("current", currentPeriod).
		Msg("starting diagnostics")

	baselineValue, err := a.metricValue(ctx, metric, baselinePeriod, &queries)
	if err != nil {
		log.Error().Err(err).Msg("baseline query failed")
		return Result{
			Status:          StatusFailed,
			Narrative:       "Could not read baseline value: " + err.Error(),
			QueriesExecuted: int(queries.Load()),
		}
	}
	currentValue, err := a.metricValue(ctx, metric, currentPeriod, &queries)
	if err != nil {
		log.Error().Err(err).Msg("current period query failed")
		return Result{
			Status:          StatusFailed,
			BaselineValue:   baselineValue,
			Narrative:       "Could not read current value: " + err.Error(),
			QueriesExecuted: int(queries.Load()),
		}
	}

	delta := currentValue - baselineValue
	deltaPct := 0.0
	if baselineValue != 0 {
		deltaPct = delta / baselineValue * 100
	}

	log.Info().Float64("baseline", baselineValue).Float64("current", currentValue).
		Float64("delta", delta).Float64("delta_pct", deltaPct).Msg("period comparison")

	if math.Abs(deltaPct) < significanceThresholdPct {
		return Result{
			Status:          StatusUnclear,
			Confidence:      0.5,
			BaselineValue:   baselineValue,
			CurrentValue:    currentValue,
			Delta:           delta,
			DeltaPct:        deltaPct,
			Narrative:       fmt.Sprintf("No significant change detected (%.1f%%)", deltaPct),
			QueriesExecuted: int(queries.Load()),
		}
	}

	drivers := a.collectDrivers(ctx, metric, baselinePeriod, currentPeriod, delta, &queries)
	ranked := rankDrivers(drivers, delta)

	totalExplained := 0.0
	for _, d := range ranked {
		totalExplained += math.Abs(d.Impact)
	}
	confidence := 0.0
	if delta != 0 {
		confidence = math.Min(totalExplained/math.Abs(delta), 1.0)
	}

	status := StatusUnclear
	switch {
	case confidence >= diagnosedConfidence:
		status = StatusDiagnosed
	case confidence >= partialConfidence:
		status = StatusPartial
	}

	log.Info().Int("drivers", len(ranked)).Float64("explained", totalExplained).
		Float64("confidence", confidence).Str("status", string(status)).
		Msg("diagnostics complete")

	return Result{
		Status:          status,
		Confidence:      confidence,
		BaselineValue:   baselineValue,
		CurrentValue:    currentValue,
		Delta:           delta,
		DeltaPct:        deltaPct,
		Drivers:         ranked,
		Narrative:       narrative(metric.Canonical, delta, deltaPct, ranked, baselinePeriod, currentPeriod),
		QueriesExecuted: int(queries.Load()),
	}
}

// collectDrivers fans out one probe per decomposition dimension and one per
// event table. Probes run concurrently but land in fixed slots so ranking
// ties keep catalog order.
func (a *Agent) collectDrivers(ctx context.Context, metric planner.MetricBinding, baselinePeriod, currentPeriod string, delta float64, queries *atomic.Int64) []Driver {
	dims := a.cat.DecompositionDimensions(metric.Canonical)
	tables := a.cat.EventTables()

	slots := make([]*Driver, len(dims)+len(tables))
	g, gctx := errgroup.WithContext(ctx)

	for i, dim := range dims {
		g.Go(func() error {
			d, err := a.decomposeByDimension(gctx, metric, dim, baselinePeriod, currentPeriod, delta, queries)
			if err != nil {
				log.Warn().Err(err).Str("dimension", dim).Msg("decomposition probe failed, skipping")
				return nil
			}
			slots[i] = d
			return nil
		})
	}

	if a.events != nil {
		for i, et := range tables {
			g.Go(func() error {
				d, err := a.checkEventTable(gctx, et, baselinePeriod, currentPeriod, delta, queries)
				if err != nil {
					log.Warn().Err(err).Str("event_table", et.Table).Msg("event probe failed, skipping")
					return nil
				}
				slots[len(dims)+i] = d
				return nil
			})
		}
	}

	g.Wait()

	var drivers []Driver
	for _, d := range slots {
		if d != nil {
			drivers = append(drivers, *d)
		}
	}
	return drivers
}

func (a *Agent) metricValue(ctx context.Context, metric planner.MetricBinding, period string, queries *atomic.Int64) (float64, error) {
	sql := fmt.Sprintf("SELECT %s AS value FROM %s WHERE period = '%s'",
		metric.Expression, metric.Table, period)
	result, err := a.exec.Execute(ctx, sql)
	if err != nil {
		return 0, err
	}
	queries.Add(1)
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return toFloat(result.Rows[0]["value"]), nil
}

// decomposeByDimension measures the metric per segment in both periods and
// attributes to the dimension the part of the delta moving in the same
// direction as the total. A dimension whose segments all moved against the
// trend contributes nothing.
func (a *Agent) decomposeByDimension(ctx context.Context, metric planner.MetricBinding, dim, baselinePeriod, currentPeriod string, totalDelta float64, queries *atomic.Int64) (*Driver, error) {
	column := dim
	if d, ok := a.cat.Dimension(dim); ok {
		column = d.Column
	}

	segmentSQL := func(period string) string {
		return fmt.Sprintf("SELECT %s AS segment, %s AS value FROM %s WHERE period = '%s' GROUP BY %s",
			column, metric.Expression, metric.Table, period, column)
	}

	baseline, err := a.segmentValues(ctx, segmentSQL(baselinePeriod), queries)
	if err != nil {
		return nil, err
	}
	current, err := a.segmentValues(ctx, segmentSQL(currentPeriod), queries)
	if err != nil {
		return nil, err
	}

	segments := make(map[string]bool, len(baseline)+len(current))
	for s := range baseline {
		segments[s] = true
	}
	for s := range current {
		segments[s] = true
	}
	names := make([]string, 0, len(segments))
	for s := range segments {
		names = append(names, s)
	}
	sort.Strings(names)

	impact := 0.0
	evidence := make([]map[string]any, 0, len(names))
	for _, s := range names {
		d := current[s] - baseline[s]
		if sameSign(d, totalDelta) {
			impact += d
		}
		evidence = append(evidence, map[string]any{
			"segment":  s,
			"baseline": baseline[s],
			"current":  current[s],
			"delta":    d,
		})
	}
	if impact == 0 {
		return nil, nil
	}

	sort.SliceStable(evidence, func(i, j int) bool {
		return math.Abs(evidence[i]["delta"].(float64)) > math.Abs(evidence[j]["delta"].(float64))
	})
	if len(evidence) > maxEvidenceRows {
		evidence = evidence[:maxEvidenceRows]
	}

	return &Driver{
		Factor:      dim + "_change",
		Dimension:   dim,
		Impact:      impact,
		EvidenceSQL: segmentSQL(currentPeriod),
		Evidence:    evidence,
	}, nil
}

// checkEventTable compares event counts between the periods and attributes
// a share of the delta proportional to the relative count change.
func (a *Agent) checkEventTable(ctx context.Context, et catalog.EventTable, baselinePeriod, currentPeriod string, totalDelta float64, queries *atomic.Int64) (*Driver, error) {
	baselineCount, err := a.events.Count(ctx, et.Table, baselinePeriod)
	if err != nil {
		return nil, err
	}
	queries.Add(1)
	currentCount, err := a.events.Count(ctx, et.Table, currentPeriod)
	if err != nil {
		return nil, err
	}
	queries.Add(1)

	countDelta := currentCount - baselineCount
	if countDelta == 0 {
		return nil, nil
	}

	share := math.Min(math.Abs(float64(countDelta))/math.Max(float64(baselineCount), 1), 1.0)
	return &Driver{
		Factor: et.Name + "_change",
		Impact: totalDelta * share,
		Evidence: []map[string]any{
			{"period": baselinePeriod, "events": baselineCount},
			{"period": currentPeriod, "events": currentCount},
		},
	}, nil
}

func (a *Agent) segmentValues(ctx context.Context, sql string, queries *atomic.Int64) (map[string]float64, error) {
	result, err := a.exec.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	queries.Add(1)

	values := make(map[string]float64, len(result.Rows))
	for _, row := range result.Rows {
		segment, ok := row["segment"].(string)
		if !ok {
			continue
		}
		values[segment] = toFloat(row["value"])
	}
	return values, nil
}

// rankDrivers orders drivers by absolute impact, largest first. The sort is
// stable so equal impacts keep probe order.
func rankDrivers(drivers []Driver, totalDelta float64) []Driver {
	for i := range drivers {
		if totalDelta != 0 {
			drivers[i].ImpactPct = math.Abs(drivers[i].Impact) / math.Abs(totalDelta) * 100
		}
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Impact) > math.Abs(drivers[j].Impact)
	})
	return drivers
}

func sameSign(a, b float64) bool {
	return (a < 0) == (b < 0) && a != 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}
