package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/queryhawk/queryhawk/internal/catalog"
	"github.com/queryhawk/queryhawk/internal/compiler"
	"github.com/queryhawk/queryhawk/internal/diagnostics"
	"github.com/queryhawk/queryhawk/internal/events"
	"github.com/queryhawk/queryhawk/internal/pipeline"
	"github.com/queryhawk/queryhawk/internal/planner"
	"github.com/queryhawk/queryhawk/internal/quota"
	"github.com/queryhawk/queryhawk/internal/resolver"
	"github.com/queryhawk/queryhawk/internal/results"
	"github.com/queryhawk/queryhawk/internal/safety"
	"github.com/queryhawk/queryhawk/internal/warehouse"
)

type fakeEventSource struct {
	counts map[string]int64 // "table|period" -> count
}

func (f *fakeEventSource) Count(_ context.Context, table, period string) (int64, error) {
	return f.counts[table+"|"+period], nil
}

func newOrchestrator(wh *warehouse.Fake, ev events.Source, gen compiler.Generator) *pipeline.Orchestrator {
	cat := catalog.Default()
	return pipeline.New(
		resolver.New(cat),
		planner.New(cat, nil, planner.Options{}),
		compiler.New(gen, compiler.NewValidator(nil)),
		safety.New(wh, quota.NewMemory(1000, 24*time.Hour), safety.Limits{}),
		diagnostics.New(wh, ev, cat),
		wh,
		results.NewProcessor(""),
	)
}

// ─── Standard Queries ─────────────────────────────────────────────────────────

func TestProcessDescriptiveQuery(t *testing.T) {
	wh := warehouse.NewFake()
	wh.StubResult("GROUP BY sales.orders.region", []warehouse.Row{
		{"region": "EMEA", "revenue": 1200.0},
		{"region": "APAC", "revenue": 900.0},
	})
	orch := newOrchestrator(wh, nil, nil)

	out, err := orch.ProcessQuery(context.Background(), "show me revenue by region", "alice", "")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}

	data, ok := out["data"].([]warehouse.Row)
	if !ok || len(data) != 2 {
		t.Fatalf("data = %v", out["data"])
	}
	viz, ok := out["visualization"].(map[string]any)
	if !ok || viz["type"] != "bar_chart" {
		t.Errorf("visualization = %v", out["visualization"])
	}
	meta, ok := out["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata = %v", out["metadata"])
	}
	sql, _ := meta["sql"].(string)
	if !strings.Contains(sql, "SUM(order_amount) AS revenue") {
		t.Errorf("metadata sql = %q", sql)
	}
	if meta["trace_id"] == "" {
		t.Error("trace id missing")
	}
}

func TestProcessUngroundableQuery(t *testing.T) {
	orch := newOrchestrator(warehouse.NewFake(), nil, nil)

	_, err := orch.ProcessQuery(context.Background(), "tell me a joke", "alice", "")
	if !errors.Is(err, pipeline.ErrUngroundable) {
		t.Fatalf("err = %v, want ErrUngroundable", err)
	}
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Code != "UNGROUNDABLE_QUERY" {
		t.Errorf("error = %+v", err)
	}
}

func TestProcessValidationFailure(t *testing.T) {
	wh := warehouse.NewFake()
	orch := newOrchestrator(wh, nil, breakoutGenerator{})

	_, err := orch.ProcessQuery(context.Background(), "show me revenue by region", "alice", "")
	if !errors.Is(err, pipeline.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Code != "SQL_VALIDATION_FAILED" {
		t.Fatalf("error = %+v", err)
	}
	if !strings.Contains(strings.Join(perr.Messages, "; "), "DROP") {
		t.Errorf("messages = %v", perr.Messages)
	}
	if len(wh.Executed) != 0 {
		t.Errorf("invalid SQL must never reach the warehouse: %v", wh.Executed)
	}
}

// breakoutGenerator emits SQL that must be stopped by the validator.
type breakoutGenerator struct{}

func (breakoutGenerator) Name() string { return "breakout" }

func (breakoutGenerator) Generate(context.Context, planner.GroundedPlan) (string, error) {
	return "SELECT region FROM sales.orders; DROP TABLE sales.orders", nil
}

// ─── Safety ───────────────────────────────────────────────────────────────────

func TestProcessSafetyRejection(t *testing.T) {
	wh := warehouse.NewFake()
	wh.Plan = &warehouse.PlanEstimate{EstimatedRows: 2_000_000, EstimatedCostUnits: 1.0}
	orch := newOrchestrator(wh, nil, nil)

	_, err := orch.ProcessQuery(context.Background(), "show me revenue by region", "alice", "")
	if !errors.Is(err, pipeline.ErrSafetyRejected) {
		t.Fatalf("err = %v, want ErrSafetyRejected", err)
	}
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Code != "SAFETY_REJECTED" {
		t.Fatalf("error = %+v", err)
	}
	msg := strings.Join(perr.Messages, "; ")
	if !strings.Contains(msg, "2000000") || !strings.Contains(msg, "1000000") {
		t.Errorf("messages should carry estimate and limit: %v", perr.Messages)
	}
}

func TestProcessExplainOutage(t *testing.T) {
	wh := warehouse.NewFake()
	wh.PlanErr = errors.New("connection refused")
	orch := newOrchestrator(wh, nil, nil)

	_, err := orch.ProcessQuery(context.Background(), "show me revenue by region", "alice", "")
	if !errors.Is(err, pipeline.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream for an explain outage", err)
	}
	if errors.Is(err, pipeline.ErrSafetyRejected) {
		t.Error("an outage is not a policy rejection")
	}
}

func TestProcessExecutionFailure(t *testing.T) {
	wh := warehouse.NewFake()
	wh.Err = errors.New("job failed")
	orch := newOrchestrator(wh, nil, nil)

	_, err := orch.ProcessQuery(context.Background(), "show me revenue by region", "alice", "")
	if !errors.Is(err, pipeline.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

// ─── Diagnostic Queries ───────────────────────────────────────────────────────

func TestProcessDiagnosticQuery(t *testing.T) {
	wh := warehouse.NewFake()
	wh.StubResult("SELECT SUM(order_amount) AS value FROM sales.orders WHERE period = 'previous_month'",
		[]warehouse.Row{{"value": 1000000.0}})
	wh.StubResult("SELECT SUM(order_amount) AS value FROM sales.orders WHERE period = 'last_month'",
		[]warehouse.Row{{"value": 880000.0}})
	ev := &fakeEventSource{counts: map[string]int64{
		"marketing.promotions|previous_month": 10,
		"marketing.promotions|last_month":     5,
	}}
	orch := newOrchestrator(wh, ev, nil)

	out, err := orch.ProcessQuery(context.Background(), "why did revenue drop last month", "alice", "")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}

	details, ok := out["diagnostic_details"].(map[string]any)
	if !ok {
		t.Fatalf("diagnostic_details missing: %v", out)
	}
	if details["status"] != "partial" {
		t.Errorf("status = %v, want partial", details["status"])
	}
	if details["confidence"] != 0.5 {
		t.Errorf("confidence = %v, want 0.5", details["confidence"])
	}
	if details["delta"] != -120000.0 {
		t.Errorf("delta = %v", details["delta"])
	}

	viz, ok := out["visualization"].(map[string]any)
	if !ok || viz["type"] != "waterfall" {
		t.Errorf("visualization = %v", out["visualization"])
	}

	narrative, _ := out["narrative"].(string)
	if !strings.Contains(narrative, "dropped") {
		t.Errorf("narrative = %q", narrative)
	}

	// waterfall data: baseline, one driver, current
	data, ok := out["data"].([]warehouse.Row)
	if !ok || len(data) != 3 {
		t.Fatalf("data = %v", out["data"])
	}
	if data[0]["factor"] != "Baseline" || data[2]["factor"] != "Current" {
		t.Errorf("waterfall frame = %v", data)
	}
	if data[1]["factor"] != "Promotions Change" {
		t.Errorf("driver row = %v", data[1])
	}
}

func TestProcessDiagnosticFailure(t *testing.T) {
	wh := warehouse.NewFake()
	wh.Err = errors.New("warehouse down")
	orch := newOrchestrator(wh, nil, nil)

	_, err := orch.ProcessQuery(context.Background(), "why did revenue drop last month", "alice", "")
	if !errors.Is(err, pipeline.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}
