package warehouse_test

import (
	"testing"

	"github.com/queryhawk/queryhawk/internal/warehouse"
)

// ─── Plan Text Parsing ────────────────────────────────────────────────────────

func TestParsePlanText(t *testing.T) {
	plan := []string{
		"00-00    Screen : rowCount = 45127.0, cumulative cost = {5.8 io, 12.1 cpu, 0.0 network, 234567.0 memory}",
		"00-01      Project(region=[$0], revenue=[$1])",
		"00-02        Scan(table=[sales.orders])",
	}

	est := warehouse.ParsePlanText(plan)
	if est.EstimatedRows != 45127 {
		t.Errorf("rows = %d, want 45127", est.EstimatedRows)
	}
	if est.EstimatedCostUnits != 5.8 {
		t.Errorf("cost = %v, want 5.8", est.EstimatedCostUnits)
	}
	if est.ReflectionUsed != "" {
		t.Errorf("reflection = %q, want empty", est.ReflectionUsed)
	}
	if len(est.RawPlan) != 3 {
		t.Errorf("raw plan rows = %d", len(est.RawPlan))
	}
}

func TestParsePlanTextReflection(t *testing.T) {
	plan := []string{
		"00-00    Screen : rowCount = 1200.0, cumulative cost = {0.4 io, 1.0 cpu, 0.0 network, 100.0 memory}",
		"00-01      Scan using reflection: agg_orders_by_region",
	}

	est := warehouse.ParsePlanText(plan)
	if est.ReflectionUsed != "agg_orders_by_region" {
		t.Errorf("reflection = %q, want agg_orders_by_region", est.ReflectionUsed)
	}
}

func TestParsePlanTextFirstFigureWins(t *testing.T) {
	plan := []string{
		"00-00  Screen : rowCount = 100.0, cumulative cost = {2.0 io}",
		"00-01  Scan : rowCount = 99999.0, cumulative cost = {50.0 io}",
	}

	est := warehouse.ParsePlanText(plan)
	if est.EstimatedRows != 100 {
		t.Errorf("rows = %d, want the first rowcount seen", est.EstimatedRows)
	}
	if est.EstimatedCostUnits != 2.0 {
		t.Errorf("cost = %v, want the first cost seen", est.EstimatedCostUnits)
	}
}

func TestParsePlanTextMissingFigures(t *testing.T) {
	est := warehouse.ParsePlanText([]string{
		"Project(region=[$0])",
		"Scan(table=[sales.orders])",
	})
	if est.EstimatedRows != 0 || est.EstimatedCostUnits != 0 || est.ReflectionUsed != "" {
		t.Errorf("missing figures should stay zero, got %+v", est)
	}
}

func TestParsePlanTextEmpty(t *testing.T) {
	est := warehouse.ParsePlanText(nil)
	if est.EstimatedRows != 0 || est.EstimatedCostUnits != 0 {
		t.Errorf("empty plan should yield zero estimates, got %+v", est)
	}
}
