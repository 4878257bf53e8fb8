package compiler_test

import (
	"context"
	"strings"
	"testing"

	"github.com/queryhawk/queryhawk/internal/catalog"
	"github.com/queryhawk/queryhawk/internal/compiler"
	"github.com/queryhawk/queryhawk/internal/planner"
	"github.com/queryhawk/queryhawk/internal/resolver"
)

func revenueByRegion() planner.GroundedPlan {
	return planner.GroundedPlan{
		Metrics: []planner.MetricBinding{{
			Canonical:  "revenue",
			Expression: "SUM(order_amount)",
			Table:      "sales.orders",
			Column:     "order_amount",
			UserTerm:   "revenue",
			MatchScore: 1.0,
		}},
		Dimensions: []planner.DimensionBinding{{
			Canonical:  "region",
			Table:      "sales.orders",
			Column:     "region",
			UserTerm:   "region",
			MatchScore: 1.0,
		}},
		Domains: []string{"sales"},
	}
}

// ─── Rule-Based Generation ────────────────────────────────────────────────────

func TestCompileRevenueByRegion(t *testing.T) {
	c := compiler.New(nil, compiler.NewValidator(nil))

	got := c.Compile(context.Background(), revenueByRegion())
	if !got.Valid {
		t.Fatalf("compile failed: %v", got.Checks.Violations)
	}

	for _, want := range []string{
		"SUM(order_amount) AS revenue",
		"sales.orders.region AS region",
		"FROM sales.orders",
		"GROUP BY sales.orders.region",
		"ORDER BY revenue DESC",
	} {
		if !strings.Contains(got.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, got.SQL)
		}
	}
	if got.Metadata.Generator != "rule_based" {
		t.Errorf("generator = %q, want rule_based", got.Metadata.Generator)
	}
}

func TestCompileWithJoin(t *testing.T) {
	c := compiler.New(nil, compiler.NewValidator(nil))

	plan := revenueByRegion()
	plan.Dimensions = []planner.DimensionBinding{{
		Canonical: "product_category",
		Table:     "commerce.products",
		Column:    "category",
	}}
	plan.Joins = []catalog.JoinEdge{{
		FromDomain: "sales",
		ToDomain:   "commerce",
		FromTable:  "sales.orders",
		ToTable:    "commerce.products",
		Condition:  "sales.orders.product_id = commerce.products.product_id",
		Kind:       "INNER",
	}}

	got := c.Compile(context.Background(), plan)
	if !got.Valid {
		t.Fatalf("compile failed: %v", got.Checks.Violations)
	}
	want := "INNER JOIN commerce.products ON sales.orders.product_id = commerce.products.product_id"
	if !strings.Contains(got.SQL, want) {
		t.Errorf("SQL missing join clause:\n%s", got.SQL)
	}
	if got.Metadata.Joins != 1 {
		t.Errorf("metadata joins = %d, want 1", got.Metadata.Joins)
	}
}

func TestCompileMetricOnly(t *testing.T) {
	c := compiler.New(nil, compiler.NewValidator(nil))

	plan := revenueByRegion()
	plan.Dimensions = nil

	got := c.Compile(context.Background(), plan)
	if !got.Valid {
		t.Fatalf("compile failed: %v", got.Checks.Violations)
	}
	if strings.Contains(got.SQL, "GROUP BY") {
		t.Errorf("metric-only query should not group:\n%s", got.SQL)
	}
}

func TestCompileEmptyPlan(t *testing.T) {
	c := compiler.New(nil, compiler.NewValidator(nil))

	got := c.Compile(context.Background(), planner.GroundedPlan{})
	if got.Valid {
		t.Fatal("empty plan should not compile")
	}
	if len(got.Checks.Violations) == 0 {
		t.Fatal("expected a violation message")
	}
	if !strings.Contains(got.Checks.Violations[0], "SQL generation failed") {
		t.Errorf("violation = %q", got.Checks.Violations[0])
	}
}

// ─── Filters ──────────────────────────────────────────────────────────────────

func TestCompileWithFilter(t *testing.T) {
	c := compiler.New(nil, compiler.NewValidator(nil))

	plan := revenueByRegion()
	plan.Filters = []resolver.Filter{{Column: "region", Operator: "=", Value: "EMEA"}}

	got := c.Compile(context.Background(), plan)
	if !got.Valid {
		t.Fatalf("compile failed: %v", got.Checks.Violations)
	}
	if !strings.Contains(got.SQL, "WHERE region = 'EMEA'") {
		t.Errorf("SQL missing filter:\n%s", got.SQL)
	}
}

func TestInjectionInFilterValueRejected(t *testing.T) {
	c := compiler.New(nil, compiler.NewValidator(nil))

	plan := revenueByRegion()
	plan.Filters = []resolver.Filter{{
		Column:   "region",
		Operator: "=",
		Value:    "'; DROP TABLE users; --",
	}}

	got := c.Compile(context.Background(), plan)
	if got.Valid {
		t.Fatalf("injection attempt should fail validation:\n%s", got.SQL)
	}
	joined := strings.Join(got.Checks.Violations, "; ")
	if !strings.Contains(joined, "DROP") && !strings.Contains(joined, "not allowed") {
		t.Errorf("violations should name the breakout: %v", got.Checks.Violations)
	}
}
