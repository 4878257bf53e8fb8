package compiler_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/queryhawk/queryhawk/internal/compiler"
)

// ─── Statement Types ──────────────────────────────────────────────────────────

func TestValidSelectPasses(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate("SELECT region, SUM(amount) AS total FROM sales.orders GROUP BY region")
	if !report.Valid() {
		t.Fatalf("valid SELECT rejected: %v", report.Violations)
	}
	if len(report.Violations) != 0 {
		t.Errorf("violations = %v, want none", report.Violations)
	}
}

func TestWithClausePasses(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate(`WITH top AS (
		SELECT region, SUM(amount) AS total FROM sales.orders GROUP BY region
	) SELECT region, total FROM top`)
	if !report.Valid() {
		t.Fatalf("WITH query rejected: %v", report.Violations)
	}
}

func TestInsertRejected(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate("INSERT INTO sales.orders (id) VALUES (1)")
	if report.Valid() {
		t.Fatal("INSERT should be rejected")
	}
	if report.StatementAllowed {
		t.Error("StatementAllowed should be false for INSERT")
	}
	if report.NoBlockedOps {
		t.Error("NoBlockedOps should be false for INSERT")
	}
}

func TestBlockedOpInsideCTE(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate(`WITH purge AS (
		DELETE FROM sales.orders WHERE amount < 0 RETURNING order_id
	) SELECT order_id FROM purge`)
	if report.Valid() {
		t.Fatal("DELETE hidden in a CTE should be rejected")
	}
	if report.NoBlockedOps {
		t.Error("NoBlockedOps should be false")
	}
	joined := strings.Join(report.Violations, "; ")
	if !strings.Contains(joined, "DELETE") {
		t.Errorf("violations should name DELETE: %v", report.Violations)
	}
}

func TestMultiStatementRejected(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate("SELECT amount FROM sales.orders; DROP TABLE sales.orders")
	if report.Valid() {
		t.Fatal("trailing DROP should be rejected")
	}
	if report.StatementAllowed {
		t.Error("non-SELECT statement should fail the statement check")
	}
	joined := strings.Join(report.Violations, "; ")
	if !strings.Contains(joined, "DROP") {
		t.Errorf("violations should name DROP: %v", report.Violations)
	}
}

// ─── Schema Allowlist ─────────────────────────────────────────────────────────

func TestDisallowedSchema(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate("SELECT salary FROM hr.employees")
	if report.Valid() {
		t.Fatal("schema outside the allowlist should be rejected")
	}
	if report.SchemaAllowed {
		t.Error("SchemaAllowed should be false")
	}
	joined := strings.Join(report.Violations, "; ")
	if !strings.Contains(joined, "hr") {
		t.Errorf("violations should name the schema: %v", report.Violations)
	}
}

func TestUnqualifiedTableAllowed(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate("SELECT amount FROM orders")
	if !report.SchemaAllowed {
		t.Errorf("unqualified table should pass the schema check: %v", report.Violations)
	}
}

func TestCustomAllowlist(t *testing.T) {
	v := compiler.NewValidator([]string{"reporting"})

	if report := v.Validate("SELECT x FROM reporting.summary"); !report.Valid() {
		t.Errorf("allowed schema rejected: %v", report.Violations)
	}
	if report := v.Validate("SELECT amount FROM sales.orders"); report.SchemaAllowed {
		t.Error("schema outside custom allowlist should be rejected")
	}
}

// ─── Wildcards ────────────────────────────────────────────────────────────────

func TestSelectStarRejected(t *testing.T) {
	v := compiler.NewValidator(nil)

	for _, sql := range []string{
		"SELECT * FROM sales.orders",
		"SELECT o.* FROM sales.orders o",
	} {
		report := v.Validate(sql)
		if report.NoSelectStar {
			t.Errorf("%q: wildcard projection should be rejected", sql)
		}
	}
}

// ─── Independence of Checks ───────────────────────────────────────────────────

func TestAllViolationsReported(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate("SELECT * FROM hr.employees")
	if report.Valid() {
		t.Fatal("query should be rejected")
	}
	if len(report.Violations) != 2 {
		t.Fatalf("violations = %v, want both wildcard and schema", report.Violations)
	}
	if report.NoSelectStar || report.SchemaAllowed {
		t.Error("both failing checks should be marked false")
	}
	if !report.StatementAllowed || !report.NoBlockedOps {
		t.Error("passing checks should stay true")
	}
}

func TestParseError(t *testing.T) {
	v := compiler.NewValidator(nil)

	report := v.Validate("this is not sql")
	if report.Valid() {
		t.Fatal("unparseable input should be rejected")
	}
	if len(report.Violations) != 1 {
		t.Fatalf("violations = %v, want single parse error", report.Violations)
	}
	if !strings.Contains(report.Violations[0], "SQL parse error") {
		t.Errorf("violation = %q", report.Violations[0])
	}
}

// ─── Table Extraction ─────────────────────────────────────────────────────────

func TestTables(t *testing.T) {
	v := compiler.NewValidator(nil)

	tables, err := v.Tables(`SELECT o.amount
		FROM sales.orders o
		INNER JOIN commerce.products p ON o.product_id = p.product_id`)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	want := []string{"sales.orders", "commerce.products"}
	if !reflect.DeepEqual(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}
}
