package compiler

import (
	"fmt"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ValidationReport holds the outcome of every static check. Checks run
// independently so the report names all violation categories, not just the
// first one found.
type ValidationReport struct {
	StatementAllowed bool     `json:"statement_allowed"`
	NoBlockedOps     bool     `json:"no_blocked_ops"`
	SchemaAllowed    bool     `json:"schema_allowed"`
	NoSelectStar     bool     `json:"no_select_star"`
	Violations       []string `json:"violations"`
}

// Valid reports whether every check passed.
func (r ValidationReport) Valid() bool {
	return r.StatementAllowed && r.NoBlockedOps && r.SchemaAllowed && r.NoSelectStar
}

// Validator parses SQL and enforces the security policy at the AST level:
// only SELECT/WITH statements, no DDL/DML anywhere in the tree (including
// CTE bodies), only allowlisted schemas, and no wildcard projections.
type Validator struct {
	schemaAllowlist map[string]bool
	allowed         []string
}

// DefaultSchemaAllowlist matches the built-in catalog's schemas.
var DefaultSchemaAllowlist = []string{
	"sales", "commerce", "customer", "finance", "marketing", "inventory",
}

func NewValidator(schemaAllowlist []string) *Validator {
	if len(schemaAllowlist) == 0 {
		schemaAllowlist = DefaultSchemaAllowlist
	}
	set := make(map[string]bool, len(schemaAllowlist))
	for _, s := range schemaAllowlist {
		set[s] = true
	}
	return &Validator{schemaAllowlist: set, allowed: schemaAllowlist}
}

// Validate parses the SQL and runs all checks. Parse failures yield a
// report with every check false and a single parse-error message.
func (v *Validator) Validate(sql string) ValidationReport {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return ValidationReport{
			Violations: []string{fmt.Sprintf("SQL parse error: %v", err)},
		}
	}

	report := ValidationReport{
		StatementAllowed: true,
		NoBlockedOps:     true,
		SchemaAllowed:    true,
		NoSelectStar:     true,
	}

	var w walker
	for _, stmt := range result.Stmts {
		if !isAllowedStatement(stmt.Stmt) {
			report.StatementAllowed = false
		}
		w.walk(stmt.Stmt)
	}

	if !report.StatementAllowed {
		report.Violations = append(report.Violations,
			"statement type not allowed, only SELECT and WITH are permitted")
	}

	if len(w.blocked) > 0 {
		report.NoBlockedOps = false
		report.Violations = append(report.Violations,
			"blocked operations found: "+strings.Join(dedupe(w.blocked), ", "))
	}

	var disallowed []string
	for _, t := range w.tables {
		if t.schema != "" && !v.schemaAllowlist[t.schema] {
			disallowed = append(disallowed, t.schema)
		}
	}
	if len(disallowed) > 0 {
		report.SchemaAllowed = false
		report.Violations = append(report.Violations, fmt.Sprintf(
			"disallowed schemas: %s (allowed: %s)",
			strings.Join(dedupe(disallowed), ", "), strings.Join(v.allowed, ", ")))
	}

	if w.selectStar {
		report.NoSelectStar = false
		report.Violations = append(report.Violations,
			"SELECT * is not allowed, specify columns explicitly")
	}

	return report
}

// Tables returns the schema-qualified tables referenced by the SQL, in
// first-seen order. Used by callers that need to audit table access.
func (v *Validator) Tables(sql string) ([]string, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse SQL: %w", err)
	}
	var w walker
	for _, stmt := range result.Stmts {
		w.walk(stmt.Stmt)
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range w.tables {
		name := t.relname
		if t.schema != "" {
			name = t.schema + "." + t.relname
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func isAllowedStatement(node *pg_query.Node) bool {
	if node == nil {
		return false
	}
	// WITH ... SELECT parses as a SelectStmt carrying a WithClause.
	_, ok := node.Node.(*pg_query.Node_SelectStmt)
	return ok
}

type tableRef struct {
	schema  string
	relname string
}

// walker recursively traverses a parse tree collecting blocked statement
// kinds, table references, and wildcard projections.
type walker struct {
	blocked    []string
	tables     []tableRef
	selectStar bool
}

func (w *walker) walk(node *pg_query.Node) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		w.walkSelect(n.SelectStmt)

	case *pg_query.Node_InsertStmt:
		w.blocked = append(w.blocked, "INSERT")
		if n.InsertStmt.Relation != nil {
			w.addTable(n.InsertStmt.Relation)
		}
		w.walk(n.InsertStmt.SelectStmt)
	case *pg_query.Node_UpdateStmt:
		w.blocked = append(w.blocked, "UPDATE")
		if n.UpdateStmt.Relation != nil {
			w.addTable(n.UpdateStmt.Relation)
		}
		for _, from := range n.UpdateStmt.FromClause {
			w.walk(from)
		}
	case *pg_query.Node_DeleteStmt:
		w.blocked = append(w.blocked, "DELETE")
		if n.DeleteStmt.Relation != nil {
			w.addTable(n.DeleteStmt.Relation)
		}
	case *pg_query.Node_CreateStmt:
		w.blocked = append(w.blocked, "CREATE")
	case *pg_query.Node_CreateTableAsStmt:
		w.blocked = append(w.blocked, "CREATE TABLE AS")
	case *pg_query.Node_DropStmt:
		w.blocked = append(w.blocked, "DROP")
	case *pg_query.Node_AlterTableStmt:
		w.blocked = append(w.blocked, "ALTER")
	case *pg_query.Node_TruncateStmt:
		w.blocked = append(w.blocked, "TRUNCATE")
	case *pg_query.Node_MergeStmt:
		w.blocked = append(w.blocked, "MERGE")
	case *pg_query.Node_CopyStmt:
		w.blocked = append(w.blocked, "COPY")
	case *pg_query.Node_GrantStmt:
		w.blocked = append(w.blocked, "GRANT")
	case *pg_query.Node_VariableSetStmt:
		w.blocked = append(w.blocked, "SET")

	case *pg_query.Node_RangeVar:
		w.addTable(n.RangeVar)
	case *pg_query.Node_JoinExpr:
		w.walk(n.JoinExpr.Larg)
		w.walk(n.JoinExpr.Rarg)
		w.walk(n.JoinExpr.Quals)
	case *pg_query.Node_RangeSubselect:
		w.walk(n.RangeSubselect.Subquery)
	case *pg_query.Node_CommonTableExpr:
		w.walk(n.CommonTableExpr.Ctequery)

	case *pg_query.Node_SubLink:
		w.walk(n.SubLink.Subselect)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			w.walk(arg)
		}
	case *pg_query.Node_AExpr:
		w.walk(n.AExpr.Lexpr)
		w.walk(n.AExpr.Rexpr)
	case *pg_query.Node_ResTarget:
		w.walk(n.ResTarget.Val)
	case *pg_query.Node_FuncCall:
		for _, arg := range n.FuncCall.Args {
			w.walk(arg)
		}
	case *pg_query.Node_TypeCast:
		w.walk(n.TypeCast.Arg)
	case *pg_query.Node_CaseExpr:
		for _, when := range n.CaseExpr.Args {
			w.walk(when)
		}
		w.walk(n.CaseExpr.Defresult)
	case *pg_query.Node_CaseWhen:
		w.walk(n.CaseWhen.Expr)
		w.walk(n.CaseWhen.Result)
	case *pg_query.Node_List:
		for _, item := range n.List.Items {
			w.walk(item)
		}
	}
}

func (w *walker) walkSelect(sel *pg_query.SelectStmt) {
	if sel == nil {
		return
	}

	// Set operations (UNION / INTERSECT / EXCEPT)
	w.walkSelect(sel.Larg)
	w.walkSelect(sel.Rarg)

	for _, target := range sel.TargetList {
		if rt, ok := target.Node.(*pg_query.Node_ResTarget); ok {
			if isStar(rt.ResTarget.Val) {
				w.selectStar = true
			}
		}
		w.walk(target)
	}
	for _, from := range sel.FromClause {
		w.walk(from)
	}
	w.walk(sel.WhereClause)
	w.walk(sel.HavingClause)
	for _, g := range sel.GroupClause {
		w.walk(g)
	}
	for _, s := range sel.SortClause {
		w.walk(s)
	}
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			w.walk(cte)
		}
	}
}

func (w *walker) addTable(rv *pg_query.RangeVar) {
	w.tables = append(w.tables, tableRef{schema: rv.Schemaname, relname: rv.Relname})
}

// isStar reports whether a target expression is an unqualified or
// table-qualified wildcard (* or t.*).
func isStar(val *pg_query.Node) bool {
	cr, ok := val.GetNode().(*pg_query.Node_ColumnRef)
	if !ok {
		return false
	}
	for _, f := range cr.ColumnRef.Fields {
		if _, ok := f.Node.(*pg_query.Node_AStar); ok {
			return true
		}
	}
	return false
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
