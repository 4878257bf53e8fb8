package pipeline

import (
	"crypto/sha256"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Auditor emits structured audit events for every executed query. SQL text
// and user identifiers are hashed so audit logs can be shipped to systems
// with weaker access controls than the warehouse itself.
type Auditor struct {
	enabled bool
}

func NewAuditor(enabled bool) *Auditor {
	return &Auditor{enabled: enabled}
}

// QueryExecuted records a completed warehouse query.
func (a *Auditor) QueryExecuted(traceID, sql, userID string, rows int, costUnits float64, runtimeMs int64) {
	if !a.enabled {
		return
	}
	log.Info().
		Str("event", "query_audit").
		Str("trace_id", traceID).
		Str("sql_hash", hashStr(sql)[:16]).
		Str("user_hash", hashStr(userID)[:16]).
		Int("row_count", rows).
		Float64("cost_units", costUnits).
		Int64("runtime_ms", runtimeMs).
		Msg("audit")
}

// QueryRejected records a query that was stopped before execution, with the
// pipeline error code explaining why.
func (a *Auditor) QueryRejected(traceID, query, userID, code string) {
	if !a.enabled {
		return
	}
	log.Info().
		Str("event", "query_audit").
		Str("trace_id", traceID).
		Str("query_hash", hashStr(query)[:16]).
		Str("user_hash", hashStr(userID)[:16]).
		Str("rejection", code).
		Msg("audit")
}

func hashStr(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
