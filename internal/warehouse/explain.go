package warehouse

import (
	"regexp"
	"strconv"
	"strings"
)

// Plan text from the warehouse is free-form. Each figure is pulled out
// independently with a tolerant pattern; a figure that never appears keeps
// its zero value instead of failing the whole parse.
var (
	rowcountRe   = regexp.MustCompile(`(?i)rowcount\s*=\s*([\d.]+)`)
	ioCostRe     = regexp.MustCompile(`(?i)\{([\d.]+)\s+io`)
	reflectionRe = regexp.MustCompile(`(?i)reflection\s*[:\[]?\s*(\w+)`)
)

// ParsePlanText extracts row, cost, and reflection estimates from the text
// rows of an EXPLAIN PLAN result. Cost uses IO units as the cost-unit proxy.
func ParsePlanText(rows []string) *PlanEstimate {
	est := &PlanEstimate{RawPlan: rows}

	for _, text := range rows {
		lower := strings.ToLower(text)

		if est.EstimatedRows == 0 && strings.Contains(lower, "rowcount") {
			if m := rowcountRe.FindStringSubmatch(text); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					est.EstimatedRows = int64(v)
				}
			}
		}

		if est.EstimatedCostUnits == 0 && strings.Contains(lower, "cumulative cost") {
			if m := ioCostRe.FindStringSubmatch(text); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					est.EstimatedCostUnits = v
				}
			}
		}

		if est.ReflectionUsed == "" && strings.Contains(lower, "reflection") {
			if m := reflectionRe.FindStringSubmatch(text); m != nil {
				est.ReflectionUsed = m[1]
			}
		}
	}

	return est
}
