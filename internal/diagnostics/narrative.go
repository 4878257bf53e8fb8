package diagnostics

import (
	"fmt"
	"math"
	"strings"
)

// narrative renders the diagnosis in plain language: direction, magnitude,
// and the top three drivers.
func narrative(metric string, delta, deltaPct float64, drivers []Driver, baselinePeriod, currentPeriod string) string {
	direction := "increased"
	if delta < 0 {
		direction = "dropped"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s $%s (%.1f%%) from %s to %s",
		capitalize(metric), direction, formatAmount(math.Abs(delta)),
		math.Abs(deltaPct), baselinePeriod, currentPeriod)

	if len(drivers) == 0 {
		b.WriteString(". Unable to identify clear drivers.")
		return b.String()
	}

	b.WriteString(" due to:")
	for i, d := range drivers {
		if i == 3 {
			break
		}
		factor := strings.ReplaceAll(d.Factor, "_", " ")
		fmt.Fprintf(&b, "\n%d. %s: $%s (%.1f%%)",
			i+1, capitalize(factor), formatAmount(math.Abs(d.Impact)), d.ImpactPct)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatAmount renders a value with thousands separators, e.g. 120000 as
// "120,000".
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
