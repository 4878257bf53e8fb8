package resolver

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/catalog"
)

// Intent is the classified purpose of a user question.
type Intent string

const (
	IntentDescriptive Intent = "descriptive" // "show me revenue by region"
	IntentDiagnostic  Intent = "diagnostic"  // "why did revenue drop last month"
	IntentComparative Intent = "comparative" // "compare revenue vs profit"
	IntentProcedural  Intent = "procedural"
	IntentUnknown     Intent = "unknown"
)

// Filter is a structured predicate extracted from the query. Filters are the
// only values the compiler ever embeds into SQL text; they must never carry
// raw user text.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Entities holds the raw user terms extracted from a query. Order is
// extraction order and carries no meaning.
type Entities struct {
	Metrics        []string `json:"metrics"`
	Dimensions     []string `json:"dimensions"`
	Filters        []Filter `json:"filters"`
	TimePeriod     string   `json:"time_period,omitempty"`
	BaselinePeriod string   `json:"baseline_period,omitempty"` // meaningful for diagnostic intent
	Aggregations   []string `json:"aggregations"`
}

// ResolvedQuery is the resolver output: intent, entities and candidate
// domains. Immutable once produced.
type ResolvedQuery struct {
	Intent     Intent   `json:"intent"`
	Entities   Entities `json:"entities"`
	Domains    []string `json:"domains"` // sorted for reproducibility
	RawQuery   string   `json:"raw_query"`
	Confidence float64  `json:"confidence"`
}

// Classification confidences per pattern family. First match wins in
// priority order diagnostic > comparative > descriptive.
const (
	diagnosticConfidence  = 0.95
	comparativeConfidence = 0.90
	descriptiveConfidence = 0.85
	fallbackConfidence    = 0.5
)

var diagnosticPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^why\s+(did|is|are|was|were|has|have|do|does)`),
	regexp.MustCompile(`^what\s+caused`),
	regexp.MustCompile(`^what\s+is\s+the\s+reason`),
	regexp.MustCompile(`^explain\s+why`),
	regexp.MustCompile(`(dropped|increased|decreased|changed)\s+(last|this|in)`),
}

var comparativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^compare`),
	regexp.MustCompile(`^(difference|delta)\s+between`),
	regexp.MustCompile(`vs\.?\s+`),
	regexp.MustCompile(`versus\s+`),
	regexp.MustCompile(`compared\s+to`),
}

var descriptivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(show|display|list|get|give|find)\s+(me\s+)?`),
	regexp.MustCompile(`^what\s+(is|are|were|was)\s+`),
	regexp.MustCompile(`^(how\s+much|how\s+many)`),
}

// timePattern pairs a canonical window name with its phrase pattern.
// Ordered so the resolver output does not depend on map iteration.
type timePattern struct {
	name    string
	pattern *regexp.Regexp
}

var timePatterns = []timePattern{
	{"last_month", regexp.MustCompile(`last\s+month`)},
	{"this_month", regexp.MustCompile(`this\s+month`)},
	{"last_year", regexp.MustCompile(`last\s+year`)},
	{"this_year", regexp.MustCompile(`this\s+year`)},
	{"last_quarter", regexp.MustCompile(`last\s+quarter`)},
	{"this_quarter", regexp.MustCompile(`this\s+quarter`)},
	{"last_week", regexp.MustCompile(`last\s+week`)},
	{"this_week", regexp.MustCompile(`this\s+week`)},
	{"yesterday", regexp.MustCompile(`yesterday`)},
	{"today", regexp.MustCompile(`today`)},
}

// baselineWindows maps a "last_*" window to the window before it, used as
// the comparison baseline for diagnostic questions.
var baselineWindows = map[string]string{
	"last_month":   "previous_month",
	"last_year":    "previous_year",
	"last_quarter": "previous_quarter",
	"last_week":    "previous_week",
}

type aggPattern struct {
	name    string
	pattern *regexp.Regexp
}

var aggPatterns = []aggPattern{
	{"sum", regexp.MustCompile(`\b(sum|total)\b`)},
	{"average", regexp.MustCompile(`\b(average|avg|mean)\b`)},
	{"count", regexp.MustCompile(`\b(count|number of)\b`)},
	{"max", regexp.MustCompile(`\b(max|maximum|highest)\b`)},
	{"min", regexp.MustCompile(`\b(min|minimum|lowest)\b`)},
}

// Resolver classifies intent and extracts entities from free text. It is
// total: every input yields a ResolvedQuery.
type Resolver struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// Resolve classifies the query and extracts entities. Falls back to
// descriptive intent at low confidence when no pattern matches.
func (r *Resolver) Resolve(query string) ResolvedQuery {
	normalized := strings.ToLower(strings.TrimSpace(query))

	intent, confidence := classifyIntent(normalized)
	entities := r.extractEntities(normalized)
	domains := r.identifyDomains(normalized, entities)

	resolved := ResolvedQuery{
		Intent:     intent,
		Entities:   entities,
		Domains:    domains,
		RawQuery:   query,
		Confidence: confidence,
	}

	log.Info().
		Str("intent", string(intent)).
		Float64("confidence", confidence).
		Strs("domains", domains).
		Strs("metrics", entities.Metrics).
		Strs("dimensions", entities.Dimensions).
		Msg("query resolved")

	return resolved
}

func classifyIntent(query string) (Intent, float64) {
	for _, p := range diagnosticPatterns {
		if p.MatchString(query) {
			return IntentDiagnostic, diagnosticConfidence
		}
	}
	for _, p := range comparativePatterns {
		if p.MatchString(query) {
			return IntentComparative, comparativeConfidence
		}
	}
	for _, p := range descriptivePatterns {
		if p.MatchString(query) {
			return IntentDescriptive, descriptiveConfidence
		}
	}
	return IntentDescriptive, fallbackConfidence
}

func (r *Resolver) extractEntities(query string) Entities {
	var e Entities

	for _, term := range r.cat.MetricVocabulary() {
		if strings.Contains(query, term) {
			e.Metrics = append(e.Metrics, term)
		}
	}
	for _, term := range r.cat.DimensionVocabulary() {
		if strings.Contains(query, term) {
			e.Dimensions = append(e.Dimensions, term)
		}
	}

	for _, tp := range timePatterns {
		if tp.pattern.MatchString(query) {
			e.TimePeriod = tp.name
			if baseline, ok := baselineWindows[tp.name]; ok {
				e.BaselinePeriod = baseline
			}
			break
		}
	}

	for _, ap := range aggPatterns {
		if ap.pattern.MatchString(query) {
			e.Aggregations = append(e.Aggregations, ap.name)
		}
	}
	if len(e.Metrics) > 0 && len(e.Aggregations) == 0 {
		e.Aggregations = append(e.Aggregations, "sum")
	}

	return e
}

func (r *Resolver) identifyDomains(query string, e Entities) []string {
	domains := make(map[string]bool)

	for _, domain := range r.cat.DomainNames() {
		for _, keyword := range r.cat.DomainKeywords(domain) {
			if strings.Contains(query, keyword) {
				domains[domain] = true
				break
			}
		}
	}
	for _, metric := range e.Metrics {
		for _, domain := range r.cat.DomainNames() {
			for _, keyword := range r.cat.DomainKeywords(domain) {
				if metric == keyword {
					domains[domain] = true
				}
			}
		}
	}
	for _, dim := range e.Dimensions {
		for _, domain := range r.cat.DomainNames() {
			for _, keyword := range r.cat.DomainKeywords(domain) {
				if dim == keyword {
					domains[domain] = true
				}
			}
		}
	}

	if len(domains) == 0 {
		domains[r.cat.FallbackDomain()] = true
	}

	out := make([]string, 0, len(domains))
	for d := range domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
