package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/catalog"
	"github.com/queryhawk/queryhawk/internal/resolver"
)

// DefaultFuzzyThreshold is the minimum similarity for a term to bind to a
// canonical catalog entry. A score exactly at the threshold is accepted.
const DefaultFuzzyThreshold = 0.8

// MetricBinding pairs a user term with the canonical metric it grounded to.
type MetricBinding struct {
	Canonical  string  `json:"canonical"`
	Expression string  `json:"expression"`
	Table      string  `json:"table"`
	Column     string  `json:"column,omitempty"`
	UserTerm   string  `json:"user_term"`
	MatchScore float64 `json:"match_score"`
}

// DimensionBinding pairs a user term with the canonical dimension it
// grounded to.
type DimensionBinding struct {
	Canonical  string  `json:"canonical"`
	Table      string  `json:"table"`
	Column     string  `json:"column"`
	UserTerm   string  `json:"user_term"`
	MatchScore float64 `json:"match_score"`
}

// GroundedPlan is a schema-aware query plan. Every binding scored at or
// above the fuzzy threshold; terms below it were dropped, not included.
type GroundedPlan struct {
	Metrics      []MetricBinding    `json:"metrics"`
	Dimensions   []DimensionBinding `json:"dimensions"`
	Joins        []catalog.JoinEdge `json:"joins"`
	Filters      []resolver.Filter  `json:"filters"`
	PolicyChecks map[string]bool    `json:"policy_checks"`
	Domains      []string           `json:"domains"`
}

// ErrIncompleteJoins is returned in strict mode when a domain pair has no
// edge in the join graph.
type ErrIncompleteJoins struct {
	Domain1, Domain2 string
}

func (e *ErrIncompleteJoins) Error() string {
	return fmt.Sprintf("no join path between domains %q and %q", e.Domain1, e.Domain2)
}

// Options configures grounding behavior.
type Options struct {
	FuzzyThreshold float64
	// StrictJoins makes an unresolvable domain pair fail the whole plan
	// instead of being skipped with a warning.
	StrictJoins bool
}

// Planner grounds resolved queries against the canonical catalog.
type Planner struct {
	cat    *catalog.Catalog
	policy PolicyChecker
	opts   Options
	sim    *metrics.Levenshtein
}

func New(cat *catalog.Catalog, policy PolicyChecker, opts Options) *Planner {
	if opts.FuzzyThreshold == 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if policy == nil {
		policy = AllowAll{}
	}
	return &Planner{cat: cat, policy: policy, opts: opts, sim: metrics.NewLevenshtein()}
}

// Ground maps the resolved query's raw terms to canonical catalog entries.
// Terms that cannot be matched above the threshold are dropped and logged.
// The only error condition is an unresolvable join pair in strict mode.
func (p *Planner) Ground(ctx context.Context, resolved resolver.ResolvedQuery) (GroundedPlan, error) {
	plan := GroundedPlan{
		Filters: resolved.Entities.Filters,
		Domains: resolved.Domains,
	}

	for _, term := range resolved.Entities.Metrics {
		if b, ok := p.matchMetric(term); ok {
			plan.Metrics = append(plan.Metrics, b)
			log.Debug().Str("user_term", term).Str("canonical", b.Canonical).
				Float64("score", b.MatchScore).Msg("metric grounded")
		} else {
			log.Warn().Str("user_term", term).Float64("threshold", p.opts.FuzzyThreshold).
				Msg("metric term dropped, no match above threshold")
		}
	}

	for _, term := range resolved.Entities.Dimensions {
		if b, ok := p.matchDimension(term); ok {
			plan.Dimensions = append(plan.Dimensions, b)
			log.Debug().Str("user_term", term).Str("canonical", b.Canonical).
				Float64("score", b.MatchScore).Msg("dimension grounded")
		} else {
			log.Warn().Str("user_term", term).Float64("threshold", p.opts.FuzzyThreshold).
				Msg("dimension term dropped, no match above threshold")
		}
	}

	joins, err := p.resolveJoins(resolved.Domains)
	if err != nil {
		return GroundedPlan{}, err
	}
	plan.Joins = joins

	plan.PolicyChecks = p.policy.Check(ctx, PolicyInput{
		Domains:    plan.Domains,
		Metrics:    canonicalMetrics(plan.Metrics),
		Dimensions: canonicalDimensions(plan.Dimensions),
	})

	log.Info().
		Int("metrics", len(plan.Metrics)).
		Int("dimensions", len(plan.Dimensions)).
		Int("joins", len(plan.Joins)).
		Msg("query grounded")

	return plan, nil
}

// matchMetric scores the user term against every synonym of every canonical
// metric. Exact case-insensitive synonym membership short-circuits to 1.0.
// Ties keep the first-seen candidate; MetricNames is lexicographically
// ordered, so ties resolve deterministically.
func (p *Planner) matchMetric(userTerm string) (MetricBinding, bool) {
	canonical, score := p.bestMatch(userTerm, p.cat.MetricNames(), func(name string) []string {
		m, _ := p.cat.Metric(name)
		return m.Synonyms
	})
	if canonical == "" || score < p.opts.FuzzyThreshold {
		return MetricBinding{}, false
	}
	m, _ := p.cat.Metric(canonical)
	return MetricBinding{
		Canonical:  canonical,
		Expression: m.Expression,
		Table:      m.Table,
		Column:     m.Column,
		UserTerm:   userTerm,
		MatchScore: score,
	}, true
}

func (p *Planner) matchDimension(userTerm string) (DimensionBinding, bool) {
	canonical, score := p.bestMatch(userTerm, p.cat.DimensionNames(), func(name string) []string {
		d, _ := p.cat.Dimension(name)
		return d.Synonyms
	})
	if canonical == "" || score < p.opts.FuzzyThreshold {
		return DimensionBinding{}, false
	}
	d, _ := p.cat.Dimension(canonical)
	return DimensionBinding{
		Canonical:  canonical,
		Table:      d.Table,
		Column:     d.Column,
		UserTerm:   userTerm,
		MatchScore: score,
	}, true
}

func (p *Planner) bestMatch(userTerm string, names []string, synonyms func(string) []string) (string, float64) {
	term := strings.ToLower(userTerm)
	best := ""
	bestScore := 0.0

	for _, name := range names {
		for _, synonym := range synonyms(name) {
			if term == strings.ToLower(synonym) {
				return name, 1.0
			}
			score := strutil.Similarity(term, strings.ToLower(synonym), p.sim)
			if score > bestScore {
				bestScore = score
				best = name
			}
		}
	}
	return best, bestScore
}

// resolveJoins looks up a join edge for every unordered pair of involved
// domains, trying both orderings. Missing pairs are skipped with a warning
// unless strict mode is on.
func (p *Planner) resolveJoins(domains []string) ([]catalog.JoinEdge, error) {
	if len(domains) < 2 {
		return nil, nil
	}

	var joins []catalog.JoinEdge
	for i, d1 := range domains {
		for _, d2 := range domains[i+1:] {
			if edge, ok := p.cat.Join(d1, d2); ok {
				joins = append(joins, edge)
				continue
			}
			if edge, ok := p.cat.Join(d2, d1); ok {
				joins = append(joins, edge)
				continue
			}
			if p.opts.StrictJoins {
				return nil, &ErrIncompleteJoins{Domain1: d1, Domain2: d2}
			}
			log.Warn().Str("domain1", d1).Str("domain2", d2).
				Msg("no join path between domains, pair skipped")
		}
	}
	return joins, nil
}

func canonicalMetrics(bindings []MetricBinding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Canonical
	}
	return out
}

func canonicalDimensions(bindings []DimensionBinding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Canonical
	}
	return out
}
