package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Metric is a canonical metric definition from the semantic catalog.
type Metric struct {
	Name        string   `json:"name"`
	Expression  string   `json:"expression"` // full aggregation expression, e.g. SUM(order_amount)
	Table       string   `json:"table"`
	Column      string   `json:"column,omitempty"`
	Aggregation string   `json:"aggregation"`
	Synonyms    []string `json:"synonyms"`
}

// Dimension is a canonical dimension definition.
type Dimension struct {
	Name     string   `json:"name"`
	Table    string   `json:"table"`
	Column   string   `json:"column"`
	Type     string   `json:"type"`
	Synonyms []string `json:"synonyms"`
}

// JoinEdge is a pre-declared join between two tables. Only edges present in
// the catalog are usable; there is no dynamic join inference.
type JoinEdge struct {
	FromDomain string `json:"from_domain"`
	ToDomain   string `json:"to_domain"`
	FromTable  string `json:"from_table"`
	ToTable    string `json:"to_table"`
	Condition  string `json:"condition"`
	Kind       string `json:"kind"` // INNER, LEFT, ...
}

// EventTable is a table checked for correlated events during diagnostics.
type EventTable struct {
	Name  string `json:"name"`  // e.g. "promotions"
	Table string `json:"table"` // e.g. "marketing.promotions"
}

// Catalog is the process-wide, read-only semantic layer: canonical metrics
// and dimensions with their synonyms, the join graph, domain keywords, and
// the diagnostics configuration. Loaded once at startup and never mutated,
// so concurrent reads need no locking.
type Catalog struct {
	metrics    map[string]Metric
	dimensions map[string]Dimension

	// canonical names in lexicographic order; fuzzy-match ties resolve to
	// the first entry in this order
	metricNames    []string
	dimensionNames []string

	joins          map[string]JoinEdge // keyed "from|to"
	domainKeywords map[string][]string
	domainNames    []string
	fallbackDomain string

	decomposition map[string][]string // metric -> dimensions to decompose by
	eventTables   []EventTable
}

// catalogFile is the on-disk JSON shape.
type catalogFile struct {
	Metrics        []Metric            `json:"metrics"`
	Dimensions     []Dimension         `json:"dimensions"`
	Joins          []JoinEdge          `json:"joins"`
	DomainKeywords map[string][]string `json:"domain_keywords"`
	FallbackDomain string              `json:"fallback_domain"`
	Decomposition  map[string][]string `json:"decomposition"`
	EventTables    []EventTable        `json:"event_tables"`
}

// Load reads a catalog from a JSON file, or returns the built-in defaults
// when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cf catalogFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c, err := build(cf)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("metrics", len(c.metricNames)).
		Int("dimensions", len(c.dimensionNames)).
		Int("joins", len(c.joins)).
		Str("path", path).
		Msg("catalog loaded")
	return c, nil
}

func build(cf catalogFile) (*Catalog, error) {
	c := &Catalog{
		metrics:        make(map[string]Metric, len(cf.Metrics)),
		dimensions:     make(map[string]Dimension, len(cf.Dimensions)),
		joins:          make(map[string]JoinEdge, len(cf.Joins)),
		domainKeywords: cf.DomainKeywords,
		fallbackDomain: cf.FallbackDomain,
		decomposition:  cf.Decomposition,
		eventTables:    cf.EventTables,
	}
	for _, m := range cf.Metrics {
		if m.Name == "" || m.Table == "" || m.Expression == "" {
			return nil, fmt.Errorf("metric %q: name, table and expression are required", m.Name)
		}
		c.metrics[m.Name] = m
		c.metricNames = append(c.metricNames, m.Name)
	}
	for _, d := range cf.Dimensions {
		if d.Name == "" || d.Table == "" || d.Column == "" {
			return nil, fmt.Errorf("dimension %q: name, table and column are required", d.Name)
		}
		c.dimensions[d.Name] = d
		c.dimensionNames = append(c.dimensionNames, d.Name)
	}
	for _, j := range cf.Joins {
		c.joins[joinKey(j.FromDomain, j.ToDomain)] = j
	}
	if c.fallbackDomain == "" {
		c.fallbackDomain = "sales"
	}
	// Fixed iteration order makes fuzzy-match tie-breaking deterministic.
	sort.Strings(c.metricNames)
	sort.Strings(c.dimensionNames)
	for d := range c.domainKeywords {
		c.domainNames = append(c.domainNames, d)
	}
	sort.Strings(c.domainNames)
	return c, nil
}

func joinKey(from, to string) string { return from + "|" + to }

// Metric returns the canonical metric definition by name.
func (c *Catalog) Metric(name string) (Metric, bool) {
	m, ok := c.metrics[name]
	return m, ok
}

// Dimension returns the canonical dimension definition by name.
func (c *Catalog) Dimension(name string) (Dimension, bool) {
	d, ok := c.dimensions[name]
	return d, ok
}

// MetricNames returns canonical metric names in lexicographic order.
func (c *Catalog) MetricNames() []string { return c.metricNames }

// DimensionNames returns canonical dimension names in lexicographic order.
func (c *Catalog) DimensionNames() []string { return c.dimensionNames }

// Join looks up a directed join edge between two domains.
func (c *Catalog) Join(fromDomain, toDomain string) (JoinEdge, bool) {
	j, ok := c.joins[joinKey(fromDomain, toDomain)]
	return j, ok
}

// DomainNames returns all configured domain names in lexicographic order.
func (c *Catalog) DomainNames() []string { return c.domainNames }

// DomainKeywords returns the keyword list for a domain.
func (c *Catalog) DomainKeywords(domain string) []string { return c.domainKeywords[domain] }

// FallbackDomain is used when no domain keyword matches a query.
func (c *Catalog) FallbackDomain() string { return c.fallbackDomain }

// DecompositionDimensions returns the dimensions a metric delta is broken
// down by during diagnostics.
func (c *Catalog) DecompositionDimensions(metric string) []string {
	return c.decomposition[metric]
}

// EventTables returns the tables scanned for correlated events, in
// declaration order.
func (c *Catalog) EventTables() []EventTable { return c.eventTables }

// MetricVocabulary returns every metric synonym, lowercased and sorted.
// The resolver scans these as substrings of the user query.
func (c *Catalog) MetricVocabulary() []string {
	return c.vocabulary(func(name string) []string { return c.metrics[name].Synonyms }, c.metricNames)
}

// DimensionVocabulary returns every dimension synonym, lowercased and sorted.
func (c *Catalog) DimensionVocabulary() []string {
	return c.vocabulary(func(name string) []string { return c.dimensions[name].Synonyms }, c.dimensionNames)
}

func (c *Catalog) vocabulary(synonyms func(string) []string, names []string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, name := range names {
		for _, s := range synonyms(name) {
			s = strings.ToLower(s)
			if !seen[s] {
				seen[s] = true
				terms = append(terms, s)
			}
		}
	}
	sort.Strings(terms)
	return terms
}
