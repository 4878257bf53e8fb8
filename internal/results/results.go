// Package results formats query output for different clients and picks a
// visualization that fits the shape of the data.
package results

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/warehouse"
)

// ChartType names a supported visualization.
type ChartType string

const (
	ChartBar         ChartType = "bar_chart"
	ChartLine        ChartType = "line_chart"
	ChartPie         ChartType = "pie_chart"
	ChartTable       ChartType = "table"
	ChartWaterfall   ChartType = "waterfall"
	ChartHeatmap     ChartType = "heatmap"
	ChartMultiSeries ChartType = "multi_series"
)

// Format names a client response envelope.
type Format string

const (
	FormatMCP     Format = "mcp_standard"
	FormatChatGPT Format = "chatgpt_enterprise"
	FormatBedrock Format = "aws_bedrock"
)

// Visualization describes how a client should render the data.
type Visualization struct {
	Type   ChartType      `json:"type"`
	X      string         `json:"x,omitempty"`
	Y      []string       `json:"y,omitempty"`
	Title  string         `json:"title,omitempty"`
	XLabel string         `json:"x_label,omitempty"`
	YLabel string         `json:"y_label,omitempty"`
	SortBy string         `json:"sort_by,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Metadata carries execution details for tracing and auditing.
type Metadata struct {
	SQL          string  `json:"sql"`
	JobID        string  `json:"job_id,omitempty"`
	RuntimeMs    int64   `json:"runtime_ms,omitempty"`
	CostUnits    float64 `json:"cost_dcu,omitempty"`
	RowsReturned int     `json:"rows_returned"`
	TraceID      string  `json:"trace_id,omitempty"`
}

// FormattedResult is the processed output of one query.
type FormattedResult struct {
	Data          []warehouse.Row `json:"data"`
	Visualization *Visualization  `json:"visualization,omitempty"`
	Metadata      *Metadata       `json:"metadata,omitempty"`
	Narrative     string          `json:"narrative,omitempty"`
	Format        Format          `json:"response_format"`
}

const (
	maxCardinalityForChart  = 50
	maxCardinalityForPie    = 10
	maxRowsForVisualization = 1000
	columnTypeSampleSize    = 10
)

// Processor assembles formatted results.
type Processor struct {
	defaultFormat Format
}

func NewProcessor(defaultFormat Format) *Processor {
	if defaultFormat == "" {
		defaultFormat = FormatMCP
	}
	return &Processor{defaultFormat: defaultFormat}
}

// Process packages rows with a chosen visualization and metadata.
func (p *Processor) Process(data []warehouse.Row, meta Metadata, narrative string, format Format) *FormattedResult {
	if format == "" {
		format = p.defaultFormat
	}
	meta.RowsReturned = len(data)

	viz := selectVisualization(data)
	vizType := ChartType("")
	if viz != nil {
		vizType = viz.Type
	}
	log.Info().Int("rows", len(data)).Str("viz", string(vizType)).
		Str("format", string(format)).Msg("results processed")

	return &FormattedResult{
		Data:          data,
		Visualization: viz,
		Metadata:      &meta,
		Narrative:     narrative,
		Format:        format,
	}
}

// selectVisualization infers a chart from the column shape: one category
// with one measure draws bars, a time axis draws lines, two categories with
// one measure draws a heatmap, anything else falls back to a table.
func selectVisualization(data []warehouse.Row) *Visualization {
	if len(data) == 0 {
		return nil
	}
	if len(data) > maxRowsForVisualization {
		log.Info().Int("rows", len(data)).Msg("too many rows to chart, using table")
		return &Visualization{Type: ChartTable}
	}

	var numeric, categorical, dates []string
	for _, col := range columnOrder(data[0]) {
		switch classifyColumn(col, data) {
		case "numeric":
			numeric = append(numeric, col)
		case "date":
			dates = append(dates, col)
		case "categorical":
			categorical = append(categorical, col)
		}
	}

	if len(categorical) == 1 && len(numeric) == 1 {
		if cardinality(data, categorical[0]) <= maxCardinalityForChart {
			return &Visualization{
				Type:   ChartBar,
				X:      categorical[0],
				Y:      []string{numeric[0]},
				Title:  numeric[0] + " by " + categorical[0],
				XLabel: labelize(categorical[0]),
				YLabel: labelize(numeric[0]),
				SortBy: numeric[0],
			}
		}
	}

	if len(dates) >= 1 && len(numeric) >= 1 {
		if len(numeric) == 1 {
			return &Visualization{
				Type:   ChartLine,
				X:      dates[0],
				Y:      []string{numeric[0]},
				Title:  numeric[0] + " over time",
				XLabel: "Date",
				YLabel: labelize(numeric[0]),
			}
		}
		return &Visualization{
			Type:   ChartMultiSeries,
			X:      dates[0],
			Y:      numeric,
			Title:  "Metrics over time",
			XLabel: "Date",
			YLabel: "Value",
		}
	}

	if len(categorical) == 1 && len(numeric) >= 2 {
		return &Visualization{
			Type:   ChartMultiSeries,
			X:      categorical[0],
			Y:      numeric,
			Title:  "Metrics by " + categorical[0],
			XLabel: labelize(categorical[0]),
			YLabel: "Value",
		}
	}

	if len(categorical) == 1 && len(numeric) == 1 {
		if cardinality(data, categorical[0]) <= maxCardinalityForPie {
			return &Visualization{
				Type:  ChartPie,
				X:     categorical[0],
				Y:     []string{numeric[0]},
				Title: numeric[0] + " distribution",
			}
		}
	}

	if len(categorical) >= 2 && len(numeric) == 1 {
		return &Visualization{
			Type:   ChartHeatmap,
			X:      categorical[0],
			Y:      []string{categorical[1]},
			Title:  numeric[0] + " by " + categorical[0] + " and " + categorical[1],
			Config: map[string]any{"value_column": numeric[0]},
		}
	}

	return &Visualization{Type: ChartTable}
}

// WaterfallVisualization is the fixed chart for diagnostic runs: baseline,
// one bar per driver, current.
func WaterfallVisualization(metric string) *Visualization {
	return &Visualization{
		Type:   ChartWaterfall,
		X:      "factor",
		Y:      []string{"value"},
		Title:  "Variance Analysis - " + metric,
		XLabel: "Factor",
		YLabel: "Impact",
	}
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

var dateKeywords = []string{"date", "time", "month", "year", "day", "quarter", "week"}

func classifyColumn(col string, data []warehouse.Row) string {
	var samples []any
	for _, row := range data {
		if v := row[col]; v != nil {
			samples = append(samples, v)
		}
		if len(samples) == columnTypeSampleSize {
			break
		}
	}
	if len(samples) == 0 {
		return ""
	}

	numeric := true
	for _, v := range samples {
		switch v.(type) {
		case int, int32, int64, float32, float64:
		default:
			numeric = false
		}
	}
	if numeric {
		return "numeric"
	}
	if isDateColumn(col, samples) {
		return "date"
	}
	return "categorical"
}

func isDateColumn(col string, samples []any) bool {
	lower := strings.ToLower(col)
	for _, kw := range dateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if s, ok := samples[0].(string); ok {
		return datePattern.MatchString(s)
	}
	return false
}

func cardinality(data []warehouse.Row, col string) int {
	seen := make(map[any]bool)
	for _, row := range data {
		seen[row[col]] = true
	}
	return len(seen)
}

// columnOrder keeps charts deterministic despite map iteration order.
func columnOrder(row warehouse.Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func labelize(col string) string {
	words := strings.Split(strings.ReplaceAll(col, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
