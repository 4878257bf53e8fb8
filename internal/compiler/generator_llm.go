package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/planner"
)

const llmSystemPrompt = `You are a SQL generator for an analytics warehouse.
Generate exactly one SELECT statement for the requested plan.
Rules:
- Use only the tables, columns and joins given in the plan.
- Alias dimensions and metrics to their canonical names.
- Never use SELECT *.
- Never generate DDL or DML.
Reply with a single fenced sql code block and nothing else.`

// LLMGenerator produces SQL from a grounded plan via an Anthropic model.
// Its output gets no special trust: the compiler runs the same AST
// validation on it as on rule-based SQL.
type LLMGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewLLMGenerator creates a generator backed by Anthropic Claude or a
// compatible provider.
func NewLLMGenerator(apiKey, model, baseURL string) *LLMGenerator {
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &LLMGenerator{client: client, model: model, maxTokens: 1024}
}

func (g *LLMGenerator) Name() string { return "llm" }

func (g *LLMGenerator) Generate(ctx context.Context, plan planner.GroundedPlan) (string, error) {
	if len(plan.Metrics) == 0 && len(plan.Dimensions) == 0 {
		return "", fmt.Errorf("plan has no metrics or dimensions")
	}

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(g.model)),
		MaxTokens: anthropic.F(int64(g.maxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(llmSystemPrompt),
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(describePlan(plan))),
		}),
	})
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	sql := extractSQLBlock(text)
	if sql == "" {
		return "", fmt.Errorf("LLM reply contained no sql block")
	}
	log.Debug().Int("sql_length", len(sql)).Msg("LLM generated SQL")
	return sql, nil
}

// describePlan renders the grounded plan as the prompt body.
func describePlan(plan planner.GroundedPlan) string {
	var b strings.Builder
	b.WriteString("Plan:\nMetrics:\n")
	for _, m := range plan.Metrics {
		fmt.Fprintf(&b, "- %s = %s (table %s)\n", m.Canonical, m.Expression, m.Table)
	}
	b.WriteString("Dimensions:\n")
	for _, d := range plan.Dimensions {
		fmt.Fprintf(&b, "- %s = %s.%s\n", d.Canonical, d.Table, d.Column)
	}
	if len(plan.Joins) > 0 {
		b.WriteString("Joins:\n")
		for _, j := range plan.Joins {
			fmt.Fprintf(&b, "- %s JOIN %s ON %s\n", j.Kind, j.ToTable, j.Condition)
		}
	}
	if len(plan.Filters) > 0 {
		b.WriteString("Filters:\n")
		for _, f := range plan.Filters {
			fmt.Fprintf(&b, "- %s %s %v\n", f.Column, f.Operator, f.Value)
		}
	}
	return b.String()
}

// extractSQLBlock pulls the contents of the first ```sql fence, falling
// back to any fence.
func extractSQLBlock(text string) string {
	for _, marker := range []string{"```sql", "```"} {
		start := strings.Index(text, marker)
		if start == -1 {
			continue
		}
		rest := text[start+len(marker):]
		end := strings.Index(rest, "```")
		if end == -1 {
			return strings.TrimSpace(rest)
		}
		return strings.TrimSpace(rest[:end])
	}
	return ""
}
