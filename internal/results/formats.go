package results

// ForClient renders the result in the envelope the requesting client
// expects.
func ForClient(result *FormattedResult) map[string]any {
	switch result.Format {
	case FormatChatGPT:
		return ForChatGPT(result)
	case FormatBedrock:
		return ForBedrock(result)
	default:
		return ForMCP(result)
	}
}

// ForMCP is the standard envelope: data plus optional visualization,
// metadata, and narrative.
func ForMCP(result *FormattedResult) map[string]any {
	out := map[string]any{"data": result.Data}

	if v := result.Visualization; v != nil {
		out["visualization"] = map[string]any{
			"type":  string(v.Type),
			"x":     v.X,
			"y":     v.Y,
			"title": v.Title,
		}
	}
	if m := result.Metadata; m != nil {
		out["metadata"] = map[string]any{
			"sql":           m.SQL,
			"job_id":        m.JobID,
			"runtime_ms":    m.RuntimeMs,
			"cost_dcu":      m.CostUnits,
			"rows_returned": m.RowsReturned,
			"trace_id":      m.TraceID,
		}
	}
	if result.Narrative != "" {
		out["narrative"] = result.Narrative
	}
	return out
}

// ForChatGPT wraps the result as an analytics_result content block.
func ForChatGPT(result *FormattedResult) map[string]any {
	content := map[string]any{
		"type": "analytics_result",
		"data": result.Data,
	}
	if result.Narrative != "" {
		content["narrative"] = result.Narrative
	}
	if v := result.Visualization; v != nil {
		content["visualization"] = map[string]any{
			"type": string(v.Type),
			"config": map[string]any{
				"x":       v.X,
				"y":       v.Y,
				"title":   v.Title,
				"x_label": v.XLabel,
				"y_label": v.YLabel,
			},
		}
	}

	metadata := map[string]any{}
	if m := result.Metadata; m != nil {
		metadata = map[string]any{
			"sql":        m.SQL,
			"runtime_ms": m.RuntimeMs,
			"rows":       m.RowsReturned,
			"trace_id":   m.TraceID,
		}
	}
	return map[string]any{"content": content, "metadata": metadata}
}

// ForBedrock wraps the result in the Bedrock agent function-response shape.
func ForBedrock(result *FormattedResult) map[string]any {
	body := map[string]any{
		"TEXT": map[string]any{"body": narrativeOrDefault(result)},
		"data": result.Data,
	}
	if v := result.Visualization; v != nil {
		body["visualization"] = map[string]any{
			"type":   string(v.Type),
			"x_axis": v.X,
			"y_axis": v.Y,
		}
	}
	return map[string]any{
		"messageVersion": "1.0",
		"response": map[string]any{
			"actionGroup": "analytics",
			"function":    "query_data",
			"functionResponse": map[string]any{
				"responseBody": body,
			},
		},
	}
}

func narrativeOrDefault(result *FormattedResult) string {
	if result.Narrative != "" {
		return result.Narrative
	}
	return "Query executed successfully"
}
