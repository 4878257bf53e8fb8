package models

// AskRequest for POST /api/v1/ask (natural language analytics query)
type AskRequest struct {
	Query          string `json:"query"`
	UserID         string `json:"user_id,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"` // mcp_standard | chatgpt_enterprise | aws_bedrock
}

const maxQueryLength = 2000

// Validate reports the first problem with the request, or "".
func (r *AskRequest) Validate() string {
	if r.Query == "" {
		return "query is required"
	}
	if len(r.Query) > maxQueryLength {
		return "query exceeds maximum length"
	}
	return ""
}
