package models

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// AskResponse wraps the pipeline's client-formatted payload.
type AskResponse struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result"`
}
