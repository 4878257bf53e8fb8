// Package quota tracks per-user query spend in cost units over a time
// window. The safety gate reads quotas before approving a query and debits
// them after execution.
package quota

import "context"

// Snapshot is a user's quota state at read time.
type Snapshot struct {
	Used      float64 `json:"used"`
	Available float64 `json:"available"`
	Limit     float64 `json:"limit"`
	Window    string  `json:"window"`
	Unit      string  `json:"unit"`
}

// Service reads and debits user quotas.
type Service interface {
	Get(ctx context.Context, userID string) (Snapshot, error)
	Increment(ctx context.Context, userID string, amount float64) error
}

const (
	DefaultLimit  = 1000.0
	DefaultWindow = "daily"
	DefaultUnit   = "DCU"
)
