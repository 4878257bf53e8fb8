// Package events counts operational events (promotions, stockouts, price
// changes) per analysis period. The diagnostics agent correlates count
// shifts between periods with metric changes.
package events

import "context"

// Source counts events in a named table or index for one period.
type Source interface {
	Count(ctx context.Context, table, period string) (int64, error)
}
