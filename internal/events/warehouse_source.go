package events

import (
	"context"
	"fmt"

	"github.com/queryhawk/queryhawk/internal/warehouse"
)

// WarehouseSource counts events with a COUNT(*) query against the same
// warehouse that serves analytics queries.
type WarehouseSource struct {
	wh warehouse.Warehouse
}

func NewWarehouseSource(wh warehouse.Warehouse) *WarehouseSource {
	return &WarehouseSource{wh: wh}
}

func (s *WarehouseSource) Count(ctx context.Context, table, period string) (int64, error) {
	sql := fmt.Sprintf("SELECT COUNT(*) AS events FROM %s WHERE period = '%s'", table, period)
	result, err := s.wh.Execute(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("count events in %s: %w", table, err)
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return toInt64(result.Rows[0]["events"]), nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case int32:
		return int64(n)
	}
	return 0
}
