package quota

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local quota store. Usage resets when the window
// rolls over, tracked per user by window start.
type Memory struct {
	mu     sync.Mutex
	limit  float64
	window time.Duration
	usage  map[string]*memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	used        float64
	windowStart time.Time
}

func NewMemory(limit float64, window time.Duration) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Memory{
		limit:  limit,
		window: window,
		usage:  make(map[string]*memoryEntry),
		now:    time.Now,
	}
}

func (m *Memory) Get(_ context.Context, userID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.current(userID)
	return Snapshot{
		Used:      entry.used,
		Available: m.limit - entry.used,
		Limit:     m.limit,
		Window:    DefaultWindow,
		Unit:      DefaultUnit,
	}, nil
}

func (m *Memory) Increment(_ context.Context, userID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current(userID).used += amount
	return nil
}

func (m *Memory) current(userID string) *memoryEntry {
	now := m.now()
	entry, ok := m.usage[userID]
	if !ok || now.Sub(entry.windowStart) >= m.window {
		entry = &memoryEntry{windowStart: now}
		m.usage[userID] = entry
	}
	return entry
}
