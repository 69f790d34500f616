package cube

import (
	"context"
	"math"
	"strings"
	"sync"

	"PowerPlantCube/src/processor"
)

// MemoryStore 在内存中按分组键累加
type MemoryStore struct {
	mu      sync.RWMutex
	records []processor.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context, records []processor.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	return nil
}

func (s *MemoryStore) Aggregate(ctx context.Context, agg Aggregation) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range agg.Filters {
		if isNumeric(f.Level) {
			if _, err := numericValue(f); err != nil {
				return nil, err
			}
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := make(map[string]*Row)
	order := make([]string, 0)

	for _, r := range s.records {
		if !matchesAll(r, agg.Filters) {
			continue
		}
		members := make([]string, len(agg.Levels))
		for i, level := range agg.Levels {
			members[i] = member(r, level)
		}
		key := strings.Join(members, "\x1f")
		row, ok := grouped[key]
		if !ok {
			row = &Row{Members: members}
			grouped[key] = row
			order = append(order, key)
		}
		if v := measureValue(r, agg.Column); !math.IsNaN(v) {
			row.Value += v
		}
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		rows = append(rows, *grouped[key])
	}
	return rows, nil
}

func (s *MemoryStore) Close() error { return nil }

func matchesAll(r processor.Record, filters []Filter) bool {
	for _, f := range filters {
		if !matches(r, f) {
			return false
		}
	}
	return true
}
