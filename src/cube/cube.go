// Package cube 在清洗后的表上声明维度与度量，并按层级分组求和
package cube

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"PowerPlantCube/src/processor"
)

var (
	ErrNotReady       = errors.New("cube is not loaded")
	ErrInvalidLevel   = errors.New("invalid level")
	ErrUnknownMeasure = errors.New("unknown measure")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrInvalidFilter  = errors.New("invalid filter value")
)

// InvalidLevelError 查询了未声明的层级
type InvalidLevelError struct {
	Level string
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("level %q is not declared in any dimension", e.Level)
}

func (e *InvalidLevelError) Unwrap() error { return ErrInvalidLevel }

type AggFunc int

const (
	AggSum AggFunc = iota
)

type measure struct {
	column string
	agg    AggFunc
}

type Row struct {
	Members []string
	Value   float64
}

type Result struct {
	Measure string
	Levels  []string
	Rows    []Row
}

func (r Result) Empty() bool { return len(r.Rows) == 0 }

// Scalar 无分组查询的结果值
func (r Result) Scalar() float64 {
	if len(r.Rows) == 0 {
		return 0
	}
	return r.Rows[0].Value
}

// Member 返回第 i 行某层级的成员
func (r Result) Member(i int, level string) string {
	idx := slices.Index(r.Levels, level)
	if idx < 0 || i >= len(r.Rows) {
		return ""
	}
	return r.Rows[i].Members[idx]
}

type Cube struct {
	name  string
	store Store

	mu         sync.RWMutex
	dimensions map[string][]string
	levels     map[string]string // level -> dimension
	measures   map[string]measure
	ready      bool
	rows       int
}

func New(name string, store Store) *Cube {
	return &Cube{
		name:       name,
		store:      store,
		dimensions: make(map[string][]string),
		levels:     make(map[string]string),
		measures:   make(map[string]measure),
	}
}

func (c *Cube) Name() string { return c.name }

// DeclareDimension 声明一个层级维度，层级必须是表中的列
func (c *Cube) DeclareDimension(name string, levels ...string) error {
	if len(levels) == 0 {
		return fmt.Errorf("dimension %s has no levels", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, level := range levels {
		if _, ok := schema[level]; !ok {
			return fmt.Errorf("dimension %s: %w: %s", name, ErrUnknownColumn, level)
		}
		if dim, ok := c.levels[level]; ok && dim != name {
			return fmt.Errorf("level %s already belongs to dimension %s", level, dim)
		}
	}
	c.dimensions[name] = slices.Clone(levels)
	for _, level := range levels {
		c.levels[level] = name
	}
	return nil
}

func (c *Cube) DeclareMeasure(name, column string, agg AggFunc) error {
	if !isNumeric(column) {
		return fmt.Errorf("measure %s: %w: %s", name, ErrUnknownColumn, column)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.measures[name] = measure{column: column, agg: agg}
	return nil
}

// Dimensions 维度名到层级的拷贝
func (c *Cube) Dimensions() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.dimensions))
	for k, v := range c.dimensions {
		out[k] = slices.Clone(v)
	}
	return out
}

// Load 校验唯一键后载入存储，可重复调用以替换数据
func (c *Cube) Load(ctx context.Context, table *processor.Table) error {
	records := table.Records()
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.Key]; dup {
			return fmt.Errorf("%w: %s=%s", ErrDuplicateKey, table.KeyColumn(), r.Key)
		}
		seen[r.Key] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	if err := c.store.Load(ctx, records); err != nil {
		return fmt.Errorf("failed to load cube %s: %w", c.name, err)
	}
	c.ready = true
	c.rows = len(records)
	return nil
}

func (c *Cube) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Query 按 levels 分组汇总度量，过滤后为空时返回空结果
func (c *Cube) Query(ctx context.Context, measureName string, levels []string, filters ...Filter) (Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready {
		return Result{}, ErrNotReady
	}
	m, ok := c.measures[measureName]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownMeasure, measureName)
	}
	for _, level := range levels {
		if _, ok := c.levels[level]; !ok {
			return Result{}, &InvalidLevelError{Level: level}
		}
	}
	for _, f := range filters {
		if _, ok := c.levels[f.Level]; !ok {
			return Result{}, &InvalidLevelError{Level: f.Level}
		}
		if isNumeric(f.Level) {
			if _, err := numericValue(f); err != nil {
				return Result{}, err
			}
		}
	}

	rows, err := c.store.Aggregate(ctx, Aggregation{
		Column:  m.column,
		Levels:  slices.Clone(levels),
		Filters: filters,
	})
	if err != nil {
		return Result{}, fmt.Errorf("query %s by %v: %w", measureName, levels, err)
	}

	// 空表上的全局汇总为一行 0
	if len(levels) == 0 && len(filters) == 0 && len(rows) == 0 {
		rows = []Row{{Members: []string{}, Value: 0}}
	}
	sortRows(rows, levels)

	return Result{Measure: measureName, Levels: slices.Clone(levels), Rows: rows}, nil
}

// sortRows 按层级升序，数值层级按数值比较
func sortRows(rows []Row, levels []string) {
	sort.SliceStable(rows, func(i, j int) bool {
		for k, level := range levels {
			a, b := rows[i].Members[k], rows[j].Members[k]
			if a == b {
				continue
			}
			if isNumeric(level) {
				fa, errA := strconv.ParseFloat(a, 64)
				fb, errB := strconv.ParseFloat(b, 64)
				if errA == nil && errB == nil {
					return fa < fb
				}
			}
			return a < b
		}
		return false
	})
}
