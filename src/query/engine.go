// Package query 在电厂 cube 上提供六个固定的汇总问题
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PowerPlantCube/src/cube"
	"PowerPlantCube/src/metrics"
	"PowerPlantCube/src/processor"
)

const (
	CubeName = "PowerPlantCube"

	DimTime     = "Time"
	DimLocation = "Location"

	MeasureTotalCapacity   = "TotalCapacity"
	MeasureCapacityPerYear = "CapacityPerYear"

	DefaultDecade = 2010
)

type Engine struct {
	cube *cube.Cube
	log  *slog.Logger
}

// NewEngine 声明 Time/Location 维度与两个求和度量
func NewEngine(store cube.Store, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	c := cube.New(CubeName, store)
	if err := c.DeclareDimension(DimTime, processor.ColDecade, processor.ColCommissioningYear); err != nil {
		return nil, err
	}
	if err := c.DeclareDimension(DimLocation, processor.ColCountry); err != nil {
		return nil, err
	}
	if err := c.DeclareMeasure(MeasureTotalCapacity, processor.ColCapacityMW, cube.AggSum); err != nil {
		return nil, err
	}
	if err := c.DeclareMeasure(MeasureCapacityPerYear, processor.ColCapacityPerYear, cube.AggSum); err != nil {
		return nil, err
	}
	return &Engine{cube: c, log: log}, nil
}

func (e *Engine) Cube() *cube.Cube { return e.cube }

func (e *Engine) Load(ctx context.Context, table *processor.Table) error {
	start := time.Now()
	if err := e.cube.Load(ctx, table); err != nil {
		return err
	}
	metrics.RowsLoaded.Set(float64(table.Len()))
	e.log.Info("cube loaded", "cube", CubeName, "rows", table.Len(), "key", table.KeyColumn(),
		"duration", time.Since(start))
	return nil
}

// TopCountryByTotalCapacity 总装机容量最大的国家
func (e *Engine) TopCountryByTotalCapacity(ctx context.Context) (cube.Result, error) {
	res, err := e.cube.Query(ctx, MeasureTotalCapacity, []string{processor.ColCountry})
	if err != nil {
		return cube.Result{}, err
	}
	return top1(res, processor.ColCountry), nil
}

// GlobalTotalCapacity 全部电厂的总装机容量
func (e *Engine) GlobalTotalCapacity(ctx context.Context) (cube.Result, error) {
	return e.cube.Query(ctx, MeasureTotalCapacity, nil)
}

// TopCountryByCapacityPerYear 年均容量之和最大的国家
func (e *Engine) TopCountryByCapacityPerYear(ctx context.Context) (cube.Result, error) {
	res, err := e.cube.Query(ctx, MeasureCapacityPerYear, []string{processor.ColCountry})
	if err != nil {
		return cube.Result{}, err
	}
	return top1(res, processor.ColCountry), nil
}

func (e *Engine) GlobalCapacityPerYear(ctx context.Context) (cube.Result, error) {
	return e.cube.Query(ctx, MeasureCapacityPerYear, nil)
}

// CapacityPerYearByDecade 折线图用
func (e *Engine) CapacityPerYearByDecade(ctx context.Context) (cube.Result, error) {
	return e.cube.Query(ctx, MeasureCapacityPerYear, []string{processor.ColDecade})
}

// CapacityByDecade 按年代升序
func (e *Engine) CapacityByDecade(ctx context.Context) (cube.Result, error) {
	return e.cube.Query(ctx, MeasureTotalCapacity, []string{processor.ColDecade})
}

// TopCountryInDecade 指定年代中装机容量最大的国家，该年代无数据时结果为空
func (e *Engine) TopCountryInDecade(ctx context.Context, decade int) (cube.Result, error) {
	res, err := e.cube.Query(ctx, MeasureTotalCapacity,
		[]string{processor.ColDecade, processor.ColCountry},
		cube.Eq(processor.ColDecade, decade))
	if err != nil {
		return cube.Result{}, err
	}
	return top1(res, processor.ColCountry), nil
}

// top1 取值最大的一行，值相同时取国家名字典序最小者
func top1(res cube.Result, level string) cube.Result {
	if res.Empty() {
		return res
	}
	best := 0
	for i := 1; i < len(res.Rows); i++ {
		a, b := res.Rows[i], res.Rows[best]
		if a.Value > b.Value ||
			(a.Value == b.Value && res.Member(i, level) < res.Member(best, level)) {
			best = i
		}
	}
	res.Rows = res.Rows[best : best+1]
	return res
}

// Question 一个可独立执行的问题
type Question struct {
	ID    int
	Name  string
	Title string
	Run   func(ctx context.Context) (cube.Result, error)
}

// Questions 六个问题，编号 1-6
func (e *Engine) Questions(decade int) []Question {
	qs := []Question{
		{ID: 1, Name: "top_country_total_capacity", Title: "Country with the largest total capacity",
			Run: e.TopCountryByTotalCapacity},
		{ID: 2, Name: "global_total_capacity", Title: "Total capacity of all power plants",
			Run: e.GlobalTotalCapacity},
		{ID: 3, Name: "top_country_capacity_per_year", Title: "Country with the highest capacity per year",
			Run: e.TopCountryByCapacityPerYear},
		{ID: 4, Name: "global_capacity_per_year", Title: "Global capacity per year",
			Run: e.GlobalCapacityPerYear},
		{ID: 5, Name: "capacity_by_decade", Title: "Total capacity per decade",
			Run: e.CapacityByDecade},
		{ID: 6, Name: "top_country_in_decade", Title: fmt.Sprintf("Country with the highest capacity in the %ds", decade),
			Run: func(ctx context.Context) (cube.Result, error) { return e.TopCountryInDecade(ctx, decade) }},
	}
	for i := range qs {
		qs[i].Run = e.instrument(qs[i].Name, qs[i].Run)
	}
	return qs
}

func (e *Engine) instrument(name string, run func(context.Context) (cube.Result, error)) func(context.Context) (cube.Result, error) {
	return func(ctx context.Context) (cube.Result, error) {
		start := time.Now()
		res, err := run(ctx)
		metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		metrics.QueriesTotal.WithLabelValues(name, metrics.Status(err)).Inc()
		if err != nil {
			e.log.Error("query failed", "question", name, "error", err)
		} else {
			e.log.Debug("query finished", "question", name, "rows", len(res.Rows), "duration", time.Since(start))
		}
		return res, err
	}
}
