// Package pipeline 串联读取、清洗、建 cube、执行问题和导出
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"PowerPlantCube/src/config"
	"PowerPlantCube/src/cube"
	"PowerPlantCube/src/datasource/file"
	"PowerPlantCube/src/export"
	"PowerPlantCube/src/metrics"
	"PowerPlantCube/src/processor"
	"PowerPlantCube/src/query"
	"PowerPlantCube/src/task"
)

// Summary 一次运行的结果
type Summary struct {
	Report   *processor.Report
	Sections []export.Section // 按问题编号排序，只包含成功的问题
	Outcomes []task.Outcome   // 与问题编号顺序一致
}

// Failed 失败的作业数
func (s *Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

type Pipeline struct {
	cfg  *config.Config
	dcfg *config.DataConfig
	log  *slog.Logger
	out  io.Writer // 控制台结果表
}

func New(cfg *config.Config, dcfg *config.DataConfig, log *slog.Logger, out io.Writer) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{cfg: cfg, dcfg: dcfg, log: log, out: out}
}

// Run 执行一次完整流程；清洗前的错误(读文件、缺列)直接返回，单个问题失败只记录在 Outcomes 中
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	cfg := p.cfg

	df, err := file.ReadTable(cfg.InputPath, file.ReadOptions{
		SheetName:     cfg.SheetName,
		Charset:       cfg.Charset,
		Delimiter:     cfg.DelimiterRune(),
		MissingValues: p.dcfg.MissingValues,
		Aliases:       p.dcfg.Columns,
	})
	if err != nil {
		return nil, err
	}
	metrics.RowsReadTotal.Add(float64(df.Nrow()))
	p.log.Info("input loaded", "path", cfg.InputPath, "rows", df.Nrow(), "columns", df.Ncol())

	cleaner := processor.NewCleaner(processor.Options{
		ReferenceYear: cfg.ReferenceYear,
		TextFill:      p.dcfg.TextFill,
		KeyColumns:    p.dcfg.KeyColumns,
		Logger:        p.log,
	})
	table, report, err := cleaner.Clean(df)
	if err != nil {
		return nil, err
	}
	for reason, n := range report.Dropped {
		metrics.RowsDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
	for _, vc := range report.YearCounts {
		p.log.Debug("commissioning_year value count", "value", vc.Value, "count", vc.Count)
	}
	for col, n := range report.NullCounts {
		if n > 0 {
			p.log.Debug("missing values after cleaning", "column", col, "count", n)
		}
	}

	if cfg.CleanedPath != "" {
		if err := export.WriteCleanedCSV(table.Frame(), cfg.CleanedPath); err != nil {
			return nil, err
		}
		p.log.Info("cleaned table exported", "path", cfg.CleanedPath)
	}

	store, err := p.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	engine, err := query.NewEngine(store, p.log)
	if err != nil {
		return nil, err
	}
	if err := engine.Load(ctx, table); err != nil {
		return nil, err
	}

	dispatcher := task.NewDispatcher(p.log, cfg.Async, cfg.Workers)
	defer dispatcher.Close()

	var (
		mu       sync.Mutex
		sections []export.Section
	)
	questions := engine.Questions(cfg.Decade)
	jobs := make([]task.Job, 0, len(questions))
	for _, q := range questions {
		jobs = append(jobs, task.Job{
			Name: fmt.Sprintf("task%d", q.ID),
			Run: func(ctx context.Context) error {
				res, err := q.Run(ctx)
				if err != nil {
					return err
				}
				if err := p.exportQuestion(ctx, engine, q, res); err != nil {
					return err
				}
				mu.Lock()
				sections = append(sections, export.Section{ID: q.ID, Name: q.Name, Title: q.Title, Result: res})
				mu.Unlock()
				return nil
			},
		})
	}
	outcomes := dispatcher.RunAll(ctx, jobs)

	sort.Slice(sections, func(i, j int) bool { return sections[i].ID < sections[j].ID })
	for _, s := range sections {
		export.PrintSection(p.out, s)
	}

	if cfg.ReportPath != "" {
		if err := p.saveReport(ctx, engine, sections); err != nil {
			return nil, err
		}
	}

	summary := &Summary{Report: report, Sections: sections, Outcomes: outcomes}
	p.log.Info("pipeline finished", "rows", report.Rows, "dropped", report.DroppedTotal(),
		"failed_jobs", summary.Failed(), "async", cfg.Async, "duration", time.Since(start))
	return summary, nil
}

func (p *Pipeline) openStore() (cube.Store, error) {
	switch p.cfg.Store {
	case "duckdb":
		store, err := cube.NewDuckDBStore(p.log, p.cfg.DuckDBPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		return cube.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", p.cfg.Store)
	}
}

// exportQuestion 写出问题结果 csv；问题4、5同时输出图表
func (p *Pipeline) exportQuestion(ctx context.Context, engine *query.Engine, q query.Question, res cube.Result) error {
	dir := p.cfg.OutputDir
	if dir == "" {
		return nil
	}
	if err := export.WriteResultCSV(res, filepath.Join(dir, export.TaskFileName(q.ID))); err != nil {
		return err
	}
	if !p.cfg.Charts {
		return nil
	}

	switch q.ID {
	case 4:
		perDecade, err := engine.CapacityPerYearByDecade(ctx)
		if err != nil {
			return err
		}
		return export.SaveLineChart(perDecade, "Capacity per year by decade", filepath.Join(dir, export.LineChartFile))
	case 5:
		return export.SaveBarChart(res, "Total capacity per decade", filepath.Join(dir, export.BarChartFile))
	}
	return nil
}

func (p *Pipeline) saveReport(ctx context.Context, engine *query.Engine, sections []export.Section) error {
	byDecade, err1 := engine.CapacityByDecade(ctx)
	perYear, err2 := engine.CapacityPerYearByDecade(ctx)
	if err := errors.Join(err1, err2); err != nil {
		return fmt.Errorf("failed to query chart data: %w", err)
	}
	if err := export.SaveReport(sections, export.ChartData{
		CapacityByDecade:        byDecade,
		CapacityPerYearByDecade: perYear,
	}, p.cfg.ReportPath); err != nil {
		return err
	}
	p.log.Info("report saved", "path", p.cfg.ReportPath)
	return nil
}
