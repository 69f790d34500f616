package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"PowerPlantCube/src/cube"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	LineChartFile = "task4_plot.png"
	BarChartFile  = "task5_plot.png"
)

// SaveLineChart 按年代画折线图，结果只能有一个数值层级
func SaveLineChart(res cube.Result, title, filePath string) error {
	if len(res.Levels) != 1 {
		return fmt.Errorf("line chart needs exactly one level, got %d", len(res.Levels))
	}

	pts := make(plotter.XYs, len(res.Rows))
	for i, row := range res.Rows {
		x, err := strconv.ParseFloat(row.Members[0], 64)
		if err != nil {
			return fmt.Errorf("%s member %q is not numeric: %w", res.Levels[0], row.Members[0], err)
		}
		pts[i].X = x
		pts[i].Y = row.Value
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = res.Levels[0]
	p.Y.Label.Text = res.Measure
	p.Add(plotter.NewGrid())

	if len(pts) > 0 {
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return err
		}
		p.Add(line, points)
	}
	return save(p, filePath)
}

// SaveBarChart 每个成员一根柱子
func SaveBarChart(res cube.Result, title, filePath string) error {
	if len(res.Levels) != 1 {
		return fmt.Errorf("bar chart needs exactly one level, got %d", len(res.Levels))
	}

	values := make(plotter.Values, len(res.Rows))
	labels := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		values[i] = row.Value
		labels[i] = row.Members[0]
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = res.Levels[0]
	p.Y.Label.Text = res.Measure
	p.Add(plotter.NewGrid())

	if len(values) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(20))
		if err != nil {
			return err
		}
		p.Add(bars)
		p.NominalX(labels...)
	}
	return save(p, filePath)
}

func save(p *plot.Plot, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, filePath); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", filePath, err)
	}
	return nil
}
