package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"PowerPlantCube/src/cube"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

const chartSheet = "charts"

// ChartData 图表使用的两组按年代结果
type ChartData struct {
	CapacityByDecade        cube.Result
	CapacityPerYearByDecade cube.Result
}

// SaveReport 每个问题一个工作表，另有一个带柱状图和折线图的工作表
func SaveReport(sections []Section, charts ChartData, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for _, s := range sections {
		sheet := fmt.Sprintf("task%d", s.ID)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
		if err := f.SetCellValue(sheet, "A1", s.Title); err != nil {
			return err
		}
		if err := writeFrame(f, sheet, 3, ResultFrame(s.Result)); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(chartSheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", chartSheet, err)
	}
	if err := addDecadeChart(f, "A1", "D1", excelize.Col, "Total capacity per decade", charts.CapacityByDecade); err != nil {
		return err
	}
	if err := addDecadeChart(f, "A20", "D20", excelize.Line, "Capacity per year by decade", charts.CapacityPerYearByDecade); err != nil {
		return err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

// writeFrame 从 startRow 开始写入列名和数据，数值单元格写为数字
func writeFrame(f *excelize.File, sheet string, startRow int, df dataframe.DataFrame) error {
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, startRow)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		for colIdx, colName := range colNames {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, startRow+rowIdx+1)
			val := df.Col(colName).Elem(rowIdx).String()
			var err error
			if v, perr := strconv.ParseFloat(val, 64); perr == nil {
				err = f.SetCellValue(sheet, cell, v)
			} else {
				err = f.SetCellValue(sheet, cell, val)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// addDecadeChart 数据写在 dataCell 处，图表放在 chartCell 处；无数据时跳过图表
func addDecadeChart(f *excelize.File, dataCell, chartCell string, kind excelize.ChartType, title string, res cube.Result) error {
	col, row, err := excelize.CellNameToCoordinates(dataCell)
	if err != nil {
		return err
	}
	if err := writeFrame(f, chartSheet, row, ResultFrame(res)); err != nil {
		return err
	}
	if res.Empty() || len(res.Levels) != 1 {
		return nil
	}

	first, last := row+1, row+len(res.Rows)
	catCol, _ := excelize.ColumnNumberToName(col)
	valCol, _ := excelize.ColumnNumberToName(col + 1)

	return f.AddChart(chartSheet, chartCell, &excelize.Chart{
		Type: kind,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$%s$%d", chartSheet, valCol, row),
			Categories: fmt.Sprintf("%s!$%s$%d:$%s$%d", chartSheet, catCol, first, catCol, last),
			Values:     fmt.Sprintf("%s!$%s$%d:$%s$%d", chartSheet, valCol, first, valCol, last),
		}},
		Title: []excelize.RichTextRun{{Text: title}},
	})
}
