// Package export 将清洗结果和问题结果写出为 csv、xlsx、png 或控制台表格
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"PowerPlantCube/src/cube"
	"PowerPlantCube/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ValueColumn 结果表中度量值所在列
const ValueColumn = "value"

// Section 一个问题及其结果
type Section struct {
	ID     int
	Name   string
	Title  string
	Result cube.Result
}

// TaskFileName 问题 N 的 csv 文件名
func TaskFileName(id int) string {
	return fmt.Sprintf("task%d.csv", id)
}

// ResultFrame 把结果转为 DataFrame：每个层级一列，最后一列为度量名
func ResultFrame(res cube.Result) dataframe.DataFrame {
	cols := make([]series.Series, 0, len(res.Levels)+1)
	for k, level := range res.Levels {
		values := make([]string, len(res.Rows))
		for i, row := range res.Rows {
			values[i] = row.Members[k]
		}
		cols = append(cols, series.New(values, series.String, level))
	}
	values := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		values[i] = utils.FormatFloat(row.Value)
	}
	name := res.Measure
	if name == "" {
		name = ValueColumn
	}
	cols = append(cols, series.New(values, series.String, name))
	return dataframe.New(cols...)
}

// WriteResultCSV 写出一个问题的结果
func WriteResultCSV(res cube.Result, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	df := ResultFrame(res)
	if df.Err != nil {
		return df.Err
	}
	if err := df.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteCleanedCSV 写出清洗后的表，缺失值写为空
func WriteCleanedCSV(df dataframe.DataFrame, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	names := df.Names()
	if err := w.Write(names); err != nil {
		return err
	}
	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = df.Col(name)
	}
	record := make([]string, len(names))
	for row := 0; row < df.Nrow(); row++ {
		for i, col := range cols {
			e := col.Elem(row)
			if e.IsNA() {
				record[i] = ""
			} else {
				record[i] = e.String()
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}
