// cleaner.go
package processor

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"PowerPlantCube/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 丢弃原因
const (
	DropMissing     = "missing"
	DropNotNumeric  = "not_numeric"
	DropNonPositive = "non_positive"
	DropDecade      = "decade_undefined"
)

// decade 超出 int 可表示范围时无法计算
const maxYear = float64(math.MaxInt32)

// SchemaError 缺少必需列，清洗不会开始
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("required column(s) not found: %s", strings.Join(e.Missing, ", "))
}

type Options struct {
	ReferenceYear int
	TextFill      string
	KeyColumns    []string
	Logger        *slog.Logger
}

// Report 清洗过程的统计信息
type Report struct {
	RawRows    int
	YearCounts []utils.ValueCount // 原始 commissioning_year 取值分布
	Dropped    map[string]int
	NullCounts map[string]int // 清洗后每列缺失值数量
	KeyColumn  string
	Rows       int
}

// DroppedTotal 被丢弃的总行数
func (r *Report) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

type Cleaner struct {
	opts Options
}

func NewCleaner(opts Options) *Cleaner {
	if opts.ReferenceYear == 0 {
		opts.ReferenceYear = 2025
	}
	if opts.TextFill == "" {
		opts.TextFill = "Unknown"
	}
	if len(opts.KeyColumns) == 0 {
		opts.KeyColumns = []string{ColGppdIDNR, ColName}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cleaner{opts: opts}
}

// Clean 校验列、转换年份、派生 decade/umur/capacity_per_year、重建 ID 并填充文本列
func (c *Cleaner) Clean(df dataframe.DataFrame) (*Table, *Report, error) {
	if df.Err != nil {
		return nil, nil, fmt.Errorf("invalid input frame: %w", df.Err)
	}
	if missing := utils.MissingColumns(df, RequiredColumns...); len(missing) > 0 {
		return nil, nil, &SchemaError{Missing: missing}
	}

	log := c.opts.Logger
	report := &Report{
		RawRows:    df.Nrow(),
		YearCounts: utils.ValueCounts(df.Col(ColCommissioningYear)),
		Dropped:    map[string]int{},
	}

	years := df.Col(ColCommissioningYear)
	capacities := df.Col(ColCapacityMW)
	refYear := float64(c.opts.ReferenceYear)

	kept := make([]int, 0, df.Nrow())
	records := make([]Record, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		year, reason := coerceYear(years.Elem(i))
		if reason != "" {
			report.Dropped[reason]++
			continue
		}
		if year >= maxYear {
			// 上一步保证了年份为正的有限值，这里只做兜底
			log.Warn("decade could not be computed, row dropped", "row", i, "commissioning_year", year)
			report.Dropped[DropDecade]++
			continue
		}

		age := refYear - year
		// 小数年份可能使 age 落在 (0,1)
		if age < 1 {
			age = 1
		}
		capacity, _ := utils.ParseNumber(capacities.Elem(i))

		records = append(records, Record{
			ID:                len(records),
			CommissioningYear: year,
			Decade:            int(math.Floor(year/10)) * 10,
			Age:               age,
			CapacityMW:        capacity,
			CapacityPerYear:   capacity / age,
		})
		kept = append(kept, i)
	}
	for reason, n := range report.Dropped {
		log.Debug("rows dropped during coercion", "reason", reason, "count", n)
	}

	frame, err := c.buildFrame(df, kept, records)
	if err != nil {
		return nil, nil, err
	}

	country := frame.Col(ColCountry)
	for i := range records {
		records[i].Country = country.Elem(i).String()
	}

	keyColumn := c.resolveKey(df, kept)
	for i := range records {
		if keyColumn == ColID {
			records[i].Key = strconv.Itoa(records[i].ID)
		} else {
			records[i].Key = df.Col(keyColumn).Elem(kept[i]).String()
		}
	}

	report.NullCounts = utils.NullCounts(frame)
	report.KeyColumn = keyColumn
	report.Rows = len(records)
	log.Info("data cleaned", "raw_rows", report.RawRows, "rows", report.Rows,
		"dropped", report.DroppedTotal(), "key", keyColumn)

	return &Table{frame: frame, records: records, keyColumn: keyColumn}, report, nil
}

// coerceYear 返回年份或丢弃原因
func coerceYear(e series.Element) (float64, string) {
	if e.IsNA() || strings.TrimSpace(e.String()) == "" {
		return 0, DropMissing
	}
	year, ok := utils.ParseNumber(e)
	if !ok {
		return 0, DropNotNumeric
	}
	if year <= 0 {
		return 0, DropNonPositive
	}
	return year, ""
}

// buildFrame 组装清洗后的 DataFrame: ID 在最前，其后是原始列，最后是派生列
func (c *Cleaner) buildFrame(df dataframe.DataFrame, kept []int, records []Record) (dataframe.DataFrame, error) {
	derived := []string{ColID, ColDecade, ColAge, ColCapacityPerYear}

	ids := make([]string, len(records))
	decades := make([]string, len(records))
	ages := make([]string, len(records))
	perYear := make([]string, len(records))
	for i, r := range records {
		ids[i] = strconv.Itoa(r.ID)
		decades[i] = strconv.Itoa(r.Decade)
		ages[i] = naString(r.Age)
		perYear[i] = naString(r.CapacityPerYear)
	}

	columns := []series.Series{series.New(ids, series.String, ColID)}
	for _, name := range df.Names() {
		if utils.Contains(derived, name) {
			continue
		}
		src := df.Col(name)
		values := make([]string, len(kept))
		switch name {
		case ColCommissioningYear:
			for i, r := range records {
				values[i] = naString(r.CommissioningYear)
			}
		case ColCapacityMW:
			for i, r := range records {
				values[i] = naString(r.CapacityMW)
			}
		default:
			for i, idx := range kept {
				e := src.Elem(idx)
				if e.IsNA() {
					values[i] = "NaN"
				} else {
					values[i] = e.String()
				}
			}
		}
		s := series.New(values, series.String, name)
		if name == ColCountry || (name != ColCommissioningYear && name != ColCapacityMW && !utils.IsNumericColumn(s)) {
			s = fillNA(s, c.opts.TextFill)
		}
		columns = append(columns, s)
	}
	columns = append(columns,
		series.New(decades, series.String, ColDecade),
		series.New(ages, series.String, ColAge),
		series.New(perYear, series.String, ColCapacityPerYear),
	)

	frame := dataframe.New(columns...)
	if frame.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to build cleaned frame: %w", frame.Err)
	}
	return frame, nil
}

// resolveKey 第一个存在的候选列在清洗后无缺失且唯一时作为键，否则使用 ID
func (c *Cleaner) resolveKey(df dataframe.DataFrame, kept []int) string {
	for _, name := range c.opts.KeyColumns {
		if !utils.HasColumn(df, name) {
			continue
		}
		col := df.Col(name)
		seen := make(map[string]struct{}, len(kept))
		for _, idx := range kept {
			e := col.Elem(idx)
			if e.IsNA() {
				c.opts.Logger.Warn("key column has missing values, falling back to ID", "column", name)
				return ColID
			}
			if _, dup := seen[e.String()]; dup {
				c.opts.Logger.Warn("key column has duplicate values, falling back to ID", "column", name, "value", e.String())
				return ColID
			}
			seen[e.String()] = struct{}{}
		}
		return name
	}
	return ColID
}

func fillNA(s series.Series, fill string) series.Series {
	values := make([]string, s.Len())
	for i := range values {
		e := s.Elem(i)
		if e.IsNA() || strings.TrimSpace(e.String()) == "" {
			values[i] = fill
		} else {
			values[i] = e.String()
		}
	}
	return series.New(values, series.String, s.Name)
}

// gota 的 String 序列把 "NaN" 视为缺失值
func naString(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return utils.FormatFloat(v)
}
