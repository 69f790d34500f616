package cube

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"PowerPlantCube/src/processor"
	"PowerPlantCube/src/utils"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindFloat
)

// 可用作维度层级或度量的列
var schema = map[string]columnKind{
	processor.ColDecade:            kindInt,
	processor.ColCommissioningYear: kindFloat,
	processor.ColCountry:           kindText,
	processor.ColCapacityMW:        kindFloat,
	processor.ColCapacityPerYear:   kindFloat,
	processor.ColAge:               kindFloat,
}

func isNumeric(column string) bool {
	kind, ok := schema[column]
	return ok && kind != kindText
}

// Filter 只保留 Level 列取值等于 Value 的行，数值列按数值比较
type Filter struct {
	Level string
	Value string
}

// Eq 构造等值过滤条件
func Eq(level string, value any) Filter {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Filter{Level: level, Value: fmt.Sprint(v)}
	case float32:
		return Filter{Level: level, Value: utils.FormatFloat(float64(v))}
	case float64:
		return Filter{Level: level, Value: utils.FormatFloat(v)}
	case string:
		return Filter{Level: level, Value: v}
	default:
		return Filter{Level: level, Value: fmt.Sprint(v)}
	}
}

// numericValue 解析数值列上的过滤值
func numericValue(f Filter) (float64, error) {
	v, err := strconv.ParseFloat(f.Value, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidFilter, f.Level, f.Value)
	}
	return v, nil
}

// Aggregation 一次分组求和请求，列名已校验
type Aggregation struct {
	Column  string
	Levels  []string
	Filters []Filter
}

// Store 聚合存储，Load 之后只读，Aggregate 可并发调用
type Store interface {
	Load(ctx context.Context, records []processor.Record) error
	// Aggregate 返回未排序的分组结果，NaN 值不参与求和
	Aggregate(ctx context.Context, agg Aggregation) ([]Row, error)
	Close() error
}

// member 把记录的某列转为层级成员文本
func member(r processor.Record, column string) string {
	switch column {
	case processor.ColDecade:
		return strconv.Itoa(r.Decade)
	case processor.ColCommissioningYear:
		return utils.FormatFloat(r.CommissioningYear)
	case processor.ColCountry:
		return r.Country
	default:
		return utils.FormatFloat(measureValue(r, column))
	}
}

func measureValue(r processor.Record, column string) float64 {
	switch column {
	case processor.ColCapacityMW:
		return r.CapacityMW
	case processor.ColCapacityPerYear:
		return r.CapacityPerYear
	case processor.ColAge:
		return r.Age
	case processor.ColCommissioningYear:
		return r.CommissioningYear
	case processor.ColDecade:
		return float64(r.Decade)
	default:
		return math.NaN()
	}
}

// matches 数值列按数值比较，"2010" 与 "2010.0" 视为相同
func matches(r processor.Record, f Filter) bool {
	if isNumeric(f.Level) {
		want, err := numericValue(f)
		if err != nil {
			return false
		}
		return measureValue(r, f.Level) == want
	}
	return member(r, f.Level) == f.Value
}
